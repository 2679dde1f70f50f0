package events

import (
	"testing"

	"github.com/grovetools/relay/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSubscribeFiltersBySession(t *testing.T) {
	bus := New()
	all := bus.Subscribe("", 10)
	one := bus.Subscribe("a", 10)
	defer all.Close()
	defer one.Close()

	bus.Log(models.LogEvent{SessionID: "a", Data: "from a", Kind: models.KindText})
	bus.Log(models.LogEvent{SessionID: "b", Data: "from b", Kind: models.KindText})
	bus.StateChanged(models.StateChange{SessionID: "a", StateValue: models.StateIdle})
	bus.ConfigReloaded("/etc/relay.yml")

	got := drain(all)
	require.Len(t, got, 4)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, uint64(4), got[3].Seq)

	mine := drain(one)
	require.Len(t, mine, 3)
	assert.Equal(t, "from a", mine[0].Log.Data)
	assert.Equal(t, TypeStateChanged, mine[1].Type)
	assert.Equal(t, TypeConfigReload, mine[2].Type)
	assert.Equal(t, "/etc/relay.yml", mine[2].File)
}

func TestSlowSubscriberDrops(t *testing.T) {
	bus := New()
	sub := bus.Subscribe("", 2)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		bus.Log(models.LogEvent{SessionID: "s", Data: "x"})
	}

	assert.Len(t, drain(sub), 2)
	assert.Equal(t, uint64(3), sub.Dropped())
}

func TestCloseSubscription(t *testing.T) {
	bus := New()
	sub := bus.Subscribe("s", 0)
	assert.Equal(t, 1, bus.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, bus.Subscribers())

	_, ok := <-sub.C
	assert.False(t, ok)

	bus.SessionRemoved("s")
}

func TestCloseBus(t *testing.T) {
	bus := New()
	sub := bus.Subscribe("", 1)
	bus.Close()

	_, ok := <-sub.C
	assert.False(t, ok)
	sub.Close()

	late := bus.Subscribe("", 1)
	_, ok = <-late.C
	assert.False(t, ok)
	bus.Log(models.LogEvent{SessionID: "s"})
}
