package relay

import (
	"github.com/grovetools/relay/pkg/models"
)

// emitter forwards session output to the bus and persists snapshots.
type emitter struct {
	registry *Registry
}

func (e *emitter) Log(ev models.LogEvent) {
	e.registry.bus.Log(ev)
}

func (e *emitter) StateChanged(change models.StateChange) {
	r := e.registry
	if r.store != nil && change.Snapshot != nil && r.Config().Session.SnapshotsEnabled() {
		if err := r.store.Save(change.SessionID, *change.Snapshot); err != nil {
			r.logger.WithError(err).WithField("session", change.SessionID).Warn("Failed to save snapshot")
		}
	}
	r.bus.StateChanged(change)
}
