package session

import (
	"fmt"
	"testing"

	"github.com/grovetools/relay/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestTurnEnded(t *testing.T) {
	tests := []struct {
		kind models.EventKind
		text string
		want bool
	}{
		{models.KindSystem, fmt.Sprintf(exitedFormat, 0), true},
		{models.KindSystem, fmt.Sprintf(exitedFormat, 3), true},
		{models.KindSystem, stoppedMessage, true},
		{models.KindSystem, fmt.Sprintf(resetFormat, "hard", models.FamilyCodex), true},
		{models.KindError, fmt.Sprintf(spawnFailedFormat, "no such file"), true},
		{models.KindError, fmt.Sprintf(retryGiveUpFormat, 2), true},
		{models.KindSystem, busyMessage, false},
		{models.KindSystem, "Retrying without resume token (attempt 1 of 2)", false},
		{models.KindText, fmt.Sprintf(exitedFormat, 0), false},
		{models.KindError, "Agent exited with code 1: boom", false},
	}
	for _, tt := range tests {
		got := TurnEnded(models.LogEvent{Kind: tt.kind, Data: tt.text})
		assert.Equal(t, tt.want, got, "%s %q", tt.kind, tt.text)
	}
}
