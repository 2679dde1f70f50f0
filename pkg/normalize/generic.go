package normalize

import (
	"encoding/json"
	"strings"

	"github.com/grovetools/relay/pkg/models"
)

// GenericDecoder handles tools with no dedicated decoder. Free text passes
// through unchanged and JSON objects use the shared fallback.
type GenericDecoder struct{}

// Decode implements Decoder.
func (GenericDecoder) Decode(line []byte) []models.CanonicalEvent {
	if !json.Valid(line) {
		text := strings.TrimRight(string(line), "\r\n")
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []models.CanonicalEvent{{Text: text, Kind: models.KindText}}
	}

	if !isObject(line) {
		return []models.CanonicalEvent{newEvent(models.KindText, pretty(line), line)}
	}

	kind := strings.ToLower(str(line, "type"))
	if hint := firstStr(line, "session_id", "sessionId", "thread_id", "threadId"); hint != "" &&
		(strings.Contains(kind, "init") || strings.Contains(kind, "start")) {
		ev := newEvent(models.KindSystem, sessionStarted(str(line, "model")), line)
		ev.ResumeTokenHint = hint
		return []models.CanonicalEvent{ev}
	}
	if kind == "error" {
		return []models.CanonicalEvent{newEvent(models.KindError, errorText(line), line)}
	}

	return []models.CanonicalEvent{fallback(line)}
}
