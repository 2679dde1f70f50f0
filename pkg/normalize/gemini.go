package normalize

import (
	"fmt"

	"github.com/grovetools/relay/pkg/models"
)

// GeminiDecoder handles gemini's --output-format stream-json lines.
type GeminiDecoder struct{}

// Decode implements Decoder.
func (GeminiDecoder) Decode(line []byte) []models.CanonicalEvent {
	if !isObject(line) {
		return nil
	}

	switch str(line, "type") {
	case "init", "session_start":
		ev := newEvent(models.KindSystem, sessionStarted(firstStr(line, "model", "model_name")), line)
		ev.ResumeTokenHint = firstStr(line, "session_id", "sessionId", "id")
		return []models.CanonicalEvent{ev}

	case "message", "content":
		if str(line, "role") == "user" {
			return nil
		}
		text := firstStr(line, "content", "text", "delta")
		if text == "" {
			return nil
		}
		return []models.CanonicalEvent{newEvent(models.KindText, text, line)}

	case "thought", "thinking":
		text := firstStr(line, "content", "text", "description", "subject")
		if text == "" {
			return nil
		}
		return []models.CanonicalEvent{newEvent(models.KindThinking, text, line)}

	case "tool_use", "tool_call":
		name := firstStr(line, "tool_name", "name", "tool")
		args := firstValue(line, "parameters", "args", "arguments", "input")
		return []models.CanonicalEvent{newEvent(models.KindToolCall, toolCall(name, args), line)}

	case "tool_result":
		output := firstStr(line, "output", "result", "content")
		if str(line, "status") == "error" {
			msg := firstStr(value(line, "error"), "message")
			if msg == "" {
				msg = str(line, "error")
			}
			if msg != "" {
				output = fmt.Sprintf("error: %s", msg)
			}
		}
		code, hasExit := intAt(line, "exit_code")
		if !hasExit {
			code, hasExit = intAt(line, "exitCode")
		}
		return []models.CanonicalEvent{newEvent(models.KindToolResult, toolResult(output, code, hasExit), line)}

	case "error":
		return []models.CanonicalEvent{newEvent(models.KindError, errorText(line), line)}

	case "result":
		if str(line, "status") == "error" || value(line, "error") != nil {
			return []models.CanonicalEvent{newEvent(models.KindError, errorText(line), line)}
		}
		return nil
	}

	return []models.CanonicalEvent{fallback(line)}
}

// errorText finds a human readable message in an error line.
func errorText(line []byte) string {
	if msg := firstStr(line, "message", "error", "result"); msg != "" {
		return msg
	}
	if errObj := value(line, "error"); errObj != nil {
		if msg := firstStr(errObj, "message", "detail"); msg != "" {
			return msg
		}
		return pretty(errObj)
	}
	if subtype := str(line, "subtype"); subtype != "" {
		return subtype
	}
	return "unknown error"
}
