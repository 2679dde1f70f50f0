package normalize

import (
	"github.com/buger/jsonparser"
	"github.com/grovetools/relay/pkg/models"
)

// ClaudeDecoder handles claude's --output-format stream-json --verbose lines.
type ClaudeDecoder struct{}

// Decode implements Decoder.
func (d ClaudeDecoder) Decode(line []byte) []models.CanonicalEvent {
	if !isObject(line) {
		return nil
	}

	switch str(line, "type") {
	case "system":
		if str(line, "subtype") != "init" {
			return nil
		}
		fallthrough
	case "init":
		ev := newEvent(models.KindSystem, sessionStarted(str(line, "model")), line)
		ev.ResumeTokenHint = firstStr(line, "session_id", "sessionId")
		return []models.CanonicalEvent{ev}

	case "assistant":
		return d.decodeContent(line, false)

	case "user":
		return d.decodeContent(line, true)

	case "stream_event":
		event := value(line, "event")
		if str(event, "type") != "content_block_delta" {
			return nil
		}
		delta := value(event, "delta")
		switch str(delta, "type") {
		case "text_delta":
			if text := str(delta, "text"); text != "" {
				return []models.CanonicalEvent{newEvent(models.KindText, text, line)}
			}
		case "thinking_delta":
			if text := str(delta, "thinking"); text != "" {
				return []models.CanonicalEvent{newEvent(models.KindThinking, text, line)}
			}
		}
		return nil

	case "result":
		if boolAt(line, "is_error") || (str(line, "subtype") != "" && str(line, "subtype") != "success") {
			return []models.CanonicalEvent{newEvent(models.KindError, errorText(line), line)}
		}
		return nil

	case "error":
		return []models.CanonicalEvent{newEvent(models.KindError, errorText(line), line)}
	}

	return []models.CanonicalEvent{fallback(line)}
}

// decodeContent expands a message's content blocks. User messages only
// contribute tool results; their text is the prompt echoed back.
func (ClaudeDecoder) decodeContent(line []byte, fromUser bool) []models.CanonicalEvent {
	content := value(line, "message", "content")
	if content == nil {
		content = value(line, "content")
	}
	if content == nil {
		return nil
	}

	if content[0] != '[' {
		if fromUser {
			return nil
		}
		if text := blockText(content); text != "" {
			return []models.CanonicalEvent{newEvent(models.KindText, text, line)}
		}
		return nil
	}

	var events []models.CanonicalEvent
	_, _ = jsonparser.ArrayEach(content, func(block []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if dataType != jsonparser.Object {
			return
		}
		switch str(block, "type") {
		case "text":
			if !fromUser {
				if text := str(block, "text"); text != "" {
					events = append(events, newEvent(models.KindText, text, line))
				}
			}
		case "thinking":
			if text := firstStr(block, "thinking", "text"); text != "" {
				events = append(events, newEvent(models.KindThinking, text, line))
			}
		case "tool_use", "server_tool_use":
			events = append(events, newEvent(models.KindToolCall, toolCall(str(block, "name"), value(block, "input")), line))
		case "tool_result":
			text := blockText(value(block, "content"))
			if boolAt(block, "is_error") {
				text = "error: " + text
			}
			events = append(events, newEvent(models.KindToolResult, text, line))
		}
	})
	return events
}
