package normalize

import (
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/grovetools/relay/pkg/models"
)

// CodexDecoder handles `codex exec --json` lines, including the older
// {"id":..,"msg":{..}} envelope.
type CodexDecoder struct{}

// Decode implements Decoder.
func (d CodexDecoder) Decode(line []byte) []models.CanonicalEvent {
	if !isObject(line) {
		return nil
	}

	if msg := value(line, "msg"); msg != nil && str(line, "type") == "" {
		return d.decodeLegacy(line, msg)
	}

	switch str(line, "type") {
	case "thread.started", "session.created":
		ev := newEvent(models.KindSystem, "Session started", line)
		ev.ResumeTokenHint = firstStr(line, "thread_id", "session_id", "id")
		return []models.CanonicalEvent{ev}

	case "turn.started", "turn.completed":
		return nil

	case "turn.failed":
		errObj := value(line, "error")
		text := firstStr(errObj, "message")
		if text == "" {
			text = "Turn failed"
		}
		return []models.CanonicalEvent{newEvent(models.KindError, text, line)}

	case "error":
		return []models.CanonicalEvent{newEvent(models.KindError, errorText(line), line)}

	case "item.started", "item.updated", "item.completed":
		item := value(line, "item")
		if item == nil {
			return nil
		}
		phase := strings.TrimPrefix(str(line, "type"), "item.")
		return d.decodeItem(phase, item, line)
	}

	return []models.CanonicalEvent{fallback(line)}
}

func (CodexDecoder) decodeItem(phase string, item, line []byte) []models.CanonicalEvent {
	itemType := firstStr(item, "type", "item_type")

	if phase == "started" {
		switch itemType {
		case "command_execution":
			return []models.CanonicalEvent{newEvent(models.KindToolCall, toolCall("shell", []byte(str(item, "command"))), line)}
		case "mcp_tool_call":
			name := strings.Trim(str(item, "server")+"."+str(item, "tool"), ".")
			return []models.CanonicalEvent{newEvent(models.KindToolCall, toolCall(name, value(item, "arguments")), line)}
		case "web_search":
			return []models.CanonicalEvent{newEvent(models.KindToolCall, toolCall("web_search", []byte(str(item, "query"))), line)}
		}
		return nil
	}

	if phase == "updated" {
		if itemType == "todo_list" {
			return []models.CanonicalEvent{newEvent(models.KindSystem, todoText(item), line)}
		}
		return nil
	}

	switch itemType {
	case "agent_message", "assistant_message":
		text := firstStr(item, "text", "content", "message")
		if text == "" {
			return nil
		}
		return []models.CanonicalEvent{newEvent(models.KindText, text, line)}

	case "reasoning":
		text := firstStr(item, "text", "summary", "content")
		if text == "" {
			return nil
		}
		return []models.CanonicalEvent{newEvent(models.KindThinking, text, line)}

	case "command_execution":
		code, hasExit := intAt(item, "exit_code")
		output := firstStr(item, "aggregated_output", "output", "stdout")
		return []models.CanonicalEvent{newEvent(models.KindToolResult, toolResult(output, code, hasExit), line)}

	case "file_change":
		var changes []string
		_, _ = jsonparser.ArrayEach(value(item, "changes"), func(change []byte, _ jsonparser.ValueType, _ int, _ error) {
			changes = append(changes, strings.TrimSpace(fmt.Sprintf("%s %s", str(change, "kind"), str(change, "path"))))
		})
		text := strings.Join(changes, "\n")
		if status := str(item, "status"); status == "failed" {
			text = strings.TrimSpace("patch failed\n" + text)
		}
		return []models.CanonicalEvent{newEvent(models.KindToolResult, text, line)}

	case "mcp_tool_call":
		if errObj := value(item, "error"); errObj != nil {
			return []models.CanonicalEvent{newEvent(models.KindToolResult, "error: "+firstStr(errObj, "message"), line)}
		}
		result := value(item, "result")
		text := blockText(value(result, "content"))
		if text == "" && result != nil {
			text = pretty(result)
		}
		return []models.CanonicalEvent{newEvent(models.KindToolResult, text, line)}

	case "web_search":
		return nil

	case "todo_list":
		return []models.CanonicalEvent{newEvent(models.KindSystem, todoText(item), line)}

	case "error":
		return []models.CanonicalEvent{newEvent(models.KindError, firstStr(item, "message", "text"), line)}
	}

	return []models.CanonicalEvent{fallbackFrom(item, line)}
}

func (CodexDecoder) decodeLegacy(line, msg []byte) []models.CanonicalEvent {
	switch str(msg, "type") {
	case "session_configured":
		ev := newEvent(models.KindSystem, sessionStarted(str(msg, "model")), line)
		ev.ResumeTokenHint = firstStr(msg, "session_id", "thread_id")
		return []models.CanonicalEvent{ev}

	case "agent_message":
		return []models.CanonicalEvent{newEvent(models.KindText, firstStr(msg, "message", "text"), line)}

	case "agent_reasoning":
		return []models.CanonicalEvent{newEvent(models.KindThinking, firstStr(msg, "text", "message"), line)}

	case "exec_command_begin":
		var parts []string
		_, _ = jsonparser.ArrayEach(value(msg, "command"), func(part []byte, dataType jsonparser.ValueType, _ int, _ error) {
			if dataType == jsonparser.String {
				if s, err := jsonparser.ParseString(part); err == nil {
					parts = append(parts, s)
				}
			}
		})
		command := strings.Join(parts, " ")
		if command == "" {
			command = str(msg, "command")
		}
		return []models.CanonicalEvent{newEvent(models.KindToolCall, toolCall("shell", []byte(command)), line)}

	case "exec_command_end":
		code, hasExit := intAt(msg, "exit_code")
		output := firstStr(msg, "aggregated_output", "stdout", "formatted_output")
		if output == "" {
			output = str(msg, "stderr")
		}
		return []models.CanonicalEvent{newEvent(models.KindToolResult, toolResult(output, code, hasExit), line)}

	case "error", "stream_error":
		return []models.CanonicalEvent{newEvent(models.KindError, firstStr(msg, "message", "error"), line)}

	case "task_started", "task_complete", "token_count", "agent_message_delta",
		"agent_reasoning_delta", "agent_reasoning_section_break", "exec_command_output_delta":
		return nil
	}

	return []models.CanonicalEvent{fallbackFrom(msg, line)}
}

func todoText(item []byte) string {
	var lines []string
	_, _ = jsonparser.ArrayEach(value(item, "items"), func(todo []byte, _ jsonparser.ValueType, _ int, _ error) {
		mark := "[ ]"
		if boolAt(todo, "completed") {
			mark = "[x]"
		}
		lines = append(lines, fmt.Sprintf("%s %s", mark, str(todo, "text")))
	})
	if len(lines) == 0 {
		return "Plan updated"
	}
	return "Plan:\n" + strings.Join(lines, "\n")
}
