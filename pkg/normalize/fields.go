package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/grovetools/relay/pkg/models"
)

// fallbackKeys are tried in order when a line has no recognized shape.
var fallbackKeys = []string{"text", "content", "message", "result", "output", "delta"}

func isObject(line []byte) bool {
	return len(line) > 0 && line[0] == '{' && json.Valid(line)
}

func newEvent(kind models.EventKind, text string, line []byte) models.CanonicalEvent {
	return models.CanonicalEvent{
		Text: text,
		Kind: kind,
		Raw:  json.RawMessage(append([]byte(nil), line...)),
	}
}

// str reads a string at the key path, empty when absent or not a string.
func str(data []byte, keys ...string) string {
	v, err := jsonparser.GetString(data, keys...)
	if err != nil {
		return ""
	}
	return v
}

// firstStr returns the first non-blank string among the alternative keys.
func firstStr(data []byte, keys ...string) string {
	for _, key := range keys {
		if v := str(data, key); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// value returns the raw JSON value at the key path, nil when absent or null.
func value(data []byte, keys ...string) []byte {
	v, dataType, _, err := jsonparser.Get(data, keys...)
	if err != nil || dataType == jsonparser.NotExist || dataType == jsonparser.Null {
		return nil
	}
	return v
}

// firstValue returns the first present raw value among the alternative keys.
func firstValue(data []byte, keys ...string) []byte {
	for _, key := range keys {
		if v := value(data, key); v != nil {
			return v
		}
	}
	return nil
}

func intAt(data []byte, keys ...string) (int64, bool) {
	v, err := jsonparser.GetInt(data, keys...)
	if err != nil {
		return 0, false
	}
	return v, true
}

func boolAt(data []byte, keys ...string) bool {
	v, err := jsonparser.GetBoolean(data, keys...)
	return err == nil && v
}

func pretty(data []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return string(data)
	}
	return buf.String()
}

// fallback renders an unrecognized object: the first known text field, or the
// whole object pretty-printed.
func fallback(line []byte) models.CanonicalEvent {
	return fallbackFrom(line, line)
}

// fallbackFrom renders obj, a nested object of line, keeping the whole line
// as the raw payload.
func fallbackFrom(obj, line []byte) models.CanonicalEvent {
	if text := firstStr(obj, fallbackKeys...); text != "" {
		return newEvent(models.KindText, text, line)
	}
	return newEvent(models.KindText, pretty(obj), line)
}

// toolCall formats a tool name with its pretty-printed arguments.
func toolCall(name string, args []byte) string {
	if name == "" {
		name = "tool"
	}
	if len(args) == 0 || string(args) == "{}" {
		return name
	}
	if args[0] != '{' && args[0] != '[' {
		return fmt.Sprintf("%s %s", name, string(args))
	}
	return fmt.Sprintf("%s\n%s", name, pretty(args))
}

// toolResult appends the exit code to output when one was reported.
func toolResult(output string, exitCode int64, hasExit bool) string {
	output = strings.TrimRight(output, "\n")
	if !hasExit {
		return output
	}
	if output == "" {
		return fmt.Sprintf("exit code %d", exitCode)
	}
	return fmt.Sprintf("%s\nexit code %d", output, exitCode)
}

// sessionStarted builds the system text for an init line.
func sessionStarted(model string) string {
	if model == "" {
		return "Session started"
	}
	return fmt.Sprintf("Session started (model: %s)", model)
}

// blockText flattens a content value that is either a string or an array of
// {"type":"text","text":...} blocks.
func blockText(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	if content[0] != '[' {
		if s, err := jsonparser.ParseString(content); err == nil {
			return s
		}
		return string(content)
	}
	var parts []string
	_, _ = jsonparser.ArrayEach(content, func(block []byte, dataType jsonparser.ValueType, _ int, _ error) {
		switch dataType {
		case jsonparser.String:
			if s, err := jsonparser.ParseString(block); err == nil {
				parts = append(parts, s)
			}
		case jsonparser.Object:
			if text := firstStr(block, "text", "content"); text != "" {
				parts = append(parts, text)
			}
		}
	})
	return strings.Join(parts, "\n")
}
