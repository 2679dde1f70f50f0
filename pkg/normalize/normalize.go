// Package normalize converts vendor agent output into canonical events.
package normalize

import (
	"bytes"
	"strings"
	"sync"

	"github.com/grovetools/relay/pkg/models"
)

// Decoder turns one complete output line into zero or more canonical events.
type Decoder interface {
	Decode(line []byte) []models.CanonicalEvent
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(line []byte) []models.CanonicalEvent

// Decode implements Decoder.
func (f DecoderFunc) Decode(line []byte) []models.CanonicalEvent {
	return f(line)
}

// Registry maps agent families to their decoders. Families without a
// registered decoder use the generic one.
type Registry struct {
	mu       sync.RWMutex
	decoders map[models.Family]Decoder
	fallback Decoder
}

// NewRegistry returns a registry with the built-in decoders registered.
func NewRegistry() *Registry {
	r := &Registry{
		decoders: make(map[models.Family]Decoder),
		fallback: GenericDecoder{},
	}
	r.Register(models.FamilyGemini, GeminiDecoder{})
	r.Register(models.FamilyCodex, CodexDecoder{})
	r.Register(models.FamilyClaude, ClaudeDecoder{})
	r.Register(models.FamilyGeneric, GenericDecoder{})
	return r
}

// Register installs or replaces the decoder for a family.
func (r *Registry) Register(family models.Family, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[family] = d
}

// Decoder returns the decoder used for family.
func (r *Registry) Decoder(family models.Family) Decoder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.decoders[family]; ok {
		return d
	}
	return r.fallback
}

// Decode splits chunk into lines and decodes each one. A trailing line without
// a newline is decoded too; callers that stream should frame with Split first.
func (r *Registry) Decode(chunk []byte, family models.Family) []models.CanonicalEvent {
	d := r.Decoder(family)
	var events []models.CanonicalEvent
	for _, line := range bytes.Split(chunk, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		events = append(events, d.Decode(line)...)
	}
	return events
}

var defaultRegistry = NewRegistry()

// Decode decodes chunk with the built-in decoders.
func Decode(chunk []byte, family models.Family) []models.CanonicalEvent {
	return defaultRegistry.Decode(chunk, family)
}

// Split separates complete newline-terminated lines from the unterminated rest.
func Split(buf string) (lines []string, rest string) {
	idx := strings.LastIndexByte(buf, '\n')
	if idx < 0 {
		return nil, buf
	}
	for _, line := range strings.Split(buf[:idx], "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines, buf[idx+1:]
}
