package models

import (
	"path/filepath"
	"strings"
)

// Family identifies an agent CLI's output dialect and invocation style.
type Family string

const (
	FamilyGemini  Family = "gemini"
	FamilyCodex   Family = "codex"
	FamilyClaude  Family = "claude"
	FamilyGeneric Family = "generic"
)

// Families lists every family in registration order.
var Families = []Family{FamilyGemini, FamilyCodex, FamilyClaude, FamilyGeneric}

// ParseFamily converts a string into a known Family.
func ParseFamily(s string) (Family, bool) {
	for _, f := range Families {
		if string(f) == strings.ToLower(strings.TrimSpace(s)) {
			return f, true
		}
	}
	return "", false
}

// InferFamily guesses the family from a command line's executable name.
// "codex", "/usr/local/bin/codex" and "codex-like" all resolve to codex.
func InferFamily(command string) Family {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return FamilyGeneric
	}
	base := strings.ToLower(filepath.Base(fields[0]))
	for _, f := range []Family{FamilyGemini, FamilyCodex, FamilyClaude} {
		if strings.Contains(base, string(f)) {
			return f
		}
	}
	return FamilyGeneric
}

// Mode selects how much autonomy the agent is granted for a turn.
type Mode string

const (
	ModeRegular Mode = "regular"
	ModePlan    Mode = "plan"
	ModeAsk     Mode = "ask"
)

// ReadOnly reports whether the mode forbids the agent from editing files.
func (m Mode) ReadOnly() bool {
	return m == ModePlan || m == ModeAsk
}
