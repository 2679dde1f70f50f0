package session

import (
	"regexp"
	"strings"
)

var defaultStalePatterns = []string{
	`(?i)no (conversation|session|thread) found`,
	`(?i)(conversation|session|thread) (not found|does not exist|has expired|expired)`,
	`(?i)(could not|cannot|can't|failed to|unable to) (resume|find session|load session)`,
	`(?i)invalid (session|thread|resume)[ _-]?(id|token)?`,
	`(?i)unknown (session|thread)`,
}

var defaultQuotaPatterns = []string{
	`(?i)quota (exceeded|exhausted)`,
	`(?i)exceeded your (current )?quota`,
	`(?i)insufficient[_ ]quota`,
	`(?i)usage limit`,
	`(?i)rate[ _-]?limit(ed)? (exceeded|reached)`,
	`(?i)resource[_ ]exhausted`,
	`(?i)too many requests`,
	`(?i)out of (credits|tokens)`,
}

var resetHintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:try again|retry|resets?|available again|reset)\s+(?:at|in|after|on)\s+([^.;\n]+)`),
	regexp.MustCompile(`(?i)retry[- ]after[:=]?\s*([0-9]+\s*[a-z]*)`),
}

// Detector classifies agent error text as a rejected resume token or
// quota exhaustion.
type Detector struct {
	stale []*regexp.Regexp
	quota []*regexp.Regexp
}

// NewDetector compiles the built-in heuristics plus extra per-agent patterns.
// Patterns that fail to compile are skipped; configuration validation
// rejects them before they get here.
func NewDetector(extraStale, extraQuota []string) *Detector {
	return &Detector{
		stale: compile(append(append([]string(nil), defaultStalePatterns...), extraStale...)),
		quota: compile(append(append([]string(nil), defaultQuotaPatterns...), extraQuota...)),
	}
}

func compile(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			out = append(out, re)
		}
	}
	return out
}

func matchAny(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// IsStaleResume reports whether text says the saved conversation is gone.
func (d *Detector) IsStaleResume(text string) bool {
	return matchAny(d.stale, text)
}

// IsQuotaExhausted reports whether text says the account is out of quota.
func (d *Detector) IsQuotaExhausted(text string) bool {
	return matchAny(d.quota, text)
}

// ResetHint extracts when the quota resets, empty when text does not say.
func ResetHint(text string) string {
	for _, re := range resetHintPatterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// quotaMessage renders the error reported for an exhausted quota.
func quotaMessage(text string) string {
	msg := "Quota exhausted: " + strings.TrimSpace(text)
	if hint := ResetHint(text); hint != "" {
		msg += " (resets " + hint + ")"
	}
	return msg
}
