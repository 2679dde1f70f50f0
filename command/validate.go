package command

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	gitRefRegex    = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	sessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.:-]*$`)
	envKeyRegex    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// validators maps argument types to their checks.
var validators = map[string]func(string) error{
	"gitRef":    ValidateGitRef,
	"sessionID": ValidateSessionID,
	"envKey":    ValidateEnvKey,
	"command":   ValidateCommand,
}

// Validate runs the validator registered for argType.
func Validate(argType string, value string) error {
	validator, exists := validators[argType]
	if !exists {
		return fmt.Errorf("no validator for argument type: %s", argType)
	}
	return validator(value)
}

// ValidateGitRef ensures git references are safe
func ValidateGitRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("git ref cannot be empty")
	}
	if !gitRefRegex.MatchString(ref) || strings.Contains(ref, "..") {
		return fmt.Errorf("invalid git ref: %s", ref)
	}
	return nil
}

// ValidateSessionID ensures a session id is usable as a file name and URL segment.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if len(id) > 128 {
		return fmt.Errorf("session id too long: %d characters (max 128)", len(id))
	}
	if !sessionIDRegex.MatchString(id) {
		return fmt.Errorf("invalid session id: %s", id)
	}
	return nil
}

// ValidateEnvKey ensures an environment variable name is well formed.
func ValidateEnvKey(key string) error {
	if !envKeyRegex.MatchString(key) {
		return fmt.Errorf("invalid environment variable name: %s", key)
	}
	return nil
}

// ValidateCommand rejects empty commands and shell metacharacters. Commands
// are executed directly, never through a shell.
func ValidateCommand(command string) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if strings.ContainsAny(command, ";|&$`\n") {
		return fmt.Errorf("command contains invalid characters: %s", command)
	}
	return nil
}
