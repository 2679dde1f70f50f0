package errors

import (
	"fmt"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelayError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeSessionNotFound, "session not found")
	if err.Code != ErrCodeSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeSessionNotFound, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeSpawnFailed, "spawn failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	if !Is(wrapped, ErrCodeSpawnFailed) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeSessionNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	detailed := err.WithDetail("session", "s1").WithDetail("attempt", 2)
	if detailed.Details["session"] != "s1" {
		t.Error("WithDetail should add details")
	}
}

func TestIsThroughWrapping(t *testing.T) {
	inner := SessionNotFound("s1")
	outer := fmt.Errorf("sending message: %w", inner)

	assert.True(t, Is(outer, ErrCodeSessionNotFound))
	assert.Equal(t, ErrCodeSessionNotFound, GetCode(outer))

	nested := Wrap(inner, ErrCodeInternal, "dispatch failed")
	assert.True(t, Is(nested, ErrCodeSessionNotFound))
	assert.Equal(t, ErrCodeInternal, GetCode(nested))
	assert.Equal(t, ErrorCode(""), GetCode(nil))
	assert.False(t, Is(nil, ErrCodeInternal))
}

func TestErrorConstructors(t *testing.T) {
	err := SessionNotFound("web")
	if err.Code != ErrCodeSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeSessionNotFound, err.Code)
	}
	if err.Details["session"] != "web" {
		t.Error("SessionNotFound should include session detail")
	}

	spawn := SpawnFailed("codex", exec.ErrNotFound)
	assert.Equal(t, ErrCodeSpawnFailed, spawn.Code)
	assert.Equal(t, true, spawn.Details["notFound"])
	assert.Contains(t, spawn.Error(), "codex")

	mismatch := SnapshotMismatch("s1", "gemini", "codex")
	assert.Equal(t, "gemini", mismatch.Details["recorded"])
	assert.Contains(t, mismatch.ToJSON(), "SNAPSHOT_MISMATCH")

	wt := WorktreeUnavailable("/nope", "does not exist")
	assert.Equal(t, "/nope", wt.Details["path"])
}
