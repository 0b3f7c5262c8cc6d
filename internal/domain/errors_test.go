package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestConflictError(t *testing.T) {
	err := &ConflictError{OrderID: 7, Expected: 3, Observed: 4}

	t.Run("retriable error", func(t *testing.T) {
		if !err.IsRetriable() {
			t.Error("Expected error to be retriable")
		}

		want := "order 7: version 4, expected 3: version conflict"
		if err.Error() != want {
			t.Errorf("Error message = %q, want %q", err.Error(), want)
		}

		if !errors.Is(err, ErrVersionConflict) {
			t.Error("Expected error to wrap ErrVersionConflict")
		}
	})

	t.Run("IsRetriable helper", func(t *testing.T) {
		wrapped := fmt.Errorf("commit: %w", err)
		fatal := &ConfigError{Field: "engine.workers", Err: errors.New("bad")}
		plain := errors.New("plain error")

		if !IsRetriable(wrapped) {
			t.Error("IsRetriable should return true for wrapped conflict")
		}

		if IsRetriable(fatal) {
			t.Error("IsRetriable should return false for config error")
		}

		if IsRetriable(plain) {
			t.Error("IsRetriable should return false for plain error")
		}
	})
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "engine.workers", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [engine.workers]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}

	if !errors.Is(err, baseErr) {
		t.Error("Expected error to wrap baseErr")
	}
}
