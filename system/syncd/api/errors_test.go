package api

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIs(t *testing.T) {
	err := UnknownAnchor(StreamKey{Project: "p"}, "s1")
	if !errors.Is(err, ErrUnknownAnchor) {
		t.Error("expected unknown anchor")
	}
	if errors.Is(err, ErrTypeMismatch) {
		t.Error("unexpected type mismatch")
	}
	wrapped := fmt.Errorf("commit: %w", err)
	if !errors.Is(wrapped, ErrUnknownAnchor) {
		t.Error("expected match through fmt wrapping")
	}
}

func TestErrorCause(t *testing.T) {
	cause := errors.New("boom")
	err := WrapError(ErrCodeRecompute, cause, "derived %q", "count")
	if !errors.Is(err, ErrRecompute) {
		t.Error("expected recompute error")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	if got, want := err.Error(), `recompute_failed: derived "count": boom`; got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestErrorMessageMatch(t *testing.T) {
	err := NewError("", "plain")
	if !errors.Is(err, &Error{Message: "plain"}) {
		t.Error("expected message match")
	}
	var nilErr *Error
	if nilErr.Error() != "" {
		t.Error("nil error should render empty")
	}
}
