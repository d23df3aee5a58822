package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCodeThroughFmtWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("load assignments: %w", Wrap(CodeStorageUnavailable, "assignment store unavailable", cause))

	if !IsCode(err, CodeStorageUnavailable) {
		t.Fatal("expected storage_unavailable code")
	}
	if !IsInternalCode(err) {
		t.Fatal("expected storage_unavailable to be internal")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable via errors.Is")
	}
	if CodeOf(err) != CodeStorageUnavailable {
		t.Fatalf("unexpected code %q", CodeOf(err))
	}
}

func TestErrorMessageFallbacks(t *testing.T) {
	if got := New(CodeNotFound, "").Error(); got != "not_found" {
		t.Fatalf("expected code fallback, got %q", got)
	}
	if got := Wrap(CodeUnknown, "", errors.New("boom")).Error(); got != "boom" {
		t.Fatalf("expected cause fallback, got %q", got)
	}

	var nilErr *Error
	if nilErr.Error() != "" || nilErr.Unwrap() != nil {
		t.Fatal("expected nil error to be inert")
	}
	if IsCode(errors.New("plain"), CodeUnknown) {
		t.Fatal("expected plain errors to carry no code")
	}
	if CodeOf(errors.New("plain")) != CodeUnknown {
		t.Fatal("expected plain errors to report unknown")
	}
}
