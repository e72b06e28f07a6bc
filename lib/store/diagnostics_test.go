package store

import (
	"errors"
	"testing"
)

func TestErrorRecorder(t *testing.T) {
	var r ErrorRecorder

	if r.LastError() != nil {
		t.Fatalf("Expected no error on zero value")
	}

	r.Record(nil)
	if r.LastError() != nil {
		t.Errorf("Recording nil must not set an error")
	}

	errA := errors.New("a")
	errB := errors.New("b")
	r.Record(errA)
	r.Record(errB)

	if !errors.Is(r.LastError(), errB) {
		t.Errorf("Expected last error b, got %v", r.LastError())
	}
	if _, ok := r.LastErrorAt(); !ok {
		t.Errorf("Expected a timestamp for the recorded error")
	}

	r.Clear()
	if r.LastError() != nil {
		t.Errorf("Expected no error after Clear")
	}
}

func TestErrorString(t *testing.T) {
	err := NewError(RetCUnavailable, "remote down")
	if got := err.Error(); got != "KVStoreError (code Unavailable): remote down" {
		t.Errorf("Unexpected error string %q", got)
	}

	var target *Error
	if !errors.As(error(Errorf(RetCInvalidOperation, "bad key %q", "k")), &target) || target.Code != RetCInvalidOperation {
		t.Errorf("Expected errors.As to find a *Error with code InvalidOperation")
	}
}
