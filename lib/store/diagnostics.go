package store

import (
	"sync/atomic"
	"time"
)

// ErrorRecorder keeps the last error of a store for the IDiagnostics interface.
// The zero value is ready to use and safe for concurrent use.
type ErrorRecorder struct {
	last atomic.Pointer[recordedError]
}

type recordedError struct {
	err error
	at  time.Time
}

// Record stores err as last error. A nil error is ignored.
func (r *ErrorRecorder) Record(err error) {
	if err == nil {
		return
	}
	r.last.Store(&recordedError{err: err, at: time.Now()})
}

// LastError returns the last recorded error or nil.
func (r *ErrorRecorder) LastError() error {
	if e := r.last.Load(); e != nil {
		return e.err
	}
	return nil
}

// LastErrorAt returns the time the last error was recorded.
func (r *ErrorRecorder) LastErrorAt() (time.Time, bool) {
	if e := r.last.Load(); e != nil {
		return e.at, true
	}
	return time.Time{}, false
}

// Clear removes the recorded error.
func (r *ErrorRecorder) Clear() {
	r.last.Store(nil)
}
