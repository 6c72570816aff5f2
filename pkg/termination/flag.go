// Package termination holds the process-wide termination request.
//
// A Flag moves from None to Requested at most once. The signal listener writes
// it and the work loop reads it; Done lets the loop block on the transition
// instead of polling.
package termination

import (
	"sync"
	"sync/atomic"
)

// Status is the state of a termination request.
type Status int32

const (
	None Status = iota
	Requested
)

func (s Status) String() string {
	if s == Requested {
		return "REQUESTED"
	}
	return "NONE"
}

// Flag is a one-shot termination request. The zero value is not usable; call New.
type Flag struct {
	once   sync.Once
	status atomic.Int32
	done   chan struct{}
	cause  string // Written once, before status is published
}

func New() *Flag {
	return &Flag{done: make(chan struct{})}
}

// Request moves the flag to Requested. It returns true only for the call that
// performed the transition; later calls are no-ops.
func (f *Flag) Request(cause string) bool {
	first := false
	f.once.Do(func() {
		f.cause = cause
		f.status.Store(int32(Requested))
		close(f.done)
		first = true
	})
	return first
}

// Status returns the current state of the flag.
func (f *Flag) Status() Status {
	return Status(f.status.Load())
}

// Requested reports whether a termination request has been made.
func (f *Flag) Requested() bool {
	return f.Status() == Requested
}

// Done is closed when the flag transitions to Requested.
func (f *Flag) Done() <-chan struct{} {
	return f.done
}

// Cause returns what triggered the request, or "" if none.
// Any caller that has seen Requested() sees the cause.
func (f *Flag) Cause() string {
	if !f.Requested() {
		return ""
	}
	return f.cause
}

// Personal.AI order the ending
