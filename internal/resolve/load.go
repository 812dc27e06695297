// Package resolve holds the asynchronous resolvers behind the figure view.
//
// Each resolver is a small Bubble Tea sub-model: Start returns the Cmd that
// does the blocking work off the UI goroutine, and Update folds the result
// message back in. Every resolver instance carries a unique ID, and results
// addressed to another instance are dropped, so a superseded request can
// never overwrite a newer one.
package resolve

import "sync/atomic"

// Status is the state of one asynchronous load.
type Status int

const (
	Pending Status = iota
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Load holds exactly one of Pending, Ready(value) or Failed(message).
// Transitions only leave Pending.
type Load[T any] struct {
	status  Status
	value   T
	message string
}

// Status returns the current state.
func (l Load[T]) Status() Status { return l.status }

// Value returns the value and whether the load is Ready.
func (l Load[T]) Value() (T, bool) { return l.value, l.status == Ready }

// Message returns the failure message, empty unless Failed.
func (l Load[T]) Message() string { return l.message }

// Resolve moves Pending to Ready. It reports false if the load was already
// terminal.
func (l *Load[T]) Resolve(v T) bool {
	if l.status != Pending {
		return false
	}
	l.status = Ready
	l.value = v
	return true
}

// Fail moves Pending to Failed. It reports false if the load was already
// terminal.
func (l *Load[T]) Fail(message string) bool {
	if l.status != Pending {
		return false
	}
	l.status = Failed
	l.message = message
	return true
}

var lastID atomic.Uint64

func nextID() uint64 {
	return lastID.Add(1)
}
