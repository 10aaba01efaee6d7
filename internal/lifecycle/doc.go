// Package lifecycle provides the map lifecycle state machine.
//
// States move forward only:
//
//	uninitialized -> creating -> ready -> destroyed
//	                          -> error -> destroyed
//	                          -> destroyed
//
// destroyed is terminal. Any other transition returns a *TransitionError,
// which signals a bug in the caller rather than a runtime condition.
//
// WaitReady lets callers block until creation finishes, including callers
// that start waiting before Init. All waiters share one channel that is
// closed when creation ends, whatever the outcome.
package lifecycle
