// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firehose

import (
	"fmt"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock indicates an operation cannot proceed immediately. This is
// an alias for [iox.ErrWouldBlock] for ecosystem consistency with every
// other hybscloud package. The Ring Handoff does not return it: ClaimSlot
// and Take report "no free slot" and "nothing queued" as a false result.
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err indicates an operation would block.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// PreconditionViolation is returned immediately to the caller when Notify
// is given a nil Key.Identity or nil value. When a Reactive-Streams
// subscriber requests non-positive demand, it is passed to that
// subscriber's OnError instead.
type PreconditionViolation struct {
	Reason string
}

func (e *PreconditionViolation) Error() string {
	return "firehose: precondition violation: " + e.Reason
}

// ConsumerFailure wraps a panic recovered from a Consumer during dispatch.
// Dispatch continues with the remaining consumers for the same event;
// ConsumerFailure is only ever observed by the configured ErrorHandler.
type ConsumerFailure struct {
	Key   Key
	Cause any
}

func (e *ConsumerFailure) Error() string {
	return fmt.Sprintf("firehose: consumer failed for key %v: %v", e.Key.Identity, e.Cause)
}

// Unwrap supports errors.As when Cause is itself an error.
func (e *ConsumerFailure) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}

// DispatchFailure wraps a panic recovered from the worker loop outside of
// any single Consumer invocation (e.g. a failure in Registry.Select
// itself). Carries the offending key for diagnostic context.
type DispatchFailure struct {
	Key   Key
	Cause any
}

func (e *DispatchFailure) Error() string {
	return fmt.Sprintf("firehose: dispatch failed for key %v: %v", e.Key.Identity, e.Cause)
}

func (e *DispatchFailure) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}

// BackpressureInterruption reports that a publisher parked waiting for a
// Ring Handoff slot was interrupted (its context was cancelled) before a
// slot freed. Passing context.Background() to Notify means this is never
// observed. It is reported to the ErrorHandler at most once per Notify
// call; the publish is not abandoned, and Notify keeps waiting until a
// slot frees.
type BackpressureInterruption struct {
	Key Key
}

func (e *BackpressureInterruption) Error() string {
	return fmt.Sprintf("firehose: backpressure wait interrupted for key %v", e.Key.Identity)
}

// TimerCallbackFailure wraps a panic recovered from a Timing Wheel firing
// (debounce/throttle emission, or any Timer.Submit callback).
type TimerCallbackFailure struct {
	Cause any
}

func (e *TimerCallbackFailure) Error() string {
	return fmt.Sprintf("firehose: timer callback failed: %v", e.Cause)
}

// ErrorHandler receives every ConsumerFailure, DispatchFailure,
// BackpressureInterruption and TimerCallbackFailure the engine recovers
// from. It is called synchronously on whichever goroutine recovered the
// failure and must not block or panic.
type ErrorHandler func(error)
