// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firehose_test

import (
	"sync/atomic"
	"testing"
	"time"

	"code.hybscloud.com/firehose"
)

func TestTimingWheelSubmitFires(t *testing.T) {
	w := firehose.NewTimingWheel(5*time.Millisecond, 16, func(err error) { t.Errorf("unexpected: %v", err) })
	defer w.Stop()

	fired := make(chan struct{}, 1)
	w.Submit(func() { fired <- struct{}{} }, 10*time.Millisecond)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for timer to fire")
	}
}

func TestTimingWheelCancelPreventsFiring(t *testing.T) {
	w := firehose.NewTimingWheel(5*time.Millisecond, 16, func(err error) {})
	defer w.Stop()

	var fired atomic.Bool
	h := w.Submit(func() { fired.Store(true) }, 20*time.Millisecond)
	h.Cancel()

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Fatalf("cancelled entry fired")
	}
}

func TestTimingWheelCancelIdempotent(t *testing.T) {
	w := firehose.NewTimingWheel(5*time.Millisecond, 16, func(err error) {})
	defer w.Stop()

	h := w.Submit(func() {}, 20*time.Millisecond)
	h.Cancel()
	h.Cancel() // must not panic
}

func TestTimingWheelCallbackPanicRoutedToErrorHandler(t *testing.T) {
	errs := make(chan error, 1)
	w := firehose.NewTimingWheel(5*time.Millisecond, 16, func(err error) { errs <- err })
	defer w.Stop()

	w.Submit(func() { panic("boom") }, 10*time.Millisecond)

	select {
	case err := <-errs:
		if _, ok := err.(*firehose.TimerCallbackFailure); !ok {
			t.Fatalf("got error type %T, want *TimerCallbackFailure", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for TimerCallbackFailure")
	}
}
