// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firehose

import (
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"github.com/google/uuid"
)

// TimingWheel is a hashed wheel of deferred one-shot callbacks. It runs
// entirely on its own goroutine, advancing one bucket per tick; callbacks
// due on a tick fire synchronously on that goroutine before the next tick
// is serviced, so — as spec.md §4.3 requires — they must be short and
// non-blocking. Anything heavier belongs on the far side of a
// Dispatcher.Notify the callback issues, not inside the callback itself.
type TimingWheel struct {
	tick    time.Duration
	size    uint64
	buckets []*wheelBucket
	current atomix.Uint64

	errHandler ErrorHandler

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type wheelBucket struct {
	mu      sync.Mutex
	entries []*wheelEntry
}

type wheelEntry struct {
	id              string
	remainingCycles int64 // only the wheel goroutine reads/writes this
	cancelled       atomix.Bool
	callback        func()
}

// Handle is a cancellable reference to a pending TimingWheel firing.
// Cancel is idempotent and safe from any goroutine.
type Handle struct {
	entry *wheelEntry
}

// Cancel removes the pending firing. Idempotent: cancelling an already
// fired or already-cancelled Handle is a no-op.
func (h *Handle) Cancel() {
	h.entry.cancelled.StoreRelease(true)
}

// NewTimingWheel starts a wheel with the given tick resolution and bucket
// count, running its sweep loop on a dedicated goroutine until Stop is
// called.
func NewTimingWheel(tick time.Duration, size int, errHandler ErrorHandler) *TimingWheel {
	if size < 1 {
		size = 1
	}
	w := &TimingWheel{
		tick:       tick,
		size:       uint64(size),
		buckets:    make([]*wheelBucket, size),
		errHandler: errHandler,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for i := range w.buckets {
		w.buckets[i] = &wheelBucket{}
	}
	go w.run()
	return w
}

// Submit schedules callback to fire at least delay from now. Resolution
// is the wheel's tick: a delay shorter than one tick still waits a full
// tick. Returns a Handle that can cancel the pending firing.
func (w *TimingWheel) Submit(callback func(), delay time.Duration) *Handle {
	ticks := uint64(delay / w.tick)
	if ticks == 0 {
		ticks = 1
	}
	cur := w.current.LoadAcquire()
	target := cur + ticks
	idx := target % w.size
	cycles := int64(ticks / w.size)

	entry := &wheelEntry{
		id:              uuid.Must(uuid.NewV7()).String(),
		remainingCycles: cycles,
		callback:        callback,
	}

	b := w.buckets[idx]
	b.mu.Lock()
	b.entries = append(b.entries, entry)
	b.mu.Unlock()

	return &Handle{entry: entry}
}

func (w *TimingWheel) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.advance()
		}
	}
}

func (w *TimingWheel) advance() {
	idx := w.current.AddAcqRel(1) - 1
	b := w.buckets[idx%w.size]

	b.mu.Lock()
	remaining := b.entries[:0]
	var due []*wheelEntry
	for _, e := range b.entries {
		if e.cancelled.LoadAcquire() {
			continue
		}
		if e.remainingCycles > 0 {
			e.remainingCycles--
			remaining = append(remaining, e)
			continue
		}
		due = append(due, e)
	}
	b.entries = remaining
	b.mu.Unlock()

	for _, e := range due {
		w.fire(e)
	}
}

func (w *TimingWheel) fire(e *wheelEntry) {
	if e.cancelled.LoadAcquire() {
		return
	}
	defer func() {
		if r := recover(); r != nil && w.errHandler != nil {
			w.errHandler(&TimerCallbackFailure{Cause: r})
		}
	}()
	e.callback()
}

// Stop halts the sweep goroutine. Pending entries are abandoned; Stop
// does not fire them. Idempotent.
func (w *TimingWheel) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}
