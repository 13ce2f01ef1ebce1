// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firehose

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// task is the zero-argument unit of work a RingHandoff hands a worker.
// Dispatcher.Notify builds one per publish; it closes over the key/value
// and runs dispatch synchronously once a worker picks it up.
type task func()

type taskSlot struct {
	cycle atomix.Uint64 // round number this slot currently belongs to
	fn    task
	_     padShort // pad to cache line
}

// RingHandoff is the fixed-capacity multi-producer multi-consumer task
// queue sitting between Dispatcher.Notify and the worker pool.
//
// Two things live here, deliberately kept distinct even though either
// alone would bound capacity:
//
//   - slots is the signed counter spec.md describes literally: it starts
//     at capacity, ClaimSlot decrements it while positive, ReleaseSlot
//     (called once a worker finishes a task) increments it back. This is
//     the primitive Dispatcher's backpressure gate parks on, and it
//     stays claimed for the lifetime of a task — not merely until the
//     task is dequeued — which the storage below has no way to express
//     on its own.
//   - the FAA ring below (tail/head/threshold/buffer) is task storage:
//     the SCQ (Scalable Circular Queue) algorithm, Nikolaev DISC 2019,
//     specialized directly for task rather than carried as a generic
//     queue type, since a RingHandoff is the only place this module
//     ever needs one. Uses Fetch-And-Add to blindly increment position
//     counters, requiring 2n physical slots for capacity n; this scales
//     better under contention than CAS-based alternatives, which
//     matters here because every worker goroutine and every publisher
//     goroutine shares this one structure. Cycle-based slot validation
//     (cycle = position / capacity) provides ABA safety. Since
//     ClaimSlot already guarantees a producer only enqueues when it
//     reserved a slot, the ring itself never needs to reject an
//     enqueue — slots is the gate, the ring is the handoff.
type RingHandoff struct {
	_        pad
	slots    atomix.Int64
	_        pad
	draining atomix.Bool
	_        pad

	tail      atomix.Uint64 // producer index (FAA)
	_         pad
	head      atomix.Uint64 // consumer index (FAA)
	_         pad
	threshold atomix.Int64 // livelock prevention for dequeue
	_         pad

	buffer   []taskSlot
	capacity uint64 // n (usable capacity)
	size     uint64 // 2n (physical slots)
	mask     uint64 // 2n - 1
}

// NewRingHandoff returns a RingHandoff with room for capacity outstanding
// tasks. Capacity rounds up to the next power of 2, as the underlying SCQ
// storage requires; a capacity below 2 becomes 2.
func NewRingHandoff(capacity int) *RingHandoff {
	if capacity < 2 {
		capacity = 2
	}

	n := uint64(roundToPow2(capacity))
	size := n * 2 // 2n physical slots

	h := &RingHandoff{
		buffer:   make([]taskSlot, size),
		capacity: n,
		size:     size,
		mask:     size - 1,
	}
	h.slots.StoreRelaxed(int64(n))
	h.threshold.StoreRelaxed(3*int64(n) - 1)
	for i := uint64(0); i < size; i++ {
		h.buffer[i].cycle.StoreRelaxed(i / n)
	}
	return h
}

// Cap returns the configured capacity.
func (h *RingHandoff) Cap() int {
	return int(h.capacity)
}

// ClaimSlot atomically reserves one outstanding-task slot, returning true
// iff a slot was available. Dispatcher's backpressure gate retries this
// (via iox.Backoff) until it returns true, or skips it entirely during
// reentrant dispatch.
func (h *RingHandoff) ClaimSlot() bool {
	for {
		cur := h.slots.LoadAcquire()
		if cur <= 0 {
			return false
		}
		if h.slots.CompareAndSwapAcqRel(cur, cur-1) {
			return true
		}
	}
}

// ReleaseSlot returns one outstanding-task slot. Called once per task,
// after a worker finishes running it (including when the task panicked
// and was recovered).
func (h *RingHandoff) ReleaseSlot() {
	h.slots.AddAcqRel(1)
}

// Submit hands t to the ring. The caller must already hold a claimed slot
// (via ClaimSlot) — Submit itself never blocks or rejects, mirroring the
// invariant that capacity is enforced by the slot counter, not by the
// ring storage.
func (h *RingHandoff) Submit(t task) {
	sw := spin.Wait{}
	for {
		tail := h.tail.LoadAcquire()
		head := h.head.LoadAcquire()
		if tail >= head+h.capacity {
			sw.Once()
			continue
		}

		myTail := h.tail.AddAcqRel(1) - 1
		slot := &h.buffer[myTail&h.mask]
		expectedCycle := myTail / h.capacity
		slotCycle := slot.cycle.LoadAcquire()

		if slotCycle == expectedCycle {
			slot.fn = t
			slot.cycle.StoreRelease(expectedCycle + 1)
			h.threshold.StoreRelaxed(3*int64(h.capacity) - 1)
			return
		}

		sw.Once()
	}
}

// Take removes and returns one pending task, or (nil, false) if the
// handoff is empty. Workers call this in a loop, parking between empty
// polls.
func (h *RingHandoff) Take() (task, bool) {
	if !h.draining.LoadAcquire() && h.threshold.LoadRelaxed() < 0 {
		return nil, false
	}

	sw := spin.Wait{}
	for {
		myHead := h.head.AddAcqRel(1) - 1
		slot := &h.buffer[myHead&h.mask]
		expectedCycle := myHead/h.capacity + 1
		slotCycle := slot.cycle.LoadAcquire()

		if slotCycle == expectedCycle {
			fn := slot.fn
			slot.fn = nil
			nextEnqCycle := (myHead + h.size) / h.capacity
			slot.cycle.StoreRelease(nextEnqCycle)
			return fn, true
		}

		if int64(slotCycle) < int64(expectedCycle) {
			// SCQ slot repair: advance stale slot for future enqueuers.
			nextEnqCycle := (myHead + h.size) / h.capacity
			slot.cycle.CompareAndSwapAcqRel(slotCycle, nextEnqCycle)

			tail := h.tail.LoadAcquire()
			if tail <= myHead+1 {
				h.catchup(tail, myHead+1)
				h.threshold.AddAcqRel(-1)
				return nil, false
			}
			if h.threshold.AddAcqRel(-1) <= 0 && !h.draining.LoadAcquire() {
				return nil, false
			}
		}
		sw.Once()
	}
}

func (h *RingHandoff) catchup(tail, head uint64) {
	for tail < head {
		if h.tail.CompareAndSwapRelaxed(tail, head) {
			break
		}
		tail = h.tail.LoadRelaxed()
		head = h.head.LoadRelaxed()
	}
}

// Shutdown marks the handoff draining: queued tasks remain available to
// Take (workers finish them), but the livelock-prevention threshold the
// SCQ algorithm uses is bypassed so a slow producer can never starve a
// drain in progress.
func (h *RingHandoff) Shutdown() {
	h.draining.StoreRelease(true)
}
