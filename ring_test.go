// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firehose_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"code.hybscloud.com/firehose"
)

func TestRingHandoffCapRoundsToPow2(t *testing.T) {
	h := firehose.NewRingHandoff(5)
	if got := h.Cap(); got != 8 {
		t.Fatalf("Cap: got %d, want 8", got)
	}
}

func TestRingHandoffClaimSlotBounded(t *testing.T) {
	h := firehose.NewRingHandoff(2)

	if !h.ClaimSlot() {
		t.Fatalf("ClaimSlot 1: got false, want true")
	}
	if !h.ClaimSlot() {
		t.Fatalf("ClaimSlot 2: got false, want true")
	}
	if h.ClaimSlot() {
		t.Fatalf("ClaimSlot 3: got true, want false (capacity exhausted)")
	}

	h.ReleaseSlot()
	if !h.ClaimSlot() {
		t.Fatalf("ClaimSlot after ReleaseSlot: got false, want true")
	}
}

func TestRingHandoffSubmitTake(t *testing.T) {
	h := firehose.NewRingHandoff(4)

	var ran bool
	h.ClaimSlot()
	h.Submit(func() { ran = true })

	task, ok := h.Take()
	if !ok {
		t.Fatalf("Take: got false, want true")
	}
	task()
	if !ran {
		t.Fatalf("task retrieved from Take did not run")
	}

	if _, ok := h.Take(); ok {
		t.Fatalf("Take on empty handoff: got true, want false")
	}
}

func TestRingHandoffConcurrentClaimNeverExceedsCapacity(t *testing.T) {
	const capacity = 16
	h := firehose.NewRingHandoff(capacity)

	var claimed atomic.Int64
	var wg sync.WaitGroup
	for range capacity * 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.ClaimSlot() {
				claimed.Add(1)
			}
		}()
	}
	wg.Wait()

	if int(claimed.Load()) > h.Cap() {
		t.Fatalf("claimed %d slots, capacity is %d", claimed.Load(), h.Cap())
	}
}

func TestRingHandoffShutdownDrainsPending(t *testing.T) {
	h := firehose.NewRingHandoff(4)
	h.ClaimSlot()
	h.Submit(func() {})

	h.Shutdown()

	if _, ok := h.Take(); !ok {
		t.Fatalf("Take after Shutdown: queued task should still be retrievable")
	}
}
