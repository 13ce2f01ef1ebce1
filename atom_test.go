// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firehose_test

import (
	"sync"
	"testing"

	"code.hybscloud.com/firehose"
)

func TestAtomSwapBasic(t *testing.T) {
	a := firehose.NewAtom(0)

	if got := a.Deref(); got != 0 {
		t.Fatalf("Deref: got %d, want 0", got)
	}

	got := a.Swap(func(v int) int { return v + 1 })
	if got != 1 {
		t.Fatalf("Swap: got %d, want 1", got)
	}
	if got := a.Deref(); got != 1 {
		t.Fatalf("Deref after Swap: got %d, want 1", got)
	}
}

// TestAtomSwapConcurrent exercises the CAS-retry path: many goroutines
// incrementing the same Atom must never lose an update.
func TestAtomSwapConcurrent(t *testing.T) {
	if firehose.RaceEnabled {
		t.Skip("skip: contended CAS timing is not meaningful under -race")
	}

	a := firehose.NewAtom(0)
	const n = 500
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			a.Swap(func(v int) int { return v + 1 })
		}()
	}
	wg.Wait()

	if got := a.Deref(); got != n {
		t.Fatalf("Deref after %d concurrent swaps: got %d, want %d", n, got, n)
	}
}
