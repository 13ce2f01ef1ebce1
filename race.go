// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package firehose

// RaceEnabled is true when the race detector is active.
// Used by tests to skip contended lock-free CAS tests (such as
// TestAtomSwapConcurrent), whose timing is not meaningful under -race.
const RaceEnabled = true
