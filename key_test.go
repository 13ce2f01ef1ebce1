// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firehose_test

import (
	"testing"

	"code.hybscloud.com/firehose"
)

func TestKeyCloneDistinctFromParent(t *testing.T) {
	parent := firehose.NewKey("orders")
	child := parent.Clone()

	if child == parent {
		t.Fatalf("Clone: got equal to parent, want distinct lineage")
	}
	if child.Identity != parent.Identity {
		t.Fatalf("Clone: Identity changed, got %v want %v", child.Identity, parent.Identity)
	}
}

func TestKeyCloneUniqueAcrossCalls(t *testing.T) {
	parent := firehose.NewKey("orders")
	a := parent.Clone()
	b := parent.Clone()

	if a == b {
		t.Fatalf("two Clone() calls produced equal keys: %v", a)
	}
}

func TestKeyEqualityByIdentityAndLineage(t *testing.T) {
	a := firehose.NewKey("orders")
	b := firehose.NewKey("orders")

	if a != b {
		t.Fatalf("two root keys over the same Identity should compare equal, got %v != %v", a, b)
	}
}
