// Package model ties the replica state machines together into one explorable
// value: the global system state of all replicas plus the broadcast network.
// Everything here is copy-on-write; the explorer relies on old states staying
// intact for deduplication and path reconstruction.
package model

import (
	"fmt"
	"strings"

	"github.com/segmentio/fasthash/fnv1a"

	"github.com/jeffa5/toy-crdt/awset"
)

// VClock is a fixed-width vector clock with one slot per replica. The zero
// value compares as all-zeroes and is a valid clock.
type VClock []uint32

func (vc VClock) Get(id awset.ReplicaID) uint32 {
	if int(id) >= len(vc) {
		return 0
	}
	return vc[id]
}

// Inc returns a copy widened to n slots with the given slot bumped by one.
func (vc VClock) Inc(id awset.ReplicaID, n int) VClock {
	out := make(VClock, n)
	copy(out, vc)
	out[id]++
	return out
}

// Merge returns the pointwise maximum of the two clocks.
func (vc VClock) Merge(other VClock) VClock {
	n := len(vc)
	if len(other) > n {
		n = len(other)
	}
	out := make(VClock, n)
	for i := range out {
		a := VClock(vc).Get(awset.ReplicaID(i))
		b := VClock(other).Get(awset.ReplicaID(i))
		if a > b {
			out[i] = a
		} else {
			out[i] = b
		}
	}
	return out
}

func (vc VClock) Equal(other VClock) bool {
	n := len(vc)
	if len(other) > n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if vc.Get(awset.ReplicaID(i)) != other.Get(awset.ReplicaID(i)) {
			return false
		}
	}
	return true
}

func (vc VClock) Hash() uint32 {
	h := fnv1a.Init32
	// Trailing zero slots must not affect the hash, so a nil clock and an
	// explicit zero clock collide on purpose.
	last := len(vc)
	for last > 0 && vc[last-1] == 0 {
		last--
	}
	for i := 0; i < last; i++ {
		h = fnv1a.AddUint32(h, vc[i])
	}
	return h
}

func (vc VClock) String() string {
	parts := make([]string, len(vc))
	for i, v := range vc {
		parts[i] = fmt.Sprint(v)
	}
	return "<" + strings.Join(parts, ",") + ">"
}
