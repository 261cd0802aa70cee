// Package awset implements a replicated add/remove set in two selectable
// flavors: a corrected add-wins semantics whose removals carry their full
// causal context, and a defective semantics whose removals do not. The
// defective flavor reproduces a known failure where an element resurrects
// after deletion; the model checker in package explore hunts for it.
package awset

import (
	"fmt"
	"sort"

	"github.com/segmentio/fasthash/fnv1a"
)

// ReplicaID identifies one simulated replica. Replicas are numbered 0..N-1.
type ReplicaID int32

// Element is the logical set member.
type Element string

// Tag identifies a single add instance. Seq is a per-replica counter bumped
// on every local add, so the (Seq, Origin) pair is globally unique for the
// lifetime of a run. Two adds of the same element always carry distinct tags.
type Tag struct {
	Seq    uint32
	Origin ReplicaID
}

// Compare orders tags by sequence number first, then origin.
func (t Tag) Compare(other Tag) int {
	if t.Seq != other.Seq {
		if t.Seq < other.Seq {
			return -1
		}
		return 1
	}
	if t.Origin != other.Origin {
		if t.Origin < other.Origin {
			return -1
		}
		return 1
	}
	return 0
}

func (t Tag) Less(other Tag) bool {
	return t.Compare(other) < 0
}

func (t Tag) Hash() uint32 {
	h := fnv1a.Init32
	h = fnv1a.AddUint32(h, t.Seq)
	h = fnv1a.AddUint32(h, uint32(t.Origin))
	return h
}

func (t Tag) String() string {
	return fmt.Sprintf("(%d,%d)", t.Seq, t.Origin)
}

// SortTags sorts a tag slice in place into canonical ascending order.
func SortTags(tags []Tag) {
	sort.Slice(tags, func(i, j int) bool {
		return tags[i].Less(tags[j])
	})
}

func tagsContain(tags []Tag, t Tag) bool {
	for _, candidate := range tags {
		if candidate == t {
			return true
		}
	}
	return false
}

func maxTagSeq(tags []Tag) uint32 {
	var max uint32
	for _, t := range tags {
		if t.Seq > max {
			max = t.Seq
		}
	}
	return max
}

// Entry is one add instance currently visible at a replica.
type Entry struct {
	Elem Element
	Tag  Tag
}

// Compare orders entries by tag first, then element.
func (e Entry) Compare(other Entry) int {
	if c := e.Tag.Compare(other.Tag); c != 0 {
		return c
	}
	if e.Elem != other.Elem {
		if e.Elem < other.Elem {
			return -1
		}
		return 1
	}
	return 0
}

func (e Entry) Hash() uint32 {
	h := fnv1a.Init32
	h = fnv1a.AddUint32(h, e.Tag.Hash())
	h = fnv1a.AddString32(h, string(e.Elem))
	return h
}

func (e Entry) String() string {
	return fmt.Sprintf("%s%s", e.Elem, e.Tag)
}

// EntryHasher adapts Entry to immutable collections.
type EntryHasher struct{}

func (EntryHasher) Hash(e Entry) uint32 {
	return e.Hash()
}

func (EntryHasher) Equal(a, b Entry) bool {
	return a == b
}
