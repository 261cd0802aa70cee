package awset

import (
	"sort"
	"strings"

	"github.com/benbjohnson/immutable"
	"github.com/segmentio/fasthash/fnv1a"
)

// State is one replica's view of the set: the visible add instances plus the
// bookkeeping needed to mint fresh tags. State is a value type; every
// transition returns a new State and the old one stays valid, which is what
// lets the explorer keep whole global states around for path reconstruction.
type State struct {
	id      ReplicaID
	maxSeq  uint32
	entries *immutable.Map[Entry, bool]
}

func NewState(id ReplicaID) State {
	return State{
		id:      id,
		entries: immutable.NewMap[Entry, bool](EntryHasher{}),
	}
}

func (s State) ID() ReplicaID {
	return s.id
}

// MaxSeq is the largest tag sequence number this replica has minted or seen.
func (s State) MaxSeq() uint32 {
	return s.maxSeq
}

func (s State) Len() int {
	return s.entries.Len()
}

// Entries returns the visible add instances in canonical ascending order.
func (s State) Entries() []Entry {
	out := make([]Entry, 0, s.entries.Len())
	it := s.entries.Iterator()
	for !it.Done() {
		e, _, _ := it.Next()
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Compare(out[j]) < 0
	})
	return out
}

// Elements returns the distinct visible elements in ascending order.
func (s State) Elements() []Element {
	seen := map[Element]bool{}
	it := s.entries.Iterator()
	for !it.Done() {
		e, _, _ := it.Next()
		seen[e.Elem] = true
	}
	out := make([]Element, 0, len(seen))
	for elem := range seen {
		out = append(out, elem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s State) Contains(elem Element) bool {
	it := s.entries.Iterator()
	for !it.Done() {
		e, _, _ := it.Next()
		if e.Elem == elem {
			return true
		}
	}
	return false
}

// VisibleTags returns the tags of every visible entry for elem, ascending.
// This is the context a removal of elem would carry.
func (s State) VisibleTags(elem Element) []Tag {
	var tags []Tag
	it := s.entries.Iterator()
	for !it.Done() {
		e, _, _ := it.Next()
		if e.Elem == elem {
			tags = append(tags, e.Tag)
		}
	}
	SortTags(tags)
	return tags
}

func (s State) Equal(other State) bool {
	if s.id != other.id || s.maxSeq != other.maxSeq {
		return false
	}
	if s.entries.Len() != other.entries.Len() {
		return false
	}
	it := s.entries.Iterator()
	for !it.Done() {
		e, _, _ := it.Next()
		if _, ok := other.entries.Get(e); !ok {
			return false
		}
	}
	return true
}

func (s State) Hash() uint32 {
	// XOR combination so the entries hash out of order.
	var entriesHash uint32
	it := s.entries.Iterator()
	for !it.Done() {
		e, _, _ := it.Next()
		entriesHash ^= e.Hash()
	}
	h := fnv1a.Init32
	h = fnv1a.AddUint32(h, uint32(s.id))
	h = fnv1a.AddUint32(h, s.maxSeq)
	h = fnv1a.AddUint32(h, entriesHash)
	return h
}

func (s State) String() string {
	b := strings.Builder{}
	b.WriteString("{")
	for i, e := range s.Entries() {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(e.String())
	}
	b.WriteString("}")
	return b.String()
}

func (s State) insert(e Entry) State {
	s.entries = s.entries.Set(e, true)
	return s
}

// retainNotIn drops every entry whose tag is in ctx.
func (s State) retainNotIn(ctx []Tag) State {
	if len(ctx) == 0 {
		return s
	}
	acc := s.entries
	it := s.entries.Iterator()
	for !it.Done() {
		e, _, _ := it.Next()
		if tagsContain(ctx, e.Tag) {
			acc = acc.Delete(e)
		}
	}
	s.entries = acc
	return s
}

// removeElem drops every entry for elem regardless of tag.
func (s State) removeElem(elem Element) State {
	acc := s.entries
	it := s.entries.Iterator()
	for !it.Done() {
		e, _, _ := it.Next()
		if e.Elem == elem {
			acc = acc.Delete(e)
		}
	}
	s.entries = acc
	return s
}

// nextTag mints a fresh, globally unique tag.
func (s State) nextTag() (State, Tag) {
	s.maxSeq++
	return s, Tag{Seq: s.maxSeq, Origin: s.id}
}

// bumpSeq raises maxSeq to at least seq, so later minted tags stay unique
// and totally ordered against everything this replica has observed.
func (s State) bumpSeq(seq uint32) State {
	if seq > s.maxSeq {
		s.maxSeq = seq
	}
	return s
}
