package awset

import (
	"fmt"
	"strings"

	"github.com/segmentio/fasthash/fnv1a"
)

type OpKind int

const (
	OpAdd OpKind = iota + 1
	OpRemove
)

// Op is a local operation issued at a replica.
type Op struct {
	Kind OpKind
	Elem Element
}

func Add(elem Element) Op {
	return Op{Kind: OpAdd, Elem: elem}
}

func Remove(elem Element) Op {
	return Op{Kind: OpRemove, Elem: elem}
}

func (op Op) Hash() uint32 {
	h := fnv1a.Init32
	h = fnv1a.AddUint32(h, uint32(op.Kind))
	h = fnv1a.AddString32(h, string(op.Elem))
	return h
}

func (op Op) String() string {
	switch op.Kind {
	case OpAdd:
		return fmt.Sprintf("add(%s)", op.Elem)
	case OpRemove:
		return fmt.Sprintf("remove(%s)", op.Elem)
	default:
		return fmt.Sprintf("op?(%s)", op.Elem)
	}
}

type MsgKind int

const (
	MsgAdd MsgKind = iota + 1
	MsgRemove
)

// Message is a broadcast payload addressed to every other replica. An add
// announcement carries the fresh tag plus the context the adder saw for the
// element; a remove announcement carries the removal context. In the
// defective semantics the add context is always empty, which is the root of
// the resurrection bug.
type Message struct {
	Kind    MsgKind
	Elem    Element
	Tag     Tag   // valid for MsgAdd only
	Context []Tag // sorted ascending, never mutated after construction
}

func (m Message) Equal(other Message) bool {
	if m.Kind != other.Kind || m.Elem != other.Elem || m.Tag != other.Tag {
		return false
	}
	if len(m.Context) != len(other.Context) {
		return false
	}
	for i := range m.Context {
		if m.Context[i] != other.Context[i] {
			return false
		}
	}
	return true
}

func (m Message) Hash() uint32 {
	h := fnv1a.Init32
	h = fnv1a.AddUint32(h, uint32(m.Kind))
	h = fnv1a.AddString32(h, string(m.Elem))
	h = fnv1a.AddUint32(h, m.Tag.Hash())
	for _, t := range m.Context {
		h = fnv1a.AddUint32(h, t.Hash())
	}
	return h
}

// Compare gives messages a canonical total order, used to keep the in-flight
// multiset in a stable shape for deduplication.
func (m Message) Compare(other Message) int {
	if m.Kind != other.Kind {
		if m.Kind < other.Kind {
			return -1
		}
		return 1
	}
	if m.Elem != other.Elem {
		if m.Elem < other.Elem {
			return -1
		}
		return 1
	}
	if c := m.Tag.Compare(other.Tag); c != 0 {
		return c
	}
	if len(m.Context) != len(other.Context) {
		if len(m.Context) < len(other.Context) {
			return -1
		}
		return 1
	}
	for i := range m.Context {
		if c := m.Context[i].Compare(other.Context[i]); c != 0 {
			return c
		}
	}
	return 0
}

func (m Message) String() string {
	ctx := make([]string, len(m.Context))
	for i, t := range m.Context {
		ctx[i] = t.String()
	}
	switch m.Kind {
	case MsgAdd:
		return fmt.Sprintf("add{%s %s ctx=[%s]}", m.Elem, m.Tag, strings.Join(ctx, " "))
	case MsgRemove:
		return fmt.Sprintf("rem{%s ctx=[%s]}", m.Elem, strings.Join(ctx, " "))
	default:
		return "msg?"
	}
}
