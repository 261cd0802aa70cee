package awset

// Semantics selects how a replica applies operations. The two variants differ
// only in how removal context is computed and honored; everything else,
// including tag minting, is shared. Selecting one per run keeps the single
// semantic difference under test isolated.
type Semantics interface {
	Name() string
	LocalAdd(s State, elem Element) (State, []Message)
	LocalRemove(s State, elem Element) (State, []Message)
	ReceiveAdd(s State, m Message) State
	ReceiveRemove(s State, m Message) State
}

// ApplyLocal applies a locally issued operation, returning the new replica
// state and the messages to broadcast. Transitions are total: they never fail
// on well-formed states.
func ApplyLocal(sem Semantics, s State, op Op) (State, []Message) {
	switch op.Kind {
	case OpAdd:
		return sem.LocalAdd(s, op.Elem)
	case OpRemove:
		return sem.LocalRemove(s, op.Elem)
	default:
		panic("awset: unknown operation kind")
	}
}

// ApplyRemote applies a delivered broadcast message.
func ApplyRemote(sem Semantics, s State, m Message) State {
	switch m.Kind {
	case MsgAdd:
		return sem.ReceiveAdd(s, m)
	case MsgRemove:
		return sem.ReceiveRemove(s, m)
	default:
		panic("awset: unknown message kind")
	}
}

// ContextAware is the corrected semantics: every mutation carries the set of
// tags the issuer could see for the element, and receivers tombstone exactly
// those instances. A concurrent add whose tag the remover never saw survives
// the removal (add-wins).
var ContextAware Semantics = contextAware{}

type contextAware struct{}

func (contextAware) Name() string { return "context-aware" }

func (contextAware) LocalAdd(s State, elem Element) (State, []Message) {
	ctx := s.VisibleTags(elem)
	s, tag := s.nextTag()
	s = s.retainNotIn(ctx)
	s = s.insert(Entry{Elem: elem, Tag: tag})
	return s, []Message{{Kind: MsgAdd, Elem: elem, Tag: tag, Context: ctx}}
}

func (contextAware) LocalRemove(s State, elem Element) (State, []Message) {
	ctx := s.VisibleTags(elem)
	s = s.retainNotIn(ctx)
	// The announcement goes out even with an empty context; receivers treat
	// it as a no-op.
	return s, []Message{{Kind: MsgRemove, Elem: elem, Context: ctx}}
}

func (contextAware) ReceiveAdd(s State, m Message) State {
	s = s.bumpSeq(m.Tag.Seq)
	s = s.retainNotIn(m.Context)
	return s.insert(Entry{Elem: m.Elem, Tag: m.Tag})
}

func (contextAware) ReceiveRemove(s State, m Message) State {
	s = s.bumpSeq(maxTagSeq(m.Context))
	return s.retainNotIn(m.Context)
}

// ContextFree is the defective semantics: adds overwrite by element name and
// announce no context, and removals that find nothing visible announce
// nothing at all. A replica that applies a removal before the matching add
// arrives has no tombstone to remember it by, so the late add resurrects the
// element.
var ContextFree Semantics = contextFree{}

type contextFree struct{}

func (contextFree) Name() string { return "context-free" }

func (contextFree) LocalAdd(s State, elem Element) (State, []Message) {
	s, tag := s.nextTag()
	s = s.removeElem(elem)
	s = s.insert(Entry{Elem: elem, Tag: tag})
	return s, []Message{{Kind: MsgAdd, Elem: elem, Tag: tag}}
}

func (contextFree) LocalRemove(s State, elem Element) (State, []Message) {
	ctx := s.VisibleTags(elem)
	if len(ctx) == 0 {
		// Nothing visible: nothing removed, nothing broadcast.
		return s, nil
	}
	s = s.retainNotIn(ctx)
	return s, []Message{{Kind: MsgRemove, Elem: elem, Context: ctx}}
}

func (contextFree) ReceiveAdd(s State, m Message) State {
	s = s.bumpSeq(m.Tag.Seq)
	for _, t := range s.VisibleTags(m.Elem) {
		if !t.Less(m.Tag) {
			return s
		}
	}
	s = s.removeElem(m.Elem)
	return s.insert(Entry{Elem: m.Elem, Tag: m.Tag})
}

func (contextFree) ReceiveRemove(s State, m Message) State {
	s = s.bumpSeq(maxTagSeq(m.Context))
	return s.retainNotIn(m.Context)
}
