package model

import (
	"fmt"
	"strings"

	"github.com/segmentio/fasthash/fnv1a"

	"github.com/jeffa5/toy-crdt/awset"
)

// Global is the unit the explorer works on: every replica's state, the
// operations each replica has yet to issue, the network, and the set of tags
// that some replica removed together with its context (consumed by the
// resurrection predicate). Globals are immutable; transitions produce fresh
// values and the originals stay reachable for path reconstruction.
type Global struct {
	Sem      awset.Semantics
	Replicas []awset.State
	Pending  [][]awset.Op
	Net      Network
	Removed  []awset.Tag // sorted ascending, deduplicated
}

// Initial builds the starting state: all replicas empty, network empty, full
// schedules pending.
func Initial(sem awset.Semantics, sc Scenario, d Discipline, duplicate bool) (Global, error) {
	if err := sc.Validate(); err != nil {
		return Global{}, err
	}
	replicas := make([]awset.State, sc.Servers)
	for i := range replicas {
		replicas[i] = awset.NewState(awset.ReplicaID(i))
	}
	pending := make([][]awset.Op, sc.Servers)
	copy(pending, sc.Ops)
	return Global{
		Sem:      sem,
		Replicas: replicas,
		Pending:  pending,
		Net:      NewNetwork(sc.Servers, d, duplicate),
	}, nil
}

// Quiescent reports whether no messages are in flight.
func (g Global) Quiescent() bool {
	return g.Net.Quiescent()
}

// Drained reports whether every replica has issued its whole schedule.
func (g Global) Drained() bool {
	for _, ops := range g.Pending {
		if len(ops) > 0 {
			return false
		}
	}
	return true
}

func (g Global) Equal(other Global) bool {
	if g.Sem.Name() != other.Sem.Name() {
		return false
	}
	if len(g.Replicas) != len(other.Replicas) {
		return false
	}
	for i := range g.Replicas {
		if !g.Replicas[i].Equal(other.Replicas[i]) {
			return false
		}
	}
	if len(g.Pending) != len(other.Pending) {
		return false
	}
	for i := range g.Pending {
		if len(g.Pending[i]) != len(other.Pending[i]) {
			return false
		}
		for j := range g.Pending[i] {
			if g.Pending[i][j] != other.Pending[i][j] {
				return false
			}
		}
	}
	if len(g.Removed) != len(other.Removed) {
		return false
	}
	for i := range g.Removed {
		if g.Removed[i] != other.Removed[i] {
			return false
		}
	}
	return g.Net.Equal(other.Net)
}

func (g Global) Hash() uint32 {
	h := fnv1a.Init32
	h = fnv1a.AddString32(h, g.Sem.Name())
	for _, replica := range g.Replicas {
		h = fnv1a.AddUint32(h, replica.Hash())
	}
	for _, ops := range g.Pending {
		h = fnv1a.AddUint32(h, uint32(len(ops)))
		for _, op := range ops {
			h = fnv1a.AddUint32(h, op.Hash())
		}
	}
	for _, t := range g.Removed {
		h = fnv1a.AddUint32(h, t.Hash())
	}
	h = fnv1a.AddUint32(h, g.Net.Hash())
	return h
}

// Summary is a short human-readable rendering used in graph nodes and traces.
func (g Global) Summary() string {
	b := strings.Builder{}
	for i, replica := range g.Replicas {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "r%d=%s", i, replica)
		if n := len(g.Pending[i]); n > 0 {
			fmt.Fprintf(&b, "+%dops", n)
		}
	}
	if n := g.Net.Len(); n > 0 {
		fmt.Fprintf(&b, " net=%d", n)
	}
	return b.String()
}

func (g Global) String() string {
	return g.Summary()
}

// Step is one labelled transition out of a global state.
type Step struct {
	Label string
	Next  Global
}

// Successors enumerates every enabled transition: the next scheduled local
// operation of each replica, and every deliverable in-flight envelope. Each
// non-deterministic choice is materialized as a distinct successor; there is
// no hidden scheduler.
func (g Global) Successors() []Step {
	var steps []Step
	for r := range g.Replicas {
		if len(g.Pending[r]) == 0 {
			continue
		}
		op := g.Pending[r][0]
		state, msgs := awset.ApplyLocal(g.Sem, g.Replicas[r], op)
		next := g.clone()
		next.Replicas[r] = state
		next.Pending[r] = g.Pending[r][1:]
		next.Net = g.Net.Broadcast(awset.ReplicaID(r), msgs)
		for _, m := range msgs {
			if m.Kind == awset.MsgRemove {
				next.Removed = mergeTags(next.Removed, m.Context)
			}
		}
		steps = append(steps, Step{
			Label: fmt.Sprintf("r%d: %s", r, op),
			Next:  next,
		})
	}
	for i := 0; i < g.Net.Len(); i++ {
		if !g.Net.Deliverable(i) {
			continue
		}
		net, env := g.Net.Deliver(i)
		state := awset.ApplyRemote(g.Sem, g.Replicas[env.Dst], env.Msg)
		next := g.clone()
		next.Replicas[env.Dst] = state
		next.Net = net
		steps = append(steps, Step{
			Label: fmt.Sprintf("deliver %s", env),
			Next:  next,
		})
		if g.Net.Duplicating() && g.Net.Discipline() == Unordered {
			dup := g.clone()
			dup.Replicas[env.Dst] = state
			keep, _ := g.Net.DeliverKeep(i)
			dup.Net = keep
			steps = append(steps, Step{
				Label: fmt.Sprintf("deliver %s (dup)", env),
				Next:  dup,
			})
		}
	}
	return steps
}

func (g Global) clone() Global {
	replicas := make([]awset.State, len(g.Replicas))
	copy(replicas, g.Replicas)
	pending := make([][]awset.Op, len(g.Pending))
	copy(pending, g.Pending)
	g.Replicas = replicas
	g.Pending = pending
	// Removed and Net are replaced wholesale by callers, never mutated.
	return g
}

// mergeTags unions ctx into the sorted tag slice, returning a fresh slice.
func mergeTags(tags []awset.Tag, ctx []awset.Tag) []awset.Tag {
	if len(ctx) == 0 {
		return tags
	}
	out := make([]awset.Tag, len(tags), len(tags)+len(ctx))
	copy(out, tags)
	for _, t := range ctx {
		present := false
		for _, have := range out {
			if have == t {
				present = true
				break
			}
		}
		if !present {
			out = append(out, t)
		}
	}
	awset.SortTags(out)
	return out
}
