// Package explore enumerates the reachable global states of a scenario and
// checks a safety property at each one. The search is an explicit worklist
// over immutable model.Global values with a visited set keyed by structural
// hash; every non-deterministic choice shows up as a distinct successor, so
// there is no scheduler hiding anywhere.
package explore

import (
	"context"
	"fmt"

	"github.com/jeffa5/toy-crdt/check"
	"github.com/jeffa5/toy-crdt/model"
)

// Strategy selects the traversal order.
type Strategy int

const (
	// BFS explores level by level; the first violation it reports lies on a
	// shortest counterexample path.
	BFS Strategy = iota + 1
	// DFS explores depth first; lighter on memory, no shortest-path claim.
	DFS
)

func (s Strategy) String() string {
	switch s {
	case BFS:
		return "bfs"
	case DFS:
		return "dfs"
	default:
		return "strategy?"
	}
}

type OutcomeKind int

const (
	// OutcomeOK: the property held at every reachable state.
	OutcomeOK OutcomeKind = iota + 1
	// OutcomeViolation: a reachable state falsified the property. This is a
	// finding, not a failure of the checker.
	OutcomeViolation
	// OutcomeInconclusive: the state bound was hit before the search could
	// finish. Deliberately distinct from OK so "gave up" is never mistaken
	// for "verified".
	OutcomeInconclusive
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeViolation:
		return "violation"
	case OutcomeInconclusive:
		return "inconclusive"
	default:
		return "outcome?"
	}
}

// Step is one entry of a counterexample path: the transition label that
// produced the state, and the state itself. The initial state carries an
// empty label.
type Step struct {
	Label string
	State model.Global
}

type Outcome struct {
	Kind     OutcomeKind
	Path     []Step // initial state first; set for violations only
	Explored int
}

// PathLength is the number of transitions in the counterexample, zero when
// there is none.
func (o Outcome) PathLength() int {
	if len(o.Path) == 0 {
		return 0
	}
	return len(o.Path) - 1
}

// DefaultMaxStates bounds exploration when the caller does not. Hitting the
// bound yields an inconclusive outcome, guarding against misconfigured
// schedules rather than expected state-space sizes.
const DefaultMaxStates = 1 << 20

type Options struct {
	Strategy  Strategy
	Property  check.Property // nil means check.Safe
	MaxStates int            // 0 means DefaultMaxStates
	Workers   int            // parallel search only; 0 means GOMAXPROCS
	Validate  bool           // run model.MustValidate on every new state
}

func (opts Options) property() check.Property {
	if opts.Property == nil {
		return check.Safe
	}
	return opts.Property
}

func (opts Options) maxStates() int {
	if opts.MaxStates <= 0 {
		return DefaultMaxStates
	}
	return opts.MaxStates
}

type node struct {
	state  model.Global
	parent int // index into the node arena, -1 for the initial state
	label  string
	depth  int
}

// arena owns every discovered state plus the hash-bucketed visited index.
// Buckets hold node indices; full structural equality resolves collisions.
type arena struct {
	nodes   []node
	buckets map[uint32][]int
}

func newArena(init model.Global) *arena {
	return &arena{
		nodes:   []node{{state: init, parent: -1}},
		buckets: map[uint32][]int{init.Hash(): {0}},
	}
}

// lookup returns the index of a structurally equal state, if one was seen.
func (a *arena) lookup(g model.Global) (int, bool) {
	for _, idx := range a.buckets[g.Hash()] {
		if a.nodes[idx].state.Equal(g) {
			return idx, true
		}
	}
	return 0, false
}

func (a *arena) insert(g model.Global, parent int, label string) int {
	idx := len(a.nodes)
	a.nodes = append(a.nodes, node{
		state:  g,
		parent: parent,
		label:  label,
		depth:  a.nodes[parent].depth + 1,
	})
	h := g.Hash()
	a.buckets[h] = append(a.buckets[h], idx)
	return idx
}

// path reconstructs the trace from the initial state to idx via parents.
func (a *arena) path(idx int) []Step {
	var rev []Step
	for idx != -1 {
		n := a.nodes[idx]
		rev = append(rev, Step{Label: n.label, State: n.state})
		idx = n.parent
	}
	out := make([]Step, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		out = append(out, rev[i])
	}
	return out
}

// Search explores every state reachable from init and halts on the first
// property violation, reporting the path that led there. It terminates for
// every finite operation schedule: schedules only shrink, the message
// multiset is bounded by the schedule, and the visited set absorbs the
// commuting interleavings.
func Search(ctx context.Context, init model.Global, opts Options) (Outcome, error) {
	prop := opts.property()
	maxStates := opts.maxStates()

	a := newArena(init)
	if opts.Validate {
		model.MustValidate(init)
	}
	if !prop(init) {
		return Outcome{Kind: OutcomeViolation, Path: a.path(0), Explored: 1}, nil
	}

	worklist := []int{0}
	head := 0 // BFS reads from the head, DFS pops the tail
	for head < len(worklist) {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		var cur int
		if opts.Strategy == DFS {
			cur = worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
		} else {
			cur = worklist[head]
			head++
		}
		for _, step := range a.nodes[cur].state.Successors() {
			if _, seen := a.lookup(step.Next); seen {
				continue
			}
			if len(a.nodes) >= maxStates {
				return Outcome{Kind: OutcomeInconclusive, Explored: len(a.nodes)}, nil
			}
			idx := a.insert(step.Next, cur, step.Label)
			if opts.Validate {
				model.MustValidate(step.Next)
			}
			if !prop(step.Next) {
				return Outcome{Kind: OutcomeViolation, Path: a.path(idx), Explored: len(a.nodes)}, nil
			}
			worklist = append(worklist, idx)
		}
	}
	return Outcome{Kind: OutcomeOK, Explored: len(a.nodes)}, nil
}

// FormatPath renders a counterexample the way the CLI prints it.
func FormatPath(path []Step) string {
	out := ""
	for i, step := range path {
		if i == 0 {
			out += fmt.Sprintf("  initial  %s\n", step.State.Summary())
			continue
		}
		out += fmt.Sprintf("  %2d. %-40s %s\n", i, step.Label, step.State.Summary())
	}
	return out
}
