package explore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/jeffa5/toy-crdt/model"
)

// Node is one explored global state, identified stably by insertion order.
type Node struct {
	ID        int    `json:"id"`
	Label     string `json:"label"`
	Depth     int    `json:"depth"`
	Quiescent bool   `json:"quiescent"`
	Drained   bool   `json:"drained"`
	Violating bool   `json:"violating"`
}

// Edge is one transition between explored states.
type Edge struct {
	From  int    `json:"from"`
	To    int    `json:"to"`
	Label string `json:"label"`
}

// Graph is the serializable exploration result consumed by the external
// visualizer: every reachable state, every transition, and the path to the
// first violation when one exists.
type Graph struct {
	RunID         string `json:"run_id"`
	Semantics     string `json:"semantics"`
	Discipline    string `json:"discipline"`
	Nodes         []Node `json:"nodes"`
	Edges         []Edge `json:"edges"`
	ViolationPath []int  `json:"violation_path,omitempty"`
	Truncated     bool   `json:"truncated"`
}

// BuildGraph explores breadth first like Search but keeps going after a
// violation, recording every state and transition (including back edges to
// already-visited states) so the whole graph can be rendered. Exploration is
// still bounded by MaxStates; a truncated graph says so instead of passing
// itself off as complete.
func BuildGraph(ctx context.Context, init model.Global, opts Options) (Graph, error) {
	prop := opts.property()
	maxStates := opts.maxStates()

	gr := Graph{
		RunID:      uuid.NewString(),
		Semantics:  init.Sem.Name(),
		Discipline: init.Net.Discipline().String(),
	}

	a := newArena(init)
	gr.Nodes = append(gr.Nodes, makeNode(0, 0, init, prop))
	violating := -1
	if gr.Nodes[0].Violating {
		violating = 0
	}

	worklist := []int{0}
	head := 0
	for head < len(worklist) {
		if err := ctx.Err(); err != nil {
			return Graph{}, err
		}
		cur := worklist[head]
		head++
		for _, step := range a.nodes[cur].state.Successors() {
			if idx, seen := a.lookup(step.Next); seen {
				gr.Edges = append(gr.Edges, Edge{From: cur, To: idx, Label: step.Label})
				continue
			}
			if len(a.nodes) >= maxStates {
				gr.Truncated = true
				gr.markViolation(a, violating)
				return gr, nil
			}
			idx := a.insert(step.Next, cur, step.Label)
			if opts.Validate {
				model.MustValidate(step.Next)
			}
			gr.Nodes = append(gr.Nodes, makeNode(idx, a.nodes[idx].depth, step.Next, prop))
			gr.Edges = append(gr.Edges, Edge{From: cur, To: idx, Label: step.Label})
			if violating == -1 && gr.Nodes[idx].Violating {
				violating = idx
			}
			worklist = append(worklist, idx)
		}
	}
	gr.markViolation(a, violating)
	return gr, nil
}

func makeNode(id, depth int, g model.Global, prop func(model.Global) bool) Node {
	return Node{
		ID:        id,
		Label:     g.Summary(),
		Depth:     depth,
		Quiescent: g.Quiescent(),
		Drained:   g.Drained(),
		Violating: !prop(g),
	}
}

func (gr *Graph) markViolation(a *arena, violating int) {
	if violating == -1 {
		return
	}
	for _, step := range a.path(violating) {
		idx, ok := a.lookup(step.State)
		if !ok {
			panic("explore: path state missing from arena")
		}
		gr.ViolationPath = append(gr.ViolationPath, idx)
	}
}

// WriteDOT renders the graph for Graphviz. Violating nodes are filled red,
// quiescent drained nodes are doublecircled, and the violation path is bold.
func (gr Graph) WriteDOT(w io.Writer) error {
	onPath := map[[2]int]bool{}
	for i := 1; i < len(gr.ViolationPath); i++ {
		onPath[[2]int{gr.ViolationPath[i-1], gr.ViolationPath[i]}] = true
	}
	b := strings.Builder{}
	fmt.Fprintf(&b, "digraph states {\n")
	fmt.Fprintf(&b, "  rankdir=TB;\n")
	fmt.Fprintf(&b, "  node [shape=box, fontsize=10];\n")
	for _, n := range gr.Nodes {
		attrs := []string{fmt.Sprintf("label=%q", fmt.Sprintf("%d: %s", n.ID, n.Label))}
		if n.Violating {
			attrs = append(attrs, "style=filled", "fillcolor=salmon")
		} else if n.Quiescent && n.Drained {
			attrs = append(attrs, "peripheries=2")
		}
		fmt.Fprintf(&b, "  n%d [%s];\n", n.ID, strings.Join(attrs, ", "))
	}
	for _, e := range gr.Edges {
		attrs := []string{fmt.Sprintf("label=%q", e.Label)}
		if onPath[[2]int{e.From, e.To}] {
			attrs = append(attrs, "penwidth=2", "color=red")
		}
		fmt.Fprintf(&b, "  n%d -> n%d [%s];\n", e.From, e.To, strings.Join(attrs, ", "))
	}
	fmt.Fprintf(&b, "}\n")
	_, err := io.WriteString(w, b.String())
	return err
}
