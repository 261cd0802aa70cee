package explore

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jeffa5/toy-crdt/model"
)

// errShortCircuit makes errgroup cancel the remaining workers once any of
// them has spotted a violation; the serial merge then re-finds it
// authoritatively, so the first violation wins deterministically.
var errShortCircuit = errors.New("explore: violation spotted, cancelling level")

type expansion struct {
	parent int
	steps  []model.Step
}

// SearchParallel is a level-synchronous breadth-first search: each frontier
// is split into batches expanded concurrently, then merged serially into the
// visited set. Successor generation and the property are pure, so workers
// share nothing but the read-only node arena. The outcome kind always matches
// the sequential BFS; the violation path length does too, because merging a
// whole level before descending preserves minimal depth.
func SearchParallel(ctx context.Context, init model.Global, opts Options) (Outcome, error) {
	prop := opts.property()
	maxStates := opts.maxStates()
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	a := newArena(init)
	if opts.Validate {
		model.MustValidate(init)
	}
	if !prop(init) {
		return Outcome{Kind: OutcomeViolation, Path: a.path(0), Explored: 1}, nil
	}

	frontier := []int{0}
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		chunks := splitFrontier(frontier, workers)
		results := make([][]expansion, len(chunks))
		grp, grpCtx := errgroup.WithContext(ctx)
		for wi := range chunks {
			wi := wi
			chunk := chunks[wi]
			grp.Go(func() error {
				var out []expansion
				for _, idx := range chunk {
					select {
					case <-grpCtx.Done():
						results[wi] = out
						return grpCtx.Err()
					default:
					}
					steps := a.nodes[idx].state.Successors()
					out = append(out, expansion{parent: idx, steps: steps})
					for _, step := range steps {
						if !prop(step.Next) {
							results[wi] = out
							return errShortCircuit
						}
					}
				}
				results[wi] = out
				return nil
			})
		}
		err := grp.Wait()
		if err != nil && !errors.Is(err, errShortCircuit) && !errors.Is(err, context.Canceled) {
			return Outcome{}, err
		}
		if err != nil && ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}

		var next []int
		for _, result := range results {
			for _, exp := range result {
				for _, step := range exp.steps {
					if _, seen := a.lookup(step.Next); seen {
						continue
					}
					if len(a.nodes) >= maxStates {
						return Outcome{Kind: OutcomeInconclusive, Explored: len(a.nodes)}, nil
					}
					idx := a.insert(step.Next, exp.parent, step.Label)
					if opts.Validate {
						model.MustValidate(step.Next)
					}
					if !prop(step.Next) {
						return Outcome{Kind: OutcomeViolation, Path: a.path(idx), Explored: len(a.nodes)}, nil
					}
					next = append(next, idx)
				}
			}
		}
		if errors.Is(err, errShortCircuit) {
			// A worker spotted a violation but the merge absorbed every
			// collected expansion without re-finding it. That can only mean
			// the violating successor was deduplicated against an already
			// visited state, which contradicts the property having held for
			// every visited state.
			panic("explore: spotted violation lost during merge")
		}
		frontier = next
	}
	return Outcome{Kind: OutcomeOK, Explored: len(a.nodes)}, nil
}

func splitFrontier(frontier []int, workers int) [][]int {
	if workers > len(frontier) {
		workers = len(frontier)
	}
	chunks := make([][]int, 0, workers)
	size := (len(frontier) + workers - 1) / workers
	for start := 0; start < len(frontier); start += size {
		end := start + size
		if end > len(frontier) {
			end = len(frontier)
		}
		chunks = append(chunks, frontier[start:end])
	}
	return chunks
}
