// Package check holds the safety predicates the explorer evaluates at every
// reachable state. Predicates are pure: a single boolean function of the
// global state with no side effects.
package check

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/jeffa5/toy-crdt/awset"
	"github.com/jeffa5/toy-crdt/model"
)

// Property is a safety predicate over a global state. It returns true while
// the state is acceptable; the explorer halts on the first state where it
// returns false.
type Property func(model.Global) bool

// And combines properties; the result fails when any component fails.
func And(props ...Property) Property {
	return func(g model.Global) bool {
		for _, p := range props {
			if !p(g) {
				return false
			}
		}
		return true
	}
}

// settled reports whether the system has fully quiesced: every scheduled
// operation issued and no messages in flight. The predicates below hold
// vacuously before that point, mirroring the convention that in-flight syncs
// excuse divergence.
func settled(g model.Global) bool {
	return g.Drained() && g.Quiescent()
}

// Converged requires every replica to hold the same entry set once the
// system has settled.
func Converged(g model.Global) bool {
	if !settled(g) {
		return true
	}
	for i := 1; i < len(g.Replicas); i++ {
		if !entrySet(g.Replicas[i]).Equal(entrySet(g.Replicas[0])) {
			return false
		}
	}
	return true
}

// NoResurrection requires that once the system has settled, no replica still
// sees an add instance whose tag some replica removed with its context.
func NoResurrection(g model.Global) bool {
	if !settled(g) {
		return true
	}
	removed := mapset.NewThreadUnsafeSet(g.Removed...)
	for _, replica := range g.Replicas {
		for _, entry := range replica.Entries() {
			if removed.Contains(entry.Tag) {
				return false
			}
		}
	}
	return true
}

// Safe is the default property: settled states must agree and must not have
// resurrected any removed instance.
func Safe(g model.Global) bool {
	return Converged(g) && NoResurrection(g)
}

// Explain describes why a settled state is unacceptable, for reporting. It
// returns the empty string for states that satisfy Safe.
func Explain(g model.Global) string {
	if Safe(g) {
		return ""
	}
	var reasons []string
	if !Converged(g) {
		b := strings.Builder{}
		b.WriteString("replicas disagree at quiescence:")
		for i, replica := range g.Replicas {
			fmt.Fprintf(&b, " r%d=%s", i, replica)
		}
		reasons = append(reasons, b.String())
	}
	if !NoResurrection(g) {
		removed := mapset.NewThreadUnsafeSet(g.Removed...)
		for i, replica := range g.Replicas {
			for _, entry := range replica.Entries() {
				if removed.Contains(entry.Tag) {
					reasons = append(reasons,
						fmt.Sprintf("r%d still sees %s although tag %s was removed with full context", i, entry, entry.Tag))
				}
			}
		}
	}
	return strings.Join(reasons, "; ")
}

func entrySet(s awset.State) mapset.Set[awset.Entry] {
	return mapset.NewThreadUnsafeSet(s.Entries()...)
}
