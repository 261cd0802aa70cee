package model

import (
	"errors"
	"fmt"

	"github.com/sanity-io/litter"

	"github.com/jeffa5/toy-crdt/awset"
)

// ErrInvariant marks a malformed global state. Hitting it means a bug in the
// state machine or the network model, never an expected run outcome.
var ErrInvariant = errors.New("model invariant violated")

// MustValidate panics with a diagnostic state dump when g is malformed. The
// explorer calls this on every discovered state when validation is enabled.
func MustValidate(g Global) {
	if err := validate(g); err != nil {
		panic(fmt.Errorf("%w\nstate dump:\n%s", err, litter.Sdump(g.Replicas, g.Pending, g.Removed, g.Net.Inflight())))
	}
}

func validate(g Global) error {
	n := len(g.Replicas)
	if n == 0 {
		return fmt.Errorf("%w: no replicas", ErrInvariant)
	}
	if len(g.Pending) != n {
		return fmt.Errorf("%w: %d replicas but %d schedules", ErrInvariant, n, len(g.Pending))
	}
	if g.Net.Replicas() != n {
		return fmt.Errorf("%w: network sized for %d replicas, state has %d", ErrInvariant, g.Net.Replicas(), n)
	}
	for i, replica := range g.Replicas {
		if replica.ID() != awset.ReplicaID(i) {
			return fmt.Errorf("%w: replica at index %d claims id %d", ErrInvariant, i, replica.ID())
		}
		for _, entry := range replica.Entries() {
			if err := checkTag(g, entry.Tag); err != nil {
				return fmt.Errorf("%w (visible at r%d)", err, i)
			}
		}
	}
	// Every tag is minted by exactly one add: two in-flight add announcements
	// with the same tag must agree on the element.
	announced := map[awset.Tag]awset.Element{}
	for _, env := range g.Net.Inflight() {
		if int(env.Src) >= n || int(env.Dst) >= n || env.Src == env.Dst {
			return fmt.Errorf("%w: envelope %s has bad addressing", ErrInvariant, env)
		}
		if env.Msg.Kind != awset.MsgAdd {
			continue
		}
		if err := checkTag(g, env.Msg.Tag); err != nil {
			return fmt.Errorf("%w (in flight from r%d)", err, env.Src)
		}
		if elem, ok := announced[env.Msg.Tag]; ok && elem != env.Msg.Elem {
			return fmt.Errorf("%w: tag %s announced for both %q and %q", ErrInvariant, env.Msg.Tag, elem, env.Msg.Elem)
		}
		announced[env.Msg.Tag] = env.Msg.Elem
	}
	return nil
}

func checkTag(g Global, t awset.Tag) error {
	if t.Seq == 0 {
		return fmt.Errorf("%w: tag %s was never minted", ErrInvariant, t)
	}
	if int(t.Origin) >= len(g.Replicas) || t.Origin < 0 {
		return fmt.Errorf("%w: tag %s from unknown replica", ErrInvariant, t)
	}
	if t.Seq > g.Replicas[t.Origin].MaxSeq() {
		return fmt.Errorf("%w: tag %s exceeds r%d's counter %d", ErrInvariant, t, t.Origin, g.Replicas[t.Origin].MaxSeq())
	}
	return nil
}
