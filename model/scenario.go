package model

import (
	"fmt"

	"github.com/jeffa5/toy-crdt/awset"
)

// Scenario fixes the finite operation schedule: which operations each replica
// will eventually issue, in issue order. The explorer explores every
// interleaving of those schedules with message deliveries, and the finiteness
// of the schedule is what bounds the reachable state space.
type Scenario struct {
	Servers int
	Ops     [][]awset.Op
}

// DefaultScenario distributes adds and then removes of a single element
// round-robin over the replicas: the first add goes to replica 0, the second
// to replica 1, and so on, and likewise for removes.
func DefaultScenario(servers, adds, removes int, elem awset.Element) Scenario {
	ops := make([][]awset.Op, servers)
	for i := 0; i < adds; i++ {
		r := i % servers
		ops[r] = append(ops[r], awset.Add(elem))
	}
	for i := 0; i < removes; i++ {
		r := i % servers
		ops[r] = append(ops[r], awset.Remove(elem))
	}
	return Scenario{Servers: servers, Ops: ops}
}

func (sc Scenario) Validate() error {
	if sc.Servers < 1 {
		return fmt.Errorf("scenario needs at least one server, got %d", sc.Servers)
	}
	if len(sc.Ops) != sc.Servers {
		return fmt.Errorf("scenario has schedules for %d replicas but %d servers", len(sc.Ops), sc.Servers)
	}
	return nil
}

// TotalOps is the number of local operations across all replicas.
func (sc Scenario) TotalOps() int {
	total := 0
	for _, ops := range sc.Ops {
		total += len(ops)
	}
	return total
}
