package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/segmentio/fasthash/fnv1a"

	"github.com/jeffa5/toy-crdt/awset"
)

// Discipline is the delivery order the broadcast network enforces.
type Discipline int

const (
	// Unordered delivers any pending envelope at any time, modelling
	// arbitrary reordering. Duplication is only meaningful here.
	Unordered Discipline = iota + 1
	// FIFO preserves order per sender/receiver pair, the usual reliable
	// point-to-point link. Cross-sender order stays unconstrained.
	FIFO
	// Causal additionally holds back an envelope until everything that
	// causally preceded it at the sender has been delivered. This mode is
	// itself a variant under test, not a given.
	Causal
)

func (d Discipline) String() string {
	switch d {
	case Unordered:
		return "unordered"
	case FIFO:
		return "fifo"
	case Causal:
		return "causal"
	default:
		return "discipline?"
	}
}

func ParseDiscipline(s string) (Discipline, error) {
	switch s {
	case "unordered":
		return Unordered, nil
	case "fifo", "":
		return FIFO, nil
	case "causal":
		return Causal, nil
	default:
		return 0, fmt.Errorf("unknown delivery discipline %q", s)
	}
}

// Envelope is one in-flight copy of a broadcast message, addressed to a
// single destination. A broadcast fans out into one envelope per peer and a
// message is gone once its last envelope is delivered.
type Envelope struct {
	Src awset.ReplicaID
	Dst awset.ReplicaID
	// Seq is the sender's broadcast sequence number, tracked under FIFO and
	// Causal. Unordered leaves it zero so delivery history cannot split
	// otherwise-identical states.
	Seq   uint32
	Clock VClock // sender clock at send time, tracked under Causal only
	Msg   awset.Message
}

func (env Envelope) Equal(other Envelope) bool {
	return env.Src == other.Src &&
		env.Dst == other.Dst &&
		env.Seq == other.Seq &&
		env.Clock.Equal(other.Clock) &&
		env.Msg.Equal(other.Msg)
}

func (env Envelope) Hash() uint32 {
	h := fnv1a.Init32
	h = fnv1a.AddUint32(h, uint32(env.Src))
	h = fnv1a.AddUint32(h, uint32(env.Dst))
	h = fnv1a.AddUint32(h, env.Seq)
	h = fnv1a.AddUint32(h, env.Clock.Hash())
	h = fnv1a.AddUint32(h, env.Msg.Hash())
	return h
}

func (env Envelope) compare(other Envelope) int {
	if env.Src != other.Src {
		if env.Src < other.Src {
			return -1
		}
		return 1
	}
	if env.Seq != other.Seq {
		if env.Seq < other.Seq {
			return -1
		}
		return 1
	}
	if env.Dst != other.Dst {
		if env.Dst < other.Dst {
			return -1
		}
		return 1
	}
	return env.Msg.Compare(other.Msg)
}

func (env Envelope) String() string {
	return fmt.Sprintf("r%d->r%d %s", env.Src, env.Dst, env.Msg)
}

// Network is the in-flight message multiset plus the delivery bookkeeping for
// the configured discipline. It is a value type: Broadcast and Deliver return
// new networks and never touch shared slices in place.
type Network struct {
	discipline Discipline
	duplicate  bool
	n          int
	inflight   []Envelope // canonically sorted
	nextSeq    []uint32   // per-sender broadcast count (FIFO, Causal)
	delivered  []uint32   // delivered[dst*n+src] (FIFO)
	clocks     []VClock   // per-replica delivered clock (Causal)
}

func NewNetwork(n int, d Discipline, duplicate bool) Network {
	net := Network{discipline: d, duplicate: duplicate, n: n}
	switch d {
	case FIFO:
		net.nextSeq = make([]uint32, n)
		net.delivered = make([]uint32, n*n)
	case Causal:
		net.nextSeq = make([]uint32, n)
		net.clocks = make([]VClock, n)
	}
	return net
}

func (net Network) Discipline() Discipline { return net.discipline }
func (net Network) Duplicating() bool      { return net.duplicate }
func (net Network) Replicas() int          { return net.n }

func (net Network) Quiescent() bool {
	return len(net.inflight) == 0
}

func (net Network) Len() int {
	return len(net.inflight)
}

func (net Network) Inflight() []Envelope {
	return net.inflight
}

// Broadcast enqueues every message for every replica other than src.
func (net Network) Broadcast(src awset.ReplicaID, msgs []awset.Message) Network {
	if len(msgs) == 0 || net.n <= 1 {
		// Single-replica systems have no peers; the messages evaporate.
		if len(msgs) > 0 && net.nextSeq != nil {
			net.nextSeq = bumpCounts(net.nextSeq, src, len(msgs))
		}
		return net
	}
	inflight := make([]Envelope, len(net.inflight), len(net.inflight)+len(msgs)*(net.n-1))
	copy(inflight, net.inflight)
	for _, msg := range msgs {
		var seq uint32
		var clock VClock
		if net.nextSeq != nil {
			net.nextSeq = bumpCounts(net.nextSeq, src, 1)
			seq = net.nextSeq[src]
		}
		if net.discipline == Causal {
			clocks := make([]VClock, len(net.clocks))
			copy(clocks, net.clocks)
			clocks[src] = clocks[src].Inc(src, net.n)
			net.clocks = clocks
			clock = net.clocks[src]
		}
		for dst := 0; dst < net.n; dst++ {
			if awset.ReplicaID(dst) == src {
				continue
			}
			inflight = append(inflight, Envelope{
				Src:   src,
				Dst:   awset.ReplicaID(dst),
				Seq:   seq,
				Clock: clock,
				Msg:   msg,
			})
		}
	}
	sortEnvelopes(inflight)
	net.inflight = inflight
	return net
}

// Deliverable reports whether the i-th in-flight envelope may be delivered
// under the network's discipline.
func (net Network) Deliverable(i int) bool {
	env := net.inflight[i]
	switch net.discipline {
	case Unordered:
		return true
	case FIFO:
		return env.Seq == net.delivered[int(env.Dst)*net.n+int(env.Src)]+1
	case Causal:
		recv := net.clocks[env.Dst]
		if env.Clock.Get(env.Src) != recv.Get(env.Src)+1 {
			return false
		}
		for k := 0; k < net.n; k++ {
			id := awset.ReplicaID(k)
			if id == env.Src {
				continue
			}
			if env.Clock.Get(id) > recv.Get(id) {
				return false
			}
		}
		return true
	default:
		panic("model: unknown delivery discipline")
	}
}

// Deliver removes the i-th envelope and updates the receiver's bookkeeping.
func (net Network) Deliver(i int) (Network, Envelope) {
	env := net.inflight[i]
	inflight := make([]Envelope, 0, len(net.inflight)-1)
	inflight = append(inflight, net.inflight[:i]...)
	inflight = append(inflight, net.inflight[i+1:]...)
	net.inflight = inflight
	return net.recordDelivery(env), env
}

// DeliverKeep delivers the i-th envelope but leaves a copy in flight,
// modelling message duplication. Only the unordered discipline duplicates.
func (net Network) DeliverKeep(i int) (Network, Envelope) {
	if net.discipline != Unordered || !net.duplicate {
		panic("model: duplication requires the unordered discipline")
	}
	env := net.inflight[i]
	return net.recordDelivery(env), env
}

func (net Network) recordDelivery(env Envelope) Network {
	switch net.discipline {
	case FIFO:
		net.delivered = bumpCounts(net.delivered, awset.ReplicaID(int(env.Dst)*net.n+int(env.Src)), 1)
	case Causal:
		clocks := make([]VClock, len(net.clocks))
		copy(clocks, net.clocks)
		clocks[env.Dst] = clocks[env.Dst].Merge(env.Clock)
		net.clocks = clocks
	}
	return net
}

func (net Network) Equal(other Network) bool {
	if net.discipline != other.discipline ||
		net.duplicate != other.duplicate ||
		net.n != other.n ||
		len(net.inflight) != len(other.inflight) {
		return false
	}
	for i := range net.inflight {
		if !net.inflight[i].Equal(other.inflight[i]) {
			return false
		}
	}
	if !uint32sEqual(net.nextSeq, other.nextSeq) || !uint32sEqual(net.delivered, other.delivered) {
		return false
	}
	if len(net.clocks) != len(other.clocks) {
		return false
	}
	for i := range net.clocks {
		if !net.clocks[i].Equal(other.clocks[i]) {
			return false
		}
	}
	return true
}

func (net Network) Hash() uint32 {
	h := fnv1a.Init32
	h = fnv1a.AddUint32(h, uint32(net.discipline))
	if net.duplicate {
		h = fnv1a.AddUint32(h, 1)
	}
	h = fnv1a.AddUint32(h, uint32(net.n))
	for _, env := range net.inflight {
		h = fnv1a.AddUint32(h, env.Hash())
	}
	for _, v := range net.nextSeq {
		h = fnv1a.AddUint32(h, v)
	}
	for _, v := range net.delivered {
		h = fnv1a.AddUint32(h, v)
	}
	for _, clock := range net.clocks {
		h = fnv1a.AddUint32(h, clock.Hash())
	}
	return h
}

func (net Network) String() string {
	parts := make([]string, len(net.inflight))
	for i, env := range net.inflight {
		parts[i] = env.String()
	}
	return "[" + strings.Join(parts, "; ") + "]"
}

func sortEnvelopes(envs []Envelope) {
	sort.SliceStable(envs, func(i, j int) bool {
		return envs[i].compare(envs[j]) < 0
	})
}

func bumpCounts(counts []uint32, at awset.ReplicaID, by int) []uint32 {
	out := make([]uint32, len(counts))
	copy(out, counts)
	out[at] += uint32(by)
	return out
}

func uint32sEqual(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
