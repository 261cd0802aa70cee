package model

import (
	"testing"

	"github.com/jeffa5/toy-crdt/awset"
)

func addMsg(seq uint32, origin awset.ReplicaID) awset.Message {
	return awset.Message{
		Kind: awset.MsgAdd,
		Elem: "k",
		Tag:  awset.Tag{Seq: seq, Origin: origin},
	}
}

// deliverTo delivers the first deliverable envelope addressed to dst and fails
// the test when none is.
func deliverTo(t *testing.T, net Network, dst awset.ReplicaID) (Network, Envelope) {
	t.Helper()
	for i := 0; i < net.Len(); i++ {
		if net.Inflight()[i].Dst == dst && net.Deliverable(i) {
			return net.Deliver(i)
		}
	}
	t.Fatalf("no deliverable envelope for r%d in %s", dst, net)
	return net, Envelope{}
}

func TestBroadcastFansOutToPeers(t *testing.T) {
	net := NewNetwork(3, FIFO, false)
	net = net.Broadcast(0, []awset.Message{addMsg(1, 0)})
	if net.Len() != 2 {
		t.Fatalf("expected 2 envelopes, got %d: %s", net.Len(), net)
	}
	dsts := map[awset.ReplicaID]bool{}
	for _, env := range net.Inflight() {
		if env.Src != 0 {
			t.Errorf("wrong source in %s", env)
		}
		dsts[env.Dst] = true
	}
	if !dsts[1] || !dsts[2] {
		t.Errorf("expected envelopes for r1 and r2, got %s", net)
	}
}

func TestSingleReplicaBroadcastEvaporates(t *testing.T) {
	net := NewNetwork(1, FIFO, false)
	net = net.Broadcast(0, []awset.Message{addMsg(1, 0)})
	if !net.Quiescent() {
		t.Errorf("expected no envelopes without peers, got %s", net)
	}
}

func TestFIFOHoldsBackLaterBroadcast(t *testing.T) {
	net := NewNetwork(2, FIFO, false)
	net = net.Broadcast(0, []awset.Message{addMsg(1, 0)})
	net = net.Broadcast(0, []awset.Message{addMsg(2, 0)})
	if net.Len() != 2 {
		t.Fatalf("expected 2 envelopes, got %s", net)
	}
	// Envelopes sort by sender sequence, so index 0 is the earlier broadcast.
	if !net.Deliverable(0) {
		t.Errorf("first broadcast should be deliverable")
	}
	if net.Deliverable(1) {
		t.Errorf("second broadcast deliverable before the first")
	}
	net, env := net.Deliver(0)
	if env.Seq != 1 {
		t.Errorf("delivered out of order: %v", env)
	}
	if !net.Deliverable(0) {
		t.Errorf("second broadcast should be deliverable after the first")
	}
}

func TestUnorderedDeliversInAnyOrder(t *testing.T) {
	net := NewNetwork(2, Unordered, false)
	net = net.Broadcast(0, []awset.Message{addMsg(1, 0)})
	net = net.Broadcast(0, []awset.Message{addMsg(2, 0)})
	for i := 0; i < net.Len(); i++ {
		if !net.Deliverable(i) {
			t.Errorf("envelope %d should be deliverable under unordered delivery", i)
		}
		if net.Inflight()[i].Seq != 0 {
			t.Errorf("unordered envelopes must not carry sequence numbers: %v", net.Inflight()[i])
		}
	}
}

func TestCausalHoldsBackDependentBroadcast(t *testing.T) {
	net := NewNetwork(3, Causal, false)
	net = net.Broadcast(0, []awset.Message{addMsg(1, 0)})
	// r1 receives r0's broadcast and then broadcasts something of its own.
	net, _ = deliverTo(t, net, 1)
	net = net.Broadcast(1, []awset.Message{addMsg(2, 1)})

	// r2 must not receive r1's broadcast before r0's.
	for i := 0; i < net.Len(); i++ {
		env := net.Inflight()[i]
		if env.Dst == 2 && env.Src == 1 && net.Deliverable(i) {
			t.Fatalf("dependent broadcast %s deliverable before its cause", env)
		}
	}
	net, env := deliverTo(t, net, 2)
	if env.Src != 0 {
		t.Fatalf("expected r0's broadcast first, got %s", env)
	}
	_, env = deliverTo(t, net, 2)
	if env.Src != 1 {
		t.Errorf("expected r1's broadcast second, got %s", env)
	}
}

func TestDeliverKeepRequiresUnorderedDuplication(t *testing.T) {
	net := NewNetwork(2, FIFO, false)
	net = net.Broadcast(0, []awset.Message{addMsg(1, 0)})
	defer func() {
		if recover() == nil {
			t.Errorf("expected a panic for duplication outside unordered mode")
		}
	}()
	net.DeliverKeep(0)
}

func TestDeliverKeepLeavesCopyInFlight(t *testing.T) {
	net := NewNetwork(2, Unordered, true)
	net = net.Broadcast(0, []awset.Message{addMsg(1, 0)})
	kept, env := net.DeliverKeep(0)
	if kept.Len() != 1 {
		t.Errorf("duplication should leave the envelope in flight, got %s", kept)
	}
	if !env.Equal(kept.Inflight()[0]) {
		t.Errorf("kept envelope differs from the delivered one")
	}
}

func TestNetworkEqualityTracksHistory(t *testing.T) {
	build := func() Network {
		net := NewNetwork(2, FIFO, false)
		net = net.Broadcast(0, []awset.Message{addMsg(1, 0)})
		net = net.Broadcast(1, []awset.Message{addMsg(1, 1)})
		return net
	}
	a, b := build(), build()
	if !a.Equal(b) || a.Hash() != b.Hash() {
		t.Fatalf("identically built networks differ: %s vs %s", a, b)
	}
	b, _ = deliverTo(t, b, 1)
	if a.Equal(b) {
		t.Errorf("networks with different delivery history compare equal")
	}
}
