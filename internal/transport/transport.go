package transport

import (
	"github.com/openmd/haloexchange/internal/buffer"
	"github.com/openmd/haloexchange/internal/topology"
)

// Transport is one rank's handle onto a shared Network. It implements the
// even/odd pairwise send/recv schedule and the self-neighbor buffer swap.
type Transport struct {
	net  *Network
	topo *topology.Topology
}

// New creates a Transport for the given rank's topology over net.
func New(net *Network, topo *topology.Topology) *Transport {
	return &Transport{net: net, topo: topo}
}

// Exchange performs one direction's round trip across the given frames, in
// order: each frame's Send side holds this rank's outgoing payload on
// entry; on return, each frame's Recv side holds the payload received from
// the matching peer for that same frame position. Migration sends a
// {header, particle records, bond ints} triple this way in one round; ghost
// construction sends {header, ghost records}; ghost refresh sends a single
// doubles frame.
//
// When direction d's neighbor is this rank itself (a process-grid extent of
// 1 along d's axis), no message is sent: every frame is swapped in place,
// which is the correctness-critical optimization that exchanges both count
// and capacity atomically for both send and recv sides.
//
// Otherwise, this rank sends to neighbors[d] and receives the data destined
// for it from neighbors[d^1] (the rank whose own neighbors[d] is this rank).
// The even/odd schedule decides, per iteration e in {0,1}, whether this
// rank performs its send or its receive first: it sends first iff
// (pe_pos[axis]+e) is even. Because the topology is consistent across
// ranks, this resolves into a directed ring shift with no possibility of
// every rank blocking on a synchronous send simultaneously.
func (t *Transport) Exchange(dir topology.Direction, frames ...*buffer.Descriptor) error {
	if t.topo.IsSelfNeighbor(dir) {
		for _, f := range frames {
			f.Swap()
		}
		return nil
	}

	axis := dir.Axis()
	parity := t.topo.PEPos[axis]
	myRank := t.topo.ThisRank
	recvFrom := t.topo.Neighbors[dir.Opposite()]
	d := int(dir)

	for e := 0; e < 2; e++ {
		if (parity+e)%2 == 0 {
			for _, f := range frames {
				t.net.Send(myRank, d, f.Send.Bytes())
			}
			continue
		}
		for _, f := range frames {
			data := t.net.Recv(recvFrom, d)
			copy(f.Recv.Reset(len(data)), data)
		}
	}

	return nil
}

// Barrier blocks until every rank on the shared network reaches the same
// point, matching the end-of-direction synchronization the protocol relies
// on for deterministic testing.
func (t *Transport) Barrier() {
	t.net.Barrier()
}
