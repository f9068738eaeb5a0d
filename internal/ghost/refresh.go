package ghost

import (
	"bytes"

	"github.com/openmd/haloexchange/internal/buffer"
	"github.com/openmd/haloexchange/internal/cellgrid"
	"github.com/openmd/haloexchange/internal/particle"
	"github.com/openmd/haloexchange/internal/topology"
	"github.com/openmd/haloexchange/internal/transport"
	"github.com/openmd/haloexchange/internal/wire"
	apperrors "github.com/openmd/haloexchange/pkg/errors"
)

// Refresh keeps an already-built ghost halo current every simulation step,
// without rebuilding cell geometry: it reuses the send/recv cell lists and
// per-cell occupancy a Builder produced, since membership only changes when
// the halo itself is rebuilt.
type Refresh struct {
	topo      *topology.Topology
	store     *particle.Store
	pool      *buffer.Pool
	transport *transport.Transport
	dirCells  [6]cellgrid.DirectionCells
	cellSlots map[int][]int
	sendSize  [6]int
	recvSize  [6]int
}

// NewRefresh creates a Refresh bound to a Builder's most recent halo.
func NewRefresh(topo *topology.Topology, store *particle.Store, pool *buffer.Pool, tr *transport.Transport, b *Builder) *Refresh {
	r := &Refresh{
		topo:      topo,
		store:     store,
		pool:      pool,
		transport: tr,
		dirCells:  b.DirectionCells(),
		cellSlots: b.CellSlots(),
	}
	for d := topology.Direction(0); d < 6; d++ {
		r.sendSize[d] = b.SendSize(d)
		r.recvSize[d] = b.RecvSize(d)
	}
	return r
}

// PushPositions sends each ghost's current position from the owning rank
// to the rank holding its ghost copy, in the same direction order and
// cell-major slot order the Builder used, so no identities need to travel.
func (r *Refresh) PushPositions() []*apperrors.AppError {
	var findings []*apperrors.AppError
	for d := topology.Direction(0); d < 6; d++ {
		if f := r.pushDirection(d); f != nil {
			findings = append(findings, f)
		}
	}
	return findings
}

func (r *Refresh) pushDirection(dir topology.Direction) *apperrors.AppError {
	axis := dir.Axis()
	sendCells := r.dirCells[dir].Send

	vals := make([]float64, 0, 3*r.sendSize[dir])
	for _, c := range sendCells {
		for _, slot := range r.cellSlots[c] {
			pos := r.store.Get(slot).Pos
			if shift := r.topo.Boundary[dir]; shift != 0 {
				pos[axis] += shift
			}
			vals = append(vals, pos[0], pos[1], pos[2])
		}
	}

	var buf bytes.Buffer
	_ = wire.EncodeDoubles(&buf, vals)
	copy(r.pool.Doubles.Send.Reset(buf.Len()), buf.Bytes())

	if err := r.transport.Exchange(dir, &r.pool.Doubles); err != nil {
		return apperrors.Wrap(apperrors.CodeTransportFailure, "ghost refresh: push positions exchange failed", err)
	}

	recvVals, err := wire.DecodeDoubles(bytes.NewReader(r.pool.Doubles.Recv.Bytes()), 3*r.recvSize[dir])
	if err != nil {
		return apperrors.Wrap(apperrors.CodeProtocolMismatch, "ghost refresh: decode positions", err)
	}

	cursor := 0
	for _, c := range r.dirCells[dir].Recv {
		for _, slot := range r.cellSlots[c] {
			rec := r.store.Get(slot)
			rec.Pos = [3]float64{recvVals[cursor], recvVals[cursor+1], recvVals[cursor+2]}
			cursor += 3
		}
	}
	return nil
}

// CollectForces folds forces accumulated on ghost copies back to the owning
// particle, traversing directions in reverse (5 down to 0) so a force
// accumulated on a particle that is itself both a ghost and a ghost-holder
// (an edge or corner cell) is fully reduced before crossing the next axis.
func (r *Refresh) CollectForces() []*apperrors.AppError {
	var findings []*apperrors.AppError
	for dir := topology.Direction(5); ; dir-- {
		if f := r.collectDirection(dir); f != nil {
			findings = append(findings, f)
		}
		if dir == 0 {
			break
		}
	}
	return findings
}

func (r *Refresh) collectDirection(dir topology.Direction) *apperrors.AppError {
	recvCells := r.dirCells[dir].Recv

	vals := make([]float64, 0, 3*r.recvSize[dir])
	for _, c := range recvCells {
		for _, slot := range r.cellSlots[c] {
			f := r.store.Get(slot).Force
			vals = append(vals, f[0], f[1], f[2])
		}
	}

	var buf bytes.Buffer
	_ = wire.EncodeDoubles(&buf, vals)
	copy(r.pool.Doubles.Send.Reset(buf.Len()), buf.Bytes())

	if err := r.transport.Exchange(dir.Opposite(), &r.pool.Doubles); err != nil {
		return apperrors.Wrap(apperrors.CodeTransportFailure, "ghost refresh: collect forces exchange failed", err)
	}

	recvVals, err := wire.DecodeDoubles(bytes.NewReader(r.pool.Doubles.Recv.Bytes()), 3*r.sendSize[dir])
	if err != nil {
		return apperrors.Wrap(apperrors.CodeProtocolMismatch, "ghost refresh: decode forces", err)
	}

	cursor := 0
	for _, c := range r.dirCells[dir].Send {
		for _, slot := range r.cellSlots[c] {
			rec := r.store.Get(slot)
			rec.Force[0] += recvVals[cursor]
			rec.Force[1] += recvVals[cursor+1]
			rec.Force[2] += recvVals[cursor+2]
			cursor += 3
		}
	}
	return nil
}
