// Package migration implements particle ownership transfer: the six-sweep
// scan that moves owned particles whose folded position has left this
// rank's sub-box into the outgoing stream for the appropriate neighbor, and
// installs whatever the matching neighbor sends back as newly owned here.
package migration

import (
	"bytes"

	"github.com/openmd/haloexchange/internal/buffer"
	apperrors "github.com/openmd/haloexchange/pkg/errors"
	"github.com/openmd/haloexchange/internal/particle"
	"github.com/openmd/haloexchange/internal/topology"
	"github.com/openmd/haloexchange/internal/transport"
	"github.com/openmd/haloexchange/internal/wire"
	"github.com/openmd/haloexchange/pkg/utils"
)

// Migration drives one full round of particle ownership transfer across all
// six directions for a single rank.
type Migration struct {
	topo      *topology.Topology
	store     *particle.Store
	pool      *buffer.Pool
	transport *transport.Transport
	myLeft    [3]float64
	myRight   [3]float64
	folder    particle.Folder
	logger    utils.Logger
}

// New creates a Migration bound to the given rank's topology, particle
// store, buffer pool, and transport. myLeft/myRight are this rank's owned
// sub-box corners in the global box frame.
func New(topo *topology.Topology, store *particle.Store, pool *buffer.Pool, tr *transport.Transport, myLeft, myRight [3]float64, folder particle.Folder, logger utils.Logger) *Migration {
	if folder == nil {
		folder = particle.IdentityFolder{}
	}
	return &Migration{
		topo:      topo,
		store:     store,
		pool:      pool,
		transport: tr,
		myLeft:    myLeft,
		myRight:   myRight,
		folder:    folder,
		logger:    logger,
	}
}

// MyLeft returns the sub-box lower corner this Migration was configured
// with, so GhostBuilder can map positions into the same haloed cell
// lattice without a second copy of the corner being threaded through the
// Engine separately.
func (m *Migration) MyLeft() [3]float64 { return m.myLeft }

// Run performs one full migration round, sweeping directions 0 through 5 in
// order. It drops any resident ghost slots (so owned slots can be removed
// and appended freely; the halo must be rebuilt afterwards) and folds every
// owned particle into the box, then for each direction scans for particles that have crossed this rank's boundary on
// that direction's axis and side, exchanges them with the matching
// neighbor, and installs what comes back. It returns invariant violations
// found along the way as diagnostics rather than failing the round, since a
// single malformed particle should not abort an otherwise-healthy exchange.
func (m *Migration) Run() []*apperrors.AppError {
	var findings []*apperrors.AppError

	m.store.DropGhosts()
	for i := 0; i < m.store.NOwned; i++ {
		rec := m.store.Get(i)
		m.folder.Fold(&rec.Pos, &rec.Image)
	}

	for d := topology.Direction(0); d < 6; d++ {
		findings = append(findings, m.sweep(d)...)
		m.transport.Barrier()
	}

	return findings
}

// sweep performs the scan-exchange-install cycle for a single direction.
func (m *Migration) sweep(dir topology.Direction) []*apperrors.AppError {
	axis := dir.Axis()
	var findings []*apperrors.AppError

	var moving []particle.Record
	i := 0
	for i < m.store.NOwned {
		rec := m.store.Get(i)
		if !m.crosses(dir, rec.Pos[axis]) {
			i++
			continue
		}
		shifted := *rec
		shifted.Bonds = append([]int64(nil), rec.Bonds...)
		if b := m.topo.Boundary[dir]; b != 0 {
			shifted.Pos[axis] += b
		}
		moving = append(moving, shifted)
		if err := m.store.RemoveOwned(i); err != nil {
			findings = append(findings, apperrors.Wrap(apperrors.CodeInvariantViolation, "migration: remove owned during sweep", err))
		}
		// Do not advance i: RemoveOwned swapped the last owned slot into i.
	}

	header, particleBody, bondBody := m.encode(moving)

	if err := m.transport.Exchange(dir, header, particleBody, bondBody); err != nil {
		findings = append(findings, apperrors.Wrap(apperrors.CodeTransportFailure, "migration: exchange failed", err))
		return findings
	}

	incoming, decodeFindings := m.decode(header, particleBody, bondBody)
	findings = append(findings, decodeFindings...)

	for _, rec := range incoming {
		if v := m.validate(rec); v != nil {
			findings = append(findings, v)
		}
		if _, err := m.store.AddOwned(rec); err != nil {
			findings = append(findings, apperrors.Wrap(apperrors.CodeInvariantViolation, "migration: add incoming owned particle", err))
		}
	}

	return findings
}

// crosses reports whether coordinate c has left this rank's sub-box on the
// side direction dir names, using a half-open [myLeft, myRight) convention:
// a coordinate exactly at myRight belongs to the neighbor on the high side.
func (m *Migration) crosses(dir topology.Direction, c float64) bool {
	axis := dir.Axis()
	if dir.Sign() == 0 {
		return c < m.myLeft[axis]
	}
	return c >= m.myRight[axis]
}

// encode packs the outgoing particle and bond-int streams for one
// direction's exchange and returns ready-to-swap Descriptors pointing at
// this rank's own buffer pool.
func (m *Migration) encode(moving []particle.Record) (header, particleBody, bondBody *buffer.Descriptor) {
	wireRecs := make([]wire.ParticleRecord, len(moving))
	var bondInts []int64
	for i, rec := range moving {
		wireRecs[i] = wire.ParticleToWire(rec)
		bondInts = append(bondInts, rec.Bonds...)
	}

	var headerBuf, particleBuf, bondBuf bytes.Buffer
	_ = wire.EncodeParticleHeader(&headerBuf, wire.ParticleHeader{
		NParticles: int32(len(moving)),
		NBondInts:  int32(len(bondInts)),
	})
	_ = wire.EncodeParticleRecords(&particleBuf, wireRecs)
	_ = wire.EncodeBondInts(&bondBuf, bondInts)

	copy(m.pool.Particles.Send.Reset(particleBuf.Len()), particleBuf.Bytes())
	copy(m.pool.BondInts.Send.Reset(bondBuf.Len()), bondBuf.Bytes())

	headerDesc := &buffer.Descriptor{Send: buffer.NewBuffer(headerBuf.Len()), Recv: buffer.NewBuffer(headerBuf.Len())}
	copy(headerDesc.Send.Reset(headerBuf.Len()), headerBuf.Bytes())

	return headerDesc, &m.pool.Particles, &m.pool.BondInts
}

// decode unpacks the incoming particle and bond-int streams after an
// exchange, reassembling particle.Record values with their bond slices
// re-sliced from the flat incoming stream.
func (m *Migration) decode(header, particleBody, bondBody *buffer.Descriptor) ([]particle.Record, []*apperrors.AppError) {
	var findings []*apperrors.AppError

	h, err := wire.DecodeParticleHeader(bytes.NewReader(header.Recv.Bytes()))
	if err != nil {
		return nil, append(findings, apperrors.Wrap(apperrors.CodeProtocolMismatch, "migration: decode header", err))
	}

	recs, err := wire.DecodeParticleRecords(bytes.NewReader(particleBody.Recv.Bytes()), h.NParticles)
	if err != nil {
		return nil, append(findings, apperrors.Wrap(apperrors.CodeProtocolMismatch, "migration: decode particle records", err))
	}

	bonds, err := wire.DecodeBondInts(bytes.NewReader(bondBody.Recv.Bytes()), h.NBondInts)
	if err != nil {
		return nil, append(findings, apperrors.Wrap(apperrors.CodeProtocolMismatch, "migration: decode bond ints", err))
	}

	out := make([]particle.Record, len(recs))
	cursor := 0
	for i, wrec := range recs {
		n := int(wrec.NBonds)
		if n < 0 || cursor+n > len(bonds) {
			findings = append(findings, apperrors.New(apperrors.CodeInvariantViolation, "migration: particle bond count exceeds incoming bond stream"))
			out[i] = wire.ParticleFromWire(wrec, nil)
			continue
		}
		out[i] = wire.ParticleFromWire(wrec, bonds[cursor:cursor+n])
		cursor += n
	}
	return out, findings
}

// validate checks the invariants a migrated particle must satisfy: a
// non-negative identity and, on non-periodic axes, a position inside the
// global box [0, BoxLengths). A negative identity is returned as a
// violation; an out-of-box position is logged as a warning. Neither panics —
// the particle is still installed so downstream tooling can inspect it.
func (m *Migration) validate(rec particle.Record) *apperrors.AppError {
	if rec.Identity < 0 {
		return apperrors.New(apperrors.CodeInvariantViolation, "migration: negative particle identity")
	}
	for i := 0; i < 3; i++ {
		if (rec.Pos[i] < 0 || rec.Pos[i] >= m.topo.BoxLengths[i]) && !m.topo.Periodic[i] {
			m.logger.Warn("migration: particle identity=%d axis=%d pos=%v out of box", rec.Identity, i, rec.Pos[i])
		}
	}
	return nil
}
