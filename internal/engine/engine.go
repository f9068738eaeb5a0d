// Package engine composes the topology, cell grid, particle store, buffer
// pool, and transport into the single value object a driver calls
// operations on, replacing the global mutable module state the original
// implementation relied on.
package engine

import (
	"github.com/openmd/haloexchange/internal/buffer"
	"github.com/openmd/haloexchange/internal/cellgrid"
	"github.com/openmd/haloexchange/internal/ghost"
	"github.com/openmd/haloexchange/internal/migration"
	"github.com/openmd/haloexchange/internal/particle"
	"github.com/openmd/haloexchange/internal/topology"
	"github.com/openmd/haloexchange/internal/transport"
	apperrors "github.com/openmd/haloexchange/pkg/errors"
	"github.com/openmd/haloexchange/pkg/utils"
)

// Engine is one rank's handle onto the full halo-exchange protocol: one
// value owns the topology, the cell grid, the particle store, the typed
// buffer pool, and the transport, and every operation below is a method on
// it rather than a free function over package-level state.
type Engine struct {
	Topo  *topology.Topology
	Grid  *cellgrid.Grid
	Store *particle.Store
	Pool  *buffer.Pool

	transport *transport.Transport
	migration *migration.Migration
	builder   *ghost.Builder
	refresh   *ghost.Refresh
	logger    utils.Logger
}

// Config holds everything Init needs to stand up one rank's Engine.
type Config struct {
	Topo           *topology.Topology
	Grid           *cellgrid.Grid
	Net            *transport.Network
	MyLeft         [3]float64
	MyRight        [3]float64
	Folder         particle.Folder
	Logger         utils.Logger
	StoreCapacity  int
	BufferCapacity int
}

// Init performs one-time setup: builds the transport handle, an empty
// particle store, and the buffer pool, and wires the migration driver.
// Ghost construction is wired afresh on every ExchangeGhosts call, since GhostRefresh needs a completed Builder to reuse its cell geometry.
func Init(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = &utils.NullLogger{}
	}

	store := particle.NewStore(cfg.StoreCapacity)
	pool := buffer.NewPool(cfg.BufferCapacity)
	tr := transport.New(cfg.Net, cfg.Topo)

	e := &Engine{
		Topo:      cfg.Topo,
		Grid:      cfg.Grid,
		Store:     store,
		Pool:      pool,
		transport: tr,
		logger:    logger,
	}
	e.migration = migration.New(cfg.Topo, store, pool, tr, cfg.MyLeft, cfg.MyRight, cfg.Folder, logger)
	return e
}

// Exit tears down an Engine. There is no external resource to release (all
// buffers are rank-private Go memory); it exists so callers have a single,
// symmetric lifecycle hook to call in a defer.
func (e *Engine) Exit() {}

// ExchangeParticles performs one full migration round across all six
// directions.
func (e *Engine) ExchangeParticles() []*apperrors.AppError {
	return e.migration.Run()
}

// ExchangeGhosts rebuilds the halo from scratch and wires a fresh
// GhostRefresh over the result.
func (e *Engine) ExchangeGhosts() []*apperrors.AppError {
	e.builder = ghost.New(e.Topo, e.Grid, e.Store, e.Pool, e.transport, e.migrationMyLeft())
	findings := e.builder.Build()
	e.refresh = ghost.NewRefresh(e.Topo, e.Store, e.Pool, e.transport, e.builder)
	return findings
}

// UpdateGhostPositions pushes every owned particle's current position out
// to its ghost copies. It requires an ExchangeGhosts call after the most
// recent ExchangeParticles, since migration drops the ghost slots.
func (e *Engine) UpdateGhostPositions() []*apperrors.AppError {
	if e.refresh == nil {
		return []*apperrors.AppError{apperrors.New(apperrors.CodeInvariantViolation, "engine: UpdateGhostPositions called before ExchangeGhosts")}
	}
	return e.refresh.PushPositions()
}

// CollectGhostForces folds every ghost's accumulated force back onto its
// owner. It requires an ExchangeGhosts call after the most recent
// ExchangeParticles, since migration drops the ghost slots.
func (e *Engine) CollectGhostForces() []*apperrors.AppError {
	if e.refresh == nil {
		return []*apperrors.AppError{apperrors.New(apperrors.CodeInvariantViolation, "engine: CollectGhostForces called before ExchangeGhosts")}
	}
	return e.refresh.CollectForces()
}

// GhostStats returns the per-direction ghost send/recv counts from the most
// recent ExchangeGhosts call, or a zero value if ExchangeGhosts has not run
// yet in this Engine's lifetime.
func (e *Engine) GhostStats() [6]ghost.DirectionStats {
	if e.builder == nil {
		return [6]ghost.DirectionStats{}
	}
	return e.builder.Stats()
}

// migrationMyLeft recovers the sub-box lower corner the migration driver
// was configured with, since GhostBuilder needs the same corner to map
// positions into the haloed cell lattice.
func (e *Engine) migrationMyLeft() [3]float64 {
	return e.migration.MyLeft()
}
