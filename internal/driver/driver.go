// Package driver provides the periodic stepping loop that drives one rank's
// Engine through repeated exchange rounds: Migration once per step, a fresh
// GhostBuilder after each migration round, and a GhostRefresh
// push/collect pair bracketing each caller-supplied force evaluation. The
// integrator itself (advancing positions from forces) is out of scope here,
// same as it is for the Engine it drives; callers supply it as a callback.
package driver

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openmd/haloexchange/internal/engine"
	"github.com/openmd/haloexchange/internal/particle"
	"github.com/openmd/haloexchange/pkg/config"
	apperrors "github.com/openmd/haloexchange/pkg/errors"
	"github.com/openmd/haloexchange/pkg/utils"
)

var tracer = otel.Tracer("haloexchange/driver")

// StepFunc is the caller-supplied force/integration hook invoked once per
// step, between GhostRefresh's position push and its force collect. It
// receives the step index so callers can drive time-dependent forces or
// periodic rebalancing.
type StepFunc func(step int) error

// FindingRecorder persists the diagnostic findings a step produces. Driver
// treats a nil Recorder as "don't persist" rather than an error, so it can
// run standalone in tests without a diagnostics backend wired in.
type FindingRecorder interface {
	RecordFindings(ctx context.Context, runID string, rank, step int, findings []*apperrors.AppError) error
}

// Snapshotter checkpoints a rank's owned particles. A nil Snapshotter
// disables checkpointing; satisfied by *snapshot.Archiver.
type Snapshotter interface {
	Save(ctx context.Context, runID string, rank, step int, store *particle.Store) error
}

// Driver repeatedly steps one rank's Engine according to a DriverConfig: it
// runs Migration and then GhostBuilder, then brackets the
// caller's force/integration callback with GhostRefresh's push and collect.
type Driver struct {
	eng    *engine.Engine
	cfg    config.DriverConfig
	runID  string
	rank   int
	logger utils.Logger

	recorder    FindingRecorder
	snapshotter Snapshotter
	snapEvery   int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	stats   Stats
}

// Stats reports a Driver's progress, mirroring the shape of the teacher's
// service/scheduler stats snapshots.
type Stats struct {
	StepsCompleted int
	Running        bool
	LastError      string
}

// New builds a Driver over an already-initialized Engine. recorder may be
// nil to skip diagnostics persistence.
func New(eng *engine.Engine, cfg config.DriverConfig, runID string, rank int, recorder FindingRecorder, logger utils.Logger) *Driver {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	return &Driver{
		eng:      eng,
		cfg:      cfg,
		runID:    runID,
		rank:     rank,
		logger:   logger,
		recorder: recorder,
	}
}

// WithSnapshots enables periodic checkpointing: every interval steps (and
// after the final step), the rank's owned particles are saved through snap.
// interval <= 0 disables checkpointing again.
func (d *Driver) WithSnapshots(snap Snapshotter, interval int) *Driver {
	d.snapshotter = snap
	d.snapEvery = interval
	return d
}

// maybeSnapshot saves a checkpoint when step lands on the configured
// cadence or is the final step of the run.
func (d *Driver) maybeSnapshot(ctx context.Context, step int) {
	if d.snapshotter == nil || d.snapEvery <= 0 {
		return
	}
	if step%d.snapEvery != 0 && step != d.cfg.Steps {
		return
	}
	if err := d.snapshotter.Save(ctx, d.runID, d.rank, step, d.eng.Store); err != nil {
		d.logger.Error("rank %d step %d: snapshot failed: %v", d.rank, step, err)
	}
}

// Run executes cfg.Steps steps synchronously, building ghosts once up front
// and rebuilding them after every migration round (migration drops the
// previous round's ghost slots before it moves any particle).
// It returns every finding accumulated across the whole run; a
// TransportFailure finding aborts the run immediately, matching the fatal
// classification in the error-handling design.
func (d *Driver) Run(ctx context.Context, step StepFunc) []*apperrors.AppError {
	var all []*apperrors.AppError

	if findings := d.spanExchangeGhosts(ctx, 0); len(findings) > 0 {
		all = append(all, findings...)
		d.record(ctx, 0, findings)
		if fatal(findings) {
			return all
		}
	}
	d.logGhostStats(0)

	for i := 0; i < d.cfg.Steps; i++ {
		select {
		case <-ctx.Done():
			return all
		default:
		}

		stepFindings := d.runStep(ctx, i, step)
		all = append(all, stepFindings...)
		d.bumpStats(i + 1)
		if fatal(stepFindings) {
			return all
		}

		if d.cfg.PollInterval > 0 {
			select {
			case <-ctx.Done():
				return all
			case <-time.After(time.Duration(d.cfg.PollInterval) * time.Millisecond):
			}
		}
	}
	return all
}

// runStep performs one step's exchange round: migrate, rebuild the halo,
// push positions, run the caller's callback, and collect
// forces back onto owners.
func (d *Driver) runStep(ctx context.Context, i int, step StepFunc) []*apperrors.AppError {
	var findings []*apperrors.AppError

	migrated := d.spanExchangeParticles(ctx, i+1)
	findings = append(findings, migrated...)
	if fatal(migrated) {
		d.record(ctx, i+1, findings)
		return findings
	}
	rebuilt := d.spanExchangeGhosts(ctx, i+1)
	findings = append(findings, rebuilt...)
	if fatal(rebuilt) {
		d.record(ctx, i+1, findings)
		return findings
	}
	d.logGhostStats(i + 1)

	pushed := d.spanUpdateGhostPositions(ctx, i+1)
	findings = append(findings, pushed...)
	if fatal(pushed) {
		d.record(ctx, i+1, findings)
		return findings
	}

	if step != nil {
		if err := step(i); err != nil {
			findings = append(findings, apperrors.Wrap(apperrors.CodeDiagnosticsError, "driver: step callback", err))
		}
	}

	collected := d.spanCollectGhostForces(ctx, i+1)
	findings = append(findings, collected...)

	d.record(ctx, i+1, findings)
	d.maybeSnapshot(ctx, i+1)
	return findings
}

// spanAttrs are the rank/step attributes every exchange span carries, so a
// trace backend can group and filter spans the same way the log lines do.
func (d *Driver) spanAttrs(step int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("rank", d.rank),
		attribute.Int("step", step),
	}
}

func (d *Driver) spanExchangeParticles(ctx context.Context, step int) []*apperrors.AppError {
	_, span := tracer.Start(ctx, "migration.exchange_particles", trace.WithAttributes(d.spanAttrs(step)...))
	defer span.End()
	return d.eng.ExchangeParticles()
}

func (d *Driver) spanExchangeGhosts(ctx context.Context, step int) []*apperrors.AppError {
	_, span := tracer.Start(ctx, "ghost.build", trace.WithAttributes(d.spanAttrs(step)...))
	defer span.End()
	return d.eng.ExchangeGhosts()
}

func (d *Driver) spanUpdateGhostPositions(ctx context.Context, step int) []*apperrors.AppError {
	_, span := tracer.Start(ctx, "ghost.push_positions", trace.WithAttributes(d.spanAttrs(step)...))
	defer span.End()
	return d.eng.UpdateGhostPositions()
}

func (d *Driver) spanCollectGhostForces(ctx context.Context, step int) []*apperrors.AppError {
	_, span := tracer.Start(ctx, "ghost.collect_forces", trace.WithAttributes(d.spanAttrs(step)...))
	defer span.End()
	return d.eng.CollectGhostForces()
}

// logGhostStats reports the per-direction ghost send/recv counts from the
// halo rebuild that just completed, the same n_send_ghosts/n_recv_ghosts
// bookkeeping the original implementation logged per exchange, generalized
// here to all six directions rather than just the aggregate GhostRefresh
// keeps for its own push/collect bookkeeping.
func (d *Driver) logGhostStats(step int) {
	stats := d.eng.GhostStats()
	for dir, s := range stats {
		if s.Send == 0 && s.Recv == 0 {
			continue
		}
		d.logger.Debug("rank %d step %d: ghost dir=%d send=%d recv=%d", d.rank, step, dir, s.Send, s.Recv)
	}
}

// fatal reports whether any finding in the slice is a TransportFailure,
// the one code the error-handling design classifies as fatal to the run.
func fatal(findings []*apperrors.AppError) bool {
	for _, f := range findings {
		if f != nil && f.Code == apperrors.CodeTransportFailure {
			return true
		}
	}
	return false
}

// record persists findings through the configured Recorder, if any, and
// logs a warning on every finding regardless so a standalone run without a
// diagnostics backend still surfaces problems.
func (d *Driver) record(ctx context.Context, step int, findings []*apperrors.AppError) {
	for _, f := range findings {
		if f == nil {
			continue
		}
		d.logger.Warn("rank %d step %d: %s", d.rank, step, f.Error())
	}
	if d.recorder == nil || len(findings) == 0 {
		return
	}
	if err := d.recorder.RecordFindings(ctx, d.runID, d.rank, step, findings); err != nil {
		d.logger.Error("rank %d step %d: failed to record findings: %v", d.rank, step, err)
	}
}

func (d *Driver) bumpStats(steps int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.StepsCompleted = steps
}

// Stats returns the Driver's current progress snapshot.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Start launches Run in a background goroutine, matching the teacher's
// start/stop lifecycle for long-running components. Stop cancels the
// context Run is executing under and waits for it to return.
func (d *Driver) Start(ctx context.Context, step StepFunc) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.stats.Running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(d.doneCh)
		defer cancel()
		findings := d.Run(runCtx, step)
		d.mu.Lock()
		d.running = false
		d.stats.Running = false
		if fatal(findings) {
			for _, f := range findings {
				if f != nil && f.Code == apperrors.CodeTransportFailure {
					d.stats.LastError = f.Error()
				}
			}
		}
		d.mu.Unlock()
	}()

	go func() {
		<-d.stopCh
		cancel()
	}()
}

// Stop signals a Start-launched run to cancel and waits for it to exit.
func (d *Driver) Stop() {
	d.mu.Lock()
	stopCh := d.stopCh
	doneCh := d.doneCh
	d.mu.Unlock()
	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	if doneCh != nil {
		<-doneCh
	}
}
