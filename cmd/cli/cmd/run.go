package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openmd/haloexchange/internal/cellgrid"
	"github.com/openmd/haloexchange/internal/diagnostics"
	"github.com/openmd/haloexchange/internal/driver"
	"github.com/openmd/haloexchange/internal/engine"
	"github.com/openmd/haloexchange/internal/snapshot"
	"github.com/openmd/haloexchange/internal/storage"
	"github.com/openmd/haloexchange/internal/topology"
	"github.com/openmd/haloexchange/internal/transport"
	"github.com/openmd/haloexchange/pkg/compression"
	"github.com/openmd/haloexchange/pkg/config"
	apperrors "github.com/openmd/haloexchange/pkg/errors"
	"github.com/openmd/haloexchange/pkg/parallel"
	"github.com/openmd/haloexchange/pkg/writer"
)

var (
	runGridFlag      string
	runBoxFlag       string
	runPeriodicFlag  string
	runCellGridFlag  string
	runSteps         int
	runPollMs        int
	runRunID         string
	runSnapshotDir   string
	runSnapshotEvery int
	runDiagnosticsDB string
	runSummaryFile   string
)

// runCmd stands up one Engine per rank of a process grid, all sharing an
// in-process Network, and steps them concurrently through Driver.Run. It is
// a local stand-in for what would otherwise be one OS process per rank
// talking over a real transport.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a local multi-rank halo-exchange demo",
	Long: `run builds one Engine per rank of a process grid, wires them onto a
shared in-process Network, and steps every rank's Driver concurrently for a
configured number of steps. It is meant to exercise the full migration and
ghost-exchange protocol end to end without requiring a real multi-process
deployment.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runGridFlag, "grid", "2,1,1", "Process grid dimensions, comma-separated (e.g. 2,1,1)")
	runCmd.Flags().StringVar(&runBoxFlag, "box", "2,1,1", "Simulation box lengths, comma-separated")
	runCmd.Flags().StringVar(&runPeriodicFlag, "periodic", "false,false,false", "Per-axis periodicity, comma-separated booleans")
	runCmd.Flags().StringVar(&runCellGridFlag, "cell-grid", "2,2,2", "Per-rank cell subdivision, comma-separated")
	runCmd.Flags().IntVar(&runSteps, "steps", 100, "Number of exchange steps to run")
	runCmd.Flags().IntVar(&runPollMs, "poll-interval", 0, "Milliseconds to sleep between steps")
	runCmd.Flags().StringVar(&runRunID, "run-id", "local-run", "Identifier recorded against diagnostics and snapshots")
	runCmd.Flags().StringVar(&runSnapshotDir, "snapshot-dir", "", "Local directory for periodic snapshots (disabled if empty)")
	runCmd.Flags().IntVar(&runSnapshotEvery, "snapshot-every", 0, "Snapshot cadence in steps (0 disables even with --snapshot-dir set)")
	runCmd.Flags().StringVar(&runDiagnosticsDB, "diagnostics-db", "", "SQLite file to persist invariant-violation findings (disabled if empty)")
	runCmd.Flags().StringVar(&runSummaryFile, "summary-file", "", "Write a JSON run summary to this path (stdout only if empty)")
}

// runSummary is the JSON document written at the end of a run.
type runSummary struct {
	RunID       string        `json:"run_id"`
	Ranks       int           `json:"ranks"`
	GridDims    [3]int        `json:"grid_dims"`
	Steps       int           `json:"steps"`
	PerRank     []rankSummary `json:"per_rank"`
	FindingsLen int           `json:"findings_count"`
}

type rankSummary struct {
	Rank           int `json:"rank"`
	StepsCompleted int `json:"steps_completed"`
	OwnedParticles int `json:"owned_particles"`
	GhostParticles int `json:"ghost_particles"`
}

func runRun(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	gridDims, err := parseInt3(runGridFlag)
	if err != nil {
		return fmt.Errorf("--grid: %w", err)
	}
	boxLengths, err := parseFloat3(runBoxFlag)
	if err != nil {
		return fmt.Errorf("--box: %w", err)
	}
	periodic, err := parseBool3(runPeriodicFlag)
	if err != nil {
		return fmt.Errorf("--periodic: %w", err)
	}
	cellGrid, err := parseInt3(runCellGridFlag)
	if err != nil {
		return fmt.Errorf("--cell-grid: %w", err)
	}

	cfg := config.DriverConfig{Steps: runSteps, PollInterval: runPollMs, WorkerCount: 1}

	nRanks := gridDims[0] * gridDims[1] * gridDims[2]
	net := transport.NewNetwork(nRanks)

	recorder, closeDiag, err := buildRecorder(runDiagnosticsDB, runRunID, gridDims, runSteps)
	if err != nil {
		return err
	}
	if closeDiag != nil {
		defer closeDiag()
	}

	snapper, err := buildSnapshotter(runSnapshotDir)
	if err != nil {
		return err
	}

	engines := make([]*engine.Engine, nRanks)
	drivers := make([]*driver.Driver, nRanks)
	for rank := 0; rank < nRanks; rank++ {
		tp, err := topology.New(gridDims, rank, boxLengths, periodic)
		if err != nil {
			return fmt.Errorf("rank %d: topology: %w", rank, err)
		}
		myLeft, myRight := subBox(tp, gridDims, boxLengths)
		cellSize := [3]float64{
			(myRight[0] - myLeft[0]) / float64(cellGrid[0]),
			(myRight[1] - myLeft[1]) / float64(cellGrid[1]),
			(myRight[2] - myLeft[2]) / float64(cellGrid[2]),
		}
		grid := cellgrid.New(cellGrid, cellSize)

		eng := engine.Init(engine.Config{
			Topo:           tp,
			Grid:           grid,
			Net:            net,
			MyLeft:         myLeft,
			MyRight:        myRight,
			Logger:         log,
			StoreCapacity:  64,
			BufferCapacity: 4096,
		})
		engines[rank] = eng
		d := driver.New(eng, cfg, runRunID, rank, recorder, log)
		if snapper != nil && runSnapshotEvery > 0 {
			d = d.WithSnapshots(snapper, runSnapshotEvery)
		}
		drivers[rank] = d
	}

	ctx := context.Background()
	ranks := make([]int, nRanks)
	for i := range ranks {
		ranks[i] = i
	}
	allFindings := make([][]*apperrors.AppError, nRanks)

	_, firstErr := parallel.ForEach(ctx, ranks, parallel.DefaultPoolConfig().WithWorkers(nRanks), func(ctx context.Context, rank int) error {
		allFindings[rank] = drivers[rank].Run(ctx, nil)
		return nil
	})
	if firstErr != nil {
		return firstErr
	}

	summary := runSummary{RunID: runRunID, Ranks: nRanks, GridDims: gridDims, Steps: runSteps}
	for rank := 0; rank < nRanks; rank++ {
		summary.PerRank = append(summary.PerRank, rankSummary{
			Rank:           rank,
			StepsCompleted: drivers[rank].Stats().StepsCompleted,
			OwnedParticles: engines[rank].Store.NOwned,
			GhostParticles: engines[rank].Store.NGhosts,
		})
		summary.FindingsLen += len(allFindings[rank])
	}

	jw := writer.NewPrettyJSONWriter[runSummary]()
	if runSummaryFile != "" {
		if err := jw.WriteToFile(summary, runSummaryFile); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
		log.Info("wrote run summary to %s", runSummaryFile)
	} else {
		jw.Write(summary, cmdStdout{log})
	}
	return nil
}

// cmdStdout adapts a Logger to an io.Writer so the summary can be printed
// through the same logging pipeline the rest of the command uses.
type cmdStdout struct {
	log interface {
		Info(msg string, args ...interface{})
	}
}

func (w cmdStdout) Write(p []byte) (int, error) {
	w.log.Info("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// buildRecorder opens a diagnostics database and returns a FindingRecorder
// over it, or (nil, nil, nil) when dbPath is empty.
func buildRecorder(dbPath, runID string, gridDims [3]int, steps int) (driver.FindingRecorder, func(), error) {
	if dbPath == "" {
		return nil, nil, nil
	}
	db, err := diagnostics.NewGormDB(config.DatabaseConfig{Type: "sqlite", Database: dbPath})
	if err != nil {
		return nil, nil, fmt.Errorf("diagnostics: %w", err)
	}
	repo := diagnostics.NewGormRepository(db)
	if err := repo.StartRun(context.Background(), runID, gridDims, steps); err != nil {
		return nil, nil, fmt.Errorf("diagnostics: %w", err)
	}
	closeFn := func() {
		_ = repo.FinishRun(context.Background(), runID, steps)
	}
	return repo, closeFn, nil
}

// buildSnapshotter wires a snapshot.Archiver over local storage, or returns
// nil when dir is empty.
func buildSnapshotter(dir string) (driver.Snapshotter, error) {
	if dir == "" {
		return nil, nil
	}
	backend, err := storage.NewLocalStorage(dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot storage: %w", err)
	}
	compressor, err := compression.New(compression.TypeZstd, compression.LevelDefault)
	if err != nil {
		return nil, fmt.Errorf("snapshot compressor: %w", err)
	}
	return snapshot.New(backend, compressor), nil
}

// subBox computes this rank's [myLeft, myRight) sub-box by evenly dividing
// the simulation box along each axis by the process grid's extent there.
func subBox(tp *topology.Topology, gridDims [3]int, boxLengths [3]float64) (myLeft, myRight [3]float64) {
	pos := tp.PEPos
	for i := 0; i < 3; i++ {
		step := boxLengths[i] / float64(gridDims[i])
		myLeft[i] = step * float64(pos[i])
		myRight[i] = step * float64(pos[i]+1)
	}
	return myLeft, myRight
}

func parseInt3(s string) ([3]int, error) {
	var out [3]int
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("expected 3 comma-separated values, got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return out, fmt.Errorf("invalid integer %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseFloat3(s string) ([3]float64, error) {
	var out [3]float64
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("expected 3 comma-separated values, got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, fmt.Errorf("invalid float %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseBool3(s string) ([3]bool, error) {
	var out [3]bool
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("expected 3 comma-separated values, got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseBool(strings.TrimSpace(p))
		if err != nil {
			return out, fmt.Errorf("invalid bool %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}
