package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openmd/haloexchange/internal/diagnostics"
	"github.com/openmd/haloexchange/pkg/config"
)

var (
	servePort          int
	serveDiagnosticsDB string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a status and health page over the diagnostics database",
	Long: `serve starts a lightweight HTTP server exposing the status of
recorded halo-exchange runs: a health check, a per-run progress summary,
and the invariant-violation findings recorded against it. It reads the
same diagnostics database a "run" invocation writes to with
--diagnostics-db.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	binName := BinName()
	serveCmd.Example = `  # Serve status for runs recorded in ./diagnostics.db
  ` + binName + ` serve --diagnostics-db ./diagnostics.db -p 8080`

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port for the status server")
	serveCmd.Flags().StringVar(&serveDiagnosticsDB, "diagnostics-db", "./diagnostics.db", "SQLite diagnostics database to serve status from")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	db, err := diagnostics.NewGormDB(config.DatabaseConfig{Type: "sqlite", Database: serveDiagnosticsDB})
	if err != nil {
		return fmt.Errorf("diagnostics: %w", err)
	}
	repo := diagnostics.NewGormRepository(db)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/runs/", handleRunStatus(repo))

	server := &http.Server{Addr: fmt.Sprintf(":%d", servePort), Handler: mux}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down status server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	log.Info("status server listening on http://localhost:%d (diagnostics db: %s)", servePort, serveDiagnosticsDB)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// runStatusPage is the JSON document served at /runs/{runID}/status.
type runStatusPage struct {
	Run        *diagnostics.ExchangeRun              `json:"run"`
	Violations []diagnostics.InvariantViolationRecord `json:"violations"`
}

// handleRunStatus serves GET /runs/{runID}/status. The path is parsed by
// hand rather than via a router dependency, matching the teacher's own
// preference for the standard library over a web framework for this kind
// of single-purpose status endpoint.
func handleRunStatus(repo diagnostics.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, ok := parseRunID(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}

		ctx := r.Context()
		run, err := repo.RunStatus(ctx, runID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		violations, err := repo.ViolationsForRun(ctx, runID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(runStatusPage{Run: run, Violations: violations})
	}
}

// parseRunID extracts the run id from a "/runs/{runID}/status" path.
func parseRunID(path string) (string, bool) {
	const prefix = "/runs/"
	const suffix = "/status"
	if len(path) <= len(prefix)+len(suffix) || path[:len(prefix)] != prefix {
		return "", false
	}
	rest := path[len(prefix):]
	if len(rest) <= len(suffix) || rest[len(rest)-len(suffix):] != suffix {
		return "", false
	}
	runID := rest[:len(rest)-len(suffix)]
	if runID == "" {
		return "", false
	}
	return runID, true
}
