package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/mapcore/internal/config"
	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/metrics"
	"github.com/Iron-Ham/mapcore/internal/persistence"
	"github.com/Iron-Ham/mapcore/internal/persistence/store"
	"github.com/Iron-Ham/mapcore/internal/tui"
	"github.com/Iron-Ham/mapcore/internal/tui/styles"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Restore snapshot files into a live headless map as they change",
	Long: `Watch runs a headless map and restores every snapshot file written to
path (a directory or a single file). Without a path the file store directory
is watched.

With persistence.auto_restore the latest stored snapshot is restored first.
With metrics.enabled, Prometheus metrics are served on metrics.addr.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var watchDashboard bool

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVarP(&watchDashboard, "dashboard", "d", false, "show a live dashboard instead of a restore log")
}

// restoreReporter receives each restore outcome.
type restoreReporter func(path string, res persistence.HydrateResult)

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	target, err := watchTarget(cfg, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := startRuntime(ctx, cfg, "", false)
	if err != nil {
		return fmt.Errorf("failed to start map: %w", err)
	}
	defer func() { _ = rt.Close(context.Background()) }()

	if cfg.Metrics.Enabled {
		srv, err := serveMetrics(cfg, rt)
		if err != nil {
			return fmt.Errorf("failed to serve metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var program *tea.Program
	report := logReporter(cmd.OutOrStdout())
	if watchDashboard {
		program = tea.NewProgram(tui.New(target), tea.WithAltScreen(), tea.WithContext(ctx))
		unforward := tui.Forward(rt.m.Bus(), program.Send)
		defer unforward()
		report = func(path string, res persistence.HydrateResult) {
			program.Send(tui.RestoreMsg{Path: path, Result: res})
			program.Send(tui.StateOf(rt.m))
		}
	}

	// Restores come from the watcher goroutine and the initial restore.
	var mu sync.Mutex
	restore := func(ctx context.Context, path string, doc map[string]any) {
		mu.Lock()
		res := rt.restore(ctx, doc)
		mu.Unlock()
		report(path, res)
	}

	w, err := store.NewWatcher(target, restore,
		store.WithDebounce(cfg.Persistence.WatchDebounce()),
		store.WithWatchLogger(rt.logger),
		store.WithErrorHandler(func(path string, err error) {
			report(path, persistence.HydrateResult{Err: err})
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", target, err)
	}
	defer w.Stop()

	if program == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", styles.Title.Render("Watching"), target,
			styles.Muted.Render("(ctrl+c to stop)"))
	}

	w.Start(ctx)
	go func() {
		if cfg.Persistence.AutoRestore {
			if id, doc, err := latestDocument(ctx, cfg); err == nil {
				restore(ctx, id, doc)
			} else if !mcerrors.Is(err, mcerrors.ErrSnapshotNotFound) {
				rt.logger.Warn("failed to load latest snapshot", "error", err)
			}
		}
		if program != nil {
			program.Send(tui.StateOf(rt.m))
		}
	}()

	if program == nil {
		<-ctx.Done()
		return nil
	}
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// watchTarget returns the path to watch: the argument, or the file store
// directory.
func watchTarget(cfg *config.Config, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if cfg.Persistence.Driver != store.DriverFile {
		return "", fmt.Errorf("watching the %s store is not supported; pass a directory or file", cfg.Persistence.Driver)
	}
	dir := cfg.Persistence.ResolvePath()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create store directory: %w", err)
	}
	return dir, nil
}

func serveMetrics(cfg *config.Config, rt *runtime) (*metrics.Server, error) {
	reg, err := metrics.NewRegistry(rt.collector)
	if err != nil {
		return nil, err
	}
	ready := func() error {
		if !rt.m.IsReady() {
			return mcerrors.ErrNotReady
		}
		return nil
	}
	return metrics.Serve(cfg.Metrics.Addr, metrics.Handler(reg, ready), rt.logger)
}

func logReporter(w io.Writer) restoreReporter {
	var mu sync.Mutex
	return func(path string, res persistence.HydrateResult) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "%s %s\n", styles.Muted.Render(time.Now().Format("15:04:05")), path)
		printHydrateResult(w, res)
	}
}
