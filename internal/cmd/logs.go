package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/mapcore/internal/logging"
	"github.com/Iron-Ham/mapcore/internal/tui/styles"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the engine log file",
	Long: `Display and filter the JSON log written when logging.enabled is set.

Rotated files are read too, oldest first.

Examples:
  mapcore logs                       # Show last 50 lines
  mapcore logs -n 100                # Show last 100 lines
  mapcore logs -f                    # Follow new lines
  mapcore logs --level warn          # Only warnings and errors
  mapcore logs --since 5m            # Last 5 minutes
  mapcore logs --layer roads         # One layer's lines
  mapcore logs --grep "onMapReady"   # Regex over message and attributes
  mapcore logs --export out.csv --format csv`,
	RunE: runLogs,
}

var (
	logsTail      int
	logsFollow    bool
	logsLevel     string
	logsSince     string
	logsGrep      string
	logsComponent string
	logsLayer     string
	logsPlugin    string
	logsExport    string
	logsFormat    string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "number of lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow new lines")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "minimum level (debug, info, warn, error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "only lines newer than this duration (e.g. 5m, 1h)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "regex matched against message and attributes")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "only lines from this component")
	logsCmd.Flags().StringVar(&logsLayer, "layer", "", "only lines about this layer id")
	logsCmd.Flags().StringVar(&logsPlugin, "plugin", "", "only lines about this plugin id")
	logsCmd.Flags().StringVar(&logsExport, "export", "", "write matching lines to this file instead of printing")
	logsCmd.Flags().StringVar(&logsFormat, "format", logging.ExportText, "export format (json, text, csv)")
}

// logsFilter builds the filter from the command flags.
func logsFilter(now time.Time) (logging.Filter, error) {
	f := logging.Filter{
		Component: logsComponent,
		LayerID:   logsLayer,
		PluginID:  logsPlugin,
	}
	if logsLevel != "" {
		f.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return f, fmt.Errorf("invalid duration format: %w", err)
		}
		f.Since = now.Add(-d)
	}
	if logsGrep != "" {
		re, err := regexp.Compile(logsGrep)
		if err != nil {
			return f, fmt.Errorf("invalid grep pattern: %w", err)
		}
		f.Pattern = re
	}
	return f, nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	filter, err := logsFilter(time.Now())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	dir := cfg.Logging.ResolveDir()
	logPath := filepath.Join(dir, logging.LogFileName)

	if logsFollow {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return followLogs(ctx, out, logPath, filter)
	}

	entries, err := logging.ReadLogs(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(out, "No logs found in %s\n", dir)
			if !cfg.Logging.Enabled {
				fmt.Fprintln(out, "Enable them with: mapcore config set logging.enabled true")
			}
			return nil
		}
		return err
	}
	entries = logging.FilterEntries(entries, filter)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	if logsExport != "" {
		return exportLogs(out, logsExport, entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(out, formatLogEntry(e))
	}
	return nil
}

func exportLogs(out io.Writer, path string, entries []logging.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := logging.Export(f, entries, logsFormat); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Exported %d entries to %s\n", len(entries), path)
	return nil
}

func levelStyle(level string) lipgloss.Style {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return styles.Muted
	case logging.LevelInfo:
		return lipgloss.NewStyle().Foreground(styles.BlueColor)
	case logging.LevelWarn:
		return styles.Warning
	case logging.LevelError:
		return styles.Error
	default:
		return styles.Text
	}
}

// formatLogEntry renders one entry for the terminal.
func formatLogEntry(e logging.Entry) string {
	var sb strings.Builder
	sb.WriteString(styles.Muted.Render("[" + e.Time.Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	sb.WriteString(levelStyle(e.Level).Render("[" + strings.ToUpper(e.Level) + "]"))
	sb.WriteString(" ")
	sb.WriteString(e.Message)
	if c := e.Context(); c != "" {
		sb.WriteString(" ")
		sb.WriteString(styles.Secondary.Render(c))
	}
	if a := e.AttrString(); a != "" {
		sb.WriteString(" ")
		sb.WriteString(styles.Muted.Render(a))
	}
	return sb.String()
}

// followLogs prints lines appended to path until ctx is done, reopening the
// file after rotation.
func followLogs(ctx context.Context, out io.Writer, path string, filter logging.Filter) error {
	fmt.Fprintf(out, "Following %s... (ctrl+c to stop)\n\n", path)

	var (
		file   *os.File
		reader *bufio.Reader
		offset int64
		first  = true
	)
	defer func() {
		if file != nil {
			_ = file.Close()
		}
	}()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if file == nil {
			f, err := os.Open(path)
			if err == nil {
				// Skip what was there before we started; read a rotated or
				// newly created file from the beginning.
				offset = 0
				if first {
					offset, _ = f.Seek(0, io.SeekEnd)
				}
				file, reader = f, bufio.NewReader(f)
			}
		}
		if file != nil {
			for {
				line, err := reader.ReadString('\n')
				if err != nil {
					// Partial line: rewind so it is read whole next time.
					_, _ = file.Seek(offset, io.SeekStart)
					reader.Reset(file)
					break
				}
				offset += int64(len(line))
				e, perr := logging.ParseEntry(strings.TrimSpace(line))
				if perr != nil {
					continue
				}
				if filter.Match(e) {
					fmt.Fprintln(out, formatLogEntry(e))
				}
			}
			if info, err := os.Stat(path); err != nil || info.Size() < offset {
				_ = file.Close()
				file = nil
			}
		}

		first = false

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
