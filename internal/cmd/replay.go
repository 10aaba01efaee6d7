package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/mapcore/internal/event"
	"github.com/Iron-Ham/mapcore/internal/tui"
	"github.com/Iron-Ham/mapcore/internal/tui/styles"
)

var replayCmd = &cobra.Command{
	Use:   "replay [file|id]",
	Short: "Restore a snapshot into a headless map and report the result",
	Long: `Replay builds a headless map from the configuration, restores the snapshot
into it and prints the resulting layer stack, plugin state and the events
the engine published.

Native layers are recreated from their persisted type so a snapshot can be
replayed without the application that declared them. Without an argument the
latest stored snapshot is replayed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

var (
	replayHistory bool
	replayPattern string
	replayErrors  bool
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().BoolVar(&replayHistory, "history", false, "print the events published during the replay")
	replayCmd.Flags().StringVar(&replayPattern, "pattern", "", "only print events whose type matches this glob (e.g. \"layer.*\")")
	replayCmd.Flags().BoolVar(&replayErrors, "errors-only", false, "only print events that had handler errors")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var doc map[string]any
	name := ""
	if len(args) == 1 {
		name = args[0]
		doc, err = loadDocument(ctx, cfg, name)
	} else {
		name, doc, err = latestDocument(ctx, cfg)
	}
	if err != nil {
		return err
	}

	initial, _ := doc["basemap"].(string)
	rt, err := startRuntime(ctx, cfg, initial, replayHistory)
	if err != nil {
		return fmt.Errorf("failed to start map: %w", err)
	}
	defer func() { _ = rt.Close(ctx) }()

	res := rt.restore(ctx, doc)

	fmt.Fprintln(out, styles.Title.Render("Replay")+" "+styles.Subtitle.Render(name))
	printHydrateResult(out, res)
	if !res.Success {
		return res.Err
	}

	state := tui.StateOf(rt.m)
	fmt.Fprintln(out)
	fmt.Fprintln(out, styles.Label.Render("state")+styles.StateBadge(state.State))
	fmt.Fprintln(out, styles.Label.Render("basemap")+state.Basemap)
	vp := state.Viewport
	fmt.Fprintf(out, "%s[%.5f, %.5f] zoom %.2f\n", styles.Label.Render("camera"), vp.Center[0], vp.Center[1], vp.Zoom)
	if len(state.Layers) > 0 {
		fmt.Fprintln(out, tui.LayerTable(state.Layers))
	}
	if len(state.Plugins) > 0 {
		fmt.Fprintln(out, tui.PluginTable(state.Plugins))
	}
	if order := rt.renderer.LayerOrder(); len(order) > 0 {
		fmt.Fprintln(out, styles.Label.Render("renderer")+strings.Join(order, " < "))
	}

	fmt.Fprintln(out)
	printStats(out, rt.collector.Stats())

	if replayHistory {
		entries, err := rt.m.Bus().History(event.HistoryFilter{
			Pattern:    replayPattern,
			ErrorsOnly: replayErrors,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		t := tui.NewTable("TIME", "EVENT", "HANDLERS", "ERRORS")
		for _, e := range entries {
			t.Row(e.Time.Format("15:04:05.000"), e.Type, fmt.Sprint(e.HandlerCount), fmt.Sprint(len(e.Errors)))
		}
		fmt.Fprintln(out, t.String())
	}
	return nil
}
