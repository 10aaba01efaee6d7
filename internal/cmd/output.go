package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Iron-Ham/mapcore/internal/metrics"
	"github.com/Iron-Ham/mapcore/internal/persistence"
	"github.com/Iron-Ham/mapcore/internal/persistence/store"
	"github.com/Iron-Ham/mapcore/internal/tui"
	"github.com/Iron-Ham/mapcore/internal/tui/styles"
)

func printReport(w io.Writer, name string, r persistence.Report) {
	status := styles.Check(r.Valid()) + " " + name
	if r.Valid() {
		status += styles.Muted.Render(fmt.Sprintf(" (v%d)", r.Version))
	}
	fmt.Fprintln(w, status)
	for _, e := range r.Errors {
		fmt.Fprintln(w, "  "+styles.Error.Render("error: ")+e)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintln(w, "  "+styles.Warning.Render("warning: ")+warn)
	}
	if r.Valid() && r.Version < persistence.CurrentVersion {
		fmt.Fprintf(w, "  %s\n", styles.Muted.Render(fmt.Sprintf("migration available: v%d → v%d", r.Version, persistence.CurrentVersion)))
	}
}

func printSnapshot(w io.Writer, s *persistence.Snapshot) {
	fmt.Fprintln(w, styles.Title.Render("Snapshot"))
	fmt.Fprintln(w, styles.Label.Render("version")+strconv.Itoa(s.Version))
	if s.Timestamp > 0 {
		fmt.Fprintln(w, styles.Label.Render("captured")+time.UnixMilli(s.Timestamp).UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(w, styles.Label.Render("basemap")+s.Basemap)
	vp := s.Viewport
	fmt.Fprintf(w, "%s[%.5f, %.5f] zoom %.2f bearing %.0f pitch %.0f\n",
		styles.Label.Render("viewport"), vp.Center[0], vp.Center[1], vp.Zoom, vp.Bearing, vp.Pitch)
	if len(s.Custom) > 0 {
		fmt.Fprintln(w, styles.Label.Render("custom")+fmt.Sprintf("%d keys", len(s.Custom)))
	}

	if len(s.Layers) > 0 {
		fmt.Fprintln(w)
		t := tui.NewTable("#", "ID", "TYPE", "CATEGORY", "VISIBLE", "OPACITY")
		for _, l := range s.Layers {
			t.Row(strconv.Itoa(l.Order), l.ID, l.Type, string(l.Category),
				strconv.FormatBool(l.Visible), fmt.Sprintf("%.2f", l.Opacity))
		}
		fmt.Fprintln(w, t.String())
	}
	if len(s.Plugins) > 0 {
		fmt.Fprintln(w)
		t := tui.NewTable("ID", "VERSION", "SCHEMA", "STATE KEYS")
		for _, p := range s.Plugins {
			t.Row(p.ID, p.Version, strconv.Itoa(p.SchemaVersion), strconv.Itoa(len(p.State)))
		}
		fmt.Fprintln(w, t.String())
	}
}

func printEntries(w io.Writer, entries []store.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("No snapshots stored."))
		return
	}
	t := tui.NewTable("ID", "VERSION", "BASEMAP", "CREATED", "LAYERS", "PLUGINS")
	for _, e := range entries {
		created := ""
		if !e.CreatedAt.IsZero() {
			created = e.CreatedAt.Local().Format("2006-01-02 15:04:05")
		}
		t.Row(e.ID, strconv.Itoa(e.Version), e.Basemap, created,
			strconv.Itoa(e.Layers), strconv.Itoa(e.Plugins))
	}
	fmt.Fprintln(w, t.String())
}

func printHydrateResult(w io.Writer, res persistence.HydrateResult) {
	if !res.Success {
		fmt.Fprintln(w, styles.Check(false)+" "+styles.Error.Render(fmt.Sprintf("restore rejected: %v", res.Err)))
		for _, e := range res.Report.Errors {
			fmt.Fprintln(w, "  "+styles.Error.Render("error: ")+e)
		}
		return
	}
	line := styles.Check(true) + " restored"
	if res.Report.Migrated {
		line += styles.Muted.Render(fmt.Sprintf(" (migrated v%d → v%d)", res.Report.SourceVersion, res.Report.Version))
	}
	fmt.Fprintln(w, line)
	for _, e := range res.LayerErrors {
		fmt.Fprintln(w, "  "+styles.Warning.Render("layer ")+e.Error())
	}
	for _, e := range res.PluginErrors {
		fmt.Fprintln(w, "  "+styles.Warning.Render("plugin ")+e.Error())
	}
	for _, warn := range res.Warnings {
		fmt.Fprintln(w, "  "+styles.Warning.Render("warning: ")+warn)
	}
}

func printStats(w io.Writer, s metrics.Stats) {
	fmt.Fprintln(w, styles.Title.Render("Activity"))
	fmt.Fprintf(w, "%s%.0f\n", styles.Label.Render("events"), s.Events)
	fmt.Fprintf(w, "%s%.0f (%.0f failed)\n", styles.Label.Render("styles"), s.StyleLoads, s.StyleFailed)
	fmt.Fprintf(w, "%s%.0f map, %.0f layer, %.0f plugin\n", styles.Label.Render("errors"), s.Errors, s.LayerErrors, s.PluginErrors)
}
