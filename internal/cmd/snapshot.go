package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/mapcore/internal/config"
	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/persistence"
	"github.com/Iron-Ham/mapcore/internal/persistence/store"
	"github.com/Iron-Ham/mapcore/internal/tui/styles"
)

var snapshotCmd = &cobra.Command{
	Use:     "snapshot",
	Aliases: []string{"snap"},
	Short:   "Validate, migrate and store map state snapshots",
	Long: `Work with map state snapshots.

A snapshot argument is a path to a JSON or YAML file. Commands that read
snapshots also accept the id of a snapshot in the configured store.`,
}

var snapshotValidateCmd = &cobra.Command{
	Use:   "validate <file|id>...",
	Short: "Check snapshots against the schema",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSnapshotValidate,
}

var snapshotMigrateCmd = &cobra.Command{
	Use:   "migrate <file>",
	Short: "Rewrite a snapshot file at the current schema version",
	Long: `Migrate a snapshot file to the current schema version.

The file is rewritten in place unless --output is given. The output format
follows the output file's extension.`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshotMigrate,
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show [file|id]",
	Short: "Show a snapshot (default: the latest stored)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSnapshotShow,
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save <file>",
	Short: "Copy a snapshot file into the store",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotSave,
}

var snapshotListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored snapshots, oldest first",
	Args:    cobra.NoArgs,
	RunE:    runSnapshotList,
}

var snapshotDeleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Aliases: []string{"rm"},
	Short:   "Delete stored snapshots",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runSnapshotDelete,
}

var migrateOutput string

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotValidateCmd)
	snapshotCmd.AddCommand(snapshotMigrateCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
	snapshotCmd.AddCommand(snapshotSaveCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)

	snapshotMigrateCmd.Flags().StringVarP(&migrateOutput, "output", "o", "", "write the migrated snapshot here instead of in place")
}

// loadDocument reads arg as a snapshot file, or as a store id when no such
// file exists.
func loadDocument(ctx context.Context, cfg *config.Config, arg string) (map[string]any, error) {
	if _, err := os.Stat(arg); err == nil {
		return store.ReadFile(arg)
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Load(ctx, arg)
}

// latestDocument loads the newest stored snapshot.
func latestDocument(ctx context.Context, cfg *config.Config) (string, map[string]any, error) {
	st, err := openStore(cfg)
	if err != nil {
		return "", nil, err
	}
	defer st.Close()

	entry, err := store.Latest(ctx, st)
	if err != nil {
		return "", nil, err
	}
	doc, err := st.Load(ctx, entry.ID)
	return entry.ID, doc, err
}

func runSnapshotValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	invalid := 0
	for _, arg := range args {
		doc, err := loadDocument(cmd.Context(), cfg, arg)
		if err != nil {
			invalid++
			fmt.Fprintln(out, styles.Check(false)+" "+arg+": "+styles.Error.Render(err.Error()))
			continue
		}
		report := persistence.Validate(doc)
		if !report.Valid() {
			invalid++
		}
		printReport(out, arg, report)
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d snapshots invalid", invalid, len(args))
	}
	return nil
}

func runSnapshotMigrate(cmd *cobra.Command, args []string) error {
	in := args[0]
	doc, err := store.ReadFile(in)
	if err != nil {
		return err
	}
	s, report, err := persistence.Parse(doc, nil)
	if err != nil {
		printReport(cmd.ErrOrStderr(), in, report)
		return err
	}

	outPath := migrateOutput
	if outPath == "" {
		outPath = in
	}
	if !report.Migrated && outPath == in {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is already at v%d\n", in, report.Version)
		return nil
	}
	if err := store.WriteFile(outPath, s); err != nil {
		return err
	}

	from := report.Version
	if report.Migrated {
		from = report.SourceVersion
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Migrated %s v%d → v%d\n", styles.Check(true), outPath, from, s.Version)
	for _, warn := range report.Warnings {
		fmt.Fprintln(cmd.OutOrStdout(), "  "+styles.Warning.Render("warning: ")+warn)
	}
	return nil
}

func runSnapshotShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var doc map[string]any
	if len(args) == 1 {
		doc, err = loadDocument(cmd.Context(), cfg, args[0])
	} else {
		_, doc, err = latestDocument(cmd.Context(), cfg)
	}
	if err != nil {
		return err
	}

	s, report, err := persistence.Parse(doc, nil)
	if err != nil {
		printReport(cmd.ErrOrStderr(), "snapshot", report)
		return err
	}
	printSnapshot(cmd.OutOrStdout(), s)
	if report.Migrated {
		fmt.Fprintln(cmd.OutOrStdout(), styles.Muted.Render(fmt.Sprintf("\nshown migrated from v%d", report.SourceVersion)))
	}
	return nil
}

func runSnapshotSave(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	doc, err := store.ReadFile(args[0])
	if err != nil {
		return err
	}
	s, report, err := persistence.Parse(doc, nil)
	if err != nil {
		printReport(cmd.ErrOrStderr(), args[0], report)
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	entry, err := st.Save(cmd.Context(), s)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Saved %s as %s\n", styles.Check(true), args[0], entry.ID)
	return nil
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.List(cmd.Context())
	if err != nil {
		return err
	}
	printEntries(cmd.OutOrStdout(), entries)
	return nil
}

func runSnapshotDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var failed int
	for _, id := range args {
		if err := st.Delete(cmd.Context(), id); err != nil {
			failed++
			msg := err.Error()
			if mcerrors.Is(err, mcerrors.ErrSnapshotNotFound) {
				msg = "not found"
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.Check(false)+" "+id+": "+msg)
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), styles.Check(true)+" Deleted "+id)
	}
	if failed > 0 {
		return fmt.Errorf("failed to delete %d snapshots", failed)
	}
	return nil
}
