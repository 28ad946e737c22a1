package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"emcon/app"
	"emcon/domain/experiment"
	"emcon/internal/config"
	"emcon/internal/container"
	"emcon/internal/errors"
	"emcon/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// globalFlags override the environment for a single invocation
type globalFlags struct {
	dataDir    string
	rtUnit     string
	workers    int
	logLevel   string
	degenerate string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	var c *container.Container

	rootCmd := &cobra.Command{
		Use:   "emcon",
		Short: "EmCon behavioral and ERP data processing",
		Long: `Process PsychoPy logs from the EmCon study into encoding and memory
summaries, prepare single-trial ERP data and plot the memory measures.

Configuration is read from the environment (a .env file is loaded when present):
  EMCON_DATA_DIR           study root (psychopy/, stats/behavioral/, stats/erp/avg/data/)
  EMCON_RT_UNIT            ms|s (default: ms)
  EMCON_STORE_DRIVER       sqlite|postgres (optional summary store)
  EMCON_STORE_DSN          database file or connection string
  EMCON_DROP_SUBJECTS      comma-separated subjects left out of figures`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

			c, err = container.New(cmd.Context(), cfg, slog.Default())
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c == nil {
				return nil
			}
			return c.Shutdown()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.dataDir, "data-dir", "", "Study data directory (overrides EMCON_DATA_DIR)")
	pf.StringVar(&flags.rtUnit, "rt-unit", "", "Reaction time unit: ms|s")
	pf.IntVar(&flags.workers, "workers", 0, "Subjects processed concurrently")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&flags.degenerate, "degenerate", "", "Undefined rate policy: skip|abort")

	get := func() *container.Container { return c }
	rootCmd.AddCommand(
		newBehavCmd(get),
		newRenameCmd(get),
		newRepairCmd(get),
		newAverageCmd(get),
		newFiguresCmd(get),
		newExportCmd(get),
		newRunsCmd(get),
	)
	return rootCmd
}

// loadConfig reads the environment and applies command-line overrides
func loadConfig(cmd *cobra.Command, flags globalFlags) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.ConfigInvalid("failed to read .env: " + err.Error())
	}

	cfg := config.FromEnv()

	fs := cmd.Flags()
	if fs.Changed("data-dir") {
		// directories set in the environment stay; the rest follow the new root
		cfg.Paths.DataDir = flags.dataDir
	}
	if fs.Changed("rt-unit") {
		unit, err := experiment.ParseRTUnit(flags.rtUnit)
		if err != nil {
			return nil, errors.ConfigInvalid(err.Error())
		}
		cfg.Processing.RTUnit = unit
	}
	if fs.Changed("workers") {
		cfg.Processing.Workers = flags.workers
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = flags.logLevel
	}
	if fs.Changed("degenerate") {
		cfg.Processing.DegeneratePolicy = config.DegeneratePolicy(strings.ToLower(flags.degenerate))
	}

	cfg.ResolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

func newBehavCmd(get func() *container.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "behav <sub_id|all>",
		Short: "Compute encoding and memory summaries",
		Long: `Compute encoding accuracy/RT and recognition memory measures.

With a subject ID only that subject's rows are replaced in the saved summaries.
With "all" both summaries are rebuilt from every subject in the psychopy directory.

Example: emcon behav 05_EmCon`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := get().Behavior
			var res *app.BehaviorResult
			var err error
			if strings.EqualFold(args[0], "all") {
				res, err = svc.ProcessAll(cmd.Context())
			} else {
				res, err = svc.ProcessSubject(cmd.Context(), experiment.SubjectID(args[0]))
			}
			if err != nil {
				return err
			}
			printBehavior(res)
			return nil
		},
	}
}

func newRenameCmd(get func() *container.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "rename",
		Short: "Fix file names that repeat the study name (EmCon_EmCon)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := get().Repair.RenameDuplicated()
			if err != nil {
				return err
			}
			printList("Renamed", report.Written)
			printList("Left alone (target exists)", report.Existing)
			return nil
		},
	}
}

func newRepairCmd(get func() *container.Container) *cobra.Command {
	var manifest string

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Copy raw files into the psychopy directory and apply known fixes",
		Long: `Apply a repair manifest: copy raw logs (with renames and skips), set
missing columns, merge split sessions and relabel test conditions.
Files already present in the psychopy directory are never overwritten.

Example: emcon repair --manifest psychopy/repairs.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := get()
			if manifest == "" {
				manifest = c.Config.Paths.RepairManifest
			}
			m, err := app.LoadRepairManifest(manifest)
			if err != nil {
				return err
			}
			report, err := c.Repair.Apply(m)
			if report != nil {
				printList("Copied", report.Copied)
				printList("Skipped", report.Skipped)
				printList("Already present", report.Existing)
				printList("Written", report.Written)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&manifest, "manifest", "", "Repair manifest (default: <psychopy>/repairs.yaml)")
	return cmd
}

func newAverageCmd(get func() *container.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "average",
		Short: "Add cLPP, ZLPP and sub_bias to single-trial data and average by word and subject",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := get().Averaging.Run()
			if err != nil {
				return err
			}
			fmt.Printf("Single trials: %d\n", res.SingleTrial.Len())
			fmt.Printf("Words: %d, subjects: %d\n", res.WordWide.Len(), res.SubWide.Len())
			printList("Written", res.Files)
			return nil
		},
	}
}

func newFiguresCmd(get func() *container.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "figures",
		Short: "Plot hit rate, false alarm rate, d' and c by delay and valence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := get().Figures.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Subjects: %d\n", len(res.Subjects))
			printList("Plots", res.Plots)
			printList("Descriptives", []string{res.Markdown, res.HTML})
			return nil
		},
	}
}

func newExportCmd(get func() *container.Container) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the behavioral summaries to one Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := get().Behavior.Export(cmd.Context(), out)
			if err != nil {
				return err
			}
			fmt.Printf("Workbook: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Output path (default: <behavioral>/EmCon_behavioral.xlsx)")
	return cmd
}

func newRunsCmd(get func() *container.Container) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent processing runs recorded in the summary store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := get()
			if c.Store == nil {
				return errors.ConfigInvalid("no summary store configured; set EMCON_STORE_DRIVER and EMCON_STORE_DSN")
			}
			runs, err := c.Store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				finished := "-"
				if r.FinishedAt != nil {
					finished = r.FinishedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Printf("%s  %-10s %-20s subjects=%-3d started=%s finished=%s\n",
					r.ID, r.Status, r.Command, r.Subjects, r.StartedAt.Format("2006-01-02 15:04:05"), finished)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}

func printBehavior(res *app.BehaviorResult) {
	fmt.Printf("Subjects: %d (%s)\n", len(res.Subjects), joinSubjects(res.Subjects))
	fmt.Printf("Run: %s, %dms\n", res.RunID, res.RuntimeMs)
	if len(res.Corrections) > 0 {
		fmt.Printf("Boundary corrections (%d):\n", len(res.Corrections))
		for _, c := range res.Corrections {
			fmt.Printf("  %s %s %s: %s\n", c.Subject, c.Test.Name(), c.Valence, c.Message())
		}
	}
	printList("Written", res.Files)
}

func joinSubjects(subs []experiment.SubjectID) string {
	names := make([]string, len(subs))
	for i, s := range subs {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func printList(label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("%s (%d):\n", label, len(items))
	for _, it := range items {
		fmt.Printf("  %s\n", it)
	}
}
