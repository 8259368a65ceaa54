package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"flintsim/internal/forage"
	"flintsim/internal/scape"
	"flintsim/internal/storage"
	"flintsim/pkg/flintsim"
)

const (
	envStore    = "FLINTSIM_STORE"
	envDBPath   = "FLINTSIM_DB_PATH"
	envLogLevel = "FLINTSIM_LOG_LEVEL"

	defaultDBPath       = "flintsim.db"
	defaultArtifactsDir = "artifacts"
	defaultExportsDir   = "exports"
)

type globalOptions struct {
	store        string
	dbPath       string
	logLevel     string
	artifactsDir string
	exportsDir   string
}

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "flintsimctl",
		Short:         "Run and inspect flint foraging episodes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return configureLogging(cmd.ErrOrStderr(), opts.logLevel)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.store, "store", envOr(envStore, storage.DefaultStoreKind()), "store backend: memory|sqlite")
	flags.StringVar(&opts.dbPath, "db-path", envOr(envDBPath, defaultDBPath), "sqlite database path")
	flags.StringVar(&opts.logLevel, "log-level", envOr(envLogLevel, "info"), "log level: debug|info|warn|error")
	flags.StringVar(&opts.artifactsDir, "artifacts-dir", defaultArtifactsDir, "directory for per-run artifacts")
	flags.StringVar(&opts.exportsDir, "exports-dir", defaultExportsDir, "default export destination")

	root.AddCommand(
		newInitCommand(opts),
		newResetCommand(opts),
		newRunCommand(opts),
		newRunsCommand(opts),
		newEpisodesCommand(opts),
		newScapeSummaryCommand(opts),
		newAgentsCommand(),
		newExportCommand(opts),
	)
	return root
}

func configureLogging(w io.Writer, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func openClient(opts *globalOptions) (*flintsim.Client, error) {
	return flintsim.New(flintsim.Options{
		StoreKind:    opts.store,
		DBPath:       opts.dbPath,
		ArtifactsDir: opts.artifactsDir,
		ExportsDir:   opts.exportsDir,
		Logger:       slog.Default(),
	})
}

// withClient opens a client for the duration of fn and closes it afterwards.
func withClient(opts *globalOptions, fn func(*flintsim.Client) error) error {
	client, err := openClient(opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	return fn(client)
}

func newInitCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(opts, func(client *flintsim.Client) error {
				if err := client.Init(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "initialized store=%s\n", opts.store)
				return nil
			})
		},
	}
}

func newResetCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete every stored run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(opts, func(client *flintsim.Client) error {
				if err := client.Reset(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset store=%s\n", opts.store)
				return nil
			})
		},
	}
}

type runFlags struct {
	config       string
	agent        string
	episodes     int
	maxSteps     int
	seed         int64
	workers      int
	width        int
	height       int
	foodPerStep  int
	flintPerFood float64
	decayPerStep float64
	jsonOut      bool
}

var environmentFlagNames = []string{"width", "height", "food-per-step", "flint-per-food", "decay-per-step"}

func newRunCommand(opts *globalOptions) *cobra.Command {
	rf := &runFlags{}
	def := forage.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate a batch of episodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := loadOrDefaultRunRequest(rf.config)
			if err != nil {
				return err
			}
			overrideFromFlags(cmd, &req, rf)

			return withClient(opts, func(client *flintsim.Client) error {
				summary, err := client.Run(cmd.Context(), req)
				if err != nil {
					return err
				}
				if rf.jsonOut {
					return writeJSON(cmd.OutOrStdout(), summary)
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"run_id=%s agent=%s episodes=%d mean_return=%s stddev=%s best=%s worst=%s mean_steps=%s terminal=%d/%d artifacts=%s\n",
					summary.RunID,
					summary.Agent,
					summary.Episodes,
					formatReturn(summary.MeanReturn),
					formatReturn(summary.StdDevReturn),
					formatReturn(summary.BestReturn),
					formatReturn(summary.WorstReturn),
					humanize.FormatFloat("#,###.#", summary.MeanSteps),
					summary.TerminalCount,
					summary.Episodes,
					summary.ArtifactsDir,
				)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&rf.config, "config", "", "JSON run config path")
	f.StringVar(&rf.agent, "agent", "", "policy: cortex|forager|idle|random")
	f.IntVar(&rf.episodes, "episodes", 0, "number of episodes")
	f.IntVar(&rf.maxSteps, "max-steps", 0, "per-episode step cap (0 = scape default)")
	f.Int64Var(&rf.seed, "seed", 0, "base seed; episode i uses seed+i")
	f.IntVar(&rf.workers, "workers", 0, "parallel episode workers")
	f.IntVar(&rf.width, "width", def.Width, "grid width")
	f.IntVar(&rf.height, "height", def.Height, "grid height")
	f.IntVar(&rf.foodPerStep, "food-per-step", def.FoodPerStep, "food units dropped per site each step")
	f.Float64Var(&rf.flintPerFood, "flint-per-food", def.FlintPerFood, "probability of a flint drop per site each step")
	f.Float64Var(&rf.decayPerStep, "decay-per-step", def.DecayPerStep, "nourishment lost each step")
	f.BoolVar(&rf.jsonOut, "json", false, "emit run summary as JSON")
	return cmd
}

// overrideFromFlags applies only the flags given explicitly on the command
// line, so config file values survive unless overridden.
func overrideFromFlags(cmd *cobra.Command, req *flintsim.RunRequest, rf *runFlags) {
	flags := cmd.Flags()
	if flags.Changed("agent") {
		req.Agent = rf.agent
	}
	if flags.Changed("episodes") {
		req.Episodes = rf.episodes
	}
	if flags.Changed("max-steps") {
		req.MaxSteps = rf.maxSteps
	}
	if flags.Changed("seed") {
		req.Seed = rf.seed
	}
	if flags.Changed("workers") {
		req.Workers = rf.workers
	}

	changed := false
	for _, name := range environmentFlagNames {
		if flags.Changed(name) {
			changed = true
			break
		}
	}
	if !changed {
		return
	}
	env := forage.DefaultConfig()
	if req.Environment != nil {
		env = *req.Environment
	}
	if flags.Changed("width") {
		env.Width = rf.width
	}
	if flags.Changed("height") {
		env.Height = rf.height
	}
	if flags.Changed("food-per-step") {
		env.FoodPerStep = rf.foodPerStep
	}
	if flags.Changed("flint-per-food") {
		env.FlintPerFood = rf.flintPerFood
	}
	if flags.Changed("decay-per-step") {
		env.DecayPerStep = rf.decayPerStep
	}
	req.Environment = &env
}

func newRunsCommand(opts *globalOptions) *cobra.Command {
	var (
		limit         int
		fromArtifacts bool
		jsonOut       bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			return withClient(opts, func(client *flintsim.Client) error {
				runs, err := client.Runs(cmd.Context(), flintsim.RunsRequest{Limit: limit, FromArtifacts: fromArtifacts})
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no runs found")
					return nil
				}
				for _, r := range runs {
					fmt.Fprintf(cmd.OutOrStdout(),
						"run_id=%s created=%s scape=%s agent=%s seed=%d episodes=%d mean_return=%s best=%s\n",
						r.RunID,
						formatCreated(r.CreatedAtUTC),
						r.Scape,
						r.Agent,
						r.Seed,
						r.Episodes,
						formatReturn(r.MeanReturn),
						formatReturn(r.BestReturn),
					)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&fromArtifacts, "artifacts", false, "list the on-disk artifact index instead of the store")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs list as JSON")
	return cmd
}

func newEpisodesCommand(opts *globalOptions) *cobra.Command {
	var (
		runID   string
		latest  bool
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "Show the episode summaries of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(opts, func(client *flintsim.Client) error {
				episodes, err := client.Episodes(cmd.Context(), flintsim.EpisodesRequest{RunID: runID, Latest: latest, Limit: limit})
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), episodes)
				}
				for _, e := range episodes {
					fmt.Fprintf(cmd.OutOrStdout(),
						"index=%d seed=%d steps=%s total_reward=%s terminal=%t food_eaten=%s final_flint=%s\n",
						e.Index,
						e.Seed,
						humanize.Comma(int64(e.Steps)),
						formatReturn(e.TotalReward),
						e.Terminal,
						formatReturn(e.FoodEaten),
						formatReturn(e.FinalFlint),
					)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "use the most recent run")
	cmd.Flags().IntVar(&limit, "limit", 0, "max episodes to show (0 = all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit episodes as JSON")
	return cmd
}

func newScapeSummaryCommand(opts *globalOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "scape-summary",
		Short: "Show the best observed return for a scape",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(opts, func(client *flintsim.Client) error {
				summary, err := client.ScapeSummary(cmd.Context(), name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scape=%s runs=%s best_return=%s description=%q\n",
					summary.Name,
					humanize.Comma(int64(summary.Runs)),
					formatReturn(summary.BestReturn),
					summary.Description,
				)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", scape.ForageScapeName, "scape name")
	return cmd
}

func newAgentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List available policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := flintsim.New(flintsim.Options{})
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()
			for _, name := range client.Agents() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newExportCommand(opts *globalOptions) *cobra.Command {
	var (
		runID  string
		latest bool
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts to an export directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(opts, func(client *flintsim.Client) error {
				exported, err := client.Export(cmd.Context(), flintsim.ExportRequest{RunID: runID, Latest: latest, OutDir: outDir})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "export the most recent run")
	cmd.Flags().StringVar(&outDir, "out", "", "export directory (defaults to --exports-dir)")
	return cmd
}

func formatReturn(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}

func formatCreated(createdAt string) string {
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return createdAt
	}
	return humanize.Time(t)
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
