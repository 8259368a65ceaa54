// Package flintsim is the embedding API for running and inspecting batches of
// flint foraging episodes.
package flintsim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"flintsim/internal/agent"
	"flintsim/internal/forage"
	"flintsim/internal/model"
	"flintsim/internal/platform"
	"flintsim/internal/scape"
	"flintsim/internal/stats"
	"flintsim/internal/storage"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultExportsDir   = "exports"
	defaultDBPath       = "flintsim.db"

	defaultAgent    = agent.NameForager
	defaultEpisodes = 10
	defaultWorkers  = 4
	defaultRunsList = 20
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *slog.Logger
}

type Client struct {
	store  storage.Store
	polis  *platform.Polis
	logger *slog.Logger

	artifactsDir string
	exportsDir   string
}

type RunRequest struct {
	Agent    string
	Episodes int
	Workers  int
	// MaxSteps caps each episode; zero uses the scape default.
	MaxSteps int
	Seed     int64
	// Environment overrides forage.DefaultConfig when set. Its Seed is
	// ignored: episode i is always seeded with Seed+i.
	Environment *forage.Config
}

type RunSummary struct {
	RunID         string
	Agent         string
	Episodes      int
	MeanReturn    float64
	StdDevReturn  float64
	BestReturn    float64
	WorstReturn   float64
	MeanSteps     float64
	TerminalCount int
	ArtifactsDir  string
}

type RunsRequest struct {
	Limit int
	// FromArtifacts lists the on-disk artifact index instead of the store.
	FromArtifacts bool
}

type RunItem struct {
	RunID         string
	CreatedAtUTC  string
	Scape         string
	Agent         string
	Seed          int64
	Episodes      int
	MeanReturn    float64
	BestReturn    float64
	TerminalCount int
}

type EpisodesRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type ScapeSummaryItem struct {
	Name        string
	Description string
	BestReturn  float64
	Runs        int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		logger:       logger,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	if c.polis != nil {
		c.polis.Stop()
		c.polis = nil
	}
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePolis(ctx)
	return err
}

// Reset deletes every stored run, episode and scape summary and drops the
// artifact run index. Per-run artifact directories are left in place.
func (c *Client) Reset(ctx context.Context) error {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return err
	}
	if err := p.Reset(ctx); err != nil {
		return err
	}
	return stats.ClearRunIndex(c.artifactsDir)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Agent == "" {
		req.Agent = defaultAgent
	}
	if req.Episodes <= 0 {
		req.Episodes = defaultEpisodes
	}
	if req.Workers <= 0 {
		req.Workers = defaultWorkers
	}
	if req.MaxSteps < 0 {
		return RunSummary{}, errors.New("max steps must be >= 0")
	}
	env := forage.DefaultConfig()
	if req.Environment != nil {
		env = *req.Environment
	}
	env.Seed = req.Seed
	if err := env.Validate(); err != nil {
		return RunSummary{}, err
	}
	if _, err := agent.New(req.Agent, env, req.Seed); err != nil {
		return RunSummary{}, err
	}

	p, err := c.ensurePolis(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	agentName := req.Agent
	result, err := p.RunEpisodes(ctx, platform.RunConfig{
		ScapeName: scape.ForageScapeName,
		Scape:     scape.NewForageScape(env, req.MaxSteps),
		AgentName: agentName,
		NewAgent: func(seed int64) (scape.StepAgent, error) {
			return agent.New(agentName, env, seed)
		},
		Episodes: req.Episodes,
		Workers:  req.Workers,
		Seed:     req.Seed,
	})
	if err != nil {
		return RunSummary{}, err
	}

	run := result.Run
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{Run: run, Episodes: result.Episodes})
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.IndexEntry(run)); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:         run.ID,
		Agent:         run.Agent,
		Episodes:      run.Episodes,
		MeanReturn:    run.MeanReturn,
		StdDevReturn:  run.StdDevReturn,
		BestReturn:    run.BestReturn,
		WorstReturn:   run.WorstReturn,
		MeanSteps:     run.MeanSteps,
		TerminalCount: run.TerminalCount,
		ArtifactsDir:  filepath.Clean(runDir),
	}, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsList
	}

	if req.FromArtifacts {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return nil, err
		}
		if len(entries) > req.Limit {
			entries = entries[:req.Limit]
		}
		out := make([]RunItem, 0, len(entries))
		for _, e := range entries {
			out = append(out, RunItem{
				RunID:        e.RunID,
				CreatedAtUTC: e.CreatedAtUTC,
				Scape:        e.Scape,
				Agent:        e.Agent,
				Seed:         e.Seed,
				Episodes:     e.Episodes,
				MeanReturn:   e.MeanReturn,
				BestReturn:   e.BestReturn,
			})
		}
		return out, nil
	}

	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunItem{
			RunID:         run.ID,
			CreatedAtUTC:  run.CreatedAtUTC,
			Scape:         run.Scape,
			Agent:         run.Agent,
			Seed:          run.Seed,
			Episodes:      run.Episodes,
			MeanReturn:    run.MeanReturn,
			BestReturn:    run.BestReturn,
			TerminalCount: run.TerminalCount,
		})
	}
	return out, nil
}

func (c *Client) Episodes(ctx context.Context, req EpisodesRequest) ([]model.EpisodeRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}

	episodes, ok, err := c.store.GetEpisodes(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("episodes not found for run: %s", runID)
	}
	if req.Limit > 0 && len(episodes) > req.Limit {
		episodes = episodes[:req.Limit]
	}
	return episodes, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return ExportSummary{}, err
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) ScapeSummary(ctx context.Context, scapeName string) (ScapeSummaryItem, error) {
	if scapeName == "" {
		return ScapeSummaryItem{}, errors.New("scape name is required")
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return ScapeSummaryItem{}, err
	}
	summary, ok, err := c.store.GetScapeSummary(ctx, scapeName)
	if err != nil {
		return ScapeSummaryItem{}, err
	}
	if !ok {
		return ScapeSummaryItem{}, fmt.Errorf("scape summary not found: %s", scapeName)
	}
	return ScapeSummaryItem{
		Name:        summary.Name,
		Description: summary.Description,
		BestReturn:  summary.BestReturn,
		Runs:        summary.Runs,
	}, nil
}

// Agents lists the policy names Run accepts.
func (c *Client) Agents() []string {
	return agent.Names()
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if runID != "" {
		return runID, nil
	}
	runs, err := c.store.ListRuns(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	return runs[0].ID, nil
}

func (c *Client) ensurePolis(ctx context.Context) (*platform.Polis, error) {
	if c.polis != nil {
		return c.polis, nil
	}
	p := platform.NewPolis(platform.Config{
		Store:  c.store,
		Scapes: []scape.Scape{scape.NewForageScape(forage.DefaultConfig(), 0)},
		Logger: c.logger,
	})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.polis = p
	return c.polis, nil
}
