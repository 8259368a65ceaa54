package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"flintsim/internal/forage"
	"flintsim/internal/model"
	"flintsim/internal/scape"
	"flintsim/internal/stats"
	"flintsim/internal/storage"
)

type Config struct {
	Store  storage.Store
	Scapes []scape.Scape
	Logger *slog.Logger
}

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

var ErrRunStopped = errors.New("run stopped")

// AgentFactory builds a fresh agent for one episode.
type AgentFactory func(seed int64) (scape.StepAgent, error)

type RunConfig struct {
	RunID     string
	ScapeName string
	// Scape overrides the registered scape named by ScapeName.
	Scape     scape.Scape
	AgentName string
	NewAgent  AgentFactory
	Episodes  int
	Workers   int
	Seed      int64
}

type RunResult struct {
	Run      model.RunRecord
	Episodes []model.EpisodeRecord
}

// environmentScape is implemented by scapes that can describe the
// environment their episodes run in.
type environmentScape interface {
	Environment() forage.Config
	EpisodeLimit() int
}

type Polis struct {
	store  storage.Store
	logger *slog.Logger

	mu sync.RWMutex
	// summaryMu serializes scape summary read-modify-write across runs.
	summaryMu sync.Mutex

	scapes         map[string]scape.Scape
	started        bool
	lastStopReason StopReason
	runs           map[string]context.CancelCauseFunc

	config Config
}

func NewPolis(cfg Config) *Polis {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Polis{
		store:          cfg.Store,
		logger:         logger,
		scapes:         make(map[string]scape.Scape),
		runs:           make(map[string]context.CancelCauseFunc),
		config:         cfg,
		lastStopReason: StopReasonNormal,
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}

	scapes := make(map[string]scape.Scape, len(p.config.Scapes))
	for i, s := range p.config.Scapes {
		if s == nil {
			return fmt.Errorf("scape is nil at index %d", i)
		}
		name := s.Name()
		if name == "" {
			return fmt.Errorf("scape name is required at index %d", i)
		}
		if _, exists := scapes[name]; exists {
			return fmt.Errorf("duplicate scape: %s", name)
		}
		scapes[name] = s
	}

	p.scapes = scapes
	p.started = true
	return nil
}

// Reset stops the polis, clears the store when it supports it and starts
// again with the configured scapes.
func (p *Polis) Reset(ctx context.Context) error {
	_ = p.StopWithReason(StopReasonShutdown)
	if resetter, ok := p.store.(storage.Resetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			return err
		}
	}
	return p.Init(ctx)
}

func (p *Polis) RegisterScape(s scape.Scape) error {
	if s == nil {
		return fmt.Errorf("scape is nil")
	}

	name := s.Name()
	if name == "" {
		return fmt.Errorf("scape name is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("polis is not initialized")
	}
	p.scapes[name] = s
	return nil
}

func (p *Polis) GetScape(name string) (scape.Scape, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.scapes[name]
	return s, ok
}

func (p *Polis) RegisteredScapes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.scapes))
	for name := range p.scapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Polis) LastStopReason() StopReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastStopReason
}

func (p *Polis) Stop() {
	_ = p.StopWithReason(StopReasonNormal)
}

// StopWithReason cancels every active run and forgets registered scapes.
func (p *Polis) StopWithReason(reason StopReason) error {
	if reason == "" {
		reason = StopReasonNormal
	}
	if reason != StopReasonNormal && reason != StopReasonShutdown {
		return fmt.Errorf("unsupported stop reason: %s", reason)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cancel := range p.runs {
		cancel(ErrRunStopped)
	}

	p.started = false
	p.lastStopReason = reason
	p.scapes = make(map[string]scape.Scape)
	p.runs = make(map[string]context.CancelCauseFunc)
	return nil
}

// StopRun cancels one active run. The run returns ErrRunStopped and persists
// nothing.
func (p *Polis) StopRun(runID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cancel, ok := p.runs[runID]
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	cancel(ErrRunStopped)
	delete(p.runs, runID)
	return nil
}

func (p *Polis) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RunEpisodes evaluates cfg.Episodes independent episodes on a bounded worker
// pool. Episode i gets its own agent and its own environment seeded with
// cfg.Seed+i. The run record, the episode records and the scape summary are
// persisted once every episode has finished.
func (p *Polis) RunEpisodes(ctx context.Context, cfg RunConfig) (RunResult, error) {
	if cfg.Episodes <= 0 {
		return RunResult{}, fmt.Errorf("episodes must be > 0")
	}
	if cfg.NewAgent == nil {
		return RunResult{}, fmt.Errorf("agent factory is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	p.mu.RLock()
	started := p.started
	target := cfg.Scape
	if target == nil {
		target = p.scapes[cfg.ScapeName]
	}
	p.mu.RUnlock()

	if !started {
		return RunResult{}, fmt.Errorf("polis is not initialized")
	}
	if target == nil {
		return RunResult{}, fmt.Errorf("scape not registered: %s", cfg.ScapeName)
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	runCtx, err := p.registerRun(ctx, runID)
	if err != nil {
		return RunResult{}, err
	}
	defer p.unregisterRun(runID)

	logger := p.logger.With("run_id", runID, "scape", target.Name(), "agent", cfg.AgentName)
	logger.Info("run started", "episodes", cfg.Episodes, "workers", cfg.Workers, "seed", cfg.Seed)
	begin := time.Now()

	episodes, err := p.evaluateEpisodes(runCtx, logger, target, cfg)
	if err != nil {
		if cause := context.Cause(runCtx); errors.Is(cause, ErrRunStopped) {
			err = fmt.Errorf("%w: %s", ErrRunStopped, runID)
		}
		logger.Warn("run failed", "error", err)
		return RunResult{}, err
	}
	for i := range episodes {
		episodes[i].RunID = runID
	}

	run := summarizeRun(runID, target, cfg, episodes)
	if err := p.store.SaveRun(ctx, run); err != nil {
		return RunResult{}, err
	}
	if err := p.store.SaveEpisodes(ctx, runID, episodes); err != nil {
		return RunResult{}, err
	}
	if err := p.updateScapeSummary(ctx, run.Scape, run.BestReturn); err != nil {
		return RunResult{}, err
	}

	logger.Info("run finished",
		"mean_return", run.MeanReturn,
		"best_return", run.BestReturn,
		"terminal", run.TerminalCount,
		"elapsed", time.Since(begin),
	)
	return RunResult{Run: run, Episodes: episodes}, nil
}

func (p *Polis) evaluateEpisodes(ctx context.Context, logger *slog.Logger, target scape.Scape, cfg RunConfig) ([]model.EpisodeRecord, error) {
	type result struct {
		idx     int
		episode model.EpisodeRecord
		err     error
	}

	jobs := make(chan int)
	results := make(chan result, cfg.Episodes)

	workerCount := cfg.Workers
	if workerCount > cfg.Episodes {
		workerCount = cfg.Episodes
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: idx, err: err}
					continue
				}
				episode, err := runEpisode(ctx, target, cfg, idx)
				if err != nil {
					results <- result{idx: idx, err: fmt.Errorf("episode %d: %w", idx, err)}
					continue
				}
				logger.Debug("episode finished",
					"index", idx,
					"steps", episode.Steps,
					"total_reward", episode.TotalReward,
					"terminal", episode.Terminal,
				)
				results <- result{idx: idx, episode: episode}
			}
		}()
	}

	for i := 0; i < cfg.Episodes; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(results)

	episodes := make([]model.EpisodeRecord, cfg.Episodes)
	var firstErr error
	firstErrIdx := cfg.Episodes
	for res := range results {
		if res.err != nil {
			if res.idx < firstErrIdx {
				firstErr, firstErrIdx = res.err, res.idx
			}
			continue
		}
		episodes[res.idx] = res.episode
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return episodes, nil
}

func runEpisode(ctx context.Context, target scape.Scape, cfg RunConfig, idx int) (model.EpisodeRecord, error) {
	seed := cfg.Seed + int64(idx)
	agent, err := cfg.NewAgent(seed)
	if err != nil {
		return model.EpisodeRecord{}, err
	}
	instance := target
	if seeded, ok := target.(scape.SeededScape); ok {
		instance = seeded.WithSeed(seed)
	}

	fitness, trace, err := instance.Evaluate(ctx, agent)
	if err != nil {
		return model.EpisodeRecord{}, err
	}
	return model.EpisodeRecord{
		VersionedRecord:  storage.CurrentVersion(),
		Index:            idx,
		AgentID:          agent.ID(),
		Seed:             seed,
		Steps:            traceInt(trace, "steps"),
		TotalReward:      float64(fitness),
		Terminal:         traceBool(trace, "terminal"),
		FoodEaten:        traceFloat(trace, "food_eaten"),
		FinalNourishment: traceFloat(trace, "final_nourishment"),
		FinalFlint:       traceFloat(trace, "final_flint"),
	}, nil
}

func summarizeRun(runID string, target scape.Scape, cfg RunConfig, episodes []model.EpisodeRecord) model.RunRecord {
	returns := make([]float64, len(episodes))
	steps := make([]float64, len(episodes))
	terminal := 0
	for i, episode := range episodes {
		returns[i] = episode.TotalReward
		steps[i] = float64(episode.Steps)
		if episode.Terminal {
			terminal++
		}
	}
	summary := stats.Summarize(returns)

	run := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              runID,
		CreatedAtUTC:    time.Now().UTC().Format(time.RFC3339Nano),
		Scape:           target.Name(),
		Agent:           cfg.AgentName,
		Seed:            cfg.Seed,
		Episodes:        len(episodes),
		MeanReturn:      summary.Mean,
		StdDevReturn:    summary.StdDev,
		BestReturn:      summary.Best,
		WorstReturn:     summary.Worst,
		MeanSteps:       stat.Mean(steps, nil),
		TerminalCount:   terminal,
	}
	if env, ok := target.(environmentScape); ok {
		run.Environment = env.Environment()
		run.Environment.Seed = cfg.Seed
		run.MaxSteps = env.EpisodeLimit()
	}
	return run
}

func (p *Polis) updateScapeSummary(ctx context.Context, scapeName string, best float64) error {
	p.summaryMu.Lock()
	defer p.summaryMu.Unlock()

	summary, ok, err := p.store.GetScapeSummary(ctx, scapeName)
	if err != nil {
		return err
	}
	if !ok {
		summary = model.ScapeSummary{
			VersionedRecord: storage.CurrentVersion(),
			Name:            scapeName,
			Description:     fmt.Sprintf("best observed episode return for scape %s", scapeName),
			BestReturn:      best,
		}
	}
	if best > summary.BestReturn {
		summary.BestReturn = best
	}
	summary.Runs++
	return p.store.SaveScapeSummary(ctx, summary)
}

func (p *Polis) registerRun(ctx context.Context, runID string) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil, fmt.Errorf("polis is not initialized")
	}
	if _, exists := p.runs[runID]; exists {
		return nil, fmt.Errorf("run already active: %s", runID)
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	p.runs[runID] = cancel
	return runCtx, nil
}

func (p *Polis) unregisterRun(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.runs[runID]; ok {
		cancel(nil)
		delete(p.runs, runID)
	}
}

func traceInt(trace scape.Trace, key string) int {
	switch v := trace[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func traceFloat(trace scape.Trace, key string) float64 {
	switch v := trace[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func traceBool(trace scape.Trace, key string) bool {
	v, _ := trace[key].(bool)
	return v
}
