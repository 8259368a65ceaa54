package storage

import (
	"context"

	"flintsim/internal/model"
)

// Store persists run and episode summaries. Trajectories are never stored.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns the newest runs first; limit <= 0 returns all of them.
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	SaveEpisodes(ctx context.Context, runID string, episodes []model.EpisodeRecord) error
	GetEpisodes(ctx context.Context, runID string) ([]model.EpisodeRecord, bool, error)
	SaveScapeSummary(ctx context.Context, summary model.ScapeSummary) error
	GetScapeSummary(ctx context.Context, name string) (model.ScapeSummary, bool, error)
}

type Resetter interface {
	Reset(ctx context.Context) error
}
