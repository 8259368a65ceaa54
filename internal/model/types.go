package model

import "flintsim/internal/forage"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord summarizes one batch of episodes evaluated with the same scape,
// agent kind and base seed.
type RunRecord struct {
	VersionedRecord
	ID            string  `json:"id"`
	CreatedAtUTC  string  `json:"created_at_utc"`
	Scape         string  `json:"scape"`
	Agent         string  `json:"agent"`
	Seed          int64   `json:"seed"`
	Episodes      int     `json:"episodes"`
	MaxSteps      int     `json:"max_steps"`
	MeanReturn    float64 `json:"mean_return"`
	StdDevReturn  float64 `json:"stddev_return"`
	BestReturn    float64 `json:"best_return"`
	WorstReturn   float64 `json:"worst_return"`
	MeanSteps     float64 `json:"mean_steps"`
	TerminalCount int     `json:"terminal_count"`

	Environment forage.Config `json:"environment"`
}

// EpisodeRecord is the outcome of a single episode. Per-step trajectories are
// never recorded.
type EpisodeRecord struct {
	VersionedRecord
	RunID            string  `json:"run_id"`
	Index            int     `json:"index"`
	AgentID          string  `json:"agent_id"`
	Seed             int64   `json:"seed"`
	Steps            int     `json:"steps"`
	TotalReward      float64 `json:"total_reward"`
	Terminal         bool    `json:"terminal"`
	FoodEaten        float64 `json:"food_eaten"`
	FinalNourishment float64 `json:"final_nourishment"`
	FinalFlint       float64 `json:"final_flint"`
}

type ScapeSummary struct {
	VersionedRecord
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BestReturn  float64 `json:"best_return"`
	Runs        int     `json:"runs"`
}
