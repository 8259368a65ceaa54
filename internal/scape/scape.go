package scape

import "context"

type Fitness float64

type Trace map[string]any

type Agent interface {
	ID() string
}

// StepAgent maps one observation vector to one action vector.
type StepAgent interface {
	Agent
	RunStep(ctx context.Context, input []float64) ([]float64, error)
}

type Scape interface {
	Name() string
	Evaluate(ctx context.Context, agent Agent) (Fitness, Trace, error)
}

// SeededScape optionally derives an independently seeded copy of a scape, so
// parallel evaluations never share random state.
type SeededScape interface {
	Scape
	WithSeed(seed int64) Scape
}
