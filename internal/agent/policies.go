package agent

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"flintsim/internal/forage"
	"flintsim/internal/scape"
)

// Idle never moves and never discards.
type Idle struct {
	id string
}

func NewIdle(id string) *Idle {
	return &Idle{id: id}
}

func (a *Idle) ID() string { return a.id }

func (a *Idle) RunStep(_ context.Context, _ []float64) ([]float64, error) {
	return make([]float64, forage.ActionSize), nil
}

// Random draws every movement weight and the discard fraction uniformly from
// [0, 1).
type Random struct {
	id  string
	rng *rand.Rand
}

func NewRandom(id string, seed int64) *Random {
	return &Random{id: id, rng: rand.New(rand.NewPCG(uint64(seed), 0))}
}

func (a *Random) ID() string { return a.id }

func (a *Random) RunStep(_ context.Context, _ []float64) ([]float64, error) {
	out := make([]float64, forage.ActionSize)
	for i := range out {
		out[i] = a.rng.Float64()
	}
	return out, nil
}

// Forager heads for the nearer site and wanders around it, pausing on any
// cell that holds food. It compensates for its flint load so that each move
// covers at most MaxMovementPerStep.
type Forager struct {
	id     string
	cfg    forage.Config
	rng    *rand.Rand
	jitter forage.Vec2
}

func NewForager(id string, cfg forage.Config, seed int64) *Forager {
	return &Forager{id: id, cfg: cfg, rng: rand.New(rand.NewPCG(uint64(seed), 1))}
}

func (a *Forager) ID() string { return a.id }

func (a *Forager) RunStep(_ context.Context, input []float64) ([]float64, error) {
	if len(input) != scape.ObservationSize {
		return nil, fmt.Errorf("forager expects %d inputs, got %d", scape.ObservationSize, len(input))
	}
	out := make([]float64, forage.ActionSize)
	if input[scape.ObsFoodHere] > 0 {
		return out, nil
	}

	site := forage.Vec2{X: input[scape.ObsSite0DX], Y: input[scape.ObsSite0DY]}
	other := forage.Vec2{X: input[scape.ObsSite1DX], Y: input[scape.ObsSite1DY]}
	if other.Norm() < site.Norm() {
		site = other
	}
	target := site.Add(a.jitter)
	if target.Norm() < 1 {
		a.rewander()
		target = site.Add(a.jitter)
	}

	dist := target.Norm()
	if dist == 0 {
		return out, nil
	}
	step := math.Min(dist, a.cfg.MaxMovementPerStep())
	scale := step / dist * a.cfg.CarryWeight(input[scape.ObsCarriedFlint])

	out[forage.ActionUp] = math.Max(target.Y, 0) * scale
	out[forage.ActionRight] = math.Max(target.X, 0) * scale
	out[forage.ActionDown] = math.Max(-target.Y, 0) * scale
	out[forage.ActionLeft] = math.Max(-target.X, 0) * scale
	return out, nil
}

func (a *Forager) rewander() {
	sigma := a.cfg.PlacementSigma()
	a.jitter = forage.Vec2{
		X: (a.rng.Float64()*2 - 1) * sigma,
		Y: (a.rng.Float64()*2 - 1) * sigma,
	}
}
