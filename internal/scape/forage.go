package scape

import (
	"context"
	"fmt"

	"flintsim/internal/forage"
)

const (
	ForageScapeName = "forage"

	defaultForageMaxSteps = 1000
)

// Observation layout produced by ForageObservation.
const (
	ObsX = iota
	ObsY
	ObsNourishment
	ObsCarriedFlint
	ObsFoodHere
	ObsFlintHere
	ObsSite0DX
	ObsSite0DY
	ObsSite1DX
	ObsSite1DY

	ObservationSize
)

// ForageScape runs one episode of the flint foraging environment per
// evaluation. MaxSteps caps episodes that never starve; zero uses the default.
type ForageScape struct {
	Config   forage.Config
	MaxSteps int
}

func NewForageScape(cfg forage.Config, maxSteps int) ForageScape {
	return ForageScape{Config: cfg, MaxSteps: maxSteps}
}

func (ForageScape) Name() string {
	return ForageScapeName
}

func (s ForageScape) WithSeed(seed int64) Scape {
	s.Config.Seed = seed
	return s
}

func (s ForageScape) Evaluate(ctx context.Context, agent Agent) (Fitness, Trace, error) {
	runner, ok := agent.(StepAgent)
	if !ok {
		return 0, nil, fmt.Errorf("agent %s does not implement step runner", agent.ID())
	}
	env, err := forage.New(s.Config)
	if err != nil {
		return 0, nil, err
	}
	return evaluateForage(ctx, env, s.maxSteps(), func(ctx context.Context, obs []float64) ([]float64, error) {
		out, err := runner.RunStep(ctx, obs)
		if err != nil {
			return nil, err
		}
		if len(out) != forage.ActionSize {
			return nil, fmt.Errorf("forage requires %d outputs, got %d", forage.ActionSize, len(out))
		}
		return out, nil
	})
}

// Environment reports the configuration each episode is built from.
func (s ForageScape) Environment() forage.Config {
	return s.Config
}

// EpisodeLimit is the effective per-episode step cap.
func (s ForageScape) EpisodeLimit() int {
	return s.maxSteps()
}

func (s ForageScape) maxSteps() int {
	if s.MaxSteps <= 0 {
		return defaultForageMaxSteps
	}
	return s.MaxSteps
}

func evaluateForage(
	ctx context.Context,
	env *forage.Env,
	maxSteps int,
	chooseAction func(context.Context, []float64) ([]float64, error),
) (Fitness, Trace, error) {
	state := env.Reset()
	terminal := false

	for env.Steps() < maxSteps {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		action, err := chooseAction(ctx, ForageObservation(state, env.Sites()))
		if err != nil {
			return 0, nil, err
		}
		result, err := env.Step(action)
		if err != nil {
			return 0, nil, fmt.Errorf("step %d: %w", env.Steps()+1, err)
		}
		state = result.State
		if result.Done {
			terminal = true
			break
		}
	}

	total := env.TotalReward()
	return Fitness(total), Trace{
		"steps":             env.Steps(),
		"total_reward":      total,
		"terminal":          terminal,
		"food_eaten":        env.FoodEaten(),
		"final_nourishment": state.Nourishment,
		"final_flint":       state.CarriedFlint,
		"seed":              env.Config().Seed,
	}, nil
}

// ForageObservation flattens a state into the vector handed to step agents.
func ForageObservation(state forage.State, sites [2]forage.Vec2) []float64 {
	obs := make([]float64, ObservationSize)
	x, y := state.Cell()
	obs[ObsX] = state.Position.X
	obs[ObsY] = state.Position.Y
	obs[ObsNourishment] = state.Nourishment
	obs[ObsCarriedFlint] = state.CarriedFlint
	obs[ObsFoodHere] = state.Grid.Food(x, y)
	obs[ObsFlintHere] = state.Grid.Flint(x, y)
	obs[ObsSite0DX] = sites[0].X - state.Position.X
	obs[ObsSite0DY] = sites[0].Y - state.Position.Y
	obs[ObsSite1DX] = sites[1].X - state.Position.X
	obs[ObsSite1DY] = sites[1].Y - state.Position.Y
	return obs
}
