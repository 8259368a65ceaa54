// Package forage implements the flint foraging environment: a single agent on
// a continuous plane over a resource grid, fed by two stochastic supply sites.
//
// An Env is not safe for concurrent use. Parallel episodes each need their own
// Env and their own random source.
package forage

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// pcgStream is the fixed second word of the PCG state derived from a seed.
const pcgStream = 0x9e3779b97f4a7c15

// State is the observable episode state.
type State struct {
	Grid         *Grid   `json:"-"`
	Nourishment  float64 `json:"nourishment"`
	CarriedFlint float64 `json:"carried_flint"`
	Position     Vec2    `json:"position"`
}

// Cell is the grid cell under the agent.
func (s State) Cell() (x, y int) {
	return s.Grid.CellIndex(s.Position)
}

// Clone returns a deep copy that shares nothing with s.
func (s State) Clone() State {
	out := s
	if s.Grid != nil {
		out.Grid = s.Grid.Clone()
	}
	return out
}

type StepResult struct {
	State  State
	Reward float64
	Done   bool
	Info   map[string]any
}

type Env struct {
	cfg   Config
	sites [2]Vec2

	placement [2][2]distuv.Normal
	flintDrop distuv.Bernoulli
	start     distuv.Uniform

	state       State
	totalReward float64
	foodEaten   float64
	steps       int
}

// New builds an environment whose randomness is seeded from cfg.Seed.
func New(cfg Config) (*Env, error) {
	return NewWithSource(cfg, rand.NewPCG(uint64(cfg.Seed), pcgStream))
}

// NewWithSource builds an environment drawing all randomness from src. The
// returned Env has already been reset.
func NewWithSource(cfg Config, src rand.Source) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: random source is required", ErrInvalidConfig)
	}

	e := &Env{
		cfg:       cfg,
		sites:     cfg.Sites(),
		flintDrop: distuv.Bernoulli{P: cfg.FlintPerFood, Src: src},
		start:     distuv.Uniform{Min: 0, Max: cfg.StartRegion, Src: src},
	}
	sigma := cfg.PlacementSigma()
	for i, site := range e.sites {
		e.placement[i] = [2]distuv.Normal{
			{Mu: site.X, Sigma: sigma, Src: src},
			{Mu: site.Y, Sigma: sigma, Src: src},
		}
	}
	e.Reset()
	return e, nil
}

func (e *Env) Config() Config { return e.cfg }

// Reset starts a new episode and returns a snapshot of its initial state.
func (e *Env) Reset() State {
	e.state = State{
		Grid:         NewGrid(e.cfg.Width, e.cfg.Height),
		Nourishment:  e.cfg.InitialNourishment,
		CarriedFlint: e.cfg.InitialFlint,
	}
	e.state.Position = e.startPosition()
	for site := range e.sites {
		e.depositFood(site)
	}
	e.totalReward = 0
	e.foodEaten = 0
	e.steps = 0
	return e.state.Clone()
}

// Step applies one transition. An invalid action is rejected before any
// state changes.
func (e *Env) Step(values []float64) (StepResult, error) {
	action, err := ParseAction(values)
	if err != nil {
		return StepResult{}, err
	}

	e.steps++
	e.move(action)
	reward := e.eat()
	e.discardFlint(action[ActionDiscard])
	e.pickUpFlint()
	if e.decay() {
		e.totalReward += e.cfg.TerminalReward
		return StepResult{State: e.state.Clone(), Reward: e.cfg.TerminalReward, Done: true, Info: map[string]any{}}, nil
	}
	e.replenish()

	e.totalReward += reward
	return StepResult{State: e.state.Clone(), Reward: reward, Done: false, Info: map[string]any{}}, nil
}

// State returns a snapshot of the current episode state.
func (e *Env) State() State { return e.state.Clone() }

func (e *Env) Steps() int { return e.steps }

func (e *Env) TotalReward() float64 { return e.totalReward }

// FoodEaten is the food consumed since the last reset.
func (e *Env) FoodEaten() float64 { return e.foodEaten }

func (e *Env) Sites() [2]Vec2 { return e.sites }

// Render is a no-op; the environment has no display.
func (e *Env) Render() {}

func (e *Env) startPosition() Vec2 {
	return Vec2{X: e.start.Rand(), Y: e.start.Rand()}
}
