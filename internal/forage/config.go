package forage

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidConfig = errors.New("invalid forage config")

// Config holds the fixed parameters of an environment. It is treated as
// immutable once an Env has been constructed from it.
type Config struct {
	Width                 int     `json:"width"`
	Height                int     `json:"height"`
	FoodPerStep           int     `json:"food_per_step"`
	FlintPerFood          float64 `json:"flint_per_food"`
	DecayPerStep          float64 `json:"decay_per_step"`
	InitialNourishment    float64 `json:"initial_nourishment"`
	MaxNourishmentPerStep float64 `json:"max_nourishment_per_step"`
	InitialFlint          float64 `json:"initial_flint"`
	FlintWeightCoeff      float64 `json:"flint_weight_coeff"`
	TerminalReward        float64 `json:"terminal_reward"`
	StartRegion           float64 `json:"start_region"`
	Seed                  int64   `json:"seed"`
}

func DefaultConfig() Config {
	return Config{
		Width:                 100,
		Height:                100,
		FoodPerStep:           5,
		FlintPerFood:          0.1,
		DecayPerStep:          10,
		InitialNourishment:    100,
		MaxNourishmentPerStep: 5,
		InitialFlint:          10,
		FlintWeightCoeff:      1,
		TerminalReward:        -100,
		StartRegion:           10,
		Seed:                  1,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: grid must be positive, got %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case c.FoodPerStep < 0:
		return fmt.Errorf("%w: food_per_step must be >= 0, got %d", ErrInvalidConfig, c.FoodPerStep)
	case !finiteIn(c.FlintPerFood, 0, 1):
		return fmt.Errorf("%w: flint_per_food must be a probability, got %f", ErrInvalidConfig, c.FlintPerFood)
	case !finiteIn(c.DecayPerStep, 0, math.MaxFloat64):
		return fmt.Errorf("%w: decay_per_step must be >= 0, got %f", ErrInvalidConfig, c.DecayPerStep)
	case !finiteIn(c.InitialNourishment, 0, math.MaxFloat64):
		return fmt.Errorf("%w: initial_nourishment must be >= 0, got %f", ErrInvalidConfig, c.InitialNourishment)
	case !finiteIn(c.MaxNourishmentPerStep, 0, math.MaxFloat64):
		return fmt.Errorf("%w: max_nourishment_per_step must be >= 0, got %f", ErrInvalidConfig, c.MaxNourishmentPerStep)
	case !finiteIn(c.InitialFlint, 0, math.MaxFloat64):
		return fmt.Errorf("%w: initial_flint must be >= 0, got %f", ErrInvalidConfig, c.InitialFlint)
	case !finiteIn(c.FlintWeightCoeff, 0, math.MaxFloat64):
		return fmt.Errorf("%w: flint_weight_coeff must be >= 0, got %f", ErrInvalidConfig, c.FlintWeightCoeff)
	case math.IsNaN(c.TerminalReward) || math.IsInf(c.TerminalReward, 0):
		return fmt.Errorf("%w: terminal_reward must be finite", ErrInvalidConfig)
	case !finiteIn(c.StartRegion, 0, math.MaxFloat64) || c.StartRegion == 0:
		return fmt.Errorf("%w: start_region must be > 0, got %f", ErrInvalidConfig, c.StartRegion)
	}
	return nil
}

// Sites returns the two resource spawn centers at a quarter and three
// quarters of the grid extent.
func (c Config) Sites() [2]Vec2 {
	return [2]Vec2{
		{X: float64(int(float64(c.Width) * 0.25)), Y: float64(int(float64(c.Height) * 0.25))},
		{X: float64(int(float64(c.Width) * 0.75)), Y: float64(int(float64(c.Height) * 0.75))},
	}
}

// PlacementSigma is the standard deviation of resource drops around a site.
func (c Config) PlacementSigma() float64 {
	return 0.1 * float64(min(c.Width, c.Height))
}

// MaxMovementPerStep is a quarter of the distance between the sites: an
// unburdened agent moving this far per step reaches the far site in four
// steps. The transition function does not enforce it.
func (c Config) MaxMovementPerStep() float64 {
	sites := c.Sites()
	return sites[0].Sub(sites[1]).Norm() * 0.25
}

// CarryWeight is the divisor applied to movement for a given flint load.
func (c Config) CarryWeight(carriedFlint float64) float64 {
	return math.Max(1, carriedFlint*c.FlintWeightCoeff)
}

func finiteIn(v, lo, hi float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= lo && v <= hi
}
