package agent

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"flintsim/internal/forage"
	"flintsim/internal/scape"
)

// Cortex is a single-layer controller: action = f(W*obs + b). Movement
// outputs are rectified, the discard output is squashed into (0, 1).
type Cortex struct {
	id      string
	weights *mat.Dense
	bias    *mat.VecDense
}

// NewCortex builds a controller from row-major weights of shape
// ActionSize x ObservationSize and a bias of length ActionSize.
func NewCortex(id string, weights, bias []float64) (*Cortex, error) {
	if id == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if len(weights) != forage.ActionSize*scape.ObservationSize {
		return nil, fmt.Errorf("cortex requires %d weights, got %d", forage.ActionSize*scape.ObservationSize, len(weights))
	}
	if len(bias) != forage.ActionSize {
		return nil, fmt.Errorf("cortex requires %d biases, got %d", forage.ActionSize, len(bias))
	}
	return &Cortex{
		id:      id,
		weights: mat.NewDense(forage.ActionSize, scape.ObservationSize, append([]float64(nil), weights...)),
		bias:    mat.NewVecDense(forage.ActionSize, append([]float64(nil), bias...)),
	}, nil
}

// NewRandomCortex draws weights and biases uniformly from [-0.5, 0.5).
func NewRandomCortex(id string, seed int64) *Cortex {
	rng := rand.New(rand.NewPCG(uint64(seed), 2))
	weights := make([]float64, forage.ActionSize*scape.ObservationSize)
	for i := range weights {
		weights[i] = rng.Float64() - 0.5
	}
	bias := make([]float64, forage.ActionSize)
	for i := range bias {
		bias[i] = rng.Float64() - 0.5
	}
	c, _ := NewCortex(id, weights, bias)
	return c
}

func (c *Cortex) ID() string {
	return c.id
}

func (c *Cortex) RunStep(_ context.Context, input []float64) ([]float64, error) {
	if len(input) != scape.ObservationSize {
		return nil, fmt.Errorf("cortex expects %d inputs, got %d", scape.ObservationSize, len(input))
	}
	var out mat.VecDense
	out.MulVec(c.weights, mat.NewVecDense(len(input), append([]float64(nil), input...)))
	out.AddVec(&out, c.bias)

	action := make([]float64, forage.ActionSize)
	for i := range action {
		v := out.AtVec(i)
		if i == forage.ActionDiscard {
			action[i] = 1 / (1 + math.Exp(-v))
			continue
		}
		action[i] = math.Max(v, 0)
	}
	return action, nil
}
