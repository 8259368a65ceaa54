package forage

import (
	"errors"
	"fmt"
	"math"
)

const (
	ActionUp = iota
	ActionRight
	ActionDown
	ActionLeft
	ActionDiscard

	ActionSize
)

var ErrInvalidAction = errors.New("invalid action")

// Action is a validated step input: four movement weights followed by the
// fraction of carried flint to drop.
type Action [ActionSize]float64

// ParseAction checks arity, finiteness and the discard fraction range.
func ParseAction(values []float64) (Action, error) {
	var a Action
	if len(values) != ActionSize {
		return a, fmt.Errorf("%w: expected %d components, got %d", ErrInvalidAction, ActionSize, len(values))
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return a, fmt.Errorf("%w: component %d is not finite", ErrInvalidAction, i)
		}
		a[i] = v
	}
	if a[ActionDiscard] < 0 || a[ActionDiscard] > 1 {
		return a, fmt.Errorf("%w: discard fraction %f outside [0,1]", ErrInvalidAction, a[ActionDiscard])
	}
	return a, nil
}

// Displacement is the unweighted step vector: up is +y, right +x, down -y,
// left -x.
func (a Action) Displacement() Vec2 {
	return Vec2{
		X: a[ActionRight] - a[ActionLeft],
		Y: a[ActionUp] - a[ActionDown],
	}
}
