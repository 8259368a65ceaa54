package forage

import "math"

// move displaces the agent by the action's direction weights divided by the
// carry weight. The position itself is never clamped.
func (e *Env) move(a Action) {
	weight := e.cfg.CarryWeight(e.state.CarriedFlint)
	e.state.Position = e.state.Position.Add(a.Displacement().Scale(1 / weight))
}

// eat consumes up to MaxNourishmentPerStep food from the current cell and
// returns the nourishment gained. Carried flint plays no part.
func (e *Env) eat() float64 {
	x, y := e.state.Cell()
	gained := e.state.Grid.TakeFood(x, y, e.cfg.MaxNourishmentPerStep)
	e.state.Nourishment += gained
	e.foodEaten += gained
	return gained
}

// discardFlint drops fraction of the carried flint onto the current cell.
func (e *Env) discardFlint(fraction float64) {
	amount := fraction * e.state.CarriedFlint
	if amount <= 0 {
		return
	}
	x, y := e.state.Cell()
	e.state.Grid.AddFlint(x, y, amount)
	e.state.CarriedFlint = math.Max(0, e.state.CarriedFlint-amount)
}

func (e *Env) pickUpFlint() {
	x, y := e.state.Cell()
	e.state.CarriedFlint += e.state.Grid.TakeFlint(x, y)
}

// decay burns DecayPerStep nourishment and reports whether the episode is now
// terminal.
func (e *Env) decay() bool {
	e.state.Nourishment = math.Max(0, e.state.Nourishment-e.cfg.DecayPerStep)
	return e.state.Nourishment == 0
}

// replenish drops FoodPerStep food units and, with probability FlintPerFood,
// one flint unit around each site.
func (e *Env) replenish() {
	for site := range e.sites {
		e.depositFood(site)
		if e.flintDrop.Rand() == 1 {
			x, y := e.placementCell(site)
			e.state.Grid.AddFlint(x, y, 1)
		}
	}
}

func (e *Env) depositFood(site int) {
	for i := 0; i < e.cfg.FoodPerStep; i++ {
		x, y := e.placementCell(site)
		e.state.Grid.AddFood(x, y, 1)
	}
}

// placementCell samples a Gaussian point around a site and truncates and
// clamps it onto the grid.
func (e *Env) placementCell(site int) (int, int) {
	p := Vec2{X: e.placement[site][0].Rand(), Y: e.placement[site][1].Rand()}
	return e.state.Grid.CellIndex(p)
}
