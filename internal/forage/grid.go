package forage

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Vec2 is a continuous position or displacement on the grid plane.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

func (v Vec2) Scale(k float64) Vec2 { return Vec2{X: v.X * k, Y: v.Y * k} }

func (v Vec2) Norm() float64 { return math.Hypot(v.X, v.Y) }

// Grid stores the food and flint counters of every cell as two Width x Height
// matrices indexed [x, y].
type Grid struct {
	width  int
	height int
	food   *mat.Dense
	flint  *mat.Dense
}

func NewGrid(width, height int) *Grid {
	return &Grid{
		width:  width,
		height: height,
		food:   mat.NewDense(width, height, nil),
		flint:  mat.NewDense(width, height, nil),
	}
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

// CellIndex converts a continuous position to the cell it falls in. Each
// coordinate is truncated toward zero and clamped into the grid, so any
// position, including negative, huge or infinite ones, maps to a valid cell.
func (g *Grid) CellIndex(p Vec2) (x, y int) {
	return clampIndex(p.X, g.width), clampIndex(p.Y, g.height)
}

func clampIndex(v float64, size int) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= float64(size-1) {
		return size - 1
	}
	return int(v)
}

func (g *Grid) Food(x, y int) float64  { return g.food.At(x, y) }
func (g *Grid) Flint(x, y int) float64 { return g.flint.At(x, y) }

func (g *Grid) AddFood(x, y int, amount float64) {
	g.food.Set(x, y, g.food.At(x, y)+amount)
}

func (g *Grid) AddFlint(x, y int, amount float64) {
	g.flint.Set(x, y, g.flint.At(x, y)+amount)
}

// TakeFood removes up to limit food from a cell and returns the amount taken.
func (g *Grid) TakeFood(x, y int, limit float64) float64 {
	available := g.food.At(x, y)
	taken := math.Min(available, limit)
	if taken <= 0 {
		return 0
	}
	g.food.Set(x, y, available-taken)
	return taken
}

// TakeFlint empties a cell's flint and returns what it held.
func (g *Grid) TakeFlint(x, y int) float64 {
	taken := g.flint.At(x, y)
	g.flint.Set(x, y, 0)
	return taken
}

func (g *Grid) TotalFood() float64  { return mat.Sum(g.food) }
func (g *Grid) TotalFlint() float64 { return mat.Sum(g.flint) }

// FoodLayer and FlintLayer expose read-only views of the counters.
func (g *Grid) FoodLayer() mat.Matrix  { return g.food }
func (g *Grid) FlintLayer() mat.Matrix { return g.flint }

func (g *Grid) Clone() *Grid {
	return &Grid{
		width:  g.width,
		height: g.height,
		food:   mat.DenseCopyOf(g.food),
		flint:  mat.DenseCopyOf(g.flint),
	}
}
