package forage

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// clearedEnv returns a reset environment with an empty grid and the agent
// parked at the origin, far from both sites.
func clearedEnv(t *testing.T) *Env {
	t.Helper()
	env, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	env.state.Grid = NewGrid(env.cfg.Width, env.cfg.Height)
	env.state.Position = Vec2{}
	return env
}

func stepOrFail(t *testing.T, env *Env, action []float64) StepResult {
	t.Helper()
	result, err := env.Step(action)
	if err != nil {
		t.Fatalf("step %v: %v", action, err)
	}
	return result
}

func TestResetInitialState(t *testing.T) {
	cfg := DefaultConfig()
	env, err := New(cfg)
	if err != nil {
		t.Fatalf("new env: %v", err)
	}

	for i := 0; i < 20; i++ {
		state := env.Reset()
		if got := state.Grid.TotalFood(); got != float64(cfg.FoodPerStep*2) {
			t.Fatalf("expected %d food after reset, got %f", cfg.FoodPerStep*2, got)
		}
		if state.Grid.TotalFlint() != 0 {
			t.Fatalf("expected no flint on the grid, got %f", state.Grid.TotalFlint())
		}
		if state.Nourishment != cfg.InitialNourishment || state.CarriedFlint != cfg.InitialFlint {
			t.Fatalf("unexpected initial resources: %+v", state)
		}
		p := state.Position
		if p.X < 0 || p.X >= 10 || p.Y < 0 || p.Y >= 10 {
			t.Fatalf("start position out of region: %+v", p)
		}
		if env.Steps() != 0 || env.TotalReward() != 0 {
			t.Fatalf("expected counters zeroed, steps=%d reward=%f", env.Steps(), env.TotalReward())
		}
	}
}

func TestMoveDirections(t *testing.T) {
	env := clearedEnv(t)
	env.state.CarriedFlint = 0

	cases := []struct {
		action Action
		want   Vec2
	}{
		{Action{1, 0, 0, 0, 0}, Vec2{X: 1, Y: 2}},
		{Action{0, 1, 0, 0, 0}, Vec2{X: 2, Y: 1}},
		{Action{0, 0, 1, 0, 0}, Vec2{X: 1, Y: 0}},
		{Action{0, 0, 0, 1, 0}, Vec2{X: 0, Y: 1}},
		{Action{1, 1, 1, 1, 0}, Vec2{X: 1, Y: 1}},
	}
	for _, tc := range cases {
		env.state.Position = Vec2{X: 1, Y: 1}
		env.move(tc.action)
		if env.state.Position != tc.want {
			t.Fatalf("action %v: expected %+v, got %+v", tc.action, tc.want, env.state.Position)
		}
	}
}

func TestMoveIsSlowedByCarriedFlint(t *testing.T) {
	env := clearedEnv(t)
	env.state.CarriedFlint = 4
	env.state.Position = Vec2{X: 1, Y: 1}

	env.move(Action{0, 2, 0, 0, 0})
	if math.Abs(env.state.Position.X-1.5) > 1e-12 || env.state.Position.Y != 1 {
		t.Fatalf("expected (1.5, 1) with load 4, got %+v", env.state.Position)
	}

	// light loads never speed the agent up
	env.state.CarriedFlint = 0.5
	env.state.Position = Vec2{X: 1, Y: 1}
	env.move(Action{0, 1, 0, 0, 0})
	if env.state.Position != (Vec2{X: 2, Y: 1}) {
		t.Fatalf("expected (2, 1) with load 0.5, got %+v", env.state.Position)
	}
}

func TestMoveDoesNotClampPosition(t *testing.T) {
	env := clearedEnv(t)
	env.state.CarriedFlint = 0
	env.move(Action{0, 0, 7, 3, 0})
	if env.state.Position != (Vec2{X: -3, Y: -7}) {
		t.Fatalf("expected unclamped (-3, -7), got %+v", env.state.Position)
	}
}

func TestEatTransfersFoodRegardlessOfFlint(t *testing.T) {
	env := clearedEnv(t)
	env.state.CarriedFlint = 0
	env.state.Nourishment = 0
	env.state.Grid.AddFood(0, 0, 1)

	if gained := env.eat(); gained != 1 {
		t.Fatalf("expected to gain 1, got %f", gained)
	}
	if env.state.Nourishment != 1 || env.state.Grid.Food(0, 0) != 0 || env.state.CarriedFlint != 0 {
		t.Fatalf("unexpected state after eating: %+v food=%f", env.state, env.state.Grid.Food(0, 0))
	}
}

func TestEatIsCappedPerStep(t *testing.T) {
	env := clearedEnv(t)
	env.state.Nourishment = 0
	env.state.Grid.AddFood(0, 0, 12)

	if gained := env.eat(); gained != 5 {
		t.Fatalf("expected capped gain 5, got %f", gained)
	}
	if env.state.Grid.Food(0, 0) != 7 || env.state.Nourishment != 5 || env.FoodEaten() != 5 {
		t.Fatalf("unexpected state: food=%f nourishment=%f eaten=%f",
			env.state.Grid.Food(0, 0), env.state.Nourishment, env.FoodEaten())
	}
}

func TestEatWithoutFoodGainsNothing(t *testing.T) {
	env := clearedEnv(t)
	before := env.state.Nourishment
	if gained := env.eat(); gained != 0 || env.state.Nourishment != before {
		t.Fatalf("expected no gain, got %f nourishment=%f", gained, env.state.Nourishment)
	}
}

func TestPickUpFlint(t *testing.T) {
	env := clearedEnv(t)
	env.state.CarriedFlint = 0
	env.state.Grid.AddFlint(0, 0, 1)

	env.pickUpFlint()
	if env.state.CarriedFlint != 1 || env.state.Grid.Flint(0, 0) != 0 {
		t.Fatalf("expected flint moved to agent, carried=%f cell=%f", env.state.CarriedFlint, env.state.Grid.Flint(0, 0))
	}
}

func TestDiscardFlint(t *testing.T) {
	env := clearedEnv(t)
	env.state.CarriedFlint = 4

	env.discardFlint(0.75)
	if env.state.CarriedFlint != 1 || env.state.Grid.Flint(0, 0) != 3 {
		t.Fatalf("expected carried 1 and cell 3, carried=%f cell=%f", env.state.CarriedFlint, env.state.Grid.Flint(0, 0))
	}
}

func TestDecay(t *testing.T) {
	cfg := DefaultConfig()
	env := clearedEnv(t)

	if env.decay() {
		t.Fatal("first decay should not be terminal")
	}
	if env.state.Nourishment >= cfg.InitialNourishment {
		t.Fatalf("expected nourishment to decrease, got %f", env.state.Nourishment)
	}
	if env.state.CarriedFlint != cfg.InitialFlint {
		t.Fatalf("decay changed carried flint: %f", env.state.CarriedFlint)
	}

	env.state.Nourishment = cfg.InitialNourishment
	flips := 0
	calls := 0
	for env.state.Nourishment > 0 {
		calls++
		if env.decay() {
			flips++
			if env.state.Nourishment != 0 {
				t.Fatalf("terminal decay left nourishment %f", env.state.Nourishment)
			}
		}
	}
	if flips != 1 {
		t.Fatalf("expected exactly one terminal flip, got %d", flips)
	}
	if want := int(cfg.InitialNourishment / cfg.DecayPerStep); calls != want {
		t.Fatalf("expected %d decays to starve, got %d", want, calls)
	}
}

func TestDecayClampsAtZero(t *testing.T) {
	env := clearedEnv(t)
	env.state.Nourishment = 3
	if !env.decay() || env.state.Nourishment != 0 {
		t.Fatalf("expected clamped terminal decay, nourishment=%f", env.state.Nourishment)
	}
}

func TestCellIndexAlwaysInBounds(t *testing.T) {
	grid := NewGrid(100, 100)
	cases := []struct {
		p     Vec2
		wantX int
		wantY int
	}{
		{Vec2{X: 0, Y: 0}, 0, 0},
		{Vec2{X: 1.9, Y: 2.1}, 1, 2},
		{Vec2{X: -0.5, Y: -1e9}, 0, 0},
		{Vec2{X: 99.99, Y: 150}, 99, 99},
		{Vec2{X: 1e300, Y: -1e300}, 99, 0},
		{Vec2{X: math.Inf(1), Y: math.Inf(-1)}, 99, 0},
		{Vec2{X: math.NaN(), Y: 42.7}, 0, 42},
	}
	for _, tc := range cases {
		x, y := grid.CellIndex(tc.p)
		if x != tc.wantX || y != tc.wantY {
			t.Fatalf("index for %+v: expected (%d, %d), got (%d, %d)", tc.p, tc.wantX, tc.wantY, x, y)
		}
		_ = grid.Food(x, y)
	}
}

func TestStepRejectsInvalidActionWithoutMutation(t *testing.T) {
	env, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	before := env.State()

	invalid := [][]float64{
		nil,
		{1, 0, 0, 0},
		{1, 0, 0, 0, 0, 0},
		{math.NaN(), 0, 0, 0, 0},
		{0, math.Inf(1), 0, 0, 0},
		{0, 0, 0, 0, 1.5},
		{0, 0, 0, 0, -0.1},
	}
	for _, action := range invalid {
		if _, err := env.Step(action); !errors.Is(err, ErrInvalidAction) {
			t.Fatalf("action %v: expected invalid action error, got %v", action, err)
		}
	}

	after := env.State()
	if before.Position != after.Position || before.Nourishment != after.Nourishment || before.CarriedFlint != after.CarriedFlint {
		t.Fatalf("rejected actions mutated state: before=%+v after=%+v", before, after)
	}
	if !mat.Equal(before.Grid.FoodLayer(), after.Grid.FoodLayer()) || !mat.Equal(before.Grid.FlintLayer(), after.Grid.FlintLayer()) {
		t.Fatal("rejected actions mutated the grid")
	}
	if env.Steps() != 0 {
		t.Fatalf("rejected actions counted as steps: %d", env.Steps())
	}
}

func TestStepTerminalSkipsReplenish(t *testing.T) {
	env := clearedEnv(t)
	env.state.Nourishment = env.cfg.DecayPerStep

	result := stepOrFail(t, env, []float64{0, 0, 0, 0, 0})
	if !result.Done || result.Reward != -100 || result.State.Nourishment != 0 {
		t.Fatalf("expected terminal step with -100 reward, got %+v", result)
	}
	if result.State.Grid.TotalFood() != 0 || result.State.Grid.TotalFlint() != 0 {
		t.Fatal("terminal step should not replenish the grid")
	}
	if len(result.Info) != 0 {
		t.Fatalf("expected empty info, got %v", result.Info)
	}
}

func TestStepReplenishesBothSites(t *testing.T) {
	env := clearedEnv(t)

	result := stepOrFail(t, env, []float64{0, 0, 0, 0, 0})
	if result.Done || result.Reward != 0 || result.State.Nourishment != 90 {
		t.Fatalf("unexpected step result: %+v", result)
	}
	if got := result.State.Grid.TotalFood(); got != float64(env.cfg.FoodPerStep*2) {
		t.Fatalf("expected %d food after replenish, got %f", env.cfg.FoodPerStep*2, got)
	}
	if flint := result.State.Grid.TotalFlint(); flint != 0 && flint != 1 && flint != 2 {
		t.Fatalf("flint drops are whole units, got %f", flint)
	}
}

func TestStepRewardIsFoodEaten(t *testing.T) {
	env := clearedEnv(t)
	env.state.CarriedFlint = 0
	env.state.Grid.AddFood(0, 1, 3)

	result := stepOrFail(t, env, []float64{1, 0, 0, 0, 0})
	if result.Reward != 3 || result.State.Nourishment != 93 {
		t.Fatalf("expected reward 3 and nourishment 93, got %+v", result)
	}
	if env.TotalReward() != 3 || env.Steps() != 1 {
		t.Fatalf("unexpected counters: reward=%f steps=%d", env.TotalReward(), env.Steps())
	}
}

func TestStepDiscardIsFollowedByPickup(t *testing.T) {
	env := clearedEnv(t)
	env.state.CarriedFlint = 4

	result := stepOrFail(t, env, []float64{0, 0, 0, 0, 1})
	if result.State.CarriedFlint != 4 || result.State.Grid.Flint(0, 0) != 0 {
		t.Fatalf("expected discarded flint picked up again, carried=%f cell=%f",
			result.State.CarriedFlint, result.State.Grid.Flint(0, 0))
	}
}

func TestStepReturnsIsolatedSnapshot(t *testing.T) {
	env := clearedEnv(t)
	result := stepOrFail(t, env, []float64{0, 0, 0, 0, 0})

	result.State.Grid.AddFood(0, 0, 50)
	result.State.Nourishment = -1
	if env.State().Grid.Food(0, 0) != 0 || env.State().Nourishment != 90 {
		t.Fatal("mutating a snapshot leaked into the environment")
	}
}

func TestSameSeedSameTrajectory(t *testing.T) {
	a, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("new env a: %v", err)
	}
	b, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("new env b: %v", err)
	}

	action := []float64{0.8, 1.2, 0.1, 0.3, 0.25}
	for i := 0; i < 9; i++ {
		ra := stepOrFail(t, a, action)
		rb := stepOrFail(t, b, action)
		if ra.Reward != rb.Reward || ra.Done != rb.Done || ra.State.Position != rb.State.Position {
			t.Fatalf("step %d diverged: %+v vs %+v", i, ra, rb)
		}
		if !mat.Equal(ra.State.Grid.FoodLayer(), rb.State.Grid.FoodLayer()) ||
			!mat.Equal(ra.State.Grid.FlintLayer(), rb.State.Grid.FlintLayer()) {
			t.Fatalf("step %d grids diverged", i)
		}
	}
}

func TestInjectedSource(t *testing.T) {
	env, err := NewWithSource(DefaultConfig(), rand.NewPCG(7, 11))
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	if env.State().Grid.TotalFood() != 10 {
		t.Fatalf("expected 10 food after reset, got %f", env.State().Grid.TotalFood())
	}

	if _, err := NewWithSource(DefaultConfig(), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config for nil source, got %v", err)
	}
}

func TestPlacementStaysNearSites(t *testing.T) {
	env := clearedEnv(t)
	sigma := env.cfg.PlacementSigma()
	for i := 0; i < 500; i++ {
		x, y := env.placementCell(1)
		if math.Abs(float64(x)-75) > 6*sigma || math.Abs(float64(y)-75) > 6*sigma {
			t.Fatalf("placement (%d, %d) too far from site", x, y)
		}
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	mutations := []func(*Config){
		func(c *Config) { c.Width = 0 },
		func(c *Config) { c.Height = -1 },
		func(c *Config) { c.FoodPerStep = -1 },
		func(c *Config) { c.FlintPerFood = 1.5 },
		func(c *Config) { c.DecayPerStep = math.NaN() },
		func(c *Config) { c.StartRegion = 0 },
		func(c *Config) { c.TerminalReward = math.Inf(-1) },
	}
	for i, mutate := range mutations {
		cfg := DefaultConfig()
		mutate(&cfg)
		if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("mutation %d: expected invalid config error, got %v", i, err)
		}
	}
}

func TestConfigDerivedValues(t *testing.T) {
	cfg := DefaultConfig()
	sites := cfg.Sites()
	if sites[0] != (Vec2{X: 25, Y: 25}) || sites[1] != (Vec2{X: 75, Y: 75}) {
		t.Fatalf("unexpected sites: %+v", sites)
	}
	if cfg.PlacementSigma() != 10 {
		t.Fatalf("expected sigma 10, got %f", cfg.PlacementSigma())
	}
	if math.Abs(cfg.MaxMovementPerStep()-math.Hypot(50, 50)*0.25) > 1e-12 {
		t.Fatalf("unexpected max movement %f", cfg.MaxMovementPerStep())
	}
	if cfg.CarryWeight(0) != 1 || cfg.CarryWeight(10) != 10 {
		t.Fatalf("unexpected carry weights: %f %f", cfg.CarryWeight(0), cfg.CarryWeight(10))
	}
}
