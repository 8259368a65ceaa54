package main

import (
	"encoding/json"
	"fmt"
	"os"

	"flintsim/internal/forage"
	"flintsim/pkg/flintsim"
)

func loadRunRequestFromConfig(path string) (flintsim.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return flintsim.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return flintsim.RunRequest{}, err
	}

	var req flintsim.RunRequest
	if v, ok := asString(raw["agent"]); ok {
		req.Agent = v
	}
	if v, ok := asInt(raw["episodes"]); ok {
		req.Episodes = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := asInt(raw["max_steps"]); ok {
		req.MaxSteps = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if envMap, ok := raw["environment"].(map[string]any); ok {
		env := forage.DefaultConfig()
		applyEnvironment(&env, envMap)
		req.Environment = &env
	}
	return req, nil
}

// applyEnvironment overrides the fields present in raw; absent keys keep
// their current values.
func applyEnvironment(env *forage.Config, raw map[string]any) {
	if v, ok := asInt(raw["width"]); ok {
		env.Width = v
	}
	if v, ok := asInt(raw["height"]); ok {
		env.Height = v
	}
	if v, ok := asInt(raw["food_per_step"]); ok {
		env.FoodPerStep = v
	}
	if v, ok := asFloat64(raw["flint_per_food"]); ok {
		env.FlintPerFood = v
	}
	if v, ok := asFloat64(raw["decay_per_step"]); ok {
		env.DecayPerStep = v
	}
	if v, ok := asFloat64(raw["initial_nourishment"]); ok {
		env.InitialNourishment = v
	}
	if v, ok := asFloat64(raw["max_nourishment_per_step"]); ok {
		env.MaxNourishmentPerStep = v
	}
	if v, ok := asFloat64(raw["initial_flint"]); ok {
		env.InitialFlint = v
	}
	if v, ok := asFloat64(raw["flint_weight_coeff"]); ok {
		env.FlintWeightCoeff = v
	}
	if v, ok := asFloat64(raw["terminal_reward"]); ok {
		env.TerminalReward = v
	}
	if v, ok := asFloat64(raw["start_region"]); ok {
		env.StartRegion = v
	}
}

func loadOrDefaultRunRequest(configPath string) (flintsim.RunRequest, error) {
	if configPath == "" {
		return flintsim.RunRequest{}, nil
	}
	req, err := loadRunRequestFromConfig(configPath)
	if err != nil {
		return flintsim.RunRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
