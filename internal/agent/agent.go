package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"flintsim/internal/forage"
	"flintsim/internal/scape"
)

const (
	NameIdle    = "idle"
	NameRandom  = "random"
	NameForager = "forager"
	NameCortex  = "cortex"
)

type factory func(cfg forage.Config, seed int64) (scape.StepAgent, error)

var factories = map[string]factory{
	NameIdle: func(_ forage.Config, _ int64) (scape.StepAgent, error) {
		return NewIdle(newID(NameIdle)), nil
	},
	NameRandom: func(_ forage.Config, seed int64) (scape.StepAgent, error) {
		return NewRandom(newID(NameRandom), seed), nil
	},
	NameForager: func(cfg forage.Config, seed int64) (scape.StepAgent, error) {
		return NewForager(newID(NameForager), cfg, seed), nil
	},
	NameCortex: func(_ forage.Config, seed int64) (scape.StepAgent, error) {
		return NewRandomCortex(newID(NameCortex), seed), nil
	},
}

// New builds a policy by name. The seed only affects stochastic policies.
func New(name string, cfg forage.Config, seed int64) (scape.StepAgent, error) {
	f, ok := factories[strings.TrimSpace(strings.ToLower(name))]
	if !ok {
		return nil, fmt.Errorf("unsupported agent: %s", name)
	}
	return f(cfg, seed)
}

func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newID(kind string) string {
	return kind + "-" + uuid.New().String()
}
