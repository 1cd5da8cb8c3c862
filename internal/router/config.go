package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ctxroute/internal/config"
)

// Config holds router settings.
type Config struct {
	Routes             []string
	LearningRate       float64
	Gamma              float64
	ExplorationInitial float64
	ExplorationFinal   float64
	ExplorationDecay   int
	DecayType          DecayType
	MaxStates          int
	StateBuckets       uint64
	// AutoSaveInterval is the number of updates between snapshots; 0 disables.
	AutoSaveInterval int
	// Seed seeds exploration and replay sampling; 0 seeds from the clock.
	Seed uint64

	Cache  CacheConfig
	Replay ReplayConfig
}

// CacheConfig controls the decision cache.
type CacheConfig struct {
	Enabled bool
	Size    int
	TTL     time.Duration
}

// ReplayConfig controls experience replay.
type ReplayConfig struct {
	Enabled   bool
	Capacity  int
	BatchSize int
}

// DefaultConfig returns the router defaults used by the application config.
func DefaultConfig() Config {
	return ConfigFromApp(config.NewDefaultConfig())
}

// ConfigFromApp extracts router settings from the application config.
func ConfigFromApp(app *config.Config) Config {
	routes := make([]string, len(app.Router.Routes))
	copy(routes, app.Router.Routes)

	return Config{
		Routes:             routes,
		LearningRate:       app.Router.LearningRate,
		Gamma:              app.Router.Gamma,
		ExplorationInitial: app.Router.ExplorationInitial,
		ExplorationFinal:   app.Router.ExplorationFinal,
		ExplorationDecay:   app.Router.ExplorationDecay,
		DecayType:          DecayType(app.Router.DecayType),
		MaxStates:          app.Router.MaxStates,
		StateBuckets:       app.Router.StateBuckets,
		AutoSaveInterval:   app.Router.AutoSaveInterval,
		Seed:               app.Router.Seed,
		Cache: CacheConfig{
			Enabled: app.Cache.Enabled,
			Size:    app.Cache.Size,
			TTL:     app.Cache.TTL.Duration(),
		},
		Replay: ReplayConfig{
			Enabled:   app.Replay.Enabled,
			Capacity:  app.Replay.Capacity,
			BatchSize: app.Replay.BatchSize,
		},
	}
}

// Validate checks the config for errors.
func (c Config) Validate() error {
	var errs []error

	if len(c.Routes) == 0 {
		errs = append(errs, ErrNoRoutes)
	}
	seen := make(map[string]bool, len(c.Routes))
	for _, r := range c.Routes {
		if r == "" {
			errs = append(errs, errors.New("route labels must not be empty"))
		}
		if seen[r] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateRoute, r))
		}
		seen[r] = true
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		errs = append(errs, fmt.Errorf("learning rate must be in (0, 1], got %v", c.LearningRate))
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		errs = append(errs, fmt.Errorf("gamma must be in [0, 1], got %v", c.Gamma))
	}
	if c.ExplorationFinal < 0 || c.ExplorationInitial > 1 || c.ExplorationFinal > c.ExplorationInitial {
		errs = append(errs, fmt.Errorf("exploration must satisfy 0 <= final (%v) <= initial (%v) <= 1",
			c.ExplorationFinal, c.ExplorationInitial))
	}
	if c.ExplorationDecay <= 0 {
		errs = append(errs, fmt.Errorf("exploration decay must be positive, got %d", c.ExplorationDecay))
	}
	if _, err := ParseDecayType(string(c.DecayType)); err != nil {
		errs = append(errs, err)
	}
	if c.MaxStates <= 0 {
		errs = append(errs, fmt.Errorf("max states must be positive, got %d", c.MaxStates))
	}
	if c.AutoSaveInterval < 0 {
		errs = append(errs, fmt.Errorf("auto-save interval cannot be negative, got %d", c.AutoSaveInterval))
	}
	if c.Cache.Enabled && c.Cache.Size <= 0 {
		errs = append(errs, fmt.Errorf("cache size must be positive, got %d", c.Cache.Size))
	}
	if c.Replay.Enabled && c.Replay.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("replay capacity must be positive, got %d", c.Replay.Capacity))
	}
	if c.Replay.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("replay batch size cannot be negative, got %d", c.Replay.BatchSize))
	}

	return errors.Join(errs...)
}
