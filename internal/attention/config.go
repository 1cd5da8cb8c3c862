package attention

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/ctxroute/internal/config"
)

// Backend names.
const (
	BackendReference = "reference"
	BackendParallel  = "parallel"
)

// Config holds engine settings.
type Config struct {
	BlockSize   int     `json:"blockSize"`
	Temperature float64 `json:"temperature"`
	// TiledThreshold is the N*M above which the tiled path is used.
	TiledThreshold int    `json:"tiledThreshold"`
	Backend        string `json:"backend"`
	// Workers bounds the parallel backend; 0 means GOMAXPROCS.
	Workers int `json:"workers"`
	// Warmup is the number of untimed benchmark runs per path.
	Warmup int `json:"warmup"`
	// Seed seeds benchmark vector generation; 0 seeds from the clock.
	Seed uint64 `json:"seed"`
}

// ConfigPatch holds optional changes for SetConfig. Nil fields are kept.
type ConfigPatch struct {
	BlockSize      *int     `json:"blockSize,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	TiledThreshold *int     `json:"tiledThreshold,omitempty"`
	Warmup         *int     `json:"warmup,omitempty"`
	// Backend may only repeat the current backend.
	Backend *string `json:"backend,omitempty"`
}

// DefaultConfig returns the engine defaults used by the application config.
func DefaultConfig() Config {
	return ConfigFromApp(config.NewDefaultConfig())
}

// ConfigFromApp extracts engine settings from the application config.
func ConfigFromApp(app *config.Config) Config {
	return Config{
		BlockSize:      app.Attention.BlockSize,
		Temperature:    app.Attention.Temperature,
		TiledThreshold: app.Attention.TiledThreshold,
		Backend:        app.Attention.Backend,
		Workers:        app.Attention.Workers,
		Warmup:         app.Benchmark.Warmup,
		Seed:           app.Benchmark.Seed,
	}
}

// Validate checks the config for errors.
func (c Config) Validate() error {
	var errs []error
	if c.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("block size must be positive, got %d", c.BlockSize))
	}
	if c.Temperature <= 0 {
		errs = append(errs, fmt.Errorf("temperature must be positive, got %v", c.Temperature))
	}
	if c.TiledThreshold < 0 {
		errs = append(errs, fmt.Errorf("tiled threshold cannot be negative, got %d", c.TiledThreshold))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers cannot be negative, got %d", c.Workers))
	}
	if c.Warmup < 0 {
		errs = append(errs, fmt.Errorf("warmup cannot be negative, got %d", c.Warmup))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// apply returns c with p applied.
func (c Config) apply(p ConfigPatch) (Config, error) {
	if p.Backend != nil && *p.Backend != c.Backend {
		return c, fmt.Errorf("%w: backend is fixed at construction (%s)", ErrInvalidConfig, c.Backend)
	}
	if p.BlockSize != nil {
		c.BlockSize = *p.BlockSize
	}
	if p.Temperature != nil {
		c.Temperature = *p.Temperature
	}
	if p.TiledThreshold != nil {
		c.TiledThreshold = *p.TiledThreshold
	}
	if p.Warmup != nil {
		c.Warmup = *p.Warmup
	}
	return c, c.Validate()
}
