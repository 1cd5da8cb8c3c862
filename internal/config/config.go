// Package config provides configuration loading for ctxroute.
//
// Configuration is assembled from hardcoded defaults, an optional YAML file,
// and CTXROUTE_* environment variables, in increasing precedence. Each section
// maps onto one component: the Q-learning router, its decision cache and
// replay buffer, the attention engine and its benchmark harness, the snapshot
// store, the memory retrieval index, the HTTP server, logging and telemetry.
package config

import (
	"errors"
	"fmt"
	"time"
)

// DefaultRoutes is the route label set used when none is configured.
var DefaultRoutes = []string{
	"coder", "tester", "reviewer", "architect",
	"researcher", "optimizer", "debugger", "documenter",
}

// Config holds the complete ctxroute configuration.
type Config struct {
	Router        RouterConfig        `koanf:"router"`
	Cache         CacheConfig         `koanf:"cache"`
	Replay        ReplayConfig        `koanf:"replay"`
	Attention     AttentionConfig     `koanf:"attention"`
	Benchmark     BenchmarkConfig     `koanf:"benchmark"`
	Snapshot      SnapshotConfig      `koanf:"snapshot"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// RouterConfig holds Q-learning policy settings.
type RouterConfig struct {
	Routes             []string `koanf:"routes"`
	LearningRate       float64  `koanf:"learning_rate"`
	Gamma              float64  `koanf:"gamma"`
	ExplorationInitial float64  `koanf:"exploration_initial"`
	ExplorationFinal   float64  `koanf:"exploration_final"`
	ExplorationDecay   int      `koanf:"exploration_decay"` // steps
	DecayType          string   `koanf:"decay_type"`        // linear, exponential, cosine
	MaxStates          int      `koanf:"max_states"`
	StateBuckets       uint64   `koanf:"state_buckets"` // 0 = unbounded 64-bit keys
	AutoSaveInterval   int      `koanf:"auto_save_interval"`
	Seed               uint64   `koanf:"seed"` // 0 = time seeded
}

// CacheConfig holds decision cache settings.
type CacheConfig struct {
	Enabled bool     `koanf:"enabled"`
	Size    int      `koanf:"size"`
	TTL     Duration `koanf:"ttl"`
}

// ReplayConfig holds experience replay settings.
type ReplayConfig struct {
	Enabled   bool `koanf:"enabled"`
	Capacity  int  `koanf:"capacity"`
	BatchSize int  `koanf:"batch_size"`
}

// AttentionConfig holds tiled attention engine settings.
type AttentionConfig struct {
	BlockSize      int     `koanf:"block_size"`
	Temperature    float64 `koanf:"temperature"`
	TiledThreshold int     `koanf:"tiled_threshold"` // N*M above which tiling is used
	Backend        string  `koanf:"backend"`         // reference, parallel
	Workers        int     `koanf:"workers"`
}

// BenchmarkConfig holds defaults for the benchmark harness.
type BenchmarkConfig struct {
	NumVectors int    `koanf:"num_vectors"`
	Dimensions int    `koanf:"dimensions"`
	Iterations int    `koanf:"iterations"`
	Warmup     int    `koanf:"warmup"`
	Seed       uint64 `koanf:"seed"`
}

// SnapshotConfig holds model persistence settings.
type SnapshotConfig struct {
	Path  string `koanf:"path"`
	Watch bool   `koanf:"watch"`
}

// RetrievalConfig holds memory index settings.
type RetrievalConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"` // empty = in-memory
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
	Dimensions int    `koanf:"dimensions"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	AttentionRPS    float64       `koanf:"attention_rps"`
}

// LoggingConfig holds the subset of logging settings exposed through config files.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"`
	Insecure        bool   `koanf:"insecure"`
}

// NewDefaultConfig returns the configuration used when nothing is overridden.
func NewDefaultConfig() *Config {
	routes := make([]string, len(DefaultRoutes))
	copy(routes, DefaultRoutes)

	return &Config{
		Router: RouterConfig{
			Routes:             routes,
			LearningRate:       0.1,
			Gamma:              0.99,
			ExplorationInitial: 1.0,
			ExplorationFinal:   0.01,
			ExplorationDecay:   10000,
			DecayType:          "exponential",
			MaxStates:          10000,
			AutoSaveInterval:   100,
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    256,
			TTL:     Duration(5 * time.Minute),
		},
		Replay: ReplayConfig{
			Enabled:   true,
			Capacity:  1000,
			BatchSize: 32,
		},
		Attention: AttentionConfig{
			BlockSize:      64,
			Temperature:    1.0,
			TiledThreshold: 1024,
			Backend:        "reference",
		},
		Benchmark: BenchmarkConfig{
			NumVectors: 512,
			Dimensions: 384,
			Iterations: 10,
			Warmup:     2,
		},
		Snapshot: SnapshotConfig{
			Path: "~/.config/ctxroute/model.json",
		},
		Retrieval: RetrievalConfig{
			Enabled:    true,
			Collection: "memories",
			Dimensions: 384,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9191,
			ShutdownTimeout: 10 * time.Second,
			AttentionRPS:    20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: false,
			ServiceName:     "ctxroute",
			Endpoint:        "localhost:4317",
			Protocol:        "grpc",
			Insecure:        true,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.Router.validate())

	if c.Cache.Enabled {
		if c.Cache.Size <= 0 {
			errs = append(errs, fmt.Errorf("cache.size must be positive when cache is enabled, got %d", c.Cache.Size))
		}
		if c.Cache.TTL.Duration() <= 0 {
			errs = append(errs, errors.New("cache.ttl must be positive when cache is enabled"))
		}
	}

	if c.Replay.Enabled {
		if c.Replay.Capacity <= 0 {
			errs = append(errs, fmt.Errorf("replay.capacity must be positive, got %d", c.Replay.Capacity))
		}
		if c.Replay.BatchSize < 0 {
			errs = append(errs, fmt.Errorf("replay.batch_size cannot be negative, got %d", c.Replay.BatchSize))
		}
	}

	if c.Attention.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("attention.block_size must be positive, got %d", c.Attention.BlockSize))
	}
	if c.Attention.Temperature <= 0 {
		errs = append(errs, fmt.Errorf("attention.temperature must be positive, got %v", c.Attention.Temperature))
	}
	if c.Attention.TiledThreshold < 0 {
		errs = append(errs, fmt.Errorf("attention.tiled_threshold cannot be negative, got %d", c.Attention.TiledThreshold))
	}
	switch c.Attention.Backend {
	case "reference", "parallel":
	default:
		errs = append(errs, fmt.Errorf("attention.backend must be 'reference' or 'parallel', got %q", c.Attention.Backend))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}

	if c.Retrieval.Enabled && c.Retrieval.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.dimensions must be positive, got %d", c.Retrieval.Dimensions))
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		errs = append(errs, errors.New("service name required when telemetry is enabled"))
	}

	return errors.Join(errs...)
}

func (r RouterConfig) validate() error {
	if len(r.Routes) == 0 {
		return errors.New("router.routes must not be empty")
	}
	seen := make(map[string]bool, len(r.Routes))
	for _, route := range r.Routes {
		if route == "" {
			return errors.New("router.routes must not contain empty labels")
		}
		if seen[route] {
			return fmt.Errorf("router.routes contains duplicate label %q", route)
		}
		seen[route] = true
	}
	if r.LearningRate <= 0 || r.LearningRate > 1 {
		return fmt.Errorf("router.learning_rate must be in (0, 1], got %v", r.LearningRate)
	}
	if r.Gamma < 0 || r.Gamma > 1 {
		return fmt.Errorf("router.gamma must be in [0, 1], got %v", r.Gamma)
	}
	if r.ExplorationFinal < 0 || r.ExplorationInitial > 1 || r.ExplorationFinal > r.ExplorationInitial {
		return fmt.Errorf("router exploration must satisfy 0 <= final (%v) <= initial (%v) <= 1",
			r.ExplorationFinal, r.ExplorationInitial)
	}
	if r.ExplorationDecay <= 0 {
		return fmt.Errorf("router.exploration_decay must be positive, got %d", r.ExplorationDecay)
	}
	switch r.DecayType {
	case "linear", "exponential", "cosine":
	default:
		return fmt.Errorf("router.decay_type must be linear, exponential or cosine, got %q", r.DecayType)
	}
	if r.MaxStates <= 0 {
		return fmt.Errorf("router.max_states must be positive, got %d", r.MaxStates)
	}
	if r.AutoSaveInterval < 0 {
		return fmt.Errorf("router.auto_save_interval cannot be negative, got %d", r.AutoSaveInterval)
	}
	return nil
}
