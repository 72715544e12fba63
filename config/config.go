// Package config loads engine settings from a file and the environment and
// builds pools, schedulers and processor queues from them.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/eligu/se-uom-vcs-sub001/core"
)

// EnvPrefix prefixes environment overrides, e.g. ENGINE_POOL_WORKERS=8.
const EnvPrefix = "ENGINE"

const (
	SchedulerStatic  = "static"
	SchedulerBounded = "bounded"

	StrategySerial          = "serial"
	StrategyParallel        = "parallel"
	StrategyBoundedParallel = "bounded-parallel"
)

// Config is the root engine configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Queues    []QueueConfig   `mapstructure:"queues"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type LoggingConfig struct {
	// Level is a logrus level name.
	Level string `mapstructure:"level"`
}

type PoolConfig struct {
	ID      string `mapstructure:"id"`
	Workers int    `mapstructure:"workers"`
}

type TaskTypeConfig struct {
	Name string `mapstructure:"name"`
	// MaxThreads of 0 means core.UnlimitedThreads.
	MaxThreads int `mapstructure:"max-threads"`
}

type SchedulerConfig struct {
	ID              string           `mapstructure:"id"`
	Kind            string           `mapstructure:"kind"`
	MaxOutstanding  int              `mapstructure:"max-outstanding"`
	RecheckInterval time.Duration    `mapstructure:"recheck-interval"`
	Types           []TaskTypeConfig `mapstructure:"types"`
}

type QueueConfig struct {
	ID       string `mapstructure:"id"`
	Strategy string `mapstructure:"strategy"`
	// TaskQueueSize is the admission capacity of a bounded-parallel queue and
	// must be at least the pool worker count.
	TaskQueueSize int `mapstructure:"task-queue-size"`
}

type MetricsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Namespace    string        `mapstructure:"namespace"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("pool.id", "engine-pool")
	v.SetDefault("pool.workers", 4)
	v.SetDefault("scheduler.id", "engine-scheduler")
	v.SetDefault("scheduler.kind", SchedulerStatic)
	v.SetDefault("scheduler.recheck-interval", "250ms")
	v.SetDefault("metrics.namespace", "engine")
	v.SetDefault("metrics.poll-interval", "1s")
}

// Load reads path (YAML, JSON or TOML by extension) when non-empty, applies
// ENGINE_* environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, core.ConfigErrorf("decoding config: %v", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports every problem at once as a configuration error.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Pool.Workers < 1 {
		add("pool.workers must be at least 1, got %d", c.Pool.Workers)
	}

	switch c.Scheduler.Kind {
	case SchedulerStatic, SchedulerBounded:
	default:
		add("scheduler.kind %q is not one of %s, %s", c.Scheduler.Kind, SchedulerStatic, SchedulerBounded)
	}
	if c.Scheduler.MaxOutstanding < 0 {
		add("scheduler.max-outstanding must not be negative")
	}
	if c.Scheduler.RecheckInterval < 0 {
		add("scheduler.recheck-interval must not be negative")
	}
	names := make(map[string]bool, len(c.Scheduler.Types))
	for i, t := range c.Scheduler.Types {
		if t.Name == "" {
			add("scheduler.types[%d] has no name", i)
		}
		if names[t.Name] {
			add("scheduler.types[%d] %q is declared twice", i, t.Name)
		}
		names[t.Name] = true
		if t.MaxThreads < 0 {
			add("scheduler.types[%d] %q: max-threads must not be negative", i, t.Name)
		}
	}

	ids := make(map[string]bool, len(c.Queues))
	for i, q := range c.Queues {
		if q.ID != "" && ids[q.ID] {
			add("queues[%d] id %q is declared twice", i, q.ID)
		}
		ids[q.ID] = true
		switch q.Strategy {
		case StrategySerial, StrategyParallel:
		case StrategyBoundedParallel:
			if q.TaskQueueSize < c.Pool.Workers {
				add("queues[%d] %q: task-queue-size %d is smaller than pool.workers %d", i, q.ID, q.TaskQueueSize, c.Pool.Workers)
			}
		default:
			add("queues[%d] %q: unknown strategy %q", i, q.ID, q.Strategy)
		}
	}

	if c.Metrics.PollInterval < 0 {
		add("metrics.poll-interval must not be negative")
	}

	if len(problems) == 0 {
		return nil
	}
	return core.ConfigErrorf("invalid engine config: %s", strings.Join(problems, "; "))
}

// Queue returns the queue settings with the given id.
func (c *Config) Queue(id string) (QueueConfig, error) {
	for _, q := range c.Queues {
		if q.ID == id {
			return q, nil
		}
	}
	return QueueConfig{}, core.ConfigErrorf("no queue %q configured", id)
}
