// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment
// variables, with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

// Bootstrap is the root runtime configuration.
type Bootstrap struct {
	Server *Server
	Log    *Log
	Guards *Guards
}

// Server holds transport configuration.
type Server struct {
	Http *ServerHTTP
}

// ServerHTTP configures the HTTP listener.
type ServerHTTP struct {
	Network string
	Addr    string
	Timeout time.Duration
}

// Log configures the zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}

// Guards configures the resilience primitives built at startup.
type Guards struct {
	Breakers []*Breaker `mapstructure:"breakers"`
	Limiters []*Limiter `mapstructure:"limiters"`
	Sweep    *Sweep     `mapstructure:"sweep"`
	MaxKeys  int        `mapstructure:"max_keys"`
}

// Breaker configures one circuit breaker, one per downstream dependency.
type Breaker struct {
	Name             string        `mapstructure:"name"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
}

// Limiter configures one fixed-window rate limiter. Each named limiter owns
// an isolated key space; endpoints share a limiter only by naming the same
// one explicitly.
type Limiter struct {
	Name   string        `mapstructure:"name"`
	Calls  int           `mapstructure:"calls"`
	Period time.Duration `mapstructure:"period"`
}

// Sweep configures the periodic stale-key cleanup of limiter key tables.
type Sweep struct {
	Interval time.Duration `mapstructure:"interval"`
	MaxIdle  time.Duration `mapstructure:"max_idle"`
}

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the given file path, applies defaults, and
// allows overrides from environment variables prefixed with GUARDLANE_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("GUARDLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &ServerHTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: v.GetDuration("server.http.timeout"),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
		Guards: &Guards{
			MaxKeys: v.GetInt("guards.max_keys"),
			Sweep: &Sweep{
				Interval: v.GetDuration("guards.sweep.interval"),
				MaxIdle:  v.GetDuration("guards.sweep.max_idle"),
			},
		},
	}

	if err := v.UnmarshalKey("guards.breakers", &bc.Guards.Breakers); err != nil {
		return nil, fmt.Errorf("failed to parse guards.breakers: %w", err)
	}
	if err := v.UnmarshalKey("guards.limiters", &bc.Guards.Limiters); err != nil {
		return nil, fmt.Errorf("failed to parse guards.limiters: %w", err)
	}

	applyGuardDefaults(bc.Guards)

	if err := bc.Validate(); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("guards.max_keys", 65536)
	v.SetDefault("guards.sweep.interval", 5*time.Minute)
	v.SetDefault("guards.sweep.max_idle", 10*time.Minute)
}

// applyGuardDefaults fills per-guard defaults for fields the config file
// omits.
func applyGuardDefaults(g *Guards) {
	for _, b := range g.Breakers {
		if b.FailureThreshold == 0 {
			b.FailureThreshold = 3
		}
		if b.RecoveryTimeout == 0 {
			b.RecoveryTimeout = 30 * time.Second
		}
	}
}

// Validate checks the loaded configuration for consistency.
func (bc *Bootstrap) Validate() error {
	return validation.ValidateStruct(bc,
		validation.Field(&bc.Server, validation.Required),
		validation.Field(&bc.Log, validation.Required, validation.By(validateLog)),
		validation.Field(&bc.Guards, validation.Required, validation.By(validateGuards)),
	)
}

func validateLog(value interface{}) error {
	lc, ok := value.(*Log)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a Log config")
	}
	return validation.ValidateStruct(lc,
		validation.Field(&lc.Level,
			validation.Required,
			validation.In("debug", "info", "warn", "error"),
		),
		validation.Field(&lc.Format,
			validation.Required,
			validation.In("json", "console"),
		),
	)
}

func validateGuards(value interface{}) error {
	g, ok := value.(*Guards)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a Guards config")
	}

	if err := validation.ValidateStruct(g,
		validation.Field(&g.MaxKeys, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}

	for _, b := range g.Breakers {
		if err := validation.ValidateStruct(b,
			validation.Field(&b.Name, validation.Required),
			validation.Field(&b.FailureThreshold, validation.Required, validation.Min(1)),
			validation.Field(&b.RecoveryTimeout, validation.Required, validation.Min(time.Millisecond)),
		); err != nil {
			return fmt.Errorf("breaker %q: %w", b.Name, err)
		}
	}

	for _, l := range g.Limiters {
		if err := validation.ValidateStruct(l,
			validation.Field(&l.Name, validation.Required),
			validation.Field(&l.Calls, validation.Required, validation.Min(1)),
			validation.Field(&l.Period, validation.Required, validation.Min(time.Millisecond)),
		); err != nil {
			return fmt.Errorf("limiter %q: %w", l.Name, err)
		}
	}

	if g.Sweep != nil && g.Sweep.Interval > 0 {
		if g.Sweep.MaxIdle <= 0 {
			return fmt.Errorf("guards.sweep.max_idle must be positive when sweeping is enabled")
		}
		// A sweep shorter than the longest window would evict live keys
		// mid-window and hand their clients a fresh quota.
		for _, l := range g.Limiters {
			if g.Sweep.MaxIdle < l.Period {
				return fmt.Errorf("guards.sweep.max_idle (%s) must cover limiter %q period (%s)",
					g.Sweep.MaxIdle, l.Name, l.Period)
			}
		}
	}

	return nil
}
