// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with FUSEGATE_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Every resilience threshold has a documented default, so an empty config
// file yields a fully working service. The database DSN and Redis address
// are optional: without them alert history stays in memory and the rate
// limiter uses the in-memory window store.
//
// Parameters:
//   - configPath: Path to the configuration file or directory
//
// Returns:
//   - *Bootstrap: Loaded configuration
//   - error: Configuration loading or validation error
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with FUSEGATE_ prefix
	v.SetEnvPrefix("FUSEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without FUSEGATE_ prefix) for compatibility
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "FUSEGATE_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "FUSEGATE_DATA_REDIS_ADDR")
	_ = v.BindEnv("resilience.webhook.url", "WEBHOOK_URL", "FUSEGATE_RESILIENCE_WEBHOOK_URL")
	_ = v.BindEnv("resilience.webhook.secret", "WEBHOOK_SECRET", "FUSEGATE_RESILIENCE_WEBHOOK_SECRET")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
			Grpc: &Server_GRPC{
				Network: v.GetString("server.grpc.network"),
				Addr:    v.GetString("server.grpc.addr"),
				Timeout: durationpb.New(v.GetDuration("server.grpc.timeout")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Resilience: &Resilience{
			Breaker:   breakerFromViper(v, "resilience.breaker"),
			Breakers:  breakersFromViper(v),
			RateLimit: rateLimitFromViper(v),
			Pool: &Resilience_Pool{
				MaxEvents:     v.GetInt32("resilience.pool.max_events"),
				ResetInterval: durationpb.New(v.GetDuration("resilience.pool.reset_interval")),
			},
			Alerts: &Resilience_Alerts{
				MetricsWindow: durationpb.New(v.GetDuration("resilience.alerts.metrics_window")),
			},
			Webhook: &Resilience_Webhook{
				Url:      v.GetString("resilience.webhook.url"),
				Secret:   v.GetString("resilience.webhook.secret"),
				ProxyUrl: v.GetString("resilience.webhook.proxy_url"),
				Timeout:  durationpb.New(v.GetDuration("resilience.webhook.timeout")),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// breakerFromViper reads one breaker config block at the given key prefix.
func breakerFromViper(v *viper.Viper, prefix string) *Resilience_Breaker {
	return &Resilience_Breaker{
		FailureThreshold:    v.GetInt32(prefix + ".failure_threshold"),
		SuccessThreshold:    v.GetInt32(prefix + ".success_threshold"),
		Timeout:             durationpb.New(v.GetDuration(prefix + ".timeout")),
		HealthCheckInterval: durationpb.New(v.GetDuration(prefix + ".health_check_interval")),
	}
}

// breakersFromViper reads per-dependency breaker overrides.
// Unset fields inherit the zero value; the registry falls back to the
// default breaker config for those.
func breakersFromViper(v *viper.Viper) map[string]*Resilience_Breaker {
	names := v.GetStringMap("resilience.breakers")
	if len(names) == 0 {
		return nil
	}

	breakers := make(map[string]*Resilience_Breaker, len(names))
	for name := range names {
		breakers[name] = breakerFromViper(v, "resilience.breakers."+name)
	}
	return breakers
}

// rateLimitFromViper reads rate limiter defaults and per-action configs.
func rateLimitFromViper(v *viper.Viper) *Resilience_RateLimit {
	rl := &Resilience_RateLimit{
		DefaultWindow:      durationpb.New(v.GetDuration("resilience.rate_limit.default_window")),
		DefaultMaxRequests: v.GetInt32("resilience.rate_limit.default_max_requests"),
		SweepInterval:      durationpb.New(v.GetDuration("resilience.rate_limit.sweep_interval")),
	}

	names := v.GetStringMap("resilience.rate_limit.actions")
	if len(names) > 0 {
		rl.Actions = make(map[string]*Resilience_RateLimitAction, len(names))
		for name := range names {
			prefix := "resilience.rate_limit.actions." + name
			rl.Actions[name] = &Resilience_RateLimitAction{
				Window:      durationpb.New(v.GetDuration(prefix + ".window")),
				MaxRequests: v.GetInt32(prefix + ".max_requests"),
			}
		}
	}

	return rl
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 30*time.Second)

	v.SetDefault("server.grpc.network", "tcp")
	v.SetDefault("server.grpc.addr", ":9000")
	v.SetDefault("server.grpc.timeout", 30*time.Second)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is optional; alert history is
	// kept in memory when it is empty.

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Circuit breaker defaults
	v.SetDefault("resilience.breaker.failure_threshold", 5)
	v.SetDefault("resilience.breaker.success_threshold", 2)
	v.SetDefault("resilience.breaker.timeout", 60*time.Second)
	v.SetDefault("resilience.breaker.health_check_interval", 0)

	// Rate limiter defaults (fixed window)
	v.SetDefault("resilience.rate_limit.default_window", 60*time.Second)
	v.SetDefault("resilience.rate_limit.default_max_requests", 100)
	v.SetDefault("resilience.rate_limit.sweep_interval", 5*time.Minute)

	// Pool monitor defaults
	v.SetDefault("resilience.pool.max_events", 1000)
	v.SetDefault("resilience.pool.reset_interval", 24*time.Hour)

	// Alert monitor defaults
	v.SetDefault("resilience.alerts.metrics_window", 5*time.Minute)

	// Webhook defaults
	v.SetDefault("resilience.webhook.timeout", 10*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all configuration fields are consistent.
// It returns an error listing every invalid field.
func Validate(bc *Bootstrap) error {
	var invalid []string

	if bc.Resilience == nil {
		return fmt.Errorf("missing resilience configuration")
	}

	if b := bc.Resilience.Breaker; b != nil {
		if b.FailureThreshold <= 0 {
			invalid = append(invalid, "resilience.breaker.failure_threshold (must be > 0)")
		}
		if b.SuccessThreshold <= 0 {
			invalid = append(invalid, "resilience.breaker.success_threshold (must be > 0)")
		}
		if b.Timeout.AsDuration() <= 0 {
			invalid = append(invalid, "resilience.breaker.timeout (must be > 0)")
		}
	}

	if rl := bc.Resilience.RateLimit; rl != nil {
		if rl.DefaultWindow.AsDuration() <= 0 {
			invalid = append(invalid, "resilience.rate_limit.default_window (must be > 0)")
		}
		if rl.DefaultMaxRequests <= 0 {
			invalid = append(invalid, "resilience.rate_limit.default_max_requests (must be > 0)")
		}
		for name, action := range rl.Actions {
			if action.Window.AsDuration() <= 0 || action.MaxRequests <= 0 {
				invalid = append(invalid, fmt.Sprintf("resilience.rate_limit.actions.%s (window and max_requests must be > 0)", name))
			}
		}
	}

	if p := bc.Resilience.Pool; p != nil && p.MaxEvents <= 0 {
		invalid = append(invalid, "resilience.pool.max_events (must be > 0)")
	}

	if w := bc.Resilience.Webhook; w != nil && w.Url != "" {
		if !strings.HasPrefix(w.Url, "http://") && !strings.HasPrefix(w.Url, "https://") {
			invalid = append(invalid, "resilience.webhook.url (must be http or https)")
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration fields: %s", strings.Join(invalid, ", "))
	}

	return nil
}
