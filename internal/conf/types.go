package conf

import "google.golang.org/protobuf/types/known/durationpb"

// Bootstrap is the root configuration structure.
type Bootstrap struct {
	Server     *Server
	Data       *Data
	Resilience *Resilience
	Log        *Log
}

// Server holds transport server configuration.
type Server struct {
	Http *Server_HTTP
	Grpc *Server_GRPC
}

// Server_HTTP holds HTTP server configuration.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Server_GRPC holds gRPC server configuration.
type Server_GRPC struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds data layer configuration.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database holds database connection configuration.
// The database stores alert history; it is optional and the service
// degrades to in-memory history when no DSN is configured.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis holds Redis connection configuration.
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Resilience holds the protective-core configuration: circuit breakers,
// rate limiter actions, pool monitor and alert monitor thresholds.
type Resilience struct {
	// Breaker holds default breaker settings applied to every dependency.
	Breaker *Resilience_Breaker
	// Breakers holds per-dependency overrides keyed by breaker name
	// (e.g. "email-service", "database").
	Breakers map[string]*Resilience_Breaker
	// RateLimit holds rate limiter configuration.
	RateLimit *Resilience_RateLimit
	// Pool holds pool monitor configuration.
	Pool *Resilience_Pool
	// Alerts holds alert monitor configuration.
	Alerts *Resilience_Alerts
	// Webhook holds the alert notification channel configuration.
	Webhook *Resilience_Webhook
}

// Resilience_Breaker holds circuit breaker thresholds.
type Resilience_Breaker struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int32
	// SuccessThreshold is the number of consecutive half-open successes that closes it.
	SuccessThreshold int32
	// Timeout is how long the breaker stays open before allowing a probe call.
	Timeout *durationpb.Duration
	// HealthCheckInterval enables background health probing when positive.
	HealthCheckInterval *durationpb.Duration
}

// Resilience_RateLimit holds fixed-window rate limiter configuration.
type Resilience_RateLimit struct {
	// DefaultWindow and DefaultMaxRequests apply to actions without an entry in Actions.
	DefaultWindow      *durationpb.Duration
	DefaultMaxRequests int32
	// SweepInterval is how often expired window entries are removed.
	SweepInterval *durationpb.Duration
	// Actions holds per-action window configuration keyed by action name
	// (e.g. "send-mail", "search").
	Actions map[string]*Resilience_RateLimitAction
}

// Resilience_RateLimitAction holds one action's window configuration.
type Resilience_RateLimitAction struct {
	Window      *durationpb.Duration
	MaxRequests int32
}

// Resilience_Pool holds pool monitor configuration.
type Resilience_Pool struct {
	// MaxEvents bounds the pool event log (oldest evicted first).
	MaxEvents int32
	// ResetInterval is the periodic full metrics reset (metric rollover).
	ResetInterval *durationpb.Duration
}

// Resilience_Alerts holds alert monitor configuration.
type Resilience_Alerts struct {
	// MetricsWindow is the periodic counter reset interval.
	MetricsWindow *durationpb.Duration
}

// Resilience_Webhook holds the webhook notification channel configuration.
// An empty URL disables webhook delivery (alerts are only logged).
type Resilience_Webhook struct {
	Url      string
	Secret   string
	ProxyUrl string
	Timeout  *durationpb.Duration
}

// Log holds logging configuration.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
