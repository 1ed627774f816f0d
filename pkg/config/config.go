package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cortexops/gateway/pkg/types"
)

// Config holds the full gateway configuration, assembled from environment
// variables plus an optional YAML route-table file.
type Config struct {
	Port     int
	DataDir  string
	LogLevel string
	LogJSON  bool

	// Signing secrets. Both are required; startup fails without them.
	JWTSecret      string
	InternalSecret string

	HealthCheckInterval time.Duration
	ProxyTimeout        time.Duration
	ProxyMaxRetries     int

	TaskPoolSize int
	QueueSize    int

	StreamTimeout   time.Duration
	StreamKeepalive time.Duration

	Routes RouteTables
}

// RouteMode controls whether a system-plane prefix is handled in-process
// or forwarded to a backend
type RouteMode string

const (
	ModeLocal   RouteMode = "local"
	ModeForward RouteMode = "forward"
)

// Route maps one URL prefix to a backend service
type Route struct {
	Prefix  string    `yaml:"prefix"`
	Service string    `yaml:"service"`
	Mode    RouteMode `yaml:"mode,omitempty"`
}

// PlaneRoutes is the routing table for one API plane
type PlaneRoutes struct {
	// PathPrefix is prepended to the remainder of the request path when
	// building the upstream target (e.g. "/api", "/api/v1").
	PathPrefix string         `yaml:"path_prefix"`
	Strategy   types.Strategy `yaml:"strategy,omitempty"`
	Routes     []Route        `yaml:"routes"`
}

// RouteTables holds the per-plane routing tables
type RouteTables struct {
	Frontend PlaneRoutes `yaml:"frontend"`
	V1       PlaneRoutes `yaml:"v1"`
	System   PlaneRoutes `yaml:"system"`
}

// Lookup returns the route whose prefix matches, or nil.
func (p *PlaneRoutes) Lookup(prefix string) *Route {
	for i := range p.Routes {
		if p.Routes[i].Prefix == prefix {
			return &p.Routes[i]
		}
	}
	return nil
}

// FromEnv builds a Config from environment variables. Missing required
// secrets are an error so the process can refuse to start.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:                envInt("GATEWAY_PORT", 8080),
		DataDir:             envStr("GATEWAY_DATA_DIR", "/var/lib/gateway"),
		LogLevel:            envStr("LOG_LEVEL", "info"),
		LogJSON:             envBool("LOG_JSON", true),
		JWTSecret:           os.Getenv("JWT_SECRET_KEY"),
		InternalSecret:      os.Getenv("INTERNAL_SECRET_KEY"),
		HealthCheckInterval: time.Duration(envInt("HEALTH_CHECK_INTERVAL_SEC", 30)) * time.Second,
		ProxyTimeout:        time.Duration(envInt("PROXY_TIMEOUT_SEC", 30)) * time.Second,
		ProxyMaxRetries:     envInt("PROXY_MAX_RETRIES", 3),
		TaskPoolSize:        envInt("TASK_POOL_SIZE", 10),
		QueueSize:           envInt("QUEUE_SIZE", 1000),
		StreamTimeout:       time.Duration(envInt("STREAM_DEFAULT_TIMEOUT", 300)) * time.Second,
		StreamKeepalive:     time.Duration(envInt("STREAM_KEEPALIVE", 30)) * time.Second,
		Routes:              DefaultRoutes(),
	}

	if path := os.Getenv("GATEWAY_ROUTES_FILE"); path != "" {
		routes, err := LoadRoutes(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load route table %s: %w", path, err)
		}
		cfg.Routes = *routes
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and route-table consistency.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if c.InternalSecret == "" {
		return fmt.Errorf("INTERNAL_SECRET_KEY is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for _, plane := range []struct {
		name   string
		routes *PlaneRoutes
	}{
		{"frontend", &c.Routes.Frontend},
		{"v1", &c.Routes.V1},
		{"system", &c.Routes.System},
	} {
		seen := make(map[string]bool)
		for _, r := range plane.routes.Routes {
			if r.Prefix == "" {
				return fmt.Errorf("%s plane: route with empty prefix", plane.name)
			}
			if seen[r.Prefix] {
				return fmt.Errorf("%s plane: ambiguous duplicate prefix %q", plane.name, r.Prefix)
			}
			seen[r.Prefix] = true
			if r.Mode == ModeForward || r.Mode == "" {
				if r.Service == "" {
					return fmt.Errorf("%s plane: prefix %q has no service", plane.name, r.Prefix)
				}
			}
		}
	}
	return nil
}

// LoadRoutes parses a YAML route-table file.
func LoadRoutes(path string) (*RouteTables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	var routes RouteTables
	if err := yaml.Unmarshal(data, &routes); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	return &routes, nil
}

// DefaultRoutes returns the built-in plane routing tables.
// Each plane fixes one upstream path convention; per-prefix overrides are
// only available through the YAML file.
func DefaultRoutes() RouteTables {
	return RouteTables{
		Frontend: PlaneRoutes{
			PathPrefix: "/api",
			Strategy:   types.StrategyRoundRobin,
			Routes: []Route{
				{Prefix: "agents", Service: "agent-service"},
				{Prefix: "knowledge", Service: "knowledge-service"},
				{Prefix: "models", Service: "model-service"},
				{Prefix: "upload", Service: "system-service"},
				{Prefix: "files", Service: "system-service"},
				{Prefix: "system-config", Service: "system-service"},
				{Prefix: "auth", Service: "system-service"},
				{Prefix: "chat", Service: "chat-service"},
				{Prefix: "mcp", Service: "mcp-service"},
			},
		},
		V1: PlaneRoutes{
			PathPrefix: "/api/v1",
			Strategy:   types.StrategyLeastConnections,
			Routes: []Route{
				{Prefix: "knowledge-bases", Service: "knowledge-service"},
				{Prefix: "completions", Service: "model-service"},
				{Prefix: "embeddings", Service: "model-service"},
				{Prefix: "models", Service: "model-service"},
				{Prefix: "agents", Service: "agent-service"},
			},
		},
		System: PlaneRoutes{
			PathPrefix: "/api/system",
			Strategy:   types.StrategyRoundRobin,
			Routes: []Route{
				{Prefix: "tasks", Mode: ModeLocal},
				{Prefix: "services", Mode: ModeLocal},
				{Prefix: "monitoring", Mode: ModeLocal},
				{Prefix: "pools", Mode: ModeLocal},
				{Prefix: "config", Mode: ModeLocal},
				{Prefix: "knowledge", Service: "knowledge-service", Mode: ModeForward},
				{Prefix: "models", Service: "model-service", Mode: ModeForward},
				{Prefix: "agents", Service: "agent-service", Mode: ModeForward},
				{Prefix: "mcp", Service: "mcp-service", Mode: ModeForward},
			},
		},
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
