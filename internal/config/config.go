// loads up the .env files and environment variables to be used internally by Hearth.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds every setting the relay reads from its environment.
type Config struct {
	Env      string
	Version  string
	SrvAddr  string
	SrvPort  string
	LogLevel string

	RedisHost       string
	RedisPort       string
	RedisUsername   string
	RedisPassword   string
	RedisDB         int
	RedisTLS        bool
	RedisMaxRetries int

	// Shared secret other services present in x-internal-api-secret.
	InternalAPISecret string
	// HMAC secret the access tokens passed to the SSE endpoint are signed with.
	AccessTokenSecret string

	HeartbeatInterval time.Duration
	CORSOrigins       []string
	ShutdownTimeout   time.Duration
}

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultRedisMaxRetries   = 3
)

// Addr is the host:port gin listens on.
func (c *Config) Addr() string {
	return c.SrvAddr + ":" + c.SrvPort
}

// RedisAddr is the host:port of the redis-server.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// Load reads config/<env>.env when it exists and builds a Config from the environment.
// Variables already present in the environment win over the file.
func Load() (*Config, error) {
	env := strings.ToUpper(strings.TrimSpace(os.Getenv("ENV")))
	if env == "" {
		env = "DEV"
	}
	envfile := "config/" + strings.ToLower(env) + ".env"
	if _, staterr := os.Stat(envfile); staterr == nil {
		if loaderr := godotenv.Load(envfile); loaderr != nil {
			return nil, errors.Wrapf(loaderr, "couldn't load %s", envfile)
		}
	}
	return FromLookup(env, os.LookupEnv)
}

// FromLookup builds a Config using lookup for every key, every problem is reported at once.
func FromLookup(env string, lookup func(string) (string, bool)) (*Config, error) {
	p := parser{lookup: lookup}
	cfg := &Config{
		Env:      env,
		Version:  p.str("VERSION", "dev"),
		SrvAddr:  p.str("SRV_ADDR", "0.0.0.0"),
		SrvPort:  p.str("SRV_PORT", "8080"),
		LogLevel: p.str("LOG_LEVEL", "info"),

		RedisHost:       p.str("REDIS_HOST", "localhost"),
		RedisPort:       p.str("REDIS_PORT", "6379"),
		RedisUsername:   p.str("REDIS_USERNAME", ""),
		RedisPassword:   p.str("REDIS_PASSWORD", ""),
		RedisDB:         p.integer("REDIS_DB_NUMBER", 0),
		RedisTLS:        p.boolean("REDIS_TLS", false),
		RedisMaxRetries: p.integer("REDIS_MAX_RETRIES", DefaultRedisMaxRetries),

		InternalAPISecret: p.required("INTERNAL_API_SECRET"),
		AccessTokenSecret: p.required("ACCESS_TOKEN_SECRET"),

		HeartbeatInterval: p.duration("SSE_HEARTBEAT_INTERVAL", DefaultHeartbeatInterval),
		CORSOrigins:       p.list("CORS_ORIGINS"),
		ShutdownTimeout:   p.duration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
	}
	if cfg.HeartbeatInterval < time.Second {
		p.fail("SSE_HEARTBEAT_INTERVAL", "must be at least 1s")
	}
	if cfg.RedisMaxRetries < 0 {
		p.fail("REDIS_MAX_RETRIES", "must not be negative")
	}
	if len(p.problems) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(p.problems, "; "))
	}
	return cfg, nil
}

type parser struct {
	lookup   func(string) (string, bool)
	problems []string
}

func (p *parser) fail(key, reason string) {
	p.problems = append(p.problems, key+" "+reason)
}

func (p *parser) str(key, def string) string {
	if v, ok := p.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) required(key string) string {
	v := p.str(key, "")
	if v == "" {
		p.fail(key, "is required")
	}
	return v
}

func (p *parser) integer(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, "is not a number")
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, "is not a boolean")
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, "is not a duration")
		return def
	}
	return d
}

func (p *parser) list(key string) []string {
	var out []string
	for _, item := range strings.Split(p.str(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
