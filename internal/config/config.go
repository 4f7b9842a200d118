package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Session storage kinds for the console.
const (
	StorageFile   = "file"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// Config is the resolved runtime configuration for the API server and the console.
type Config struct {
	Server Server
	Client Client
}

// Server configures cmd/firewatch-api.
type Server struct {
	HTTPAddr        string
	GRPCAddr        string
	DatabaseURL     string
	AuthSecret      string
	TokenIssuer     string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	BcryptCost      int
	RateBurst       int
	RatePerSecond   float64
	CORSOrigins     []string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

// Client configures cmd/firewatch.
type Client struct {
	APIURL       string
	Timeout      time.Duration
	SessionStore string
	SessionPath  string
	RedisURL     string
	RedisPrefix  string
	SessionTTL   time.Duration
}

// configFile mirrors the YAML schema. Zero values leave defaults in place.
type configFile struct {
	Server struct {
		HTTPAddr        string        `yaml:"http_addr"`
		GRPCAddr        string        `yaml:"grpc_addr"`
		DatabaseURL     string        `yaml:"database_url"`
		AuthSecret      string        `yaml:"auth_secret"`
		TokenIssuer     string        `yaml:"token_issuer"`
		AccessTTL       time.Duration `yaml:"access_ttl"`
		RefreshTTL      time.Duration `yaml:"refresh_ttl"`
		BcryptCost      int           `yaml:"bcrypt_cost"`
		RateBurst       int           `yaml:"rate_burst"`
		RatePerSecond   float64       `yaml:"rate_per_second"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		MaxBodyBytes    int64         `yaml:"max_body_bytes"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Client struct {
		APIURL       string        `yaml:"api_url"`
		Timeout      time.Duration `yaml:"timeout"`
		SessionStore string        `yaml:"session_store"`
		SessionPath  string        `yaml:"session_path"`
		RedisURL     string        `yaml:"redis_url"`
		RedisPrefix  string        `yaml:"redis_prefix"`
		SessionTTL   time.Duration `yaml:"session_ttl"`
	} `yaml:"client"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: Server{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":9090",
			TokenIssuer:     "firewatch",
			AccessTTL:       30 * time.Minute,
			RefreshTTL:      7 * 24 * time.Hour,
			BcryptCost:      12,
			RateBurst:       20,
			RatePerSecond:   10,
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Client: Client{
			APIURL:       "http://localhost:8080",
			Timeout:      10 * time.Second,
			SessionStore: StorageFile,
			RedisPrefix:  "firewatch:session",
		},
	}
}

// Load resolves configuration in priority order: defaults -> file -> env.
// An empty path skips the file; a missing file at an explicit path is an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		var f configFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
		applyFile(&cfg, f)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) {
	s, c := &cfg.Server, &cfg.Client
	setString(&s.HTTPAddr, f.Server.HTTPAddr)
	setString(&s.GRPCAddr, f.Server.GRPCAddr)
	setString(&s.DatabaseURL, f.Server.DatabaseURL)
	setString(&s.AuthSecret, f.Server.AuthSecret)
	setString(&s.TokenIssuer, f.Server.TokenIssuer)
	setDuration(&s.AccessTTL, f.Server.AccessTTL)
	setDuration(&s.RefreshTTL, f.Server.RefreshTTL)
	setDuration(&s.ShutdownTimeout, f.Server.ShutdownTimeout)
	if f.Server.BcryptCost > 0 {
		s.BcryptCost = f.Server.BcryptCost
	}
	if f.Server.RateBurst > 0 {
		s.RateBurst = f.Server.RateBurst
	}
	if f.Server.RatePerSecond != 0 {
		s.RatePerSecond = f.Server.RatePerSecond
	}
	if len(f.Server.CORSOrigins) > 0 {
		s.CORSOrigins = f.Server.CORSOrigins
	}
	if f.Server.MaxBodyBytes > 0 {
		s.MaxBodyBytes = f.Server.MaxBodyBytes
	}

	setString(&c.APIURL, f.Client.APIURL)
	setDuration(&c.Timeout, f.Client.Timeout)
	setString(&c.SessionStore, f.Client.SessionStore)
	setString(&c.SessionPath, f.Client.SessionPath)
	setString(&c.RedisURL, f.Client.RedisURL)
	setString(&c.RedisPrefix, f.Client.RedisPrefix)
	setDuration(&c.SessionTTL, f.Client.SessionTTL)
}

func applyEnv(cfg *Config) error {
	s, c := &cfg.Server, &cfg.Client
	s.HTTPAddr = envOrDefault("FIREWATCH_HTTP_ADDR", s.HTTPAddr)
	s.GRPCAddr = envOrDefault("FIREWATCH_GRPC_ADDR", s.GRPCAddr)
	s.DatabaseURL = envOrDefault("FIREWATCH_PG_DSN", s.DatabaseURL)
	s.AuthSecret = envOrDefault("FIREWATCH_AUTH_SECRET", s.AuthSecret)
	s.TokenIssuer = envOrDefault("FIREWATCH_TOKEN_ISSUER", s.TokenIssuer)
	s.CORSOrigins = envCSV("FIREWATCH_CORS_ORIGINS", s.CORSOrigins)

	c.APIURL = envOrDefault("FIREWATCH_API_URL", c.APIURL)
	c.SessionStore = strings.ToLower(envOrDefault("FIREWATCH_SESSION_STORE", c.SessionStore))
	c.SessionPath = envOrDefault("FIREWATCH_SESSION_PATH", c.SessionPath)
	c.RedisURL = envOrDefault("FIREWATCH_REDIS_URL", c.RedisURL)
	c.RedisPrefix = envOrDefault("FIREWATCH_REDIS_PREFIX", c.RedisPrefix)

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(envDuration("FIREWATCH_ACCESS_TTL", &s.AccessTTL))
	collect(envDuration("FIREWATCH_REFRESH_TTL", &s.RefreshTTL))
	collect(envDuration("FIREWATCH_SHUTDOWN_TIMEOUT", &s.ShutdownTimeout))
	collect(envDuration("FIREWATCH_HTTP_TIMEOUT", &c.Timeout))
	collect(envDuration("FIREWATCH_SESSION_TTL", &c.SessionTTL))
	collect(envInt("FIREWATCH_BCRYPT_COST", &s.BcryptCost))
	collect(envInt("FIREWATCH_RATE_BURST", &s.RateBurst))
	collect(envFloat("FIREWATCH_RATE_PER_SECOND", &s.RatePerSecond))
	return errors.Join(errs...)
}

// Validate reports settings the API cannot start without.
func (s Server) Validate() error {
	var errs []error
	if strings.TrimSpace(s.AuthSecret) == "" {
		errs = append(errs, errors.New("config: auth secret is required (FIREWATCH_AUTH_SECRET)"))
	}
	if s.AccessTTL <= 0 || s.RefreshTTL <= 0 {
		errs = append(errs, errors.New("config: token ttls must be positive"))
	}
	if s.HTTPAddr == "" {
		errs = append(errs, errors.New("config: http address is required"))
	}
	return errors.Join(errs...)
}

// Validate reports an unusable console configuration.
func (c Client) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIURL) == "" {
		errs = append(errs, errors.New("config: api url is required"))
	}
	switch c.SessionStore {
	case StorageFile, StorageMemory:
	case StorageRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("config: redis session store needs a redis url"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown session store %q", c.SessionStore))
	}
	return errors.Join(errs...)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envCSV(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envDuration(key string, dst *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func envInt(key string, dst *int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}

func envFloat(key string, dst *float64) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}
