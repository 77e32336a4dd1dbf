package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
		// nombre lógico del worker: gateway | account | processing
		Service string `yaml:"service"`
	} `yaml:"app"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	// Overlay p2p: puerto de escucha del host libp2p y peers de bootstrap
	// para entrar a la DHT.
	Mesh struct {
		ListenPort     int      `yaml:"listen_port"`
		BootstrapPeers []string `yaml:"bootstrap_peers"`
		// TTL del cache local de lookups del directorio
		LookupCacheTTL string `yaml:"lookup_cache_ttl"`
		// intervalo de re-anuncio de topics
		AnnounceInterval string `yaml:"announce_interval"`
	} `yaml:"mesh"`

	JWT struct {
		// secreto compartido HS256 para firmar/verificar credenciales
		Secret string `yaml:"secret"`
		TTL    string `yaml:"ttl"`
	} `yaml:"jwt"`

	Rate struct {
		MaxRequests          int `yaml:"max_requests"`
		ResetIntervalMinutes int `yaml:"reset_interval_minutes"`
	} `yaml:"rate"`

	Call struct {
		Timeout     string `yaml:"timeout"`
		MaxAttempts int    `yaml:"max_attempts"`
		BaseDelay   string `yaml:"base_delay"`
	} `yaml:"call"`

	Redis struct {
		Addr   string `yaml:"addr"`
		DB     int    `yaml:"db"`
		Prefix string `yaml:"prefix"`
	} `yaml:"redis"`

	// Storage del account worker: memory | redis | postgres
	Storage struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	// Engine de generación de texto consumido por el processing worker.
	Engine struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"engine"`
}

func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Mesh.ListenPort == 0 {
		c.Mesh.ListenPort = 4001
	}
	if c.Mesh.LookupCacheTTL == "" {
		c.Mesh.LookupCacheTTL = "30s"
	}
	if c.Mesh.AnnounceInterval == "" {
		c.Mesh.AnnounceInterval = "1m"
	}
	if c.JWT.TTL == "" {
		c.JWT.TTL = "24h"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 10
	}
	if c.Rate.ResetIntervalMinutes == 0 {
		c.Rate.ResetIntervalMinutes = 1
	}
	if c.Call.Timeout == "" {
		c.Call.Timeout = "30s"
	}
	if c.Call.MaxAttempts == 0 {
		c.Call.MaxAttempts = 3
	}
	if c.Call.BaseDelay == "" {
		c.Call.BaseDelay = "100ms"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "gridgate:"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Engine.Timeout == "" {
		c.Engine.Timeout = "30s"
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("HTTP_ADDR"); ok {
		c.HTTP.Addr = v
	}
	if v, ok := getEnvInt("MESH_LISTEN_PORT"); ok {
		c.Mesh.ListenPort = v
	}
	if v, ok := getEnvCSV("MESH_BOOTSTRAP_PEERS"); ok {
		c.Mesh.BootstrapPeers = v
	}
	if v, ok := getEnvStr("JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := getEnvStr("JWT_TTL"); ok {
		c.JWT.TTL = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}
	if v, ok := getEnvInt("RATE_RESET_INTERVAL_MINUTES"); ok {
		c.Rate.ResetIntervalMinutes = v
	}
	if v, ok := getEnvStr("CALL_TIMEOUT"); ok {
		c.Call.Timeout = v
	}
	if v, ok := getEnvInt("CALL_MAX_ATTEMPTS"); ok {
		c.Call.MaxAttempts = v
	}
	if v, ok := getEnvStr("CALL_BASE_DELAY"); ok {
		c.Call.BaseDelay = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Redis.DB = v
	}
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("ENGINE_URL"); ok {
		c.Engine.URL = v
	}
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("config: jwt.secret es obligatorio (env JWT_SECRET)")
	}
	if _, err := time.ParseDuration(c.Call.Timeout); err != nil {
		return fmt.Errorf("config: call.timeout inválido: %w", err)
	}
	if _, err := time.ParseDuration(c.Call.BaseDelay); err != nil {
		return fmt.Errorf("config: call.base_delay inválido: %w", err)
	}
	return nil
}

// CallTimeout devuelve call.timeout ya parseado.
func (c *Config) CallTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Call.Timeout)
	return d
}

// CallBaseDelay devuelve call.base_delay ya parseado.
func (c *Config) CallBaseDelay() time.Duration {
	d, _ := time.ParseDuration(c.Call.BaseDelay)
	return d
}

// JWTTTL devuelve jwt.ttl ya parseado (default 24h).
func (c *Config) JWTTTL() time.Duration {
	d, err := time.ParseDuration(c.JWT.TTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// RateWindow devuelve la ventana del rate limiter.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.Rate.ResetIntervalMinutes) * time.Minute
}

// LookupCacheTTL devuelve mesh.lookup_cache_ttl ya parseado.
func (c *Config) LookupCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Mesh.LookupCacheTTL)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// AnnounceInterval devuelve mesh.announce_interval ya parseado.
func (c *Config) AnnounceInterval() time.Duration {
	d, err := time.ParseDuration(c.Mesh.AnnounceInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// EngineTimeout devuelve engine.timeout ya parseado.
func (c *Config) EngineTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
