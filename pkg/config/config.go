package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	API       APIConfig                 `json:"api"`
	Auth      AuthConfig                `json:"auth"`
	Retailers map[string]RetailerConfig `json:"retailers"`
	Chat      ChatConfig                `json:"chat"`
	Gateway   GatewayConfig             `json:"gateway"`
	Sentinel  SentinelConfig            `json:"sentinel"`
	Logging   LoggingConfig             `json:"logging"`
	mu        sync.RWMutex
}

// APIConfig points at the automation service. Retailers without their own
// api_base fall back to Base; Upstream is where the gateway forwards /api/*.
type APIConfig struct {
	Base          string   `json:"base" env:"KHWAAISH_API_BASE"`
	Upstream      string   `json:"upstream" env:"KHWAAISH_API_UPSTREAM"`
	ProxyPrefixes []string `json:"proxy_prefixes" env:"KHWAAISH_API_PROXY_PREFIXES"`
	TimeoutSec    int      `json:"timeout_sec" env:"KHWAAISH_API_TIMEOUT_SEC"`
	RatePerSecond float64  `json:"rate_per_second" env:"KHWAAISH_API_RATE_PER_SECOND"`
	RateBurst     int      `json:"rate_burst" env:"KHWAAISH_API_RATE_BURST"`
}

// AuthConfig holds the single login gate credentials. It is a placeholder for
// a real authentication service.
type AuthConfig struct {
	Email       string `json:"email" env:"KHWAAISH_AUTH_EMAIL"`
	Password    string `json:"password" env:"KHWAAISH_AUTH_PASSWORD"`
	TokenTTLMin int    `json:"token_ttl_min" env:"KHWAAISH_AUTH_TOKEN_TTL_MIN"`
}

type RetailerConfig struct {
	Enabled    bool    `json:"enabled"`
	APIBase    string  `json:"api_base"`
	TimeoutSec int     `json:"timeout_sec"`
	RateLimit  float64 `json:"rate_limit"`
}

type ChatConfig struct {
	DefaultRetailer string `json:"default_retailer" env:"KHWAAISH_CHAT_DEFAULT_RETAILER"`
	SearchLimit     int    `json:"search_limit" env:"KHWAAISH_CHAT_SEARCH_LIMIT"`
	HistoryFile     string `json:"history_file" env:"KHWAAISH_CHAT_HISTORY_FILE"`
}

type GatewayConfig struct {
	Host string `json:"host" env:"KHWAAISH_GATEWAY_HOST"`
	Port int    `json:"port" env:"KHWAAISH_GATEWAY_PORT"`
}

// SentinelConfig drives the gateway watchdog that re-checks config, log
// directory and automation API reachability.
type SentinelConfig struct {
	Enabled     bool `json:"enabled" env:"KHWAAISH_SENTINEL_ENABLED"`
	IntervalSec int  `json:"interval_sec" env:"KHWAAISH_SENTINEL_INTERVAL_SEC"`
	AutoHeal    bool `json:"auto_heal" env:"KHWAAISH_SENTINEL_AUTO_HEAL"`
}

type LoggingConfig struct {
	Enabled       bool   `json:"enabled" env:"KHWAAISH_LOGGING_ENABLED"`
	Dir           string `json:"dir" env:"KHWAAISH_LOGGING_DIR"`
	Filename      string `json:"filename" env:"KHWAAISH_LOGGING_FILENAME"`
	MaxSizeMB     int    `json:"max_size_mb" env:"KHWAAISH_LOGGING_MAX_SIZE_MB"`
	RetentionDays int    `json:"retention_days" env:"KHWAAISH_LOGGING_RETENTION_DAYS"`
}

var (
	isDebug bool
	muDebug sync.RWMutex
)

func SetDebugMode(debug bool) {
	muDebug.Lock()
	defer muDebug.Unlock()
	isDebug = debug
}

func IsDebugMode() bool {
	muDebug.RLock()
	defer muDebug.RUnlock()
	return isDebug
}

func GetConfigDir() string {
	if IsDebugMode() {
		return ".khwaaish"
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".khwaaish")
}

// DefaultRetailerNames lists the retailer tables shipped with the binary.
var DefaultRetailerNames = []string{"instamart", "blinkit", "groceries", "pantaloons", "swiggy", "oyo", "bookingcom"}

func DefaultConfig() *Config {
	configDir := GetConfigDir()
	retailers := make(map[string]RetailerConfig, len(DefaultRetailerNames))
	for _, name := range DefaultRetailerNames {
		retailers[name] = RetailerConfig{Enabled: true}
	}
	return &Config{
		API: APIConfig{
			Base:          "http://localhost:8000",
			Upstream:      "http://localhost:8000",
			ProxyPrefixes: []string{"/api/", "/automation/"},
			TimeoutSec:    120,
			RatePerSecond: 5,
			RateBurst:     5,
		},
		Auth:      AuthConfig{TokenTTLMin: 720},
		Retailers: retailers,
		Chat: ChatConfig{
			DefaultRetailer: "instamart",
			SearchLimit:     10,
			HistoryFile:     filepath.Join(configDir, "chat_history"),
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18890,
		},
		Sentinel: SentinelConfig{
			Enabled:     true,
			IntervalSec: 60,
			AutoHeal:    true,
		},
		Logging: LoggingConfig{
			Enabled:       true,
			Dir:           filepath.Join(configDir, "logs"),
			Filename:      "khwaaish.log",
			MaxSizeMB:     20,
			RetentionDays: 3,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := unmarshalConfigStrict(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func unmarshalConfigStrict(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("invalid config: trailing JSON content")
		}
		return err
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// RetailerBase returns the API base for a retailer, falling back to api.base.
func (c *Config) RetailerBase(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if rc, ok := c.Retailers[name]; ok && strings.TrimSpace(rc.APIBase) != "" {
		return strings.TrimRight(rc.APIBase, "/")
	}
	return strings.TrimRight(c.API.Base, "/")
}

func (c *Config) RetailerTimeoutSec(name string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if rc, ok := c.Retailers[name]; ok && rc.TimeoutSec > 0 {
		return rc.TimeoutSec
	}
	return c.API.TimeoutSec
}

func (c *Config) RetailerRateLimit(name string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if rc, ok := c.Retailers[name]; ok && rc.RateLimit > 0 {
		return rc.RateLimit
	}
	return c.API.RatePerSecond
}

// RetailerEnabled reports whether the retailer has an enabled entry.
func (c *Config) RetailerEnabled(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rc, ok := c.Retailers[name]
	return ok && rc.Enabled
}

func (c *Config) TokenTTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Auth.TokenTTLMin) * time.Minute
}

// EnabledRetailers returns retailer names in sorted order.
func (c *Config) EnabledRetailers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.Retailers))
	for name, rc := range c.Retailers {
		if rc.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (c *Config) LogFilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	filename := c.Logging.Filename
	if filename == "" {
		filename = "khwaaish.log"
	}
	return filepath.Join(expandHome(c.Logging.Dir), filename)
}

func (c *Config) HistoryFilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Chat.HistoryFile)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
