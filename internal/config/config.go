package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath selects the config file.
	EnvConfigPath = "HARVEST_CONFIG"

	defaultConfigFile = "config.json"
	defaultAddress    = ":10000"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Providers   map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Explainer   ExplainerConfig           `json:"explainer" yaml:"explainer"`
	Classifier  ClassifierConfig          `json:"classifier" yaml:"classifier"`
	Voice       VoiceConfig               `json:"voice" yaml:"voice"`
	Gateway     GatewayConfig             `json:"gateway" yaml:"gateway"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	// Languages adds label -> ISO code pairs to the built-in language table.
	Languages map[string]string `json:"languages" yaml:"languages"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

type BasicConfig struct {
	ServerAddress  string   `json:"server_address" yaml:"server_address"`
	ReleaseMode    bool     `json:"release_mode" yaml:"release_mode"`
	LogLevel       string   `json:"log_level" yaml:"log_level"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	// RateLimit is the number of relay requests allowed per client per minute; 0 disables it.
	RateLimit int `json:"rate_limit" yaml:"rate_limit"`
	// MaxConcurrentAnalyses bounds diagnosis cycles running at once across all sessions.
	MaxConcurrentAnalyses int `json:"max_concurrent_analyses" yaml:"max_concurrent_analyses"`
	// SessionIdleTTL and JanitorInterval are in minutes.
	SessionIdleTTL  int `json:"session_idle_ttl" yaml:"session_idle_ttl"`
	JanitorInterval int `json:"janitor_interval" yaml:"janitor_interval"`
}

type ExplainerConfig struct {
	Provider string `json:"provider" yaml:"provider"`
	// Timeout is in seconds.
	Timeout int `json:"timeout" yaml:"timeout"`
}

type ClassifierModel struct {
	Name       string `json:"name" yaml:"name"`
	LabelsPath string `json:"labels_path" yaml:"labels_path"`
}

type ClassifierConfig struct {
	BaseURL string                     `json:"base_url" yaml:"base_url"`
	Timeout int                        `json:"timeout" yaml:"timeout"`
	Models  map[string]ClassifierModel `json:"models" yaml:"models"`
}

type VoiceConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Timeout int    `json:"timeout" yaml:"timeout"`
}

// GatewayConfig picks how the orchestrator reaches the remote services:
// "direct" calls the upstream clients in-process, "http" goes through a relay at BaseURL.
type GatewayConfig struct {
	Mode    string `json:"mode" yaml:"mode"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Timeout int    `json:"timeout" yaml:"timeout"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	// TTL is in minutes.
	TTL int `json:"ttl" yaml:"ttl"`
}

const (
	GatewayDirect = "direct"
	GatewayHTTP   = "http"
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress:         defaultAddress,
			LogLevel:              "info",
			AllowedOrigins:        []string{"*"},
			RateLimit:             30,
			MaxConcurrentAnalyses: 8,
			SessionIdleTTL:        30,
			JanitorInterval:       5,
		},
		Providers: map[string]ProviderConfig{
			"gemini": {Model: "gemini-1.5-flash"},
		},
		Explainer: ExplainerConfig{Provider: "gemini", Timeout: 60},
		Classifier: ClassifierConfig{
			BaseURL: "http://127.0.0.1:8501",
			Timeout: 30,
			Models: map[string]ClassifierModel{
				"Apple":  {Name: "apple", LabelsPath: filepath.Join("models", "apple", "labels.txt")},
				"Tomato": {Name: "tomato", LabelsPath: filepath.Join("models", "tomato", "labels.txt")},
				"Potato": {Name: "potato", LabelsPath: filepath.Join("models", "potato", "labels.txt")},
			},
		},
		Voice:   VoiceConfig{BaseURL: "https://translate.google.com", Timeout: 20},
		Gateway: GatewayConfig{Mode: GatewayDirect, Timeout: 90},
		Redis:   RedisConfig{Host: "127.0.0.1", Port: 6379, TTL: 24 * 60},
	}
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file yields Default(); a missing explicit file is an error.
// Values from .env and the process environment are applied last.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(absPath)
	switch {
	case err == nil:
		if err := decode(absPath, data, cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		absPath = ""
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	applyEnv(cfg)
	if absPath != "" {
		cfg.resolvePaths(filepath.Dir(absPath))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	key := os.Getenv("API_KEY")
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	if key != "" {
		if cfg.Providers == nil {
			cfg.Providers = make(map[string]ProviderConfig)
		}
		prov := cfg.Providers["gemini"]
		prov.APIKey = key
		cfg.Providers["gemini"] = prov
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.BasicConfig.ServerAddress = ":" + port
	}
}

func (cfg *Config) resolvePaths(baseDir string) {
	for crop, m := range cfg.Classifier.Models {
		if m.LabelsPath != "" && !filepath.IsAbs(m.LabelsPath) {
			m.LabelsPath = filepath.Join(baseDir, m.LabelsPath)
			cfg.Classifier.Models[crop] = m
		}
	}
}

// Validate checks the settings the service cannot run without.
func (cfg *Config) Validate() error {
	switch cfg.Gateway.Mode {
	case GatewayDirect:
	case GatewayHTTP:
		if cfg.Gateway.BaseURL == "" {
			return ErrGatewayURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrGatewayMode, cfg.Gateway.Mode)
	}
	if cfg.BasicConfig.MaxConcurrentAnalyses <= 0 {
		return ErrConcurrency
	}
	if cfg.Explainer.Provider == "" {
		return ErrExplainerProvider
	}
	return nil
}

// ExplainerProvider returns the provider settings the explainer uses.
func (cfg *Config) ExplainerProvider() (ProviderConfig, bool) {
	p, ok := cfg.Providers[cfg.Explainer.Provider]
	return p, ok
}
