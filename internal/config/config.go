package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Generation GenerationConfig `yaml:"generation"`
	Cache      CacheConfig      `yaml:"cache"`
	Storage    StorageConfig    `yaml:"storage"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// ProviderConfig is shared by all backends; fields that do not apply to a
// backend are ignored by it.
type ProviderConfig struct {
	Enabled           bool    `yaml:"enabled"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url" validate:"omitempty,url"`
	Model             string  `yaml:"model"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" validate:"omitempty,min=10,max=3600"`
	CostPerKTokens    float64 `yaml:"cost_per_k_tokens" validate:"min=0"`
	Quality           float64 `yaml:"quality" validate:"min=0,max=10"`
	Priority          int     `yaml:"priority" validate:"min=0"`
	RequestsPerMinute int     `yaml:"requests_per_minute" validate:"omitempty,min=1,max=1000"`
}

type ProvidersConfig struct {
	OpenAI ProviderConfig `yaml:"openai"`
	Ollama ProviderConfig `yaml:"ollama"`
	Custom ProviderConfig `yaml:"custom"`
}

type GenerationConfig struct {
	MaxConcurrentSessions int64 `yaml:"max_concurrent_sessions" validate:"required,min=1,max=100"`

	// QualityFloor marks chapters whose assessed score falls below it.
	// Zero disables the mark.
	QualityFloor float64 `yaml:"quality_floor" validate:"min=0,max=10"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"min=0"`
}

// Duration accepts the "90s" / "2h" syntax in YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type CacheConfig struct {
	TTL        Duration    `yaml:"ttl"`
	MaxEntries int         `yaml:"max_entries" validate:"required,min=16,max=1000000"`
	Redis      RedisConfig `yaml:"redis"`
}

type StorageConfig struct {
	Backend  string `yaml:"backend" validate:"required,oneof=memory filesystem mysql"`
	Dir      string `yaml:"dir"`
	MySQLDSN string `yaml:"mysql_dsn"`
}

func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Load reads the config file, applies environment overrides, fills defaults
// and validates. A missing file is not an error: the defaults plus an
// OPENAI_API_KEY in the environment are enough to start the server. Ollama
// has no credential to imply enablement, so it needs a config file entry.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = defaultConfigPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Run on defaults.
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default is the runnable zero configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: "127.0.0.1:8790"},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				Model:             "gpt-4o-mini",
				CostPerKTokens:    0.6,
				Quality:           8.5,
				Priority:          1,
				RequestsPerMinute: 60,
			},
			Ollama: ProviderConfig{
				BaseURL:           "http://localhost:11434",
				Model:             "llama3.1",
				Quality:           6.0,
				Priority:          2,
				RequestsPerMinute: 120,
			},
			Custom: ProviderConfig{
				Quality:           7.0,
				Priority:          3,
				RequestsPerMinute: 60,
			},
		},
		Generation: GenerationConfig{
			MaxConcurrentSessions: 4,
			QualityFloor:          6.0,
		},
		Cache: CacheConfig{
			TTL:        Duration{time.Hour},
			MaxEntries: 1024,
		},
		Storage: StorageConfig{Backend: "memory"},
	}
}

func defaultConfigPath() string {
	if path := os.Getenv("NOVELFORGE_CONFIG"); path != "" {
		return path
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "novelforge", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "novelforge", "config.yaml")
}

// applyEnv lets environment variables supply the secrets so they never have
// to live in the YAML file.
func applyEnv(cfg *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Providers.OpenAI.APIKey == "" {
		cfg.Providers.OpenAI.APIKey = key
	}
	if key := os.Getenv("NOVELFORGE_CUSTOM_API_KEY"); key != "" && cfg.Providers.Custom.APIKey == "" {
		cfg.Providers.Custom.APIKey = key
	}
	if dsn := os.Getenv("NOVELFORGE_MYSQL_DSN"); dsn != "" && cfg.Storage.MySQLDSN == "" {
		cfg.Storage.MySQLDSN = dsn
	}
	if addr := os.Getenv("NOVELFORGE_REDIS_ADDR"); addr != "" && cfg.Cache.Redis.Addr == "" {
		cfg.Cache.Redis.Addr = addr
	}
}

func applyDefaults(cfg *Config) {
	// A provider with credentials is implicitly enabled; Ollama needs no
	// credentials, only an explicit opt-in or a reachable default.
	if cfg.Providers.OpenAI.APIKey != "" {
		cfg.Providers.OpenAI.Enabled = true
	}
	if cfg.Providers.Custom.APIKey != "" && cfg.Providers.Custom.BaseURL != "" {
		cfg.Providers.Custom.Enabled = true
	}

	if cfg.Storage.Backend == "filesystem" && cfg.Storage.Dir == "" {
		cfg.Storage.Dir = defaultDataDir()
	} else {
		cfg.Storage.Dir = expandTilde(cfg.Storage.Dir)
	}
}

func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "novelforge")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "novelforge")
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func (c *Config) validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Providers.OpenAI.Enabled && c.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("openai enabled without an api key")
	}
	if c.Providers.Custom.Enabled && c.Providers.Custom.BaseURL == "" {
		return fmt.Errorf("custom provider enabled without a base url")
	}
	if c.Storage.Backend == "mysql" && c.Storage.MySQLDSN == "" {
		return fmt.Errorf("mysql storage enabled without a dsn")
	}
	if c.Cache.TTL.Duration < time.Minute || c.Cache.TTL.Duration > 168*time.Hour {
		return fmt.Errorf("cache ttl %v outside [1m, 168h]", c.Cache.TTL.Duration)
	}
	if !c.Providers.OpenAI.Enabled && !c.Providers.Ollama.Enabled && !c.Providers.Custom.Enabled {
		return fmt.Errorf("no provider enabled")
	}
	return nil
}
