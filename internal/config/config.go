package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the RCA service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Model    ModelConfig    `yaml:"model"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// StoreConfig configures the SQLite event store.
type StoreConfig struct {
	Path         string        `yaml:"path"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
}

// ModelConfig configures the language-model collaborator.
type ModelConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`
}

// AnalysisConfig tunes the correlation pipeline.
type AnalysisConfig struct {
	MaxContextResults int           `yaml:"maxContextResults"`
	TrendWindowHours  int           `yaml:"trendWindowHours"`
	RecentEventsLimit int           `yaml:"recentEventsLimit"`
	RunTimeout        time.Duration `yaml:"runTimeout"`
}

// CacheConfig controls Redis/Valkey-backed caching of completed analyses.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	AnalysisTTL  time.Duration `yaml:"analysisTTL"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ZABBIX_RCA_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Analysis.MaxContextResults <= 0 {
		cfg.Analysis.MaxContextResults = 5
	}
	if cfg.Analysis.TrendWindowHours <= 0 {
		cfg.Analysis.TrendWindowHours = 24
	}
	if cfg.Analysis.RecentEventsLimit <= 0 {
		cfg.Analysis.RecentEventsLimit = 10
	}

	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Path:         "data/events.db",
			QueryTimeout: 5 * time.Second,
		},
		Model: ModelConfig{
			BaseURL: "http://localhost:11434",
			Name:    "llama2",
			Timeout: 60 * time.Second,
		},
		Analysis: AnalysisConfig{
			MaxContextResults: 5,
			TrendWindowHours:  24,
			RecentEventsLimit: 10,
			RunTimeout:        90 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			AnalysisTTL:  time.Hour,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZABBIX_RCA_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("ZABBIX_RCA_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("ZABBIX_RCA_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("ZABBIX_RCA_MODEL_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("ZABBIX_RCA_MODEL_NAME"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("ZABBIX_RCA_MODEL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Model.Timeout = d
		}
	}
	if v := os.Getenv("ZABBIX_RCA_MAX_CONTEXT_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.MaxContextResults = n
		}
	}
	if v := os.Getenv("ZABBIX_RCA_TREND_WINDOW_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.TrendWindowHours = n
		}
	}
	if v := os.Getenv("ZABBIX_RCA_RECENT_EVENTS_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.RecentEventsLimit = n
		}
	}
	if v := os.Getenv("ZABBIX_RCA_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analysis.RunTimeout = d
		}
	}
	if v := os.Getenv("ZABBIX_RCA_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("ZABBIX_RCA_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("ZABBIX_RCA_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("ZABBIX_RCA_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("ZABBIX_RCA_CACHE_ANALYSIS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.AnalysisTTL = d
		}
	}
	if v := os.Getenv("ZABBIX_RCA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ZABBIX_RCA_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
