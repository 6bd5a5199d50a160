package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved process configuration. Values come from the YAML
// file, overridden by environment variables; the store credential comes from
// the environment only.
type Config struct {
	Port string `yaml:"port"`

	Stations struct {
		Count               int `yaml:"count"`
		PeriodLengthSeconds int `yaml:"period_length_seconds"`
	} `yaml:"stations"`

	Presence struct {
		HeartbeatTimeoutSeconds int `yaml:"heartbeat_timeout_seconds"`
		SweepIntervalSeconds    int `yaml:"sweep_interval_seconds"`
	} `yaml:"presence"`

	Store struct {
		APIBase     string `yaml:"api_base"`
		Repo        string `yaml:"repo"`
		EventsPath  string `yaml:"events_path"`
		ResultsPath string `yaml:"results_path"`
		Token       string `yaml:"-"`
	} `yaml:"store"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Port = "3000"
	cfg.Stations.Count = 4
	cfg.Stations.PeriodLengthSeconds = 60
	cfg.Presence.HeartbeatTimeoutSeconds = 15
	cfg.Presence.SweepIntervalSeconds = 5
	cfg.Store.EventsPath = "public/events.json"
	cfg.Store.ResultsPath = "public/match-results.json"
	cfg.NATS.SubjectPrefix = "scoreboard"
	cfg.Log.Level = "info"
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads the YAML file when present and applies environment
// overrides. A missing file is fine; everything has a default.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Stations.Count = getEnvAsInt("STATION_COUNT", cfg.Stations.Count)
	cfg.Stations.PeriodLengthSeconds = getEnvAsInt("PERIOD_LENGTH_SECONDS", cfg.Stations.PeriodLengthSeconds)
	cfg.Store.Repo = getEnv("GITHUB_REPO", cfg.Store.Repo)
	cfg.Store.APIBase = getEnv("GITHUB_API_URL", cfg.Store.APIBase)
	cfg.Store.Token = os.Getenv("GITHUB_TOKEN")
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	return cfg, nil
}

func (c Config) heartbeatTimeout() time.Duration {
	return time.Duration(c.Presence.HeartbeatTimeoutSeconds) * time.Second
}

func (c Config) sweepInterval() time.Duration {
	return time.Duration(c.Presence.SweepIntervalSeconds) * time.Second
}
