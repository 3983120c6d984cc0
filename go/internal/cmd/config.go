package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kalimahplay/kalimah/go/internal/roomsync"
)

// Config holds the optional YAML game configuration. Missing fields
// fall back to the shipped defaults; environment variables override
// both.
type Config struct {
	Game struct {
		RoundDurationSeconds int `yaml:"round_duration_seconds"`
		WinBonus             int `yaml:"win_bonus"`
		HintsPerRound        int `yaml:"hints_per_round"`
		HintCost             int `yaml:"hint_cost"`
	} `yaml:"game"`
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

func loadConfig(path string) (*Config, error) {
	var config Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// gameConfig merges the defaults, the YAML file and the environment
// into the room session constants.
func (c *Config) gameConfig() roomsync.Config {
	cfg := roomsync.DefaultConfig()

	if c.Game.RoundDurationSeconds > 0 {
		cfg.RoundDuration = time.Duration(c.Game.RoundDurationSeconds) * time.Second
	}
	if c.Game.WinBonus > 0 {
		cfg.WinBonus = c.Game.WinBonus
	}
	if c.Game.HintsPerRound > 0 {
		cfg.HintsPerRound = c.Game.HintsPerRound
	}
	if c.Game.HintCost > 0 {
		cfg.HintCost = c.Game.HintCost
	}

	if v := getEnvAsInt("ROUND_DURATION_SECONDS", 0); v > 0 {
		cfg.RoundDuration = time.Duration(v) * time.Second
	}
	if v := getEnvAsInt("WIN_BONUS", 0); v > 0 {
		cfg.WinBonus = v
	}
	if v := getEnvAsInt("HINTS_PER_ROUND", 0); v > 0 {
		cfg.HintsPerRound = v
	}
	if v := getEnvAsInt("HINT_COST", 0); v > 0 {
		cfg.HintCost = v
	}

	return cfg
}
