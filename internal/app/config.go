package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prepcoach/backend/internal/adaptive"
	"github.com/prepcoach/backend/internal/calendar"
	"github.com/prepcoach/backend/internal/llm"
	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/utils"
)

// Config carries every tunable the services accept. Values come from
// the environment; a YAML file named by COACH_CONFIG overrides them.
type Config struct {
	LLM llm.Config

	// PlannerTolerance lets a week run this fraction over its minute
	// budget. Default 0.10.
	PlannerTolerance float64

	Adaptive adaptive.Options

	// CoachStartHour is the local hour calendar events start at.
	CoachStartHour int

	// PracticeMaxParallel bounds concurrent item generations.
	PracticeMaxParallel int

	// RedisAddr, when set, switches the lock manager to redis.
	RedisAddr string
}

// fileConfig mirrors the recognized YAML option names.
type fileConfig struct {
	LLM struct {
		Provider       string   `yaml:"provider"`
		TimeoutSeconds *int     `yaml:"timeout_seconds"`
		EvalTemp       *float64 `yaml:"eval_temperature"`
		GenTemp        *float64 `yaml:"gen_temperature"`
	} `yaml:"llm"`
	Planner struct {
		WeekMinuteTolerance *float64 `yaml:"week_minute_tolerance"`
	} `yaml:"planner"`
	Adaptive struct {
		WeakThreshold      *float64 `yaml:"weak_threshold"`
		StrongThreshold    *float64 `yaml:"strong_threshold"`
		ReinforcementCount *int     `yaml:"reinforcement_count"`
		MinSpacingDays     *int     `yaml:"min_spacing_days"`
	} `yaml:"adaptive"`
	Coach struct {
		DefaultStartTime string `yaml:"default_start_time"`
	} `yaml:"coach"`
	Practice struct {
		MaxParallelGenerations *int `yaml:"max_parallel_generations"`
	} `yaml:"practice"`
}

// LoadConfig reads the environment, then applies the optional YAML
// overlay named by COACH_CONFIG.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		LLM:                 llm.ConfigFromEnv(),
		PlannerTolerance:    utils.GetEnvAsFloat("COACH_PLANNER_TOLERANCE", 0.10, log),
		Adaptive:            adaptive.DefaultOptions(),
		CoachStartHour:      utils.GetEnvAsInt("COACH_START_HOUR", calendar.DefaultStartHour, log),
		PracticeMaxParallel: utils.GetEnvAsInt("COACH_PRACTICE_MAX_PARALLEL", 4, log),
		RedisAddr:           utils.GetEnv("REDIS_ADDR", "", log),
	}

	path := os.Getenv("COACH_CONFIG")
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := overlay(&cfg, fc); err != nil {
		return cfg, fmt.Errorf("apply config %s: %w", path, err)
	}
	log.Info("Config overlay applied", "path", path)
	return cfg, nil
}

func overlay(cfg *Config, fc fileConfig) error {
	if fc.LLM.Provider != "" {
		cfg.LLM.Provider = fc.LLM.Provider
	}
	if fc.LLM.TimeoutSeconds != nil {
		cfg.LLM.Timeout = time.Duration(*fc.LLM.TimeoutSeconds) * time.Second
	}
	if fc.LLM.EvalTemp != nil {
		cfg.LLM.EvalTemperature = *fc.LLM.EvalTemp
	}
	if fc.LLM.GenTemp != nil {
		cfg.LLM.GenTemperature = *fc.LLM.GenTemp
	}
	if fc.Planner.WeekMinuteTolerance != nil {
		cfg.PlannerTolerance = *fc.Planner.WeekMinuteTolerance
	}
	if fc.Adaptive.WeakThreshold != nil {
		cfg.Adaptive.WeakThreshold = *fc.Adaptive.WeakThreshold
	}
	if fc.Adaptive.StrongThreshold != nil {
		cfg.Adaptive.StrongThreshold = *fc.Adaptive.StrongThreshold
	}
	if fc.Adaptive.ReinforcementCount != nil {
		cfg.Adaptive.ReinforcementCount = *fc.Adaptive.ReinforcementCount
	}
	if fc.Adaptive.MinSpacingDays != nil {
		cfg.Adaptive.MinSpacingDays = *fc.Adaptive.MinSpacingDays
	}
	if fc.Coach.DefaultStartTime != "" {
		hour, err := parseStartHour(fc.Coach.DefaultStartTime)
		if err != nil {
			return err
		}
		cfg.CoachStartHour = hour
	}
	if fc.Practice.MaxParallelGenerations != nil {
		cfg.PracticeMaxParallel = *fc.Practice.MaxParallelGenerations
	}
	return nil
}

// parseStartHour accepts "09:00" style times; minutes must be zero.
func parseStartHour(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid start time %q", s)
	}
	if len(parts) == 2 && parts[1] != "00" {
		return 0, fmt.Errorf("start time %q must be on the hour", s)
	}
	return hour, nil
}
