// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads chat service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/KodiakChat/services/cloudwatch"
	"gopkg.in/yaml.v3"
)

// Config holds the complete chat service configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// Region is the AWS region for all collaborator clients.
	Region string `yaml:"region"`

	// KnowledgeBaseID identifies the managed knowledge base.
	KnowledgeBaseID string `yaml:"knowledge_base_id"`

	// ModelID is the model identifier for direct invocation; it doubles
	// as the model ARN for the combined retrieve-and-generate call.
	ModelID string `yaml:"model_id"`

	// LogGroup is the CloudWatch log group watched by the aggregator.
	// Derived from LambdaFunction when empty.
	LogGroup string `yaml:"log_group"`

	// LambdaFunction names the Lambda whose logs to watch, as an
	// alternative to LogGroup.
	LambdaFunction string `yaml:"lambda_function"`

	// LookbackHours is the log fetch window. Default: 24.
	LookbackHours int `yaml:"lookback_hours"`

	// RefreshInterval is the periodic log refresh cadence. Default: 1h.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// ResultCount caps retrieved passages per query. Default: 5.
	ResultCount int32 `yaml:"result_count"`

	// Sampling parameters for model invocation.
	Temperature float32 `yaml:"temperature"`
	TopP        float32 `yaml:"top_p"`
	MaxGenLen   int32   `yaml:"max_gen_len"`

	// TypingDelayMS is the pause between pseudo-streamed chunks in
	// milliseconds. Default: 100.
	TypingDelayMS int `yaml:"typing_delay_ms"`

	// LogKeywords overrides the default log filter keyword set.
	LogKeywords []string `yaml:"log_keywords"`
}

// Default returns a Config populated with all defaults. The AWS
// identifiers are intentionally empty; Validate rejects a config
// missing them.
func Default() *Config {
	return &Config{
		Port:            8080,
		Region:          "us-east-1",
		LookbackHours:   24,
		RefreshInterval: 1 * time.Hour,
		ResultCount:     5,
		Temperature:     0.7,
		TopP:            0.9,
		MaxGenLen:       512,
		TypingDelayMS:   100,
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty or missing), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				slog.Warn("Config file not found, using defaults and environment", "path", path)
			} else {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.LogGroup == "" && cfg.LambdaFunction != "" {
		cfg.LogGroup = cloudwatch.LambdaLogGroup(cfg.LambdaFunction)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required fields are set and numeric fields are
// in range.
func (c *Config) Validate() error {
	if c.KnowledgeBaseID == "" {
		return fmt.Errorf("knowledge_base_id is required (KODIAK_KNOWLEDGE_BASE_ID)")
	}
	if c.ModelID == "" {
		return fmt.Errorf("model_id is required (KODIAK_MODEL_ID)")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}
	if c.LookbackHours < 1 {
		slog.Warn("Invalid lookback_hours, defaulting to 24", "lookback_hours", c.LookbackHours)
		c.LookbackHours = 24
	}
	if c.RefreshInterval <= 0 {
		slog.Warn("Invalid refresh_interval, defaulting to 1h", "refresh_interval", c.RefreshInterval)
		c.RefreshInterval = 1 * time.Hour
	}
	return nil
}

// Lookback returns the log fetch window as a duration.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.LookbackHours) * time.Hour
}

// TypingDelay returns the pseudo-stream chunk delay as a duration.
func (c *Config) TypingDelay() time.Duration {
	return time.Duration(c.TypingDelayMS) * time.Millisecond
}

// applyEnv overlays KODIAK_* environment variables onto the config.
func (c *Config) applyEnv() {
	setString(&c.Region, "KODIAK_AWS_REGION")
	setString(&c.KnowledgeBaseID, "KODIAK_KNOWLEDGE_BASE_ID")
	setString(&c.ModelID, "KODIAK_MODEL_ID")
	setString(&c.LogGroup, "KODIAK_LOG_GROUP")
	setString(&c.LambdaFunction, "KODIAK_LAMBDA_FUNCTION")
	setInt(&c.Port, "KODIAK_PORT")
	setInt(&c.LookbackHours, "KODIAK_LOOKBACK_HOURS")
	setInt(&c.TypingDelayMS, "KODIAK_TYPING_DELAY_MS")

	if v := os.Getenv("KODIAK_REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("Invalid KODIAK_REFRESH_INTERVAL, keeping previous value",
				"value", v, "error", err)
		} else {
			c.RefreshInterval = d
		}
	}
	if v := os.Getenv("KODIAK_RESULT_COUNT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			slog.Warn("Invalid KODIAK_RESULT_COUNT, keeping previous value",
				"value", v, "error", err)
		} else {
			c.ResultCount = int32(n)
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Invalid integer environment variable, keeping previous value",
			"key", key, "value", v, "error", err)
		return
	}
	*dst = n
}
