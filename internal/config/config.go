// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	JWTSecret   string
	Analysis    AnalysisConfig
	Session     SessionConfig
}

// AnalysisConfig controls the analysis gateway client.
type AnalysisConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
}

// SessionConfig controls live-session buffering and liveness behavior.
type SessionConfig struct {
	// BufferThreshold is the buffered word count that triggers an analysis pass.
	BufferThreshold int
	// AnalysisInterval is the elapsed time since the last pass that triggers one.
	AnalysisInterval time.Duration
	// QualityThreshold is the response score below which follow-up questions
	// are requested.
	QualityThreshold float64
	// FollowUpCount is how many follow-up questions to request.
	FollowUpCount int
	// HeartbeatInterval is the protocol-level ping cadence.
	HeartbeatInterval time.Duration
	// CandidateTokenTTL bounds interview-scoped candidate credentials.
	CandidateTokenTTL time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/hirelens.db"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		Analysis: AnalysisConfig{
			BaseURL:        getEnv("ANALYSIS_BASE_URL", "https://api.openai.com/v1"),
			APIKey:         getEnv("ANALYSIS_API_KEY", ""),
			Model:          getEnv("ANALYSIS_MODEL", "gpt-4"),
			RequestTimeout: getEnvDuration("ANALYSIS_REQUEST_TIMEOUT", 30*time.Second),
		},
		Session: SessionConfig{
			BufferThreshold:   getEnvInt("SESSION_BUFFER_THRESHOLD", 200),
			AnalysisInterval:  getEnvDuration("SESSION_ANALYSIS_INTERVAL", 10*time.Second),
			QualityThreshold:  getEnvFloat("SESSION_QUALITY_THRESHOLD", 0.7),
			FollowUpCount:     getEnvInt("SESSION_FOLLOWUP_COUNT", 2),
			HeartbeatInterval: getEnvDuration("SESSION_HEARTBEAT_INTERVAL", 30*time.Second),
			CandidateTokenTTL: getEnvDuration("CANDIDATE_TOKEN_TTL", 2*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	if c.Session.BufferThreshold <= 0 {
		return fmt.Errorf("SESSION_BUFFER_THRESHOLD must be > 0")
	}
	if c.Session.AnalysisInterval <= 0 {
		return fmt.Errorf("SESSION_ANALYSIS_INTERVAL must be > 0")
	}
	if c.Session.QualityThreshold < 0 || c.Session.QualityThreshold > 1 {
		return fmt.Errorf("SESSION_QUALITY_THRESHOLD must be within [0, 1]")
	}
	if c.Session.HeartbeatInterval <= 0 {
		return fmt.Errorf("SESSION_HEARTBEAT_INTERVAL must be > 0")
	}
	if c.Analysis.RequestTimeout <= 0 {
		return fmt.Errorf("ANALYSIS_REQUEST_TIMEOUT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
