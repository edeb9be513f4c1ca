package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort       = "8080"
	DefaultHourlyRate = 0
	DefaultTimerTick  = 15 * time.Second
)

type Config struct {
	Port            string
	CredentialsFile string
	JWTSecret       []byte
	// DefaultHourlyRate applies to members without a rate of their own.
	DefaultHourlyRate float64
	// RateOverride, when set, replaces every member rate in reports.
	RateOverride *float64
	TimerTick    time.Duration
	CORSOrigins  []string
}

// Load reads .env (skipped on Render, where the platform injects the
// environment) and then the process environment over the defaults.
func Load() (*Config, error) {
	if os.Getenv("RENDER") == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("[config] .env not loaded, using OS environment")
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:              DefaultPort,
		DefaultHourlyRate: DefaultHourlyRate,
		TimerTick:         DefaultTimerTick,
		CORSOrigins:       []string{"*"},
	}
	if v := getenv("PORT"); v != "" {
		cfg.Port = v
	}
	cfg.CredentialsFile = getenv("GOOGLE_APPLICATION_CREDENTIALS_1")
	cfg.JWTSecret = []byte(getenv("JWT_SECRET_KEY"))

	if v := getenv("DEFAULT_HOURLY_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil || rate < 0 {
			return nil, fmt.Errorf("DEFAULT_HOURLY_RATE %q: want a non-negative number", v)
		}
		cfg.DefaultHourlyRate = rate
	}
	if v := getenv("RATE_OVERRIDE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil || rate < 0 {
			return nil, fmt.Errorf("RATE_OVERRIDE %q: want a non-negative number", v)
		}
		cfg.RateOverride = &rate
	}
	if v := getenv("TIMER_TICK"); v != "" {
		tick, err := time.ParseDuration(v)
		if err != nil || tick < time.Second {
			return nil, fmt.Errorf("TIMER_TICK %q: want a duration of at least 1s", v)
		}
		cfg.TimerTick = tick
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.CORSOrigins = origins
		}
	}
	return cfg, nil
}

// Validate checks what the HTTP gateway needs to start.
func (c *Config) Validate() error {
	if len(c.JWTSecret) == 0 {
		return fmt.Errorf("JWT_SECRET_KEY is not set")
	}
	if c.CredentialsFile == "" {
		return fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS_1 is not set")
	}
	return nil
}
