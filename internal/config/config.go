package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port         string
	Env          string
	LogLevel     string
	RoundsFile   string // empty uses the embedded rounds
	TipCost      decimal.Decimal
	VotingWindow time.Duration
	HostKey      string
	DefaultGame  string
	DatabaseURL  string // empty disables the archive
	CORSOrigins  []string
	WSMsgRate    float64
	WSMsgBurst   int
}

// Load reads the environment, after loading a .env file if one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	tipCost, err := decimal.NewFromString(getEnv("TIP_COST", "250"))
	if err != nil {
		return Config{}, fmt.Errorf("TIP_COST: %w", err)
	}
	if tipCost.IsNegative() {
		return Config{}, fmt.Errorf("TIP_COST: must not be negative")
	}

	cfg := Config{
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("APP_ENV", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		RoundsFile:   os.Getenv("ROUNDS_FILE"),
		TipCost:      tipCost,
		VotingWindow: time.Duration(getEnvAsInt("VOTING_WINDOW_SEC", 60)) * time.Second,
		HostKey:      os.Getenv("HOST_KEY"),
		DefaultGame:  strings.ToUpper(getEnv("DEFAULT_GAME", "MAIN")),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		CORSOrigins:  splitList(getEnv("CORS_ORIGINS", "*")),
		WSMsgRate:    getEnvAsFloat("WS_MSG_RATE", 10),
		WSMsgBurst:   getEnvAsInt("WS_MSG_BURST", 20),
	}
	return cfg, nil
}

func (c Config) Addr() string { return ":" + c.Port }

func (c Config) IsProduction() bool { return c.Env == "production" }

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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
