package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUrl             string
	RedisURL          string
	RedisPassword     string
	GatewayBaseURL    string
	GatewaySecret     string
	JWTSecret         string
	MinDepositAmount  int64
	DepositCooldown   time.Duration
	VerifyMaxAttempts int
	GatewayTimeout    time.Duration
	Port              string
	Host              string
	Env               string
	AllowedOrigins    []string
}

func LoadConfig() Config {
	godotenv.Load()

	minAmount, err := strconv.ParseInt(getEnv("MIN_DEPOSIT_AMOUNT"), 10, 64)
	if err != nil {
		panic("MIN_DEPOSIT_AMOUNT must be a valid integer")
	}

	return Config{
		DBUrl:             getEnv("DATABASE_URL"),
		RedisURL:          getEnv("REDIS_URL"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		GatewayBaseURL:    getEnvDefault("GATEWAY_BASE_URL", "https://api.paystack.co"),
		GatewaySecret:     getEnv("GATEWAY_SECRET"),
		JWTSecret:         getEnv("JWT_SECRET"),
		MinDepositAmount:  minAmount,
		DepositCooldown:   time.Duration(getEnvInt("DEPOSIT_COOLDOWN_SECONDS", 120)) * time.Second,
		VerifyMaxAttempts: getEnvInt("VERIFY_MAX_ATTEMPTS", 5),
		GatewayTimeout:    time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECONDS", 15)) * time.Second,
		Port:              getEnv("PORT"),
		Host:              getEnv("HOST"),
		Env:               getEnv("ENV"),
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS"), ","),
	}
}

func getEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	panic(fmt.Sprintf("%s is required", key))
}

func getEnvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		panic(fmt.Sprintf("%s must be a valid integer", key))
	}
	return parsed
}
