package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port            string
	AllowedOrigin   string
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	Scope           string
	AuthSecret      string
	TokenTTLMinutes int
	OwnerPIN        string
	AttendantPIN    string
	ScanDebounceMS  int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	debounceMS, err := strconv.Atoi(getEnv("SCAN_DEBOUNCE_MS", "2000"))
	if err != nil || debounceMS < 1 {
		debounceMS = 2000
	}

	cfg := Config{
		Port:            getEnv("PORT", "8080"),
		AllowedOrigin:   getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         redisDB,
		Scope:           getEnv("SHOP_SCOPE", "main-shop"),
		AuthSecret:      strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		TokenTTLMinutes: tokenTTL,
		OwnerPIN:        strings.TrimSpace(os.Getenv("OWNER_PIN")),
		AttendantPIN:    strings.TrimSpace(os.Getenv("ATTENDANT_PIN")),
		ScanDebounceMS:  debounceMS,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
