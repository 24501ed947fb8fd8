// Package config loads service configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	DBDriver string // "sqlite" or "postgres"
	DBDSN    string

	// Kafka is optional; empty brokers means events are discarded.
	KafkaBrokers []string

	// External service URLs for the split deployment. Empty means the
	// ledger's own database serves lease/tenant lookups.
	LeaseServiceURL    string
	TenantServiceURL   string
	PropertyServiceURL string
}

// Load reads .env (if present) and the environment. Missing values fall
// back to single-binary sqlite defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	cfg := Config{
		Port:               getEnv("PORT", "8084"),
		DBDriver:           getEnv("DB_DRIVER", "sqlite"),
		DBDSN:              getEnv("DB_DSN", "./data/rento.db"),
		LeaseServiceURL:    os.Getenv("LEASE_SERVICE_URL"),
		TenantServiceURL:   os.Getenv("TENANT_SERVICE_URL"),
		PropertyServiceURL: os.Getenv("PROPERTY_SERVICE_URL"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
