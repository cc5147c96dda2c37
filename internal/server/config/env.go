package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config values from environment variables, loading a
// .env file first when one is present. Unset variables leave the current
// value untouched. Secrets (DSN, SMTP credentials) are expected to arrive
// this way in deployments rather than via flags.
func parseEnv(config *Config) {
	// Missing .env is not an error; variables may come from the process env.
	_ = godotenv.Load()

	if v, ok := os.LookupEnv("ADDRESS"); ok {
		config.EndpointAddrHTTP = v
	}
	if v, ok := os.LookupEnv("DATABASE_DSN"); ok {
		config.DatabaseDSN = v
	}
	if v, ok := os.LookupEnv("MAX_FAILED_LOGINS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			config.MaxFailedLogins = n
		}
	}
	if v, ok := os.LookupEnv("SMTP_ADDR"); ok {
		config.SMTPAddr = v
	}
	if v, ok := os.LookupEnv("SMTP_FROM"); ok {
		config.SMTPFrom = v
	}
	if v, ok := os.LookupEnv("SMTP_USERNAME"); ok {
		config.SMTPUsername = v
	}
	if v, ok := os.LookupEnv("SMTP_PASSWORD"); ok {
		config.SMTPPassword = v
	}
}
