package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/censusconnect/authserver/internal/flagx"
	"github.com/censusconnect/authserver/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP    string         `json:"endpoint_addr_http"`
	DatabaseDSN         string         `json:"database_dsn"`
	SessionTTL          timex.Duration `json:"session_ttl"`
	ActivationTokenTTL  timex.Duration `json:"activation_token_ttl"`
	ResetTokenTTL       timex.Duration `json:"reset_token_ttl"`
	MaxFailedLogins     int            `json:"max_failed_logins"`
	AccountLockDuration timex.Duration `json:"account_lock_duration"`
	RequestRatePerSec   float64        `json:"request_rate_per_sec"`
	RequestBurst        int            `json:"request_burst"`
	PruneInterval       timex.Duration `json:"prune_interval"`
	SMTPAddr            string         `json:"smtp_addr"`
	SMTPFrom            string         `json:"smtp_from"`
	SMTPUsername        string         `json:"smtp_username"`
	SMTPPassword        string         `json:"smtp_password"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; when neither is set, no JSON file is loaded. If the file cannot be
// read or contains invalid JSON, the function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.SessionTTL = time.Duration(c.SessionTTL.Duration)
	config.ActivationTokenTTL = time.Duration(c.ActivationTokenTTL.Duration)
	config.ResetTokenTTL = time.Duration(c.ResetTokenTTL.Duration)
	config.MaxFailedLogins = c.MaxFailedLogins
	config.AccountLockDuration = time.Duration(c.AccountLockDuration.Duration)
	config.RequestRatePerSec = c.RequestRatePerSec
	config.RequestBurst = c.RequestBurst
	config.PruneInterval = time.Duration(c.PruneInterval.Duration)
	config.SMTPAddr = c.SMTPAddr
	config.SMTPFrom = c.SMTPFrom
	config.SMTPUsername = c.SMTPUsername
	config.SMTPPassword = c.SMTPPassword
}
