package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "GHOSTME"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "ghostme.db"
	defaultLogLevel      = "info"
	defaultMaxPerDay     = 10
	defaultMaxPerCompany = 3
	defaultAdminTokenTTL = 30

	minSaltLength = 32
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	DatabasePath         string
	LogLevel             string
	IPHashSalt           string
	MaxReportsPerDay     int
	MaxReportsPerCompany int
	AdminUsername        string
	AdminPassword        string
	AdminSigningSecret   string
	AdminTokenTTL        time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("ratelimit.max_per_day", defaultMaxPerDay)
	configViper.SetDefault("ratelimit.max_per_company", defaultMaxPerCompany)
	configViper.SetDefault("admin.token_ttl_minutes", defaultAdminTokenTTL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		IPHashSalt:           configViper.GetString("ratelimit.ip_hash_salt"),
		MaxReportsPerDay:     configViper.GetInt("ratelimit.max_per_day"),
		MaxReportsPerCompany: configViper.GetInt("ratelimit.max_per_company"),
		AdminUsername:        configViper.GetString("admin.username"),
		AdminPassword:        configViper.GetString("admin.password"),
		AdminSigningSecret:   configViper.GetString("admin.signing_secret"),
		AdminTokenTTL:        time.Duration(configViper.GetInt("admin.token_ttl_minutes")) * time.Minute,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if len(strings.TrimSpace(c.IPHashSalt)) < minSaltLength {
		return fmt.Errorf("ratelimit.ip_hash_salt must be at least %d characters", minSaltLength)
	}
	if c.MaxReportsPerDay <= 0 {
		return fmt.Errorf("ratelimit.max_per_day must be positive")
	}
	if c.MaxReportsPerCompany <= 0 {
		return fmt.Errorf("ratelimit.max_per_company must be positive")
	}
	if strings.TrimSpace(c.AdminUsername) == "" {
		return fmt.Errorf("admin.username is required")
	}
	if strings.TrimSpace(c.AdminPassword) == "" {
		return fmt.Errorf("admin.password is required")
	}
	if strings.TrimSpace(c.AdminSigningSecret) == "" {
		return fmt.Errorf("admin.signing_secret is required")
	}
	return nil
}
