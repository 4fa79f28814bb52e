package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/carelink/homecare-scheduler/pkg/types"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Matching engine configuration
	Matching MatchingConfig `mapstructure:"matching"`

	// Conflict detection configuration
	Conflict ConflictConfig `mapstructure:"conflict"`

	// Auth configuration
	Auth AuthConfig `mapstructure:"auth"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Backend         string `mapstructure:"backend"` // "postgres" or "memory"
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// MatchingConfig holds default match criteria weights and thresholds
type MatchingConfig struct {
	DistanceWeight            int     `mapstructure:"distance_weight"`
	SpecialtyWeight           int     `mapstructure:"specialty_weight"`
	ClientPreferenceWeight    int     `mapstructure:"client_preference_weight"`
	CaregiverPreferenceWeight int     `mapstructure:"caregiver_preference_weight"`
	ExperienceWeight          int     `mapstructure:"experience_weight"`
	AvailabilityWeight        int     `mapstructure:"availability_weight"`
	ConsiderLanguage          bool    `mapstructure:"consider_language"`
	ConsiderGender            bool    `mapstructure:"consider_gender"`
	ConsiderPastMatches       bool    `mapstructure:"consider_past_matches"`
	MaxDistanceMiles          float64 `mapstructure:"max_distance_miles"`
	MinCompatibilityScore     float64 `mapstructure:"min_compatibility_score"`
}

// DefaultCriteria builds match criteria from the configured defaults
func (m MatchingConfig) DefaultCriteria() types.MatchCriteria {
	return types.MatchCriteria{
		DistanceWeight:            m.DistanceWeight,
		SpecialtyWeight:           m.SpecialtyWeight,
		ClientPreferenceWeight:    m.ClientPreferenceWeight,
		CaregiverPreferenceWeight: m.CaregiverPreferenceWeight,
		ExperienceWeight:          m.ExperienceWeight,
		AvailabilityWeight:        m.AvailabilityWeight,
		ConsiderLanguage:          m.ConsiderLanguage,
		ConsiderGender:            m.ConsiderGender,
		ConsiderPastMatches:       m.ConsiderPastMatches,
		MaxDistanceMiles:          m.MaxDistanceMiles,
		MinCompatibilityScore:     m.MinCompatibilityScore,
	}
}

// ConflictConfig holds conflict detection thresholds. Severity bucket
// boundaries are configurable constants, not hard invariants.
type ConflictConfig struct {
	TravelBufferMinutes int  `mapstructure:"travel_buffer_minutes"`
	MinutesPerMile      int  `mapstructure:"minutes_per_mile"`
	HighSeverityMin     int  `mapstructure:"high_severity_min"`
	MediumSeverityMin   int  `mapstructure:"medium_severity_min"`
	AutoScanEnabled     bool `mapstructure:"auto_scan_enabled"`
	ScanIntervalSeconds int  `mapstructure:"scan_interval_seconds"`
}

// ScanInterval returns the auto-scan period as a duration
func (c ConflictConfig) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

// AuthConfig holds bearer-token verification configuration
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/carelink")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8084)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)

	// Database defaults
	viper.SetDefault("database.backend", "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "carelink")
	viper.SetDefault("database.user", "carelink")
	viper.SetDefault("database.ssl_mode", "require")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	// Matching defaults
	viper.SetDefault("matching.distance_weight", 3)
	viper.SetDefault("matching.specialty_weight", 5)
	viper.SetDefault("matching.client_preference_weight", 3)
	viper.SetDefault("matching.caregiver_preference_weight", 2)
	viper.SetDefault("matching.experience_weight", 3)
	viper.SetDefault("matching.availability_weight", 5)
	viper.SetDefault("matching.consider_language", true)
	viper.SetDefault("matching.consider_gender", false)
	viper.SetDefault("matching.consider_past_matches", false)
	viper.SetDefault("matching.max_distance_miles", 25.0)
	viper.SetDefault("matching.min_compatibility_score", 60.0)

	// Conflict defaults
	viper.SetDefault("conflict.travel_buffer_minutes", 30)
	viper.SetDefault("conflict.minutes_per_mile", 2)
	viper.SetDefault("conflict.high_severity_min", 8)
	viper.SetDefault("conflict.medium_severity_min", 4)
	viper.SetDefault("conflict.auto_scan_enabled", true)
	viper.SetDefault("conflict.scan_interval_seconds", 300)

	// Auth defaults
	viper.SetDefault("auth.issuer", "carelink-scheduler")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")
	viper.SetDefault("monitoring.health_path", "/health")

	// Logging defaults
	viper.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if backend := os.Getenv("DB_BACKEND"); backend != "" {
		config.Database.Backend = backend
	}

	if jwtSecret := os.Getenv("JWT_SECRET_KEY"); jwtSecret != "" {
		config.Auth.JWTSecret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Backend != "postgres" && config.Database.Backend != "memory" {
		return fmt.Errorf("unknown database backend: %s", config.Database.Backend)
	}

	if config.Database.Backend == "postgres" && config.Database.Password == "" {
		return fmt.Errorf("database password is required")
	}

	if config.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret key is required")
	}

	criteria := config.Matching.DefaultCriteria()
	if err := criteria.Validate(); err != nil {
		return fmt.Errorf("invalid default match criteria: %w", err)
	}

	if config.Conflict.MediumSeverityMin >= config.Conflict.HighSeverityMin {
		return fmt.Errorf("medium severity boundary must be below high severity boundary")
	}

	return nil
}
