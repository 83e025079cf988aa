package config

import (
	"os"
	"strconv"
	"time"

	"gorecal/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database  DatabaseConfig `validate:"required"`
	Monitor   MonitorConfig  `validate:"required"`
	Reweight  ReweightConfig `validate:"required"`
	Audit     AuditConfig
	Server    ServerConfig `validate:"required"`
	Profiling ProfilingConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL      string `validate:"required"`
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

// MonitorConfig holds outcome monitor settings
type MonitorConfig struct {
	MaxLivePredictions int
	SweepInterval      time.Duration
	SweepConcurrency   int
	ThresholdT1        float64
	ThresholdT7        float64
	ThresholdT30       float64
}

// ReweightConfig holds recalibration engine settings
type ReweightConfig struct {
	LearningRate      float64
	MinWeight         float64
	ExogenousCap      float64
	ObservationWindow int
	ErrorHistoryCap   int
	NoiseZThreshold   float64
	NoiseMinHistory   int
	DecayRate         float64
	DecayInterval     time.Duration
	WeightsPath       string
	Sources           string
}

// AuditConfig holds forensic chain settings
type AuditConfig struct {
	BaseSeed     int64
	VerifyOnBoot bool
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port      string `validate:"required"`
	AdminPort string
	GinMode   string
}

// ProfilingConfig holds performance profiling settings
type ProfilingConfig struct {
	Port    string
	Enabled bool
}

// DefaultSources is the starting classification table: id:class pairs,
// comma-separated. At least one endogenous source is required.
const DefaultSources = "rates-desk:endogenous,macro-feed:endogenous,sentiment-wire:exogenous,chain-oracle:exogenous"

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{}

	// Load database configuration
	dbConfig, err := loadDatabaseConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load database configuration")
	}
	config.Database = *dbConfig

	// Load monitor configuration
	config.Monitor = *loadMonitorConfig()

	// Load reweight configuration
	config.Reweight = *loadReweightConfig()

	// Load audit configuration
	config.Audit = *loadAuditConfig()

	// Load server configuration
	config.Server = *loadServerConfig()

	// Load profiling configuration
	config.Profiling = *loadProfilingConfig()

	// Validate required fields
	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadDatabaseConfig() (*DatabaseConfig, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}

	return &DatabaseConfig{
		URL:      url,
		User:     getEnvOrDefault("DB_USER", ""),
		Password: getEnvOrDefault("DB_PASS", ""),
		Name:     getEnvOrDefault("DB_NAME", ""),
		Host:     getEnvOrDefault("DB_HOST", ""),
		Port:     getEnvIntOrDefault("DB_PORT", 5432),
		SSLMode:  getEnvOrDefault("SSL_MODE", "disable"),
	}, nil
}

func loadMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		MaxLivePredictions: getEnvIntOrDefault("MONITOR_MAX_LIVE", 1000),
		SweepInterval:      getEnvDurationOrDefault("MONITOR_SWEEP_INTERVAL", 60*time.Second),
		SweepConcurrency:   getEnvIntOrDefault("MONITOR_SWEEP_CONCURRENCY", 4),
		ThresholdT1:        getEnvFloatOrDefault("MONITOR_THRESHOLD_T1", 0.3),
		ThresholdT7:        getEnvFloatOrDefault("MONITOR_THRESHOLD_T7", 0.5),
		ThresholdT30:       getEnvFloatOrDefault("MONITOR_THRESHOLD_T30", 0.7),
	}
}

func loadReweightConfig() *ReweightConfig {
	return &ReweightConfig{
		LearningRate:      getEnvFloatOrDefault("REWEIGHT_LEARNING_RATE", 0.1),
		MinWeight:         getEnvFloatOrDefault("REWEIGHT_MIN_WEIGHT", 0.001),
		ExogenousCap:      getEnvFloatOrDefault("REWEIGHT_EXOGENOUS_CAP", 0.15),
		ObservationWindow: getEnvIntOrDefault("REWEIGHT_OBSERVATION_WINDOW", 50),
		ErrorHistoryCap:   getEnvIntOrDefault("REWEIGHT_ERROR_HISTORY_CAP", 100),
		NoiseZThreshold:   getEnvFloatOrDefault("REWEIGHT_NOISE_Z", 1.5),
		NoiseMinHistory:   getEnvIntOrDefault("REWEIGHT_NOISE_MIN_HISTORY", 5),
		DecayRate:         getEnvFloatOrDefault("REWEIGHT_DECAY_RATE", 0.05),
		DecayInterval:     getEnvDurationOrDefault("REWEIGHT_DECAY_INTERVAL", 10*time.Minute),
		WeightsPath:       getEnvOrDefault("REWEIGHT_WEIGHTS_PATH", "ensemble/weights"),
		Sources:           getEnvOrDefault("ENSEMBLE_SOURCES", DefaultSources),
	}
}

func loadAuditConfig() *AuditConfig {
	return &AuditConfig{
		BaseSeed:     int64(getEnvIntOrDefault("AUDIT_BASE_SEED", 42)),
		VerifyOnBoot: getEnvBoolOrDefault("AUDIT_VERIFY_ON_BOOT", true),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:      getEnvOrDefault("PORT", "8080"),
		AdminPort: getEnvOrDefault("ADMIN_PORT", "8081"),
		GinMode:   getEnvOrDefault("GIN_MODE", "debug"),
	}
}

func loadProfilingConfig() *ProfilingConfig {
	return &ProfilingConfig{
		Port:    getEnvOrDefault("PPROF_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("PPROF_ENABLED", true),
	}
}

func validateConfig(config *Config) error {
	if config.Database.URL == "" {
		return errors.ConfigInvalid("database URL is required")
	}
	if config.Reweight.Sources == "" {
		return errors.ConfigInvalid("ensemble sources are required")
	}
	if config.Monitor.MaxLivePredictions <= 0 {
		return errors.ConfigInvalid("monitor max live predictions must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
