package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for our application
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Kafka configuration
	Kafka KafkaConfig

	// JWT configuration
	JWT JWTConfig

	// Wallet configuration
	Wallet WalletConfig

	// Smart booking policy knobs
	Booking BookingConfig

	// Google Maps (ETA oracle)
	Maps MapsConfig

	// Rate limiting
	RateLimit RateLimitConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string

	// TTL values for different operations
	QRNonceTTL    time.Duration
	LeaderLockTTL time.Duration
	CacheTTL      time.Duration
}

// KafkaConfig holds real-time bus configuration
type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	UserTopic     string
	LandlordTopic string
	RelayGroupID  string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	JWTExpiresIn     time.Duration
	RefreshExpiresIn time.Duration

	// Shared secret for internal scheduled-job endpoints
	InternalJobToken string
}

// WalletConfig holds ledger configuration
type WalletConfig struct {
	// PlatformAccountID is the well-known account that retains platform
	// fees. The seeder creates it.
	PlatformAccountID string
}

// BookingConfig holds smart-booking policy parameters
type BookingConfig struct {
	GracePeriodMinutes   int
	FallbackETAMinutes   int
	ApproachRadiusMeters float64
	StalePresenceAfter   time.Duration
	NoShowPenaltyRate    float64
	PlatformFeeRate      float64
	SurgePlatformShare   float64
	MaxOvertimeCeiling   time.Duration
	SchedulerTick        time.Duration
	SchedulerBudget      time.Duration
	ExpirySweepTick      time.Duration
}

// MapsConfig holds the Google Maps API configuration
type MapsConfig struct {
	APIKey  string
	Timeout time.Duration
	Region  string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled          bool          `json:"enabled"`
	WindowDuration   time.Duration `json:"window_duration"`
	DefaultRequests  int           `json:"default_requests"`
	PublicRequests   int           `json:"public_requests"`
	BookingRequests  int           `json:"booking_requests"`
	LocationRequests int           `json:"location_requests"`
	WalletRequests   int           `json:"wallet_requests"`
	QRRequests       int           `json:"qr_requests"`
	InternalRequests int           `json:"internal_requests"`
	HealthRequests   int           `json:"health_requests"`
	WhitelistedIPs   []string      `json:"whitelisted_ips"`
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		// Database configuration
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "parktayo_db"),
			User:     getEnv("DB_USER", "parktayo_user"),
			Password: getEnv("DB_PASSWORD", "parktayo_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		// Redis configuration
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),

			QRNonceTTL:    getDurationEnv("REDIS_QR_NONCE_TTL", 5*time.Minute),
			LeaderLockTTL: getDurationEnv("REDIS_LEADER_LOCK_TTL", 30*time.Second),
			CacheTTL:      getDurationEnv("REDIS_CACHE_TTL", 1*time.Hour),
		},

		// Kafka configuration
		Kafka: KafkaConfig{
			Enabled:       getBoolEnv("KAFKA_ENABLED", true),
			Brokers:       getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			UserTopic:     getEnv("KAFKA_USER_TOPIC", "parktayo.user.events"),
			LandlordTopic: getEnv("KAFKA_LANDLORD_TOPIC", "parktayo.landlord.events"),
			RelayGroupID:  getEnv("KAFKA_RELAY_GROUP_ID", "parktayo-realtime-relayers"),
		},

		// JWT configuration
		JWT: JWTConfig{
			Secret:           getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
			JWTExpiresIn:     getDurationEnvSeconds("JWT_EXPIRES_IN", 15*time.Minute),
			RefreshExpiresIn: getDurationEnvSeconds("JWT_REFRESH_EXPIRES_IN", 24*time.Hour),
			InternalJobToken: getEnv("INTERNAL_JOB_TOKEN", ""),
		},

		// Wallet configuration
		Wallet: WalletConfig{
			PlatformAccountID: getEnv("PLATFORM_ACCOUNT_ID", "00000000-0000-0000-0000-000000000001"),
		},

		// Smart booking policy
		Booking: BookingConfig{
			GracePeriodMinutes:   getIntEnv("BOOKING_GRACE_PERIOD_MINUTES", 15),
			FallbackETAMinutes:   getIntEnv("BOOKING_FALLBACK_ETA_MINUTES", 30),
			ApproachRadiusMeters: getFloatEnv("BOOKING_APPROACH_RADIUS_METERS", 150),
			StalePresenceAfter:   getDurationEnv("BOOKING_STALE_PRESENCE_AFTER", 90*time.Second),
			NoShowPenaltyRate:    getFloatEnv("BOOKING_NO_SHOW_PENALTY_RATE", 0.5),
			PlatformFeeRate:      getFloatEnv("BOOKING_PLATFORM_FEE_RATE", 0.10),
			SurgePlatformShare:   getFloatEnv("BOOKING_SURGE_PLATFORM_SHARE", 0.5),
			MaxOvertimeCeiling:   getDurationEnv("BOOKING_MAX_OVERTIME_CEILING", 24*time.Hour),
			SchedulerTick:        getDurationEnv("NO_SHOW_SCHEDULER_TICK", 15*time.Second),
			SchedulerBudget:      getDurationEnv("NO_SHOW_SCHEDULER_BUDGET", 30*time.Second),
			ExpirySweepTick:      getDurationEnv("SESSION_EXPIRY_SWEEP_TICK", 1*time.Minute),
		},

		// Google Maps (ETA oracle)
		Maps: MapsConfig{
			APIKey:  getEnv("GOOGLE_MAPS_API_KEY", ""),
			Timeout: getDurationEnv("GOOGLE_MAPS_TIMEOUT", 5*time.Second),
			Region:  getEnv("GOOGLE_MAPS_REGION", "PH"),
		},

		// Rate limiting
		RateLimit: RateLimitConfig{
			Enabled:          getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:   getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests:  getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			PublicRequests:   getIntEnv("RATE_LIMIT_PUBLIC_REQUESTS", 100),
			BookingRequests:  getIntEnv("RATE_LIMIT_BOOKING_REQUESTS", 20),
			LocationRequests: getIntEnv("RATE_LIMIT_LOCATION_REQUESTS", 120),
			WalletRequests:   getIntEnv("RATE_LIMIT_WALLET_REQUESTS", 30),
			QRRequests:       getIntEnv("RATE_LIMIT_QR_REQUESTS", 10),
			InternalRequests: getIntEnv("RATE_LIMIT_INTERNAL_REQUESTS", 600),
			HealthRequests:   getIntEnv("RATE_LIMIT_HEALTH_REQUESTS", 300),
			WhitelistedIPs:   getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getFloatEnv gets a float environment variable with a fallback value
func getFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getDurationEnvSeconds gets an environment variable as seconds (int) and converts to time.Duration
func getDurationEnvSeconds(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
