package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" envDefault:"fern-api"`
	Version                       string   `env:"APP_VERSION" envDefault:"dev"`
	Port                          int      `env:"PORT" envDefault:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" envDefault:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" envDefault:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" envDefault:"660"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" envDefault:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" envDefault:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" envDefault:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" envDefault:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" envDefault:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" envDefault:"GET,POST,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" envDefault:"5"`

	// Database host
	DatabaseHost string `env:"DB_HOST" envDefault:"localhost"`
	// Database port
	DatabasePort string `env:"DB_PORT" envDefault:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" envDefault:"postgres"`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" envDefault:""`
	// Database name
	DatabaseName string `env:"DB_NAME" envDefault:"fern"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SSL_MODE" envDefault:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" envDefault:"db/pg"`
	// Database Migration Version
	DatabaseMigrationVersion uint `env:"DB_MIGRATION_VERSION" envDefault:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" envDefault:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" envDefault:"true"`

	// Auth Enabled - when false, the X-User-ID and X-User-Roles headers are trusted
	AuthEnabled bool `env:"AUTH_ENABLED" envDefault:"false"`
	// Auth Issuer URL
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" envDefault:""`
	// Auth Client ID
	AuthClientID string `env:"AUTH_CLIENT_ID" envDefault:""`
	// Role required for the admin API
	AuthAdminRole string `env:"AUTH_ADMIN_ROLE" envDefault:"admin"`

	// Redis backs the per-mapping locks. Disabled falls back to in-process locks.
	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	// Lock TTL and the maximum wait for a contended mapping lock
	RedisLockTTL  time.Duration `env:"REDIS_LOCK_TTL" envDefault:"30s"`
	RedisLockWait time.Duration `env:"REDIS_LOCK_WAIT" envDefault:"10s"`

	KafkaEnabled bool `env:"KAFKA_ENABLED" envDefault:"false"`
	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	// Topic receiving sync.completed events
	KafkaSyncTopic string `env:"KAFKA_SYNC_TOPIC" envDefault:"fern-sync-events"`

	// Tracing settings
	OTLPEnabled  bool   `env:"OTLP_ENABLED" envDefault:"false"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTLPProtocol string `env:"OTLP_PROTOCOL" envDefault:"grpc"`
	OTLPInsecure bool   `env:"OTLP_INSECURE" envDefault:"true"`
	OTLPHeaders  string `env:"OTLP_HEADERS" envDefault:""` // key=value,key2=value2

	// Import settings
	// Overall deadline for one import run
	ImportRunTimeout time.Duration `env:"IMPORT_RUN_TIMEOUT" envDefault:"10m"`
	// Timeout for every outbound partner request
	PartnerRequestTimeout time.Duration `env:"PARTNER_REQUEST_TIMEOUT" envDefault:"30s"`

	AtlasBaseURL     string `env:"ATLAS_BASE_URL" envDefault:"https://api.atlas-campers.example"`
	AtlasAPIKey      string `env:"ATLAS_API_KEY" envDefault:""`
	DriftwoodBaseURL string `env:"DRIFTWOOD_BASE_URL" envDefault:"https://partners.driftwood.example"`
	DriftwoodAPIKey  string `env:"DRIFTWOOD_API_KEY" envDefault:""`

	// Availability window search
	AvailabilityTargetWeekday string        `env:"AVAILABILITY_TARGET_WEEKDAY" envDefault:"tuesday"`
	AvailabilityWindowDays    int           `env:"AVAILABILITY_WINDOW_DAYS" envDefault:"14"`
	AvailabilityMaxAttempts   int           `env:"AVAILABILITY_MAX_ATTEMPTS" envDefault:"10"`
	AvailabilityProbeTimeout  time.Duration `env:"AVAILABILITY_PROBE_TIMEOUT" envDefault:"15s"`

	// Locally hosted media. Images whose URL starts with the prefix are files under the root.
	MediaLocalURLPrefix string `env:"MEDIA_LOCAL_URL_PREFIX" envDefault:"/media/"`
	MediaLocalRoot      string `env:"MEDIA_LOCAL_ROOT" envDefault:"./media"`
}

// Load reads the given .env files (missing files are ignored) and parses the environment.
func Load(envFiles ...string) (*Config, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("failed to load env files: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if _, err := cfg.TargetWeekday(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// TargetWeekday parses AVAILABILITY_TARGET_WEEKDAY.
func (c *Config) TargetWeekday() (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(c.AvailabilityTargetWeekday)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid AVAILABILITY_TARGET_WEEKDAY %q", c.AvailabilityTargetWeekday)
}

// DatabaseDSN builds the lib/pq connection string.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost, c.DatabasePort, c.DatabaseUserName, c.DatabasePassword, c.DatabaseName, c.DatabaseSSLMode)
}
