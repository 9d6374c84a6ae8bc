package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	AllowedOrigins []string // CORS allowed origins
	RequestTimeout time.Duration

	LogLevel      string
	LogFile       string // empty disables file output
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	RateLimit         RateLimit
	RecoveryRateLimit RateLimit

	KVBackend      string // dynamo, redis, bolt, sql or memory
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTableKV  string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string
	BoltPath       string
	SQLDSN         string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	DirectoryTimeout       time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SMTPTLS      string // none, opportunistic or mandatory
	SNSRegion    string
	SMSEnabled   bool

	JWTPrivateKeyPath   string
	JWTPublicKeyPath    string
	RecoveryTokenExpiry time.Duration
}

// RateLimit configures one limiter scope.
type RateLimit struct {
	MaxRequests int
	Window      time.Duration
	CASRetries  int
	CASBackoff  time.Duration
}

// Load reads all configuration from environment variables.
func Load() *Config {
	casRetries := getEnvInt("RATE_LIMIT_CAS_RETRIES", 5)
	casBackoff := getEnvDuration("RATE_LIMIT_CAS_BACKOFF", 10*time.Millisecond)
	window := getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second)

	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 5*time.Second),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 7),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),

		RateLimit: RateLimit{
			MaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", 10),
			Window:      window,
			CASRetries:  casRetries,
			CASBackoff:  casBackoff,
		},
		RecoveryRateLimit: RateLimit{
			MaxRequests: getEnvInt("RECOVERY_RATE_LIMIT_MAX_REQUESTS", 5),
			Window:      getEnvDuration("RECOVERY_RATE_LIMIT_WINDOW", window),
			CASRetries:  casRetries,
			CASBackoff:  casBackoff,
		},

		KVBackend:      strings.ToLower(getEnv("KV_BACKEND", "dynamo")),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTableKV:  getEnv("DYNAMO_TABLE_KV", "email_gate_kv"),
		RedisAddr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RedisPrefix:    getEnv("REDIS_PREFIX", "eg"),
		BoltPath:       getEnv("BOLT_PATH", "./data/kv.db"),
		SQLDSN:         getEnv("SQL_DSN", "file:./data/kv.sqlite?_pragma=busy_timeout(5000)"),

		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		DirectoryTimeout:       getEnvDuration("DIRECTORY_TIMEOUT", 3*time.Second),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvInt("SMTP_PORT", 1025),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPTLS:      strings.ToLower(getEnv("SMTP_TLS", "opportunistic")),
		SNSRegion:    getEnv("SNS_REGION", "us-east-1"),
		SMSEnabled:   getEnvBool("SMS_ENABLED", false),

		JWTPrivateKeyPath:   getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:    getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		RecoveryTokenExpiry: getEnvDuration("RECOVERY_TOKEN_EXPIRY", 15*time.Minute),
	}
}

// IsDevelopment reports whether APP_ENV is development.
func (c *Config) IsDevelopment() bool { return c.AppEnv == "development" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("750ms", "1m") or bare seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
