package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration loaded from environment variables
// Provide sane defaults for local development.
type Config struct {
	AppName   string
	Env       string // development, staging, production
	Port      string
	GinMode   string
	APIPrefix string
	LogLevel  string

	// Database (sign-up interest log)
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	DBMaxConns    int32
	DBMinConns    int32
	DBMaxConnLife time.Duration

	// Redis (sessions, request rate limits)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JWTAccessSecret  string
	JWTRefreshSecret string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration

	// Cookies
	CookieDomain string
	CookieSecure bool

	// CORS
	CORSAllowedOrigins string // comma-separated

	// Migrations
	MigrationsDir string

	// Accounts
	AccountCapacity      int // 0 disables the ceiling
	PendingAccountTTL    time.Duration
	PendingEmailTTL      time.Duration
	ResetCodeTTL         time.Duration
	HousekeepingInterval time.Duration
	MaxAgeYears          int

	// Failed authentication guard
	GuardAddressThreshold int
	GuardEmailThreshold   int
	GuardAddressTTL       time.Duration
	GuardEmailTTL         time.Duration
	GuardSweepInterval    time.Duration

	// Checkpoints
	CheckpointPath      string
	CheckpointInterval  time.Duration
	CheckpointGCSObject string // optional mirror inside GCSBucket

	// Google Cloud Storage
	GCSBucket              string
	GCSCredentialsJSONPath string // optional; if empty, Application Default Credentials are used

	// Mailgun
	MailgunDomain string
	MailgunAPIKey string
	MailgunSender string

	// RabbitMQ
	RabbitMQURL        string
	RabbitMQEmailQueue string

	// Elasticsearch
	ElasticsearchAddrs string // comma-separated
	ElasticsearchUser  string
	ElasticsearchPass  string
	ESSecurityIndex    string

	// Company/Links for emails
	CompanyName    string
	CompanyAddress string
	LogoURL        string
	SupportURL     string
	PrivacyURL     string
	UnsubscribeURL string
	ActivateURL    string
	ResetURL       string
	ConfirmURL     string

	// Email sending toggle
	MailSendEnabled bool
	MailQueueSize   int

	// Interest log toggle (requires Postgres)
	InterestLogEnabled bool

	// Debug metrics (/debug/vars)
	DebugMetricsEnabled bool

	// HTTP access log toggle (Gin logger)
	HTTPLogEnabled bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getbool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("invalid boolean for %s: %v, using default %v", key, err, def)
			return def
		}
		return b
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid int for %s: %v, using default %d", key, err, def)
			return def
		}
		return i
	}
	return def
}

func getdur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using default %v", key, err, def)
			return def
		}
		return d
	}
	return def
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		AppName: getenv("APP_NAME", "account-guard"),
		Env:     getenv("APP_ENV", "development"),
		Port:    getenv("PORT", "8080"),
		GinMode: getenv("GIN_MODE", "release"),

		APIPrefix: getenv("API_PREFIX", "/api"),
		LogLevel:  getenv("LOG_LEVEL", ""),

		DBHost:        getenv("DB_HOST", "localhost"),
		DBPort:        getenv("DB_PORT", "5432"),
		DBUser:        getenv("DB_USER", "postgres"),
		DBPassword:    getenv("DB_PASSWORD", "postgres"),
		DBName:        getenv("DB_NAME", "appdb"),
		DBSSLMode:     getenv("DB_SSLMODE", "disable"),
		DBMaxConns:    int32(getint("DB_MAX_CONNS", 4)),
		DBMinConns:    int32(getint("DB_MIN_CONNS", 1)),
		DBMaxConnLife: getdur("DB_MAX_CONN_LIFETIME", time.Hour),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getint("REDIS_DB", 0),

		JWTAccessSecret:  getenv("JWT_ACCESS_SECRET", "devaccesssecret"),
		JWTRefreshSecret: getenv("JWT_REFRESH_SECRET", "devrefreshsecret"),
		AccessTTL:        getdur("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:       getdur("JWT_REFRESH_TTL", 168*time.Hour),

		CookieDomain: getenv("COOKIE_DOMAIN", "localhost"),
		CookieSecure: getbool("COOKIE_SECURE", false),

		CORSAllowedOrigins: getenv("CORS_ALLOWED_ORIGINS", ""),

		MigrationsDir: getenv("MIGRATIONS_DIR", "db/migrations"),

		AccountCapacity:      getint("ACCOUNT_CAPACITY", 0),
		PendingAccountTTL:    getdur("PENDING_ACCOUNT_TTL", 72*time.Hour),
		PendingEmailTTL:      getdur("PENDING_EMAIL_TTL", 72*time.Hour),
		ResetCodeTTL:         getdur("RESET_CODE_TTL", 2*time.Hour),
		HousekeepingInterval: getdur("HOUSEKEEPING_INTERVAL", 10*time.Minute),
		MaxAgeYears:          getint("MAX_AGE_YEARS", 120),

		GuardAddressThreshold: getint("GUARD_ADDRESS_THRESHOLD", 40),
		GuardEmailThreshold:   getint("GUARD_EMAIL_THRESHOLD", 6),
		GuardAddressTTL:       getdur("GUARD_ADDRESS_TTL", time.Hour),
		GuardEmailTTL:         getdur("GUARD_EMAIL_TTL", 24*time.Hour),
		GuardSweepInterval:    getdur("GUARD_SWEEP_INTERVAL", 5*time.Minute),

		CheckpointPath:      getenv("CHECKPOINT_PATH", "var/accounts.ckpt"),
		CheckpointInterval:  getdur("CHECKPOINT_INTERVAL", 5*time.Minute),
		CheckpointGCSObject: getenv("CHECKPOINT_GCS_OBJECT", ""),

		GCSBucket:              getenv("GCS_BUCKET", ""),
		GCSCredentialsJSONPath: getenv("GCS_CREDENTIALS_JSON", ""),

		MailgunDomain: getenv("MAILGUN_DOMAIN", ""),
		MailgunAPIKey: getenv("MAILGUN_API_KEY", ""),
		MailgunSender: getenv("MAILGUN_SENDER", ""),

		RabbitMQURL:        getenv("RABBITMQ_URL", ""),
		RabbitMQEmailQueue: getenv("RABBITMQ_EMAIL_QUEUE", "emails"),

		ElasticsearchAddrs: getenv("ELASTICSEARCH_ADDRS", ""),
		ElasticsearchUser:  getenv("ELASTICSEARCH_USERNAME", ""),
		ElasticsearchPass:  getenv("ELASTICSEARCH_PASSWORD", ""),
		ESSecurityIndex:    getenv("ES_SECURITY_INDEX", "auth-lockouts"),

		CompanyName:    getenv("COMPANY_NAME", ""),
		CompanyAddress: getenv("COMPANY_ADDRESS", ""),
		LogoURL:        getenv("LOGO_URL", ""),
		SupportURL:     getenv("SUPPORT_URL", ""),
		PrivacyURL:     getenv("PRIVACY_URL", ""),
		UnsubscribeURL: getenv("UNSUBSCRIBE_URL", ""),
		ActivateURL:    getenv("ACTIVATE_URL", "http://localhost:8080/activate"),
		ResetURL:       getenv("RESET_PASSWORD_URL", "http://localhost:8080/reset-password"),
		ConfirmURL:     getenv("CONFIRM_EMAIL_URL", "http://localhost:8080/confirm-email"),

		// Email sending toggle (default true for backward compatibility)
		MailSendEnabled: getbool("MAIL_SEND_ENABLED", true),
		MailQueueSize:   getint("MAIL_QUEUE_SIZE", 1024),

		InterestLogEnabled: getbool("INTEREST_LOG_ENABLED", false),

		DebugMetricsEnabled: getbool("DEBUG_METRICS_ENABLED", true),

		// HTTP access log toggle (default false; enable when needed)
		HTTPLogEnabled: getbool("HTTP_LOG_ENABLED", false),
	}
}

// PostgresDSN returns a DSN compatible with pgx
func (c *Config) PostgresDSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

// CORSOrigins returns the allowed origins as slice
func (c *Config) CORSOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// ESAddrs returns Elasticsearch addresses as a slice
func (c *Config) ESAddrs() []string {
	return splitList(c.ElasticsearchAddrs)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			res = append(res, p)
		}
	}
	return res
}
