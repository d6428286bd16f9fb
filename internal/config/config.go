package config

import (
	"time"

	"github.com/spf13/viper"
)

type AuthMode string

const (
	AuthModeNone  AuthMode = "none"  // No authentication; callers name the acting user explicitly
	AuthModeLocal AuthMode = "local" // Local user database with sessions and API tokens (default)
)

type DatabaseDriver string

const (
	DriverSQLite   DatabaseDriver = "sqlite"
	DriverPostgres DatabaseDriver = "postgres"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Auth
		Tasks
		Lending
		Catalog
		Audit
		Schedules
	}

	HTTP struct {
		Port int32
		Host string
	}

	Global struct {
		ShutdownTimeoutInSeconds int
	}

	Database struct {
		Driver  DatabaseDriver
		Path    string // SQLite file
		DSN     string // Postgres connection string
		Verbose bool   // Log every SQL statement
	}

	Auth struct {
		Mode            AuthMode
		SessionSecret   string
		SessionLifetime time.Duration
		TokenExpiry     time.Duration
		BcryptCost      int
		SecureCookies   bool // Set to false for local dev without HTTPS

		MaxLoginAttempts int           // Failed attempts before lockout (default: 5)
		LoginWindow      time.Duration // Window the failed attempts are counted in (default: 15m)
		LockoutDuration  time.Duration // How long to lock out (default: 30m)
	}

	Tasks struct {
		Enabled           bool
		Workers           int
		MaxRetries        int
		RetryDelay        time.Duration
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}

	Lending struct {
		FinePerDay              string // Decimal string, e.g. "0.5"
		FineCurrency            string
		DefaultLoanPeriodMonths int
	}

	Catalog struct {
		DefaultPageSize int
		MaxPageSize     int
	}

	Audit struct {
		RetentionDays int
		ArchiveDir    string // Expired events are written here before deletion; empty disables archiving
	}

	Schedules struct {
		Enabled      bool
		OverdueSweep string // Cron format: "0 6 * * *" = daily at 06:00
		AuditCleanup string
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)

	v.SetDefault("database_driver", string(DriverSQLite))
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("database_dsn", "")
	v.SetDefault("database_verbose", false)

	// Auth defaults
	v.SetDefault("auth_mode", string(AuthModeLocal))
	v.SetDefault("auth_session_secret", "")      // Auto-generated if empty
	v.SetDefault("auth_session_lifetime", "24h") // 24 hours
	v.SetDefault("auth_token_expiry", "720h")    // 30 days
	v.SetDefault("auth_bcrypt_cost", 12)
	v.SetDefault("auth_secure_cookies", true)
	v.SetDefault("auth_max_login_attempts", 5)
	v.SetDefault("auth_login_window", "15m")
	v.SetDefault("auth_lockout_duration", "30m")

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_max_retries", 3)
	v.SetDefault("task_retry_delay", "1m")
	v.SetDefault("task_timeout", "5m")
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	// Lending defaults
	v.SetDefault("lending_fine_per_day", DefaultFinePerDay)
	v.SetDefault("lending_fine_currency", DefaultFineCurrency)
	v.SetDefault("lending_default_loan_period_months", 1)

	v.SetDefault("catalog_default_page_size", DefaultPageSize)
	v.SetDefault("catalog_max_page_size", MaxPageSize)

	v.SetDefault("audit_retention_days", 90)
	v.SetDefault("audit_archive_dir", "")

	v.SetDefault("schedules_enabled", true)
	v.SetDefault("overdue_sweep_schedule", "0 6 * * *")  // Daily at 06:00
	v.SetDefault("audit_cleanup_schedule", "30 3 * * 0") // Sundays at 03:30

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Driver:  DatabaseDriver(v.GetString("DATABASE_DRIVER")),
			Path:    v.GetString("DATABASE_PATH"),
			DSN:     v.GetString("DATABASE_DSN"),
			Verbose: v.GetBool("DATABASE_VERBOSE"),
		},
		Auth: Auth{
			Mode:             AuthMode(v.GetString("AUTH_MODE")),
			SessionSecret:    v.GetString("AUTH_SESSION_SECRET"),
			SessionLifetime:  v.GetDuration("AUTH_SESSION_LIFETIME"),
			TokenExpiry:      v.GetDuration("AUTH_TOKEN_EXPIRY"),
			BcryptCost:       v.GetInt("AUTH_BCRYPT_COST"),
			SecureCookies:    v.GetBool("AUTH_SECURE_COOKIES"),
			MaxLoginAttempts: v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS"),
			LoginWindow:      v.GetDuration("AUTH_LOGIN_WINDOW"),
			LockoutDuration:  v.GetDuration("AUTH_LOCKOUT_DURATION"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			Workers:           v.GetInt("TASK_WORKERS"),
			MaxRetries:        v.GetInt("TASK_MAX_RETRIES"),
			RetryDelay:        v.GetDuration("TASK_RETRY_DELAY"),
			TaskTimeout:       v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		Lending: Lending{
			FinePerDay:              v.GetString("LENDING_FINE_PER_DAY"),
			FineCurrency:            v.GetString("LENDING_FINE_CURRENCY"),
			DefaultLoanPeriodMonths: v.GetInt("LENDING_DEFAULT_LOAN_PERIOD_MONTHS"),
		},
		Catalog: Catalog{
			DefaultPageSize: v.GetInt("CATALOG_DEFAULT_PAGE_SIZE"),
			MaxPageSize:     v.GetInt("CATALOG_MAX_PAGE_SIZE"),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
			ArchiveDir:    v.GetString("AUDIT_ARCHIVE_DIR"),
		},
		Schedules: Schedules{
			Enabled:      v.GetBool("SCHEDULES_ENABLED"),
			OverdueSweep: v.GetString("OVERDUE_SWEEP_SCHEDULE"),
			AuditCleanup: v.GetString("AUDIT_CLEANUP_SCHEDULE"),
		},
	}
}
