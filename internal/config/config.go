package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Mailbox   MailboxConfig   `mapstructure:"mailbox"`
	Parser    ParserConfig    `mapstructure:"parser"`
	Matcher   MatcherConfig   `mapstructure:"matcher"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// AccountConfig describes one mailbox to scan
type AccountConfig struct {
	ID       string `mapstructure:"id"`
	Provider string `mapstructure:"provider"` // imap or gmail
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	TLS      bool   `mapstructure:"tls"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Folder   string `mapstructure:"folder"`

	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
}

// MailboxConfig holds the accounts and limits for mailbox scanning
type MailboxConfig struct {
	Accounts    []AccountConfig `mapstructure:"accounts"`
	Timeout     time.Duration   `mapstructure:"timeout"`
	Concurrency int             `mapstructure:"concurrency"`
}

// SenderConfig names the processor behind one notification address.
// Addresses are listed rather than used as map keys because viper splits
// keys on dots.
type SenderConfig struct {
	Address   string `mapstructure:"address"`
	Processor string `mapstructure:"processor"`
}

// ParserConfig holds the processor sender allowlist
type ParserConfig struct {
	Senders []SenderConfig `mapstructure:"senders"`
}

// SenderMap returns the allowlist keyed by lower-cased address, or
// DefaultSenders when none are configured.
func (c *ParserConfig) SenderMap() map[string]string {
	if len(c.Senders) == 0 {
		out := make(map[string]string, len(DefaultSenders))
		for addr, processor := range DefaultSenders {
			out[addr] = processor
		}
		return out
	}
	out := make(map[string]string, len(c.Senders))
	for _, s := range c.Senders {
		out[strings.ToLower(strings.TrimSpace(s.Address))] = s.Processor
	}
	return out
}

// MatcherConfig holds tenant matching thresholds
type MatcherConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	Margin    float64 `mapstructure:"margin"`
}

// ReconcileConfig holds pipeline options
type ReconcileConfig struct {
	MarkRead bool          `mapstructure:"mark_read"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

// RedisConfig holds the optional Redis connection used for run locks
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LedgerConfig holds ledger options
type LedgerConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// LogConfig holds logging options
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultSenders is the built-in allowlist of processor notification senders.
var DefaultSenders = map[string]string{
	"venmo@venmo.com":       "venmo",
	"cash@square.com":       "cash_app",
	"no-reply@zellepay.com": "zelle",
	"service@paypal.com":    "paypal",
}

// LoadConfig loads configuration from environment variables and config file.
// An empty path searches ./config.yaml and ./config/config.yaml.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)

	v.SetDefault("mailbox.timeout", "30s")
	v.SetDefault("mailbox.concurrency", 4)

	v.SetDefault("matcher.threshold", 0.92)
	v.SetDefault("matcher.margin", 0.05)

	v.SetDefault("reconcile.mark_read", true)
	v.SetDefault("reconcile.lock_ttl", "10m")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_minutes", 15)

	v.SetDefault("ledger.timezone", "UTC")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")

	// Mailbox
	v.BindEnv("mailbox.timeout", "MAILBOX_TIMEOUT")
	v.BindEnv("mailbox.concurrency", "MAILBOX_CONCURRENCY")

	// Matcher
	v.BindEnv("matcher.threshold", "MATCHER_THRESHOLD")
	v.BindEnv("matcher.margin", "MATCHER_MARGIN")

	// Reconcile
	v.BindEnv("reconcile.mark_read", "RECONCILE_MARK_READ")

	// Scheduler
	v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	v.BindEnv("scheduler.interval_minutes", "SCHEDULER_INTERVAL_MINUTES")

	// Redis
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	v.BindEnv("ledger.timezone", "LEDGER_TIMEZONE")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Location resolves the ledger time zone.
func (c *LedgerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	seen := make(map[string]bool)
	for i, acct := range c.Mailbox.Accounts {
		if acct.ID == "" {
			return fmt.Errorf("mailbox account %d: id is required", i)
		}
		if seen[acct.ID] {
			return fmt.Errorf("mailbox account %q: duplicate id", acct.ID)
		}
		seen[acct.ID] = true

		switch strings.ToLower(acct.Provider) {
		case "", "imap":
			if acct.Host == "" || acct.Username == "" || acct.Password == "" {
				return fmt.Errorf("mailbox account %q: IMAP host, username and password are required", acct.ID)
			}
		case "gmail":
			if acct.ClientID == "" || acct.ClientSecret == "" || acct.RefreshToken == "" {
				return fmt.Errorf("mailbox account %q: Gmail OAuth2 credentials are required", acct.ID)
			}
		default:
			return fmt.Errorf("mailbox account %q: unknown provider %q", acct.ID, acct.Provider)
		}
	}

	for i, s := range c.Parser.Senders {
		if strings.TrimSpace(s.Address) == "" || strings.TrimSpace(s.Processor) == "" {
			return fmt.Errorf("parser sender %d: address and processor are required", i)
		}
	}

	if c.Matcher.Threshold <= 0 || c.Matcher.Threshold > 1 {
		return fmt.Errorf("matcher threshold must be in (0, 1]")
	}

	if c.Scheduler.Enabled && c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	if _, err := c.Ledger.Location(); err != nil {
		return err
	}

	return nil
}
