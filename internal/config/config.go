package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// Values come from env, optionally seeded from a .env file (ENV_FILE, default ".env").
// Process env always wins over the file.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Calls  CallsConfig
	Media  MediaConfig
	Notify NotifyConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// CallsConfig is the pricing and timing policy applied to new calls.
// Values are snapshotted into each session at creation.
type CallsConfig struct {
	CoinPrice            int64
	RingTimeout          time.Duration
	Duration             time.Duration
	MaxConcurrentPerUser int

	EarningsFlushInterval time.Duration
	ReconcileInterval     time.Duration
	// AcceptGrace is how long an accepted call may wait for media before the sweep fails it.
	AcceptGrace time.Duration
}

// MediaConfig configures the SFU token issuer. Empty credentials disable video calling only.
type MediaConfig struct {
	URL       string
	APIKey    string
	APISecret string
	TokenTTL  time.Duration
	UIDRange  uint32
}

type NotifyConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
}

func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = optionalDuration("JWT_ACCESS_TTL", &parseErrs)
	c.Auth.RefreshTokenTTL = optionalDuration("JWT_REFRESH_TTL", &parseErrs)

	c.Calls.CoinPrice = int64(optionalInt("CALL_COIN_PRICE", &parseErrs))
	c.Calls.RingTimeout = time.Duration(optionalInt("CALL_RING_TIMEOUT_SECONDS", &parseErrs)) * time.Second
	c.Calls.Duration = time.Duration(optionalInt("CALL_DURATION_SECONDS", &parseErrs)) * time.Second
	c.Calls.MaxConcurrentPerUser = optionalInt("CALL_MAX_CONCURRENT_PER_USER", &parseErrs)
	c.Calls.EarningsFlushInterval = optionalDuration("CALL_EARNINGS_FLUSH_INTERVAL", &parseErrs)
	c.Calls.ReconcileInterval = optionalDuration("CALL_RECONCILE_INTERVAL", &parseErrs)
	c.Calls.AcceptGrace = optionalDuration("CALL_ACCEPT_GRACE", &parseErrs)

	c.Media.URL = strings.TrimSpace(os.Getenv("LIVEKIT_URL"))
	c.Media.APIKey = strings.TrimSpace(os.Getenv("LIVEKIT_API_KEY"))
	c.Media.APISecret = os.Getenv("LIVEKIT_API_SECRET")
	c.Media.TokenTTL = optionalDuration("MEDIA_TOKEN_TTL", &parseErrs)
	c.Media.UIDRange = uint32(optionalInt("MEDIA_UID_RANGE", &parseErrs))

	c.Notify.Workers = optionalInt("NOTIFY_WORKERS", &parseErrs)
	c.Notify.QueueSize = optionalInt("NOTIFY_QUEUE_SIZE", &parseErrs)
	c.Notify.MaxAttempts = optionalInt("NOTIFY_MAX_ATTEMPTS", &parseErrs)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	errs = append(errs, c.Calls.applyDefaults()...)
	c.Media.applyDefaults()
	c.Notify.applyDefaults()

	return joinErrors(errs)
}

func (c *CallsConfig) applyDefaults() []error {
	var errs []error
	if c.CoinPrice < 0 {
		errs = append(errs, fmt.Errorf("CALL_COIN_PRICE must be >= 0, got %d", c.CoinPrice))
	}
	if c.CoinPrice == 0 {
		c.CoinPrice = 50
	}
	if c.RingTimeout <= 0 {
		c.RingTimeout = 30 * time.Second
	}
	if c.Duration <= 0 {
		c.Duration = 300 * time.Second
	}
	if c.MaxConcurrentPerUser <= 0 {
		c.MaxConcurrentPerUser = 1
	}
	if c.EarningsFlushInterval <= 0 {
		c.EarningsFlushInterval = 10 * time.Second
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = time.Minute
	}
	if c.AcceptGrace <= 0 {
		c.AcceptGrace = 60 * time.Second
	}
	return errs
}

func (m *MediaConfig) applyDefaults() {
	if m.TokenTTL <= 0 {
		m.TokenTTL = time.Hour
	}
	if m.UIDRange == 0 {
		m.UIDRange = 1_000_000_000
	}
}

func (n *NotifyConfig) applyDefaults() {
	if n.Workers <= 0 {
		n.Workers = 2
	}
	if n.QueueSize <= 0 {
		n.QueueSize = 1024
	}
	if n.MaxAttempts <= 0 {
		n.MaxAttempts = 5
	}
}

// MediaEnabled reports whether SFU credentials are present.
func (c Config) MediaEnabled() bool {
	return c.Media.APIKey != "" && c.Media.APISecret != ""
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Contains secrets; never log.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func loadEnvFile() error {
	path := strings.TrimSpace(os.Getenv("ENV_FILE"))
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

func optionalDuration(key string, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a duration, got %q", key, v))
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
