package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or a .env file loaded by main).
// Core packages receive the typed sections; none of them read env.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	SMTP   SMTPConfig
	Twilio TwilioConfig
	Comms  CommsConfig
	Kafka  KafkaConfig
}

type AppConfig struct {
	Env  string
	Port int

	// Storage selects the persistence backend: postgres or memory.
	// memory is refused in production.
	Storage string
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
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// SMTPConfig is optional; without a host, email goes to the log sender.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
}

// TwilioConfig is optional. Without credentials webhook signatures are not
// checked, and SMS and WhatsApp use the log sender outside production.
type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	SMSFrom        string
	WhatsAppFrom   string
	PublicBaseURL  string
	StatusCallback string
}

type CommsConfig struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffBase    float64
	Jitter         bool
	AttemptTimeout time.Duration

	Batching    bool
	BatchSize   int
	BatchWindow time.Duration

	RateEmail    float64
	RateSMS      float64
	RateWhatsApp float64

	SchedulerInterval time.Duration
	PrefsCacheTTL     time.Duration
}

type KafkaConfig struct {
	Brokers []string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.Storage = strings.ToLower(strings.TrimSpace(os.Getenv("COMMS_STORAGE")))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = optionalInt(parseErrs, "DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = optionalInt(parseErrs, "REDIS_PORT")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.SMTP.Host = strings.TrimSpace(os.Getenv("SMTP_HOST"))
	c.SMTP.Port, parseErrs = optionalInt(parseErrs, "SMTP_PORT")
	c.SMTP.Username = strings.TrimSpace(os.Getenv("SMTP_USERNAME"))
	c.SMTP.Password = os.Getenv("SMTP_PASSWORD")
	c.SMTP.FromAddress = strings.TrimSpace(os.Getenv("SMTP_FROM_ADDRESS"))
	c.SMTP.FromName = strings.TrimSpace(os.Getenv("SMTP_FROM_NAME"))

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.SMSFrom = strings.TrimSpace(os.Getenv("TWILIO_SMS_FROM"))
	c.Twilio.WhatsAppFrom = strings.TrimSpace(os.Getenv("TWILIO_WHATSAPP_FROM"))
	c.Twilio.PublicBaseURL = strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL"))
	c.Twilio.StatusCallback = strings.TrimSpace(os.Getenv("TWILIO_STATUS_CALLBACK_URL"))

	c.Comms.MaxRetries, parseErrs = optionalInt(parseErrs, "COMMS_MAX_RETRIES")
	c.Comms.InitialDelay = mustDuration("COMMS_INITIAL_DELAY")
	c.Comms.MaxDelay = mustDuration("COMMS_MAX_DELAY")
	c.Comms.BackoffBase, parseErrs = optionalFloat(parseErrs, "COMMS_BACKOFF_BASE")
	c.Comms.Jitter, parseErrs = optionalBool(parseErrs, "COMMS_JITTER", true)
	c.Comms.AttemptTimeout = mustDuration("COMMS_ATTEMPT_TIMEOUT")
	c.Comms.Batching, parseErrs = optionalBool(parseErrs, "COMMS_BATCHING", false)
	c.Comms.BatchSize, parseErrs = optionalInt(parseErrs, "COMMS_BATCH_SIZE")
	c.Comms.BatchWindow = mustDuration("COMMS_BATCH_WINDOW")
	c.Comms.RateEmail, parseErrs = optionalFloat(parseErrs, "COMMS_RATE_EMAIL")
	c.Comms.RateSMS, parseErrs = optionalFloat(parseErrs, "COMMS_RATE_SMS")
	c.Comms.RateWhatsApp, parseErrs = optionalFloat(parseErrs, "COMMS_RATE_WHATSAPP")
	c.Comms.SchedulerInterval = mustDuration("COMMS_SCHEDULER_INTERVAL")
	c.Comms.PrefsCacheTTL = mustDuration("COMMS_PREFS_CACHE_TTL")

	c.Kafka.Brokers = splitList(os.Getenv("KAFKA_BROKERS"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate accumulates every problem and fills defaults in place.
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
	if c.App.Storage == "" {
		c.App.Storage = "postgres"
	}
	switch c.App.Storage {
	case "postgres":
		errs = append(errs, c.validateStores()...)
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("COMMS_STORAGE=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("COMMS_STORAGE must be postgres or memory, got %q", c.App.Storage))
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

	if c.SMTP.Host != "" {
		if c.SMTP.Port == 0 {
			c.SMTP.Port = 587
		}
		if c.SMTP.FromAddress == "" {
			errs = append(errs, errors.New("SMTP_FROM_ADDRESS is required when SMTP_HOST is set"))
		}
	}
	if (c.Twilio.AccountSID == "") != (c.Twilio.AuthToken == "") {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN must be set together"))
	}
	if c.Twilio.AccountSID != "" && c.Twilio.SMSFrom == "" && c.Twilio.WhatsAppFrom == "" {
		errs = append(errs, errors.New("TWILIO_SMS_FROM or TWILIO_WHATSAPP_FROM is required with Twilio credentials"))
	}
	if c.IsProduction() && c.SMTP.Host == "" && c.Twilio.AccountSID == "" {
		errs = append(errs, errors.New("SMTP_HOST or TWILIO_ACCOUNT_SID is required in production"))
	}
	if c.IsProduction() && c.Twilio.AuthToken != "" && c.Twilio.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required in production to verify Twilio signatures"))
	}

	errs = append(errs, c.Comms.applyDefaults()...)

	return joinErrors(errs)
}

func (c *Config) validateStores() []error {
	var errs []error
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
			// Local-friendly default; production must be explicit.
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
	return errs
}

func (cc *CommsConfig) applyDefaults() []error {
	var errs []error
	if cc.MaxRetries == 0 {
		cc.MaxRetries = 3
	}
	if cc.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("COMMS_MAX_RETRIES must be at least 1, got %d", cc.MaxRetries))
	}
	if cc.InitialDelay <= 0 {
		cc.InitialDelay = 60 * time.Second
	}
	if cc.MaxDelay <= 0 {
		cc.MaxDelay = 900 * time.Second
	}
	if cc.MaxDelay < cc.InitialDelay {
		errs = append(errs, errors.New("COMMS_MAX_DELAY must not be less than COMMS_INITIAL_DELAY"))
	}
	if cc.BackoffBase == 0 {
		cc.BackoffBase = 5
	}
	if cc.BackoffBase <= 1 {
		errs = append(errs, fmt.Errorf("COMMS_BACKOFF_BASE must be greater than 1, got %v", cc.BackoffBase))
	}
	if cc.AttemptTimeout <= 0 {
		cc.AttemptTimeout = 30 * time.Second
	}
	if cc.BatchSize <= 0 {
		cc.BatchSize = 10
	}
	if cc.BatchWindow <= 0 {
		cc.BatchWindow = 300 * time.Second
	}
	if cc.RateEmail < 0 || cc.RateSMS < 0 || cc.RateWhatsApp < 0 {
		errs = append(errs, errors.New("COMMS_RATE_* must not be negative"))
	}
	if cc.SchedulerInterval <= 0 {
		cc.SchedulerInterval = 30 * time.Second
	}
	if cc.PrefsCacheTTL <= 0 {
		cc.PrefsCacheTTL = 5 * time.Minute
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) UsesMemoryStorage() bool {
	return c.App.Storage == "memory"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
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

func optionalInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalFloat(errs []error, key string) (float64, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a number, got %q", key, v))
	}
	return f, errs
}

func optionalBool(errs []error, key string, def bool) (bool, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
	return b, errs
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
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
