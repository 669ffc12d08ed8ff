package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Admin         AdminConfig
	Verification  VerificationConfig
	Licensing     LicensingConfig
	Alerts        AlertsConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Cron          CronConfig
	Stripe        StripeConfig
	Sendgrid      SendgridConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	cfg.Admin.normalize()
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"WDIR_APP_ENV" required:"true"`
	Port         string `envconfig:"WDIR_APP_PORT" required:"true"`
	BaseURL      string `envconfig:"WDIR_APP_BASE_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"WDIR_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"WDIR_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"WDIR_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"WDIR_DB_DSN"`

	LegacyHost     string `envconfig:"WDIR_DB_HOST"`
	LegacyPort     int    `envconfig:"WDIR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WDIR_DB_USER"`
	LegacyPassword string `envconfig:"WDIR_DB_PASSWORD"`
	LegacyName     string `envconfig:"WDIR_DB_NAME"`
	LegacySSLMode  string `envconfig:"WDIR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WDIR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WDIR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WDIR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WDIR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"WDIR_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WDIR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"WDIR_REDIS_ADDR"`
	Password     string        `envconfig:"WDIR_REDIS_PASSWORD"`
	DB           int           `envconfig:"WDIR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WDIR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WDIR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WDIR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WDIR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WDIR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret          string `envconfig:"WDIR_JWT_SECRET" required:"true"`
	Issuer          string `envconfig:"WDIR_JWT_ISSUER" default:"wdir-license"`
	SessionTTLHours int    `envconfig:"WDIR_ADMIN_SESSION_TTL_HOURS" default:"168"`
}

// SessionTTL returns the admin session lifetime.
func (j JWTConfig) SessionTTL() time.Duration {
	if j.SessionTTLHours <= 0 {
		return 0
	}
	return time.Duration(j.SessionTTLHours) * time.Hour
}

// AdminConfig holds the allowlist of operator emails permitted to sign in
// to the admin surface.
type AdminConfig struct {
	Emails []string `envconfig:"WDIR_ADMIN_EMAILS"`

	set map[string]struct{}
}

func (a *AdminConfig) normalize() {
	a.set = make(map[string]struct{}, len(a.Emails))
	out := a.Emails[:0]
	for _, email := range a.Emails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" {
			continue
		}
		if _, dup := a.set[email]; dup {
			continue
		}
		a.set[email] = struct{}{}
		out = append(out, email)
	}
	a.Emails = out
}

// IsAdmin reports whether email is on the allowlist. Comparison is
// case-insensitive.
func (a AdminConfig) IsAdmin(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	if a.set != nil {
		_, ok := a.set[email]
		return ok
	}
	for _, candidate := range a.Emails {
		if strings.EqualFold(strings.TrimSpace(candidate), email) {
			return true
		}
	}
	return false
}

type VerificationConfig struct {
	CodeTTL             time.Duration `envconfig:"WDIR_VERIFY_CODE_TTL" default:"10m"`
	RequestWindow       time.Duration `envconfig:"WDIR_VERIFY_REQUEST_WINDOW" default:"60m"`
	RequestLimit        int           `envconfig:"WDIR_VERIFY_REQUEST_LIMIT" default:"5"`
	AdminMaxAttempts    int           `envconfig:"WDIR_VERIFY_ADMIN_MAX_ATTEMPTS" default:"0"`
	AppLoginMaxAttempts int           `envconfig:"WDIR_VERIFY_APP_LOGIN_MAX_ATTEMPTS" default:"0"`
	DeviceMaxAttempts   int           `envconfig:"WDIR_VERIFY_DEVICE_MAX_ATTEMPTS" default:"3"`
	CodePepper          string        `envconfig:"WDIR_VERIFY_CODE_PEPPER" required:"true"`
}

type LicensingConfig struct {
	MultiDeviceThreshold int `envconfig:"WDIR_LICENSE_MULTI_DEVICE_THRESHOLD" default:"3"`
	DeviceLookbackMonths int `envconfig:"WDIR_LICENSE_DEVICE_LOOKBACK_MONTHS" default:"12"`
	AlertDeviceLimit     int `envconfig:"WDIR_LICENSE_ALERT_DEVICE_LIMIT" default:"5"`
	KeyAttempts          int `envconfig:"WDIR_LICENSE_KEY_ATTEMPTS" default:"10"`
}

type AlertsConfig struct {
	AdminEmail string `envconfig:"WDIR_ADMIN_ALERT_EMAIL"`
}

type AuthRateLimitConfig struct {
	CodeWindow  time.Duration `envconfig:"WDIR_AUTH_RATE_LIMIT_CODE_WINDOW" default:"1m"`
	CodeIPLimit int           `envconfig:"WDIR_AUTH_RATE_LIMIT_CODE_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"WDIR_AUTO_MIGRATE" default:"false"`
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"WDIR_CRON_INTERVAL" default:"24h"`
	CodeRetention    time.Duration `envconfig:"WDIR_CRON_CODE_RETENTION" default:"168h"`
	DeviceCountBatch int           `envconfig:"WDIR_CRON_DEVICE_COUNT_BATCH" default:"200"`
}

type StripeConfig struct {
	APIKey       string `envconfig:"WDIR_STRIPE_API_KEY"`
	Secret       string `envconfig:"WDIR_STRIPE_WEBHOOK_SECRET"`
	Env          string `envconfig:"WDIR_STRIPE_ENV" default:"test"`
	PriceCents   int64  `envconfig:"WDIR_STRIPE_PRICE_CENTS" default:"39900"`
	Currency     string `envconfig:"WDIR_STRIPE_CURRENCY" default:"usd"`
	ProductName  string `envconfig:"WDIR_STRIPE_PRODUCT_NAME" default:"WDIR Inspection App License"`
	SuccessPath  string `envconfig:"WDIR_STRIPE_SUCCESS_PATH" default:"/purchase/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelPath   string `envconfig:"WDIR_STRIPE_CANCEL_PATH" default:"/purchase?canceled=true"`
	EventTTLHour int    `envconfig:"WDIR_STRIPE_EVENT_TTL_HOURS" default:"72"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// EventTTL is how long a processed webhook event id is remembered.
func (s StripeConfig) EventTTL() time.Duration {
	if s.EventTTLHour <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(s.EventTTLHour) * time.Hour
}

type SendgridConfig struct {
	APIKey      string `envconfig:"WDIR_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"WDIR_SENDGRID_FROM_EMAIL" default:"noreply@wdirapp.com"`
	FromName    string `envconfig:"WDIR_SENDGRID_FROM_NAME" default:"WDIR App"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
