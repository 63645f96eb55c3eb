package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/caarlos0/env/v11"
)

const (
	OTPStoreSQLite = "sqlite"
	OTPStoreRedis  = "redis"
)

type Config struct {
	Issuer string `env:"AUTH_ISSUER"` // Required: iss claim stamped into and required from tokens

	// Exactly one of the two is required. The _FILE variant names a file
	// whose contents are the secret.
	JWTSecret         string `env:"AUTH_JWT_SECRET"`
	JWTSecretFromFile string `env:"AUTH_JWT_SECRET_FILE,file"`

	AccessTTL            time.Duration `env:"AUTH_ACCESS_TTL"             envDefault:"15m"`
	OTPTTL               time.Duration `env:"AUTH_OTP_TTL"                envDefault:"5m"`
	OTPDigits            int           `env:"AUTH_OTP_DIGITS"             envDefault:"6"`
	OTPMaxAttempts       int           `env:"AUTH_OTP_MAX_ATTEMPTS"       envDefault:"5"` // wrong codes before a challenge is expired
	HashAlgorithm        string        `env:"AUTH_HASH_ALGORITHM"         envDefault:"bcrypt"` // bcrypt, argon2id
	BcryptCost           int           `env:"AUTH_BCRYPT_COST"            envDefault:"10"`
	PepperFile           string        `env:"AUTH_PEPPER_FILE"            envDefault:"pepper"` // argon2id only
	RequireVerifiedEmail bool          `env:"AUTH_REQUIRE_VERIFIED_EMAIL" envDefault:"false"`

	OIDCIssuer   string `env:"AUTH_OIDC_ISSUER"`   // e.g. https://securetoken.google.com/<project>
	OIDCAudience string `env:"AUTH_OIDC_AUDIENCE"` // client / project id the ID token was issued to

	OTPStore      string `env:"AUTH_OTP_STORE"      envDefault:"sqlite"` // sqlite, redis
	RedisAddr     string `env:"AUTH_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"AUTH_REDIS_PASSWORD"`
	RedisDB       int    `env:"AUTH_REDIS_DB"`
	RedisPrefix   string `env:"AUTH_REDIS_PREFIX"   envDefault:"otp"`

	DatabaseFile   string `env:"AUTH_DATABASE_FILE"    envDefault:"auth.db"`
	RightsSeedFile string `env:"AUTH_RIGHTS_SEED_FILE"` // Optional: YAML applied when no roles exist

	SMTP       SMTPConfig              `envPrefix:"AUTH_SMTP_"`
	RateLimits httpx.RateLimitProfiles `envPrefix:"AUTH_RATELIMIT_"`

	Env                  string        `env:"ENV"                   envDefault:"dev"`
	LogLevel             string        `env:"LOG_LEVEL"             envDefault:"info"`
	LogFormat            string        `env:"LOG_FORMAT"            envDefault:"json"`
	Port                 int           `env:"PORT"                  envDefault:"8080"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`
}

type SMTPConfig struct {
	Host             string        `env:"HOST"`
	Port             int           `env:"PORT"          envDefault:"587"`
	Username         string        `env:"USERNAME"`
	Password         string        `env:"PASSWORD"`
	PasswordFromFile string        `env:"PASSWORD_FILE,file"`
	From             string        `env:"FROM"`
	Timeout          time.Duration `env:"TIMEOUT"       envDefault:"10s"`
}

// LoadConfig reads the process environment.
func LoadConfig() (Config, error) {
	return parseConfig(env.Options{})
}

// LoadConfigFrom reads environ instead of the process environment.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	return parseConfig(env.Options{Environment: environ})
}

func parseConfig(opts env.Options) (Config, error) {
	cfg := Config{RateLimits: httpx.DefaultRateLimits()}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Secret returns the token signing key from whichever source is set.
func (c Config) Secret() []byte {
	if c.JWTSecretFromFile != "" {
		return []byte(strings.TrimRight(c.JWTSecretFromFile, "\r\n"))
	}
	return []byte(c.JWTSecret)
}

// Secret returns the SMTP password from whichever source is set.
func (c SMTPConfig) Secret() string {
	if c.PasswordFromFile != "" {
		return strings.TrimRight(c.PasswordFromFile, "\r\n")
	}
	return c.Password
}

// Validate reports every problem at once so a misconfigured deployment fails
// on its first start.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(c.Issuer) == "" {
		add("AUTH_ISSUER is required")
	}

	switch {
	case c.JWTSecret != "" && c.JWTSecretFromFile != "":
		add("set only one of AUTH_JWT_SECRET and AUTH_JWT_SECRET_FILE")
	case strings.TrimSpace(string(c.Secret())) == "":
		add("AUTH_JWT_SECRET or AUTH_JWT_SECRET_FILE is required")
	case len(strings.TrimSpace(string(c.Secret()))) < jwtx.MinKeyLength:
		add("AUTH_JWT_SECRET: %w", jwtx.ErrWeakKey)
	}

	if c.AccessTTL <= 0 {
		add("AUTH_ACCESS_TTL must be positive")
	}
	if c.OTPTTL <= 0 {
		add("AUTH_OTP_TTL must be positive")
	}
	if c.OTPDigits != 6 && c.OTPDigits != 8 {
		add("AUTH_OTP_DIGITS must be 6 or 8")
	}
	if c.OTPMaxAttempts <= 0 {
		add("AUTH_OTP_MAX_ATTEMPTS must be positive")
	}
	switch c.HashAlgorithm {
	case cryptox.AlgorithmBcrypt, cryptox.AlgorithmArgon2id:
	default:
		add("AUTH_HASH_ALGORITHM %q: %w", c.HashAlgorithm, cryptox.ErrUnknownAlgorithm)
	}

	if strings.TrimSpace(c.OIDCIssuer) == "" || strings.TrimSpace(c.OIDCAudience) == "" {
		add("AUTH_OIDC_ISSUER and AUTH_OIDC_AUDIENCE are required")
	}

	switch c.OTPStore {
	case OTPStoreSQLite:
	case OTPStoreRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			add("AUTH_REDIS_ADDR is required when AUTH_OTP_STORE=redis")
		}
	default:
		add("AUTH_OTP_STORE must be %q or %q", OTPStoreSQLite, OTPStoreRedis)
	}

	if c.SMTP.Host == "" || c.SMTP.From == "" {
		add("AUTH_SMTP_HOST and AUTH_SMTP_FROM are required")
	}
	if c.SMTP.Password != "" && c.SMTP.PasswordFromFile != "" {
		add("set only one of AUTH_SMTP_PASSWORD and AUTH_SMTP_PASSWORD_FILE")
	}

	for name, rl := range map[string]httpx.RateLimitConfig{
		"STRICT":   c.RateLimits.Strict,
		"MODERATE": c.RateLimits.Moderate,
		"LENIENT":  c.RateLimits.Lenient,
	} {
		if !rl.Valid() {
			add("AUTH_RATELIMIT_%s_*: requests, window and burst must be positive", name)
		}
	}

	if c.Port <= 0 || c.Port > 65535 {
		add("PORT %d out of range", c.Port)
	}

	return errors.Join(errs...)
}
