// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"travel-cms/backend/internal/ratelimit"
	"travel-cms/backend/internal/security"
	"travel-cms/backend/internal/server/interceptors"
)

// EnvProduction is the APP_ENV value that turns on production safety checks.
const EnvProduction = "production"

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty selects in-memory stores (development only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL backs the rate-limit windows (redis://, rediss:// or host:port). Empty keeps them in process memory.
	RedisURL string `mapstructure:"REDIS_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; signs staff access tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// TrustedProxies is a comma-separated list of CIDRs or addresses of load balancers whose
	// x-forwarded-for and x-real-ip metadata is believed. Empty trusts no forwarding metadata, so
	// rate limits key on the transport peer.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// InviteReturnSecret echoes the invitation secret in create/resend responses. Must not be true in production.
	InviteReturnSecret bool `mapstructure:"INVITE_RETURN_SECRET"`
	// InviteDefaultTTL is the validity used when a request does not ask for one (1h..168h).
	InviteDefaultTTL time.Duration `mapstructure:"INVITE_DEFAULT_TTL"`
	// InviteExpiredLookback is how long after expiry a presented secret still reports Expired.
	InviteExpiredLookback time.Duration `mapstructure:"INVITE_EXPIRED_LOOKBACK"`
	// InviteAcceptBaseURL is the acceptance page the email links to; the secret is appended as ?token=.
	InviteAcceptBaseURL string `mapstructure:"INVITE_ACCEPT_BASE_URL"`
	// RolePolicyFile is an optional YAML file with the role hierarchy and disposable domains.
	RolePolicyFile string `mapstructure:"ROLE_POLICY_FILE"`
	// IssuanceRegoFile is an optional Rego module that replaces the built-in grant rules.
	IssuanceRegoFile string `mapstructure:"ISSUANCE_REGO_FILE"`

	RateIssueLimit        int           `mapstructure:"RATE_ISSUE_LIMIT"`
	RateIssueWindow       time.Duration `mapstructure:"RATE_ISSUE_WINDOW"`
	RateValidateLimit     int           `mapstructure:"RATE_VALIDATE_LIMIT"`
	RateValidateWindow    time.Duration `mapstructure:"RATE_VALIDATE_WINDOW"`
	RateAcceptLimit       int           `mapstructure:"RATE_ACCEPT_LIMIT"`
	RateAcceptWindow      time.Duration `mapstructure:"RATE_ACCEPT_WINDOW"`
	RateValidatePrefixLen int           `mapstructure:"RATE_VALIDATE_PREFIX_LEN"`

	// EmailAPIURL is the transactional email endpoint. Empty logs emails instead of sending them (development).
	EmailAPIURL string `mapstructure:"EMAIL_API_URL"`
	EmailAPIKey string `mapstructure:"EMAIL_API_KEY"`
	// EmailSender is the From address.
	EmailSender string `mapstructure:"EMAIL_SENDER"`
	// EmailSendTimeout bounds one delivery attempt from the request path.
	EmailSendTimeout time.Duration `mapstructure:"EMAIL_SEND_TIMEOUT"`

	// KafkaBrokers is a comma-separated list of brokers. When set, the server enqueues invitation
	// emails on InviteEmailTopic and cmd/worker delivers them. Queued messages carry the plaintext
	// secret, so give the topic a retention no longer than INVITE_DEFAULT_TTL (retention.ms) and
	// restrict its ACLs to the server and the worker.
	KafkaBrokers     string `mapstructure:"KAFKA_BROKERS"`
	InviteEmailTopic string `mapstructure:"INVITE_EMAIL_TOPIC"`
	// KafkaGroupID is the consumer group ID for the email worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OTLPEndpoint is the OpenTelemetry collector (gRPC). Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	limits := ratelimit.DefaultPolicies()
	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "travel-cms")
	v.SetDefault("JWT_AUDIENCE", "travel-cms-admin")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("INVITE_RETURN_SECRET", false)
	v.SetDefault("INVITE_DEFAULT_TTL", "72h")
	v.SetDefault("INVITE_EXPIRED_LOOKBACK", "168h")
	v.SetDefault("INVITE_ACCEPT_BASE_URL", "http://localhost:3000/accept-invitation")
	v.SetDefault("ROLE_POLICY_FILE", "")
	v.SetDefault("ISSUANCE_REGO_FILE", "")
	v.SetDefault("RATE_ISSUE_LIMIT", limits.Issuance.Limit)
	v.SetDefault("RATE_ISSUE_WINDOW", limits.Issuance.Window.String())
	v.SetDefault("RATE_VALIDATE_LIMIT", limits.Validation.Limit)
	v.SetDefault("RATE_VALIDATE_WINDOW", limits.Validation.Window.String())
	v.SetDefault("RATE_ACCEPT_LIMIT", limits.Acceptance.Limit)
	v.SetDefault("RATE_ACCEPT_WINDOW", limits.Acceptance.Window.String())
	v.SetDefault("RATE_VALIDATE_PREFIX_LEN", limits.ValidationPrefixLen)
	v.SetDefault("EMAIL_API_URL", "")
	v.SetDefault("EMAIL_API_KEY", "")
	v.SetDefault("EMAIL_SENDER", "no-reply@travel-cms.local")
	v.SetDefault("EMAIL_SEND_TIMEOUT", "5s")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("INVITE_EMAIL_TOPIC", "travel-cms-invitation-emails")
	v.SetDefault("KAFKA_GROUP_ID", "travel-cms-email-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "travel-cms-invitations")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.InviteReturnSecret && c.IsProduction() {
		return errors.New("config: INVITE_RETURN_SECRET must not be true when APP_ENV=production")
	}
	if c.IsProduction() && c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL is required when APP_ENV=production")
	}
	if c.IsProduction() && (c.JWTPrivateKey == "" || c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required when APP_ENV=production")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.InviteDefaultTTL < security.MinInviteValidity || c.InviteDefaultTTL > security.MaxInviteValidity {
		return fmt.Errorf("config: INVITE_DEFAULT_TTL must be between %s and %s", security.MinInviteValidity, security.MaxInviteValidity)
	}
	if c.InviteExpiredLookback < 0 {
		return errors.New("config: INVITE_EXPIRED_LOOKBACK must not be negative")
	}
	for _, r := range []struct {
		name   string
		limit  int
		window time.Duration
	}{
		{"RATE_ISSUE", c.RateIssueLimit, c.RateIssueWindow},
		{"RATE_VALIDATE", c.RateValidateLimit, c.RateValidateWindow},
		{"RATE_ACCEPT", c.RateAcceptLimit, c.RateAcceptWindow},
	} {
		if r.limit < 0 {
			return fmt.Errorf("config: %s_LIMIT must not be negative", r.name)
		}
		if r.limit > 0 && r.window <= 0 {
			return fmt.Errorf("config: %s_WINDOW must be positive", r.name)
		}
	}
	if c.RateValidatePrefixLen < 0 {
		return errors.New("config: RATE_VALIDATE_PREFIX_LEN must not be negative")
	}
	if c.EmailAPIURL != "" && c.EmailAPIKey == "" {
		return errors.New("config: EMAIL_API_KEY is required when EMAIL_API_URL is set")
	}
	if c.EmailSendTimeout <= 0 {
		return errors.New("config: EMAIL_SEND_TIMEOUT must be positive")
	}
	if _, err := interceptors.NewClientIPResolver(c.TrustedProxiesList()); err != nil {
		return fmt.Errorf("config: TRUSTED_PROXIES: %w", err)
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), EnvProduction)
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RateLimitPolicies builds the limiter policies. A zero limit disables that policy.
func (c *Config) RateLimitPolicies() ratelimit.Policies {
	p := ratelimit.DefaultPolicies()
	p.Issuance.Limit, p.Issuance.Window = c.RateIssueLimit, c.RateIssueWindow
	p.Validation.Limit, p.Validation.Window = c.RateValidateLimit, c.RateValidateWindow
	p.Acceptance.Limit, p.Acceptance.Window = c.RateAcceptLimit, c.RateAcceptWindow
	p.ValidationPrefixLen = c.RateValidatePrefixLen
	return p
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means email jobs are not queued.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// TrustedProxiesList returns the proxy CIDRs and addresses from TRUSTED_PROXIES.
func (c *Config) TrustedProxiesList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies)
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
