package authcore

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the authentication core needs from the
// environment. Cookie name, domain and TTLs are deployment configuration,
// not core logic.
type Config struct {
	AppName string `env:"AUTHCORE_APP_NAME" envDefault:"authcore"`
	BaseURL string `env:"AUTHCORE_BASE_URL" envDefault:"http://localhost:8000"`

	// SecretKey signs every token the core issues.
	SecretKey string `env:"AUTHCORE_SECRET_KEY,notEmpty"`

	SessionTTL time.Duration `env:"AUTHCORE_SESSION_TTL" envDefault:"24h"`
	VerifyTTL  time.Duration `env:"AUTHCORE_VERIFY_TTL"  envDefault:"24h"`
	ResetTTL   time.Duration `env:"AUTHCORE_RESET_TTL"   envDefault:"1h"`

	BcryptCost        int `env:"AUTHCORE_BCRYPT_COST"        envDefault:"10"`
	MinPasswordLength int `env:"AUTHCORE_MIN_PASSWORD_LENGTH" envDefault:"8"`

	CookieName   string `env:"AUTHCORE_COOKIE_NAME"   envDefault:"auth"`
	CookieDomain string `env:"AUTHCORE_COOKIE_DOMAIN"`
	CookieSecure bool   `env:"AUTHCORE_COOKIE_SECURE" envDefault:"true"`

	GoogleClientID     string `env:"AUTHCORE_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"AUTHCORE_GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"AUTHCORE_GOOGLE_CALLBACK_URL"`

	VippsClientID     string `env:"AUTHCORE_VIPPS_CLIENT_ID"`
	VippsClientSecret string `env:"AUTHCORE_VIPPS_CLIENT_SECRET"`
	VippsCallbackURL  string `env:"AUTHCORE_VIPPS_CALLBACK_URL"`
	VippsIssuerURL    string `env:"AUTHCORE_VIPPS_ISSUER_URL" envDefault:"https://api.vipps.no/access-management-1.0/access/"`

	SMTPHost     string `env:"AUTHCORE_SMTP_HOST"`
	SMTPPort     int    `env:"AUTHCORE_SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"AUTHCORE_SMTP_USER"`
	SMTPPassword string `env:"AUTHCORE_SMTP_PASSWORD"`
	FromEmail    string `env:"AUTHCORE_FROM_EMAIL"`
}

// LoadConfigFromEnv parses configuration from environment variables.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// NewMailer builds the mailer the config describes: SMTP when a host is
// configured, console logging otherwise.
func (c Config) NewMailer() Mailer {
	if c.SMTPHost == "" {
		return &ConsoleMailer{}
	}
	return &SMTPMailer{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUser,
		Password: c.SMTPPassword,
		From:     c.FromEmail,
	}
}
