// Package config loads runtime settings from REQLAB_* environment variables.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "REQLAB_"

type Config struct {
	Port        string `env:"PORT"     envDefault:"8080"`
	DBPath      string `env:"DB_PATH"  envDefault:"reqlab.db"`
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	Environment string `env:"ENV"      envDefault:"production"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Secret signs verification tokens and selection cookies.
	Secret          string        `env:"SECRET"`
	VerificationTTL time.Duration `env:"VERIFICATION_TTL" envDefault:"24h"`
	InvitationTTL   time.Duration `env:"INVITATION_TTL"   envDefault:"168h"`

	// SecretGenerated is set when development ran without a secret and got a
	// random one; tokens do not survive a restart.
	SecretGenerated bool

	EmailFrom     string        `env:"EMAIL_FROM"     envDefault:"noreply@localhost"`
	EmailTimeout  time.Duration `env:"EMAIL_TIMEOUT"  envDefault:"10s"`
	PostmarkToken string        `env:"POSTMARK_TOKEN"`
	SMTPHost      string        `env:"SMTP_HOST"`
	SMTPPort      int           `env:"SMTP_PORT"      envDefault:"587"`
	SMTPUser      string        `env:"SMTP_USER"`
	SMTPPassword  string        `env:"SMTP_PASSWORD"`

	WebSocketOrigins []string `env:"WS_ORIGINS" envSeparator:","`

	LoginRateLimit  int           `env:"LOGIN_RATE_LIMIT"  envDefault:"10"`
	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW" envDefault:"1m"`

	Backup Backup `envPrefix:"BACKUP_"`
}

// Backup configures encrypted snapshots to S3-compatible storage. Backups
// are off unless Bucket is set.
type Backup struct {
	Bucket     string        `env:"BUCKET"`
	Endpoint   string        `env:"ENDPOINT"`
	Region     string        `env:"REGION"     envDefault:"us-east-1"`
	AccessKey  string        `env:"ACCESS_KEY"`
	SecretKey  string        `env:"SECRET_KEY"`
	Prefix     string        `env:"PREFIX"     envDefault:"reqlab"`
	Passphrase string        `env:"PASSPHRASE"`
	Interval   time.Duration `env:"INTERVAL"   envDefault:"24h"`
	Retention  time.Duration `env:"RETENTION"  envDefault:"720h"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	return parse(env.Options{Prefix: envPrefix})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Secret == "" {
		if !cfg.IsDevelopment() {
			return Config{}, errors.New(envPrefix + "SECRET is required outside development")
		}
		secret, err := randomSecret()
		if err != nil {
			return Config{}, err
		}
		cfg.Secret = secret
		cfg.SecretGenerated = true
	}
	if cfg.VerificationTTL <= 0 || cfg.InvitationTTL <= 0 || cfg.EmailTimeout <= 0 {
		return Config{}, errors.New("durations must be positive")
	}
	if b := cfg.Backup; b.Bucket != "" {
		if b.AccessKey == "" || b.SecretKey == "" || b.Passphrase == "" {
			return Config{}, errors.New(envPrefix + "BACKUP_BUCKET requires access key, secret key and passphrase")
		}
		if b.Interval <= 0 || b.Retention <= 0 {
			return Config{}, errors.New("backup interval and retention must be positive")
		}
	}
	return cfg, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsDevelopment reports whether cookies may be sent over plain HTTP.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.Environment) {
	case "development", "local":
		return true
	}
	return false
}
