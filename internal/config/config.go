package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// MinSigningSecretBytes is the recommended signing-secret entropy. Shorter
// secrets are accepted with an operational warning at startup.
const MinSigningSecretBytes = 32

type Config struct {
	DatabaseURL            string `env:"DATABASE_URL,required"`
	AssertionSigningSecret string `env:"ASSERTION_SIGNING_SECRET,required"`
	VerifierCallbackSecret string `env:"VERIFIER_CALLBACK_SECRET,required"`
	AssertionTTLSeconds    int    `env:"ASSERTION_TTL_SECONDS,default=600"`

	Port        int      `env:"PORT,default=8080"`
	LogLevel    string   `env:"LOG_LEVEL,default=info"`
	CORSOrigins []string `env:"CORS_ORIGINS"`

	// Per-merchant sliding-window rate limit.
	RateLimitMax    int `env:"RATE_LIMIT_MAX,default=100"`
	RateLimitWindow int `env:"RATE_LIMIT_WINDOW,default=60"`

	// Replay-ledger rows are pruned once they are older than the token
	// expiry plus this retention.
	UseRetention time.Duration `env:"ASSERTION_USE_RETENTION,default=24h"`

	// Optional first-run bootstrap: creates a merchant and prints its
	// initial API key when the merchants table is empty.
	BootstrapMerchantName string `env:"BOOTSTRAP_MERCHANT_NAME"`

	// HTTP server timeouts
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT,default=60s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.AssertionTTLSeconds < 1 {
		return fmt.Errorf("ASSERTION_TTL_SECONDS must be positive, got %d", c.AssertionTTLSeconds)
	}
	if c.RateLimitMax < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", c.RateLimitMax)
	}
	if c.RateLimitWindow < 1 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %d", c.RateLimitWindow)
	}
	return nil
}

// AssertionTTL returns the configured assertion lifetime as a duration.
func (c *Config) AssertionTTL() time.Duration {
	return time.Duration(c.AssertionTTLSeconds) * time.Second
}

// SigningSecretWeak reports whether the signing secret falls short of the
// recommended entropy.
func (c *Config) SigningSecretWeak() bool {
	return len(c.AssertionSigningSecret) < MinSigningSecretBytes
}
