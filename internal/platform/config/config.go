// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, identity service) via constructors.
  - Zero Hidden State: Mode switches (delegated vs local authentication) are
    explicit fields injected at construction, never ambient globals.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Parley identity server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// PublicBaseURL is the externally visible origin used to build
	// verification and password-reset links.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Store (Redis) for one-time tokens
	RedisURL string `env:"REDIS_URL,required"`

	// Token signing secrets. Each authority signs with its own secret; a
	// token verified against the wrong one is rejected, never retried.
	LocalTokenSecret     string `env:"LOCAL_TOKEN_SECRET,required"`
	FederatedTokenSecret string `env:"FEDERATED_TOKEN_SECRET"`

	// Remote identity authority (delegated mode)
	DelegatedAuth bool   `env:"DELEGATED_AUTH" envDefault:"false"`
	AuthorityURL  string `env:"AUTHORITY_URL"`

	// ReuseFederatedTokens keeps the authority's own tokens across repeated
	// logins instead of minting fresh ones, binding them with a signed
	// identity-id cookie.
	ReuseFederatedTokens bool `env:"REUSE_FEDERATED_TOKENS" envDefault:"false"`

	// FallbackOnRemoteRejection extends the delegate-with-fallback policy to
	// remote 4xx rejections. When false, only transport failures and remote
	// 5xx responses trigger the local fallback.
	FallbackOnRemoteRejection bool `env:"FALLBACK_ON_REMOTE_REJECTION" envDefault:"false"`

	// Registration policy
	BlockedEmailDomains  []string `env:"BLOCKED_EMAIL_DOMAINS" envSeparator:","`
	AllowUnverifiedLogin bool     `env:"ALLOW_UNVERIFIED_LOGIN" envDefault:"false"`

	// Outbound email (SMTP). When MailEnabled is false, reset flows return
	// direct links instead of sending mail.
	MailEnabled  bool   `env:"MAIL_ENABLED"  envDefault:"false"`
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT"     envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"     envDefault:"no-reply@parley.chat"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	// Delegated mode is unusable without the authority's endpoint and secret.
	if cfg.DelegatedAuth {
		if cfg.AuthorityURL == "" {
			return nil, fmt.Errorf("config: DELEGATED_AUTH requires AUTHORITY_URL")
		}
		if cfg.FederatedTokenSecret == "" {
			return nil, fmt.Errorf("config: DELEGATED_AUTH requires FEDERATED_TOKEN_SECRET")
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
