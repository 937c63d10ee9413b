// Copyright 2026 The CMSKit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads application configuration from environment
// variables via envconfig. Every knob has a development default except
// the credentials that must never ship one.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Session       SessionConfig
	Security      SecurityConfig
	Token         TokenConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         string        `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout  time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string `envconfig:"DB_HOST" default:"localhost"`
	Port         string `envconfig:"DB_PORT" default:"5432"`
	User         string `envconfig:"DB_USER" default:"cmsauth"`
	Password     string `envconfig:"DB_PASSWORD" default:""`
	Database     string `envconfig:"DB_NAME" default:"cmsauth"`
	SSLMode      string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
}

// RedisConfig holds the session store configuration
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// SessionConfig holds session management configuration
type SessionConfig struct {
	CookieName       string        `envconfig:"SESSION_COOKIE_NAME" default:"cmsauth_session"`
	CookieDomain     string        `envconfig:"SESSION_COOKIE_DOMAIN" default:""`
	CookiePath       string        `envconfig:"SESSION_COOKIE_PATH" default:"/"`
	CookieSecure     bool          `envconfig:"SESSION_COOKIE_SECURE" default:"false"`
	Lifetime         time.Duration `envconfig:"SESSION_LIFETIME" default:"2h"`
	RememberLifetime time.Duration `envconfig:"SESSION_REMEMBER_LIFETIME" default:"720h"`
}

// SecurityConfig holds password hashing configuration
type SecurityConfig struct {
	Argon2Memory      uint32 `envconfig:"ARGON2_MEMORY" default:"65536"`
	Argon2Iterations  uint32 `envconfig:"ARGON2_ITERATIONS" default:"3"`
	Argon2Parallelism uint8  `envconfig:"ARGON2_PARALLELISM" default:"4"`
	Argon2SaltLength  uint32 `envconfig:"ARGON2_SALT_LENGTH" default:"16"`
	Argon2KeyLength   uint32 `envconfig:"ARGON2_KEY_LENGTH" default:"32"`
}

// TokenConfig holds the OAuth2 token endpoint configuration. The
// client secret has no default on purpose.
type TokenConfig struct {
	ClientID             string        `envconfig:"OAUTH_CLIENT_ID" default:"cms"`
	ClientSecret         string        `envconfig:"OAUTH_CLIENT_SECRET" default:""`
	AccessTokenLifetime  time.Duration `envconfig:"OAUTH_ACCESS_TOKEN_LIFETIME" default:"1h"`
	RefreshTokenLifetime time.Duration `envconfig:"OAUTH_REFRESH_TOKEN_LIFETIME" default:"720h"`
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string `envconfig:"LOG_FORMAT" default:"json"`
	OTELEnabled    bool   `envconfig:"OTEL_ENABLED" default:"false"`
	ServiceName    string `envconfig:"OTEL_SERVICE_NAME" default:"cmsauth"`
	ServiceVersion string `envconfig:"OTEL_SERVICE_VERSION" default:"0.1.0"`
}

// RateLimitConfig holds rate limiting configuration for the login and
// token endpoints
type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"RATE_LIMIT_RPS" default:"5"`
	Burst             int     `envconfig:"RATE_LIMIT_BURST" default:"10"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks constraints that cross single-field defaults.
func (c *Config) Validate() error {
	if c.Token.ClientSecret == "" {
		return errors.New("OAUTH_CLIENT_SECRET must be set")
	}
	if c.Session.Lifetime <= 0 || c.Session.RememberLifetime <= 0 {
		return errors.New("session lifetimes must be positive")
	}
	if c.Session.RememberLifetime < c.Session.Lifetime {
		return errors.New("remember lifetime must not be shorter than the session lifetime")
	}
	return nil
}
