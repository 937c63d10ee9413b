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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cmskit/cmsauth/internal/audit"
	"github.com/cmskit/cmsauth/internal/auth"
	"github.com/cmskit/cmsauth/internal/authz"
	"github.com/cmskit/cmsauth/internal/config"
	"github.com/cmskit/cmsauth/internal/events"
	"github.com/cmskit/cmsauth/internal/identity"
	"github.com/cmskit/cmsauth/internal/oauth2"
	"github.com/cmskit/cmsauth/internal/observability/logger"
	"github.com/cmskit/cmsauth/internal/observability/metrics"
	"github.com/cmskit/cmsauth/internal/observability/tracing"
	"github.com/cmskit/cmsauth/internal/session"
	"github.com/cmskit/cmsauth/internal/store/postgres"
	redisstore "github.com/cmskit/cmsauth/internal/store/redis"
	transportHTTP "github.com/cmskit/cmsauth/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	if len(os.Args) > 1 {
		var err error
		switch os.Args[1] {
		case "migrate":
			err = runMigrate(cfg)
		case "create-user":
			err = runCreateUser(cfg, os.Args[2:])
		case "delete-user":
			err = runDeleteUser(cfg, os.Args[2:])
		default:
			err = fmt.Errorf("unknown command %q", os.Args[1])
		}
		if err != nil {
			fmt.Printf("Command failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		slog.Error("server exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting cms auth service")

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	} else {
		defer tracer.Shutdown(context.Background())
	}

	if _, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName); err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("connected to database")

	redisClient, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()
	slog.Info("connected to redis")

	// Repositories
	userRepo := postgres.NewUserRepository(db)
	roleRepo := postgres.NewRoleRepository(db)
	accessRepo := postgres.NewAccessTokenRepository(db)
	refreshRepo := postgres.NewRefreshTokenRepository(db)
	sessionRepo := redisstore.NewSessionRepository(redisClient)

	// Services
	auditLogger := audit.NewSlogLogger()
	sink := events.NewSlogSink()
	hasher := newHasher(cfg)

	verifier := identity.NewService(userRepo, hasher, auditLogger)
	sessions := session.NewService(sessionRepo, cfg.Session.RememberLifetime, cfg.Session.Lifetime)
	authn := auth.NewAuthenticator(verifier, sessions, sink, auditLogger)
	engine := authz.NewEngine(userRepo, roleRepo, verifier, sink)
	directory := authz.NewDirectory(userRepo, roleRepo)

	tokens := oauth2.NewService(verifier, accessRepo, refreshRepo, auditLogger,
		cfg.Token.AccessTokenLifetime, cfg.Token.RefreshTokenLifetime)
	tokens.RegisterClient(cfg.Token.ClientID, cfg.Token.ClientSecret)

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()

	handler := transportHTTP.NewHandler(authn, engine, directory, sessions, tokens,
		transportHTTP.SessionConfig{
			CookieName:   cfg.Session.CookieName,
			CookieDomain: cfg.Session.CookieDomain,
			CookiePath:   cfg.Session.CookiePath,
			CookieSecure: cfg.Session.CookieSecure,
		})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      transportHTTP.NewRouter(handler, rateLimiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info(fmt.Sprintf("listening on %s", addr), logger.Component("server"))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Periodically purge expired tokens; Redis expires sessions itself
	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := accessRepo.DeleteExpired(ctx); err != nil {
					slog.ErrorContext(ctx, "failed to purge expired access tokens", logger.Error(err))
				}
				if err := refreshRepo.DeleteExpired(ctx); err != nil {
					slog.ErrorContext(ctx, "failed to purge expired refresh tokens", logger.Error(err))
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped")
	return nil
}

func openDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	return postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
}

func newHasher(cfg *config.Config) *identity.PasswordHasher {
	return identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("migrations applied")
	return nil
}

func runCreateUser(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: create-user <email> <password> [--admin]")
	}
	username, password := args[0], args[1]
	admin := len(args) > 2 && args[2] == "--admin"

	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	userRepo := postgres.NewUserRepository(db)
	verifier := identity.NewService(userRepo, newHasher(cfg), audit.NewSlogLogger())

	user, err := verifier.Register(ctx, username, password, identity.Profile{})
	if err != nil {
		return err
	}

	if admin {
		user.IsSuperadmin = true
		if err := userRepo.Update(ctx, user); err != nil {
			return fmt.Errorf("failed to promote user: %w", err)
		}
	}

	slog.Info("user created", logger.Username(username), logger.UserID(user.ID))
	return nil
}

func runDeleteUser(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: delete-user <email>")
	}

	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	userRepo := postgres.NewUserRepository(db)
	roleRepo := postgres.NewRoleRepository(db)
	engine := authz.NewEngine(userRepo, roleRepo,
		identity.NewService(userRepo, newHasher(cfg), audit.NewSlogLogger()),
		events.NewSlogSink())

	if !engine.DeleteUser(ctx, args[0]) {
		return fmt.Errorf("failed to delete user %q", args[0])
	}

	slog.Info("user deleted", logger.Username(args[0]))
	return nil
}
