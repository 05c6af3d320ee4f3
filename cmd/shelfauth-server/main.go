// Command shelfauth-server serves the shelfauth sign-in, sign-up, email
// verification and Google sign-in endpoints over HTTP.
//
// Configuration comes from SHELFAUTH_* environment variables:
//
//	SHELFAUTH_ADDR               listen address (default :8080)
//	SHELFAUTH_DATABASE_URL       postgres://... or sqlite://path (default sqlite://shelfauth.db)
//	SHELFAUTH_REDIS_ADDR         Redis address; empty starts an in-process miniredis
//	SHELFAUTH_PRODUCTION         Secure cookies and JSON logs
//	SHELFAUTH_LOG_LEVEL          debug, info, warn or error
//	SHELFAUTH_TRUST_PROXY        take the client IP from X-Forwarded-For
//	SHELFAUTH_SESSION_BACKEND    store or redis
//	SHELFAUTH_GOOGLE_CLIENT_ID   enables Google sign-in with _CLIENT_SECRET and _REDIRECT_URL
//	SHELFAUTH_SMTP_HOST          enables SMTP delivery with _PORT, _USERNAME, _PASSWORD, _FROM
//
// Run:
//
//	SHELFAUTH_DATABASE_URL=sqlite://dev.db go run ./cmd/shelfauth-server
//
// Then:
//
//	curl -i -c jar.txt -X POST localhost:8080/sign-up \
//	  -H 'Content-Type: application/json' \
//	  -d '{"fullName":"Ana Lima","email":"ana@example.com","password":"a long enough secret"}'
//
//	curl -i -b jar.txt localhost:8080/me
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/shelfauth"
	"github.com/MrEthical07/shelfauth/internal/logging"
	"github.com/MrEthical07/shelfauth/mail"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "shelfauth-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	log := logging.New(os.Stderr, cfg.LogLevel, cfg.Production)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------- infrastructure ----------
	store, closeStore, err := openDatastore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb, closeRedis, err := openRedis(ctx, cfg.RedisAddr, log)
	if err != nil {
		return err
	}
	defer closeRedis()

	sender, err := cfg.smtpSender()
	if err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	if sender == nil {
		log.Warn(ctx, "no SMTP relay configured, verification mail is logged")
		sender = mail.LogSender{Logger: log, IncludeBody: !cfg.Production}
	}

	// ---------- engine ----------
	engine, err := shelfauth.New().
		WithConfig(engineCfg).
		WithStore(store).
		WithRedis(rdb).
		WithMailSender(sender).
		WithLogger(log).
		Build()
	if err != nil {
		return fmt.Errorf("engine build: %w", err)
	}
	defer engine.Close()

	go purgeLoop(ctx, store, cfg.PurgeInterval, log)

	srv := &server{engine: engine, store: store, logger: log}
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.routes(cfg.TrustProxy),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", "addr", cfg.Addr, "federated", engine.FederatedLoginEnabled())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openRedis connects to addr, or to an in-process miniredis when addr is empty.
func openRedis(ctx context.Context, addr string, log logging.Logger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		log.Warn(ctx, "SHELFAUTH_REDIS_ADDR not set, using in-process miniredis", "addr", mr.Addr())
		addr = mr.Addr()
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}
