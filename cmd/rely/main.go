// rely is an OpenID Connect relying party for the to-dos API: it logs users
// in against the configured identity provider and relays their access token
// to the downstream API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/oidckit/rely/oidc"
	"github.com/oidckit/rely/securecookie"
	"github.com/oidckit/rely/server"
	"github.com/oidckit/rely/session"
	"github.com/oidckit/rely/todos"
)

func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "rely",
		Level: hclog.Info,
	})
	if err := run(logger); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(logger hclog.Logger) error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}

	oidcCfg, err := oidc.NewConfig(
		cfg.IssuerURL(),
		cfg.ClientID,
		oidc.ClientSecret(cfg.ClientSecret),
		cfg.RedirectURI,
		oidc.WithScopes(cfg.Scopes...),
		oidc.WithAudience(cfg.APIIdentifier),
		oidc.WithLogger(logger.Named("oidc")),
	)
	if err != nil {
		return err
	}

	// Discovery is mandatory and blocking: if the provider metadata can't be
	// fetched there is nothing to serve, so fail before binding the listener.
	discoverCtx, cancel := context.WithTimeout(context.Background(), oidc.DefaultHTTPTimeout)
	defer cancel()
	provider, err := oidc.NewProvider(discoverCtx, oidcCfg)
	if err != nil {
		return err
	}

	nonces, err := securecookie.New(server.NonceCookie, cfg.CookieKey, server.NonceMaxAge)
	if err != nil {
		return err
	}
	sessionCookie, err := securecookie.New(server.SessionCookie, cfg.CookieKey, session.DefaultTTL)
	if err != nil {
		return err
	}
	sessions, err := session.NewStore(sessionCookie, session.DefaultTTL)
	if err != nil {
		return err
	}
	todosClient, err := todos.New(cfg.APIURL, todos.WithLogger(logger.Named("todos")))
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, provider, sessions, nonces, todosClient, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr, "issuer", provider.Metadata().Issuer)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	}
}
