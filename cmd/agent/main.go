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

	"github.com/gin-gonic/gin"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/analyze"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/cache"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/config"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/handshake"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/hub"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/logging"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/server"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/session"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/settings"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/store"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/usage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	if err != nil {
		return err
	}

	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.StateDBPath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer st.Close()

	usageSvc := usage.New(st)
	cacheSvc := cache.New(st)
	settingsSvc := settings.New(st)
	verifier := session.New(st, cfg.APIBase, log)
	scorer := analyze.NewScorer(cfg.APIBase)
	orchestrator := analyze.New(st, usageSvc, cacheSvc, scorer, log, cfg.AnalysisTimeout)

	attempts := hub.New()
	coordinator := handshake.New(st, attempts, &handshake.BrowserOpener{}, cfg.AuthURL, log,
		handshake.Options{Timeout: cfg.LoginTimeout})

	go cache.NewEvictor(cacheSvc, log).Run(ctx)

	router := server.NewRouter(server.Deps{
		Store:        st,
		Usage:        usageSvc,
		Cache:        cacheSvc,
		Settings:     settingsSvc,
		Orchestrator: orchestrator,
		Coordinator:  coordinator,
		Verifier:     verifier,
		Hub:          attempts,
		LoginURL:     cfg.LoginURL,
		Log:          log,
	})

	srv := server.NewHTTPServer(cfg, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr)
		errCh <- server.Serve(cfg, srv)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
