package server

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/config"
)

func TestNewHTTPServer(t *testing.T) {
	cfg := config.Config{Port: 4321}
	srv := NewHTTPServer(cfg, http.NewServeMux())
	if srv.Addr != ":4321" {
		t.Fatalf("expected :4321, got %q", srv.Addr)
	}
	if srv.ReadHeaderTimeout != 5*time.Second {
		t.Fatalf("unexpected ReadHeaderTimeout")
	}
}

func TestServe_StopsOnShutdown(t *testing.T) {
	cfg := config.Config{Port: 0}
	srv := NewHTTPServer(cfg, http.NewServeMux())

	errCh := make(chan error, 1)
	go func() { errCh <- Serve(cfg, srv) }()

	time.Sleep(50 * time.Millisecond)
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Fatalf("expected ErrServerClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after shutdown")
	}
}
