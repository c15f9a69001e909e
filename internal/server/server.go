package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/config"
)

func NewHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Serve starts srv, with TLS when certificate and key are configured.
func Serve(cfg config.Config, srv *http.Server) error {
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		return srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	}
	return srv.ListenAndServe()
}
