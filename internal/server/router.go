package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/analyze"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/cache"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/handler"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/handshake"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/hub"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/ratelimit"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/session"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/settings"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/store"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/usage"
)

type Deps struct {
	Store        *store.Store
	Usage        *usage.Service
	Cache        *cache.Service
	Settings     *settings.Service
	Orchestrator *analyze.Orchestrator
	Coordinator  *handshake.Coordinator
	Verifier     *session.Verifier
	Hub          *hub.Hub
	LoginURL     string
	Log          *slog.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	loginLimiter := ratelimit.New(10, time.Minute)
	msgHandler := &handler.MessageHandler{
		Store:        deps.Store,
		Usage:        deps.Usage,
		Cache:        deps.Cache,
		Settings:     deps.Settings,
		Orchestrator: deps.Orchestrator,
		Coordinator:  deps.Coordinator,
		Verifier:     deps.Verifier,
		LoginLimiter: loginLimiter,
		Log:          deps.Log,
	}
	r.POST("/v1/message", msgHandler.Handle)

	authPage := &handler.AuthPageHandler{LoginURL: deps.LoginURL}
	r.GET("/auth", authPage.Serve)

	wsHandler := &handler.AuthSurfaceHandler{Hub: deps.Hub, Log: deps.Log}
	r.GET("/ws/auth", wsHandler.Serve)

	return r
}
