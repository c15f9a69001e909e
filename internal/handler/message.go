package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/analyze"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/auth"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/cache"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/handshake"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/model"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/ratelimit"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/session"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/settings"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/store"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/usage"
)

// Message types of the popup/content-script contract.
const (
	TypeAnalyzePaper        = "ANALYZE_PAPER"
	TypeGetSettings         = "GET_SETTINGS"
	TypeUpdateSettings      = "UPDATE_SETTINGS"
	TypeGetAnalysisCache    = "GET_ANALYSIS_CACHE"
	TypeStoreAnalysisCache  = "STORE_ANALYSIS_CACHE"
	TypeGetAuthStatus       = "GET_AUTH_STATUS"
	TypeLogin               = "LOGIN"
	TypeLogout              = "LOGOUT"
	TypeRefreshSubscription = "REFRESH_SUBSCRIPTION"
	TypeGetUsage            = "GET_USAGE"
)

// Stable error codes surfaced alongside human-readable messages.
const (
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeInsufficientContent = "INSUFFICIENT_CONTENT"
	CodeAnalysisTimeout     = "ANALYSIS_TIMEOUT"
	CodeRemoteError         = "REMOTE_ERROR"
	CodeNoCredential        = "NO_CREDENTIAL"
	CodeInvalidSession      = "INVALID_SESSION"
	CodeUnreachable         = "UNREACHABLE"
	CodeAuthFailed          = "AUTH_FAILED"
	CodeHandshakeAborted    = "HANDSHAKE_ABORTED"
	CodeHandshakeTimeout    = "HANDSHAKE_TIMEOUT"
	CodeSurfaceBlocked      = "SURFACE_BLOCKED"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MessageHandler dispatches the tagged-union message contract. Every
// message is answered exactly once; unknown types get an explicit error.
type MessageHandler struct {
	Store        *store.Store
	Usage        *usage.Service
	Cache        *cache.Service
	Settings     *settings.Service
	Orchestrator *analyze.Orchestrator
	Coordinator  *handshake.Coordinator
	Verifier     *session.Verifier
	LoginLimiter *ratelimit.Limiter
	Log          *slog.Logger
}

func respondOK(c *gin.Context, data gin.H) {
	out := gin.H{"success": true}
	for k, v := range data {
		out[k] = v
	}
	c.JSON(http.StatusOK, out)
}

func respondErr(c *gin.Context, code string, err error, extra gin.H) {
	out := gin.H{"success": false, "code": code, "error": err.Error()}
	for k, v := range extra {
		out[k] = v
	}
	c.JSON(http.StatusOK, out)
}

// Handle serves POST /v1/message.
func (h *MessageHandler) Handle(c *gin.Context) {
	var msg envelope
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
		return
	}

	h.Log.Debug("message received", "type", msg.Type)

	switch msg.Type {
	case TypeAnalyzePaper:
		h.analyzePaper(c, msg.Data)
	case TypeGetSettings:
		h.getSettings(c)
	case TypeUpdateSettings:
		h.updateSettings(c, msg.Data)
	case TypeGetAnalysisCache:
		h.getAnalysisCache(c, msg.Data)
	case TypeStoreAnalysisCache:
		h.storeAnalysisCache(c, msg.Data)
	case TypeGetAuthStatus:
		h.getAuthStatus(c)
	case TypeLogin:
		h.login(c)
	case TypeLogout:
		h.logout(c)
	case TypeRefreshSubscription:
		h.refreshSubscription(c)
	case TypeGetUsage:
		h.getUsage(c)
	default:
		h.Log.Warn("unknown message type", "type", msg.Type)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "Unknown message type"})
	}
}

func (h *MessageHandler) analyzePaper(c *gin.Context, data json.RawMessage) {
	var input model.PaperInput
	if len(data) > 0 {
		if err := json.Unmarshal(data, &input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
			return
		}
	}

	res, err := h.Orchestrator.Analyze(c.Request.Context(), input)
	if err != nil {
		var qerr *analyze.QuotaError
		var rerr *analyze.RemoteError
		switch {
		case errors.Is(err, analyze.ErrUnauthenticated):
			respondErr(c, CodeUnauthenticated, err, nil)
		case errors.As(err, &qerr):
			respondErr(c, CodeQuotaExceeded, err, gin.H{"limit": qerr.Limit, "used": qerr.Used})
		case errors.Is(err, analyze.ErrInsufficientContent):
			respondErr(c, CodeInsufficientContent, err, nil)
		case errors.Is(err, analyze.ErrTimeout):
			respondErr(c, CodeAnalysisTimeout, err, nil)
		case errors.As(err, &rerr):
			respondErr(c, CodeRemoteError, err, gin.H{"status": rerr.Status})
		default:
			respondErr(c, CodeInternal, err, nil)
		}
		return
	}
	respondOK(c, gin.H{"analysis": res.Payload, "cached": res.Cached})
}

func (h *MessageHandler) getSettings(c *gin.Context) {
	ctx := c.Request.Context()
	s, err := h.Settings.Get(ctx)
	if err != nil {
		respondErr(c, CodeInternal, err, nil)
		return
	}
	lang, err := h.Settings.Language(ctx)
	if err != nil {
		respondErr(c, CodeInternal, err, nil)
		return
	}
	respondOK(c, gin.H{"settings": s, "language": lang})
}

type updateSettingsBody struct {
	Settings *settings.Settings `json:"settings"`
	Language string             `json:"language"`
}

func (h *MessageHandler) updateSettings(c *gin.Context, data json.RawMessage) {
	var body updateSettingsBody
	if err := json.Unmarshal(data, &body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
		return
	}
	ctx := c.Request.Context()
	if body.Settings != nil {
		if err := h.Settings.Update(ctx, *body.Settings); err != nil {
			respondErr(c, CodeInternal, err, nil)
			return
		}
	}
	if body.Language != "" {
		if err := h.Settings.SetLanguage(ctx, body.Language); err != nil {
			respondErr(c, CodeInternal, err, nil)
			return
		}
	}
	respondOK(c, nil)
}

type cacheQueryBody struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

func (h *MessageHandler) getAnalysisCache(c *gin.Context, data json.RawMessage) {
	var body cacheQueryBody
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
			return
		}
	}
	key := cache.Fingerprint(model.PaperInput{URL: body.URL, Text: body.Text})
	entry, hit, err := h.Cache.Lookup(c.Request.Context(), key)
	if err != nil {
		respondErr(c, CodeInternal, err, nil)
		return
	}
	if !hit {
		respondOK(c, gin.H{"analysis": nil})
		return
	}
	respondOK(c, gin.H{"analysis": entry.Payload})
}

type cacheStoreBody struct {
	URL      string                 `json:"url"`
	Text     string                 `json:"text"`
	Analysis *model.AnalysisPayload `json:"analysis"`
}

func (h *MessageHandler) storeAnalysisCache(c *gin.Context, data json.RawMessage) {
	var body cacheStoreBody
	if err := json.Unmarshal(data, &body); err != nil || body.Analysis == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
		return
	}
	key := cache.Fingerprint(model.PaperInput{URL: body.URL, Text: body.Text})
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
		return
	}
	if err := h.Cache.Store(c.Request.Context(), key, *body.Analysis, body.URL); err != nil {
		respondErr(c, CodeInternal, err, nil)
		return
	}
	respondOK(c, nil)
}

func (h *MessageHandler) getAuthStatus(c *gin.Context) {
	ctx := c.Request.Context()
	cred, ok, err := h.Store.GetCredential(ctx)
	if err != nil {
		respondErr(c, CodeInternal, err, nil)
		return
	}
	if !ok {
		respondOK(c, gin.H{"loggedIn": false})
		return
	}
	out := gin.H{
		"loggedIn":           true,
		"email":              cred.Email,
		"userId":             cred.UserID,
		"subscriptionStatus": cred.Tier,
	}
	if expiry, ok := auth.DecodeExpiry(cred.Token); ok {
		out["tokenExpiresAt"] = expiry.UnixMilli()
	}
	if quota, err := h.Usage.CanAnalyze(ctx, cred.Tier); err == nil {
		out["usage"] = quota
	}
	respondOK(c, out)
}

func (h *MessageHandler) login(c *gin.Context) {
	if h.LoginLimiter != nil && !h.LoginLimiter.Allow(c.ClientIP()) {
		respondErr(c, CodeRateLimited, errors.New("too many login attempts"), nil)
		return
	}

	cred, err := h.Coordinator.Login(c.Request.Context())
	if err != nil {
		var perr *handshake.ProviderError
		switch {
		case errors.Is(err, handshake.ErrSurfaceBlocked):
			respondErr(c, CodeSurfaceBlocked, err, nil)
		case errors.Is(err, handshake.ErrAborted):
			respondErr(c, CodeHandshakeAborted, err, nil)
		case errors.Is(err, handshake.ErrTimeout):
			respondErr(c, CodeHandshakeTimeout, err, nil)
		case errors.As(err, &perr):
			respondErr(c, CodeAuthFailed, err, nil)
		default:
			respondErr(c, CodeInternal, err, nil)
		}
		return
	}
	respondOK(c, gin.H{
		"email":              cred.Email,
		"userId":             cred.UserID,
		"subscriptionStatus": cred.Tier,
	})
}

func (h *MessageHandler) logout(c *gin.Context) {
	if err := h.Verifier.Logout(c.Request.Context()); err != nil {
		respondErr(c, CodeInternal, err, nil)
		return
	}
	respondOK(c, nil)
}

func (h *MessageHandler) refreshSubscription(c *gin.Context) {
	cred, err := h.Verifier.VerifyAndRefresh(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNoCredential):
			respondErr(c, CodeNoCredential, err, nil)
		case errors.Is(err, session.ErrInvalidSession):
			respondErr(c, CodeInvalidSession, err, nil)
		case errors.Is(err, session.ErrUnreachable):
			respondErr(c, CodeUnreachable, err, nil)
		default:
			respondErr(c, CodeInternal, err, nil)
		}
		return
	}
	respondOK(c, gin.H{
		"email":              cred.Email,
		"userId":             cred.UserID,
		"subscriptionStatus": cred.Tier,
	})
}

func (h *MessageHandler) getUsage(c *gin.Context) {
	ctx := c.Request.Context()
	tier := model.TierFree
	cred, ok, err := h.Store.GetCredential(ctx)
	if err != nil {
		respondErr(c, CodeInternal, err, nil)
		return
	}
	if ok {
		tier = cred.Tier
	}
	quota, err := h.Usage.CanAnalyze(ctx, tier)
	if err != nil {
		respondErr(c, CodeInternal, err, nil)
		return
	}
	respondOK(c, gin.H{"usage": quota})
}
