// Package session validates and refreshes the stored credential's
// entitlement against the remote authority. The failure policy is
// asymmetric: only an explicit rejection by the authority ends the session;
// network-class failures fall back to the last-known-good credential.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/auth"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/model"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/store"
)

var (
	// ErrNoCredential means the store holds no credential at all.
	ErrNoCredential = errors.New("no authentication token found")
	// ErrInvalidSession means the authority explicitly rejected the token;
	// the stored credential has been cleared.
	ErrInvalidSession = errors.New("session rejected by authority")
	// ErrUnreachable means the authority could not be reached and no
	// cached credential exists to fall back on.
	ErrUnreachable = errors.New("unable to verify authentication")
)

type Verifier struct {
	store   *store.Store
	client  *http.Client
	apiBase string
	log     *slog.Logger
}

func New(st *store.Store, apiBase string, log *slog.Logger) *Verifier {
	return &Verifier{
		store:   st,
		client:  &http.Client{Timeout: 15 * time.Second},
		apiBase: apiBase,
		log:     log,
	}
}

// NewWithClient lets tests inject the HTTP client.
func NewWithClient(st *store.Store, apiBase string, log *slog.Logger, client *http.Client) *Verifier {
	v := New(st, apiBase, log)
	v.client = client
	return v
}

type subscriptionStatusResponse struct {
	SubscriptionStatus string `json:"subscription_status"`
}

// VerifyAndRefresh fetches the current entitlement for the stored credential
// and persists the refreshed tier. On any network-class failure it returns
// the cached credential unchanged.
func (v *Verifier) VerifyAndRefresh(ctx context.Context) (model.Credential, error) {
	cred, ok, err := v.store.GetCredential(ctx)
	if err != nil {
		return model.Credential{}, err
	}
	if !ok {
		return model.Credential{}, ErrNoCredential
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.apiBase+"/auth/subscription-status", nil)
	if err != nil {
		return model.Credential{}, err
	}
	req.Header.Set("Authorization", auth.BearerHeader(cred.Token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		// The credential may have been cleared while the request was in
		// flight; without a cached fallback the caller gets a hard error.
		if _, ok, readErr := v.store.GetCredential(ctx); readErr != nil || !ok {
			return model.Credential{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		v.log.Warn("entitlement refresh unreachable, using cached credential", "error", err)
		return cred, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Explicit rejection: the session is over.
		if err := v.store.ClearCredential(ctx); err != nil {
			return model.Credential{}, err
		}
		v.log.Info("authority rejected session, credential cleared", "status", resp.StatusCode)
		return model.Credential{}, fmt.Errorf("%w (status %d)", ErrInvalidSession, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		v.log.Warn("entitlement refresh failed, using cached credential", "status", resp.StatusCode)
		return cred, nil
	}

	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		v.log.Warn("entitlement refresh returned non-JSON, using cached credential", "contentType", resp.Header.Get("Content-Type"))
		return cred, nil
	}

	var body subscriptionStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		v.log.Warn("entitlement refresh returned malformed JSON, using cached credential", "error", err)
		return cred, nil
	}

	tier := model.ParseTier(body.SubscriptionStatus)
	if tier != cred.Tier {
		if err := v.store.SetTier(ctx, tier); err != nil {
			return model.Credential{}, err
		}
		v.log.Info("subscription status refreshed", "tier", tier)
	}
	cred.Tier = tier
	return cred, nil
}

// Logout clears the stored credential.
func (v *Verifier) Logout(ctx context.Context) error {
	if err := v.store.ClearCredential(ctx); err != nil {
		return err
	}
	v.log.Info("user logged out")
	return nil
}
