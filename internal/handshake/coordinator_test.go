package handshake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/hub"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/model"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/store"
)

type fakeSurface struct {
	mu     sync.Mutex
	closed bool
	closes int
}

func (s *fakeSurface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closes++
	return nil
}

type fakeOpener struct {
	surface *fakeSurface
	err     error

	mu        sync.Mutex
	openedURL string
}

func (o *fakeOpener) Open(u string) (Surface, error) {
	o.mu.Lock()
	o.openedURL = u
	o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	return o.surface, nil
}

func (o *fakeOpener) URL() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.openedURL
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(t *testing.T, opener Opener, opts Options) (*Coordinator, *hub.Hub, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	h := hub.New()
	c := New(st, h, opener, "http://127.0.0.1:8750/auth", testLogger(), opts)
	return c, h, st
}

// deliverWhenRegistered waits for the attempt to appear in the hub, then
// runs fn against it.
func deliverWhenRegistered(t *testing.T, h *hub.Hub, opener *fakeOpener, fn func(*hub.Attempt)) {
	t.Helper()
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if raw := opener.URL(); raw != "" {
				u, err := url.Parse(raw)
				if err == nil {
					if a, ok := h.Get(u.Query().Get("attempt")); ok {
						fn(a)
						return
					}
				}
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
}

func TestLogin_Success(t *testing.T) {
	opener := &fakeOpener{surface: &fakeSurface{}}
	c, h, st := newTestCoordinator(t, opener, Options{PollInterval: 10 * time.Millisecond, Timeout: 2 * time.Second})

	deliverWhenRegistered(t, h, opener, func(a *hub.Attempt) {
		a.Connect()
		a.Deliver(hub.Message{
			Type:      hub.MessageAuthSuccess,
			Token:     "tok-1",
			Email:     "user@example.com",
			UserID:    "u1",
			SessionID: "sess-1",
			Tier:      "subscribed",
		})
	})

	cred, err := c.Login(context.Background())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	want := model.Credential{Token: "tok-1", Email: "user@example.com", UserID: "u1", SessionID: "sess-1", Tier: model.TierSubscribed}
	if cred != want {
		t.Fatalf("credential mismatch: got %+v", cred)
	}

	// The credential was persisted before Login resolved.
	stored, ok, err := st.GetCredential(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected stored credential, ok=%v err=%v", ok, err)
	}
	if stored != want {
		t.Fatalf("stored credential mismatch: got %+v", stored)
	}

	// Teardown: no dangling attempts, surface closed.
	if h.Pending() != 0 {
		t.Fatalf("expected 0 pending attempts, got %d", h.Pending())
	}
	if !opener.surface.Closed() {
		t.Fatalf("expected surface closed after success")
	}
}

func TestLogin_DegradedEntitlementDefaultsToFree(t *testing.T) {
	opener := &fakeOpener{surface: &fakeSurface{}}
	c, h, _ := newTestCoordinator(t, opener, Options{PollInterval: 10 * time.Millisecond, Timeout: 2 * time.Second})

	deliverWhenRegistered(t, h, opener, func(a *hub.Attempt) {
		a.Connect()
		// Entitlement lookup failed inside the surface: no tier field,
		// but the handshake still succeeds.
		a.Deliver(hub.Message{Type: hub.MessageAuthSuccess, Token: "tok", Email: "e@x.y"})
	})

	cred, err := c.Login(context.Background())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if cred.Tier != model.TierFree {
		t.Fatalf("expected free tier, got %q", cred.Tier)
	}
}

func TestLogin_ProviderError(t *testing.T) {
	opener := &fakeOpener{surface: &fakeSurface{}}
	c, h, st := newTestCoordinator(t, opener, Options{PollInterval: 10 * time.Millisecond, Timeout: 2 * time.Second})

	deliverWhenRegistered(t, h, opener, func(a *hub.Attempt) {
		a.Connect()
		a.Deliver(hub.Message{Type: hub.MessageAuthError, Reason: "provider unavailable"})
	})

	_, err := c.Login(context.Background())
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Reason != "provider unavailable" {
		t.Fatalf("unexpected reason %q", perr.Reason)
	}
	if StateOf(err) != StateFailed {
		t.Fatalf("expected StateFailed")
	}

	if _, ok, _ := st.GetCredential(context.Background()); ok {
		t.Fatalf("failed login must not store a credential")
	}
	if h.Pending() != 0 {
		t.Fatalf("expected teardown, %d pending", h.Pending())
	}
}

func TestLogin_SurfaceClosedByUser(t *testing.T) {
	opener := &fakeOpener{surface: &fakeSurface{}}
	c, h, _ := newTestCoordinator(t, opener, Options{PollInterval: 10 * time.Millisecond, Timeout: 2 * time.Second})

	deliverWhenRegistered(t, h, opener, func(a *hub.Attempt) {
		a.Connect()
		a.Disconnect()
	})

	_, err := c.Login(context.Background())
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if StateOf(err) != StateAborted {
		t.Fatalf("expected StateAborted")
	}
	if h.Pending() != 0 {
		t.Fatalf("expected teardown, %d pending", h.Pending())
	}
}

func TestLogin_Timeout(t *testing.T) {
	opener := &fakeOpener{surface: &fakeSurface{}}
	c, h, st := newTestCoordinator(t, opener, Options{PollInterval: 10 * time.Millisecond, Timeout: 50 * time.Millisecond})

	_, err := c.Login(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if StateOf(err) != StateTimedOut {
		t.Fatalf("expected StateTimedOut")
	}

	if h.Pending() != 0 {
		t.Fatalf("expected 0 pending attempts, got %d", h.Pending())
	}
	if !opener.surface.Closed() {
		t.Fatalf("expected surface closed on timeout")
	}
	if _, ok, _ := st.GetCredential(context.Background()); ok {
		t.Fatalf("timeout must not store a credential")
	}
}

func TestLogin_SurfaceBlocked(t *testing.T) {
	opener := &fakeOpener{err: errors.New("popup blocked")}
	c, h, _ := newTestCoordinator(t, opener, Options{PollInterval: 10 * time.Millisecond, Timeout: time.Second})

	_, err := c.Login(context.Background())
	if !errors.Is(err, ErrSurfaceBlocked) {
		t.Fatalf("expected ErrSurfaceBlocked, got %v", err)
	}
	if h.Pending() != 0 {
		t.Fatalf("expected teardown even on blocked open, %d pending", h.Pending())
	}
}

func TestLogin_DuplicateTerminalSignalsAreNoops(t *testing.T) {
	opener := &fakeOpener{surface: &fakeSurface{}}
	c, h, st := newTestCoordinator(t, opener, Options{PollInterval: 10 * time.Millisecond, Timeout: 2 * time.Second})

	deliverWhenRegistered(t, h, opener, func(a *hub.Attempt) {
		a.Connect()
		a.Deliver(hub.Message{Type: hub.MessageAuthSuccess, Token: "tok-first", Email: "first@x.y"})
		a.Deliver(hub.Message{Type: hub.MessageAuthError, Reason: "late failure"})
		a.Deliver(hub.Message{Type: hub.MessageAuthSuccess, Token: "tok-second"})
	})

	cred, err := c.Login(context.Background())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if cred.Token != "tok-first" {
		t.Fatalf("first terminal signal must win, got %q", cred.Token)
	}

	stored, _, _ := st.GetCredential(context.Background())
	if stored.Token != "tok-first" {
		t.Fatalf("stored credential must match first signal, got %q", stored.Token)
	}
}

func TestLogin_AttemptURLCarriesID(t *testing.T) {
	opener := &fakeOpener{surface: &fakeSurface{}}
	c, _, _ := newTestCoordinator(t, opener, Options{PollInterval: 10 * time.Millisecond, Timeout: 30 * time.Millisecond})

	_, _ = c.Login(context.Background())

	u, err := url.Parse(opener.URL())
	if err != nil {
		t.Fatalf("parse opened URL: %v", err)
	}
	if u.Query().Get("attempt") == "" {
		t.Fatalf("expected attempt ID in %q", opener.URL())
	}
}

func TestLogin_ParentContextCancel(t *testing.T) {
	opener := &fakeOpener{surface: &fakeSurface{}}
	c, h, _ := newTestCoordinator(t, opener, Options{PollInterval: 10 * time.Millisecond, Timeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := c.Login(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if h.Pending() != 0 {
		t.Fatalf("expected teardown on cancel, %d pending", h.Pending())
	}
}
