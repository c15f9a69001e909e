// Package handshake drives a single login attempt to a terminal outcome.
// An isolated authentication surface is opened, and three signals race to
// settle the attempt: the surface's terminal message, a poll detecting the
// surface closed by the user, and an absolute deadline. Exactly one outcome
// wins; every exit path tears the attempt down.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/hub"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/model"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/store"
)

const (
	DefaultPollInterval = time.Second
	DefaultTimeout      = 5 * time.Minute
)

// State is the terminal (or pending) state of a login attempt.
type State int

const (
	StatePending State = iota
	StateSucceeded
	StateFailed
	StateAborted
	StateTimedOut
)

var (
	// ErrSurfaceBlocked means the authentication surface could not be
	// opened at all (e.g. a blocked pop-up). Terminal, no retry.
	ErrSurfaceBlocked = errors.New("failed to open authentication window")
	// ErrAborted means the user closed the surface before completing.
	ErrAborted = errors.New("authentication window was closed")
	// ErrTimeout means the handshake deadline expired.
	ErrTimeout = errors.New("authentication timeout")
)

// ProviderError is a terminal failure reported by the surface itself.
type ProviderError struct {
	Reason string
}

func (e *ProviderError) Error() string {
	if e.Reason == "" {
		return "authentication failed"
	}
	return e.Reason
}

// StateOf maps a Login error to its terminal state.
func StateOf(err error) State {
	switch {
	case err == nil:
		return StateSucceeded
	case errors.Is(err, ErrAborted):
		return StateAborted
	case errors.Is(err, ErrTimeout):
		return StateTimedOut
	default:
		return StateFailed
	}
}

// Surface is the opened authentication window, as far as the agent can
// observe it.
type Surface interface {
	Closed() bool
	Close() error
}

// Opener opens the authentication surface for an attempt.
type Opener interface {
	Open(url string) (Surface, error)
}

type Coordinator struct {
	store        *store.Store
	hub          *hub.Hub
	opener       Opener
	authURL      string
	log          *slog.Logger
	pollInterval time.Duration
	timeout      time.Duration
}

type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

func New(st *store.Store, h *hub.Hub, opener Opener, authURL string, log *slog.Logger, opts Options) *Coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Coordinator{
		store:        st,
		hub:          h,
		opener:       opener,
		authURL:      authURL,
		log:          log,
		pollInterval: opts.PollInterval,
		timeout:      opts.Timeout,
	}
}

func (c *Coordinator) attemptURL(id string) string {
	u, err := url.Parse(c.authURL)
	if err != nil {
		return c.authURL
	}
	q := u.Query()
	q.Set("attempt", id)
	u.RawQuery = q.Encode()
	return u.String()
}

// Login runs one handshake to completion. On success the credential is
// fully persisted before Login returns; callers never observe success ahead
// of storage.
func (c *Coordinator) Login(ctx context.Context) (model.Credential, error) {
	attempt := c.hub.NewAttempt()
	defer c.hub.Remove(attempt.ID())

	surface, err := c.opener.Open(c.attemptURL(attempt.ID()))
	if err != nil {
		return model.Credential{}, fmt.Errorf("%w: %v", ErrSurfaceBlocked, err)
	}
	defer func() { _ = surface.Close() }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	c.log.Info("login attempt started", "attempt", attempt.ID())

	for {
		select {
		case msg := <-attempt.Messages():
			return c.settle(ctx, attempt.ID(), msg)
		case <-ticker.C:
			// A terminal message racing the poll tick wins.
			select {
			case msg := <-attempt.Messages():
				return c.settle(ctx, attempt.ID(), msg)
			default:
			}
			if surface.Closed() || attempt.SurfaceClosed() {
				c.log.Info("login attempt aborted by user", "attempt", attempt.ID())
				return model.Credential{}, ErrAborted
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				c.log.Warn("login attempt timed out", "attempt", attempt.ID())
				return model.Credential{}, ErrTimeout
			}
			return model.Credential{}, ctx.Err()
		}
	}
}

func (c *Coordinator) settle(ctx context.Context, attemptID string, msg hub.Message) (model.Credential, error) {
	switch msg.Type {
	case hub.MessageAuthSuccess:
		if msg.Token == "" {
			return model.Credential{}, &ProviderError{Reason: "authentication response missing token"}
		}
		cred := model.Credential{
			Token:     msg.Token,
			Email:     msg.Email,
			UserID:    msg.UserID,
			SessionID: msg.SessionID,
			// Entitlement lookup degrading inside the surface arrives as
			// an absent tier; authentication still succeeded.
			Tier: model.ParseTier(msg.Tier),
		}
		// The write must survive a deadline firing between delivery and
		// persistence.
		if err := c.store.SetCredential(context.WithoutCancel(ctx), cred); err != nil {
			return model.Credential{}, fmt.Errorf("storing credential: %w", err)
		}
		c.log.Info("login attempt succeeded", "attempt", attemptID, "email", cred.Email, "tier", cred.Tier)
		return cred, nil
	case hub.MessageAuthError:
		c.log.Warn("login attempt failed", "attempt", attemptID, "reason", msg.Reason)
		return model.Credential{}, &ProviderError{Reason: msg.Reason}
	default:
		return model.Credential{}, &ProviderError{Reason: "unexpected terminal message"}
	}
}
