// Package hub routes terminal messages from authentication surfaces to
// pending login attempts. Each attempt gets exactly one delivery; later
// signals are dropped. The hub also tracks surface liveness so the handshake
// poll can detect a window closed without a terminal message.
package hub

import (
	"sync"

	"github.com/google/uuid"
)

// Terminal message types accepted from the auth surface. Anything else is
// ignored by the bridge.
const (
	MessageAuthSuccess = "AUTH_SUCCESS"
	MessageAuthError   = "AUTH_ERROR"
)

// Message is the terminal signal emitted by the authentication surface.
type Message struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	Email     string `json:"email,omitempty"`
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"clerkSessionId,omitempty"`
	Tier      string `json:"subscriptionStatus,omitempty"`
	Reason    string `json:"message,omitempty"`
}

// Attempt is one pending login attempt.
type Attempt struct {
	id    string
	msgCh chan Message

	mu            sync.Mutex
	connected     bool
	everConnected bool
	delivered     bool
}

func (a *Attempt) ID() string { return a.id }

// Messages delivers at most one terminal message.
func (a *Attempt) Messages() <-chan Message { return a.msgCh }

// Connect marks the surface as attached.
func (a *Attempt) Connect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = true
	a.everConnected = true
}

// Disconnect marks the surface as detached.
func (a *Attempt) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
}

// Deliver hands the terminal message to the waiting handshake. Only the
// first delivery wins; it reports whether the message was accepted.
func (a *Attempt) Deliver(msg Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.delivered {
		return false
	}
	a.delivered = true
	a.msgCh <- msg
	return true
}

// SurfaceClosed reports whether the surface attached and then went away
// without delivering a terminal message. A surface that never attached is
// not "closed": the user may still be loading the page.
func (a *Attempt) SurfaceClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.everConnected && !a.connected && !a.delivered
}

type Hub struct {
	mu       sync.Mutex
	attempts map[string]*Attempt
}

func New() *Hub {
	return &Hub{attempts: make(map[string]*Attempt)}
}

// NewAttempt registers a fresh attempt and returns it.
func (h *Hub) NewAttempt() *Attempt {
	a := &Attempt{
		id:    uuid.NewString(),
		msgCh: make(chan Message, 1),
	}
	h.mu.Lock()
	h.attempts[a.id] = a
	h.mu.Unlock()
	return a
}

// Get looks up a pending attempt by ID.
func (h *Hub) Get(id string) (*Attempt, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.attempts[id]
	return a, ok
}

// Remove deregisters an attempt. Safe to call on every handshake exit path.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.attempts, id)
}

// Pending reports the number of registered attempts.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.attempts)
}
