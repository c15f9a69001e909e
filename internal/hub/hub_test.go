package hub

import "testing"

func TestHub_AttemptLifecycle(t *testing.T) {
	h := New()
	a := h.NewAttempt()
	if a.ID() == "" {
		t.Fatalf("expected attempt ID")
	}
	if h.Pending() != 1 {
		t.Fatalf("expected 1 pending, got %d", h.Pending())
	}

	got, ok := h.Get(a.ID())
	if !ok || got != a {
		t.Fatalf("Get returned %v, %v", got, ok)
	}

	h.Remove(a.ID())
	if h.Pending() != 0 {
		t.Fatalf("expected 0 pending after remove, got %d", h.Pending())
	}
	if _, ok := h.Get(a.ID()); ok {
		t.Fatalf("expected attempt gone")
	}
}

func TestAttempt_SingleDelivery(t *testing.T) {
	h := New()
	a := h.NewAttempt()

	if !a.Deliver(Message{Type: MessageAuthSuccess, Token: "tok"}) {
		t.Fatalf("first delivery must be accepted")
	}
	if a.Deliver(Message{Type: MessageAuthError, Reason: "late"}) {
		t.Fatalf("second delivery must be dropped")
	}

	msg := <-a.Messages()
	if msg.Type != MessageAuthSuccess || msg.Token != "tok" {
		t.Fatalf("unexpected message %+v", msg)
	}
	select {
	case extra := <-a.Messages():
		t.Fatalf("unexpected extra message %+v", extra)
	default:
	}
}

func TestAttempt_SurfaceClosed(t *testing.T) {
	h := New()
	a := h.NewAttempt()

	if a.SurfaceClosed() {
		t.Fatalf("never-attached surface must not read as closed")
	}

	a.Connect()
	if a.SurfaceClosed() {
		t.Fatalf("attached surface must not read as closed")
	}

	a.Disconnect()
	if !a.SurfaceClosed() {
		t.Fatalf("detached surface must read as closed")
	}
}

func TestAttempt_DeliveryBeatsDisconnect(t *testing.T) {
	h := New()
	a := h.NewAttempt()

	a.Connect()
	a.Deliver(Message{Type: MessageAuthSuccess, Token: "tok"})
	a.Disconnect()

	// The surface closing right after its terminal message must not be
	// reported as a user abort.
	if a.SurfaceClosed() {
		t.Fatalf("surface with delivered message must not read as closed")
	}
}
