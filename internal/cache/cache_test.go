package cache

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/model"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/store"
)

func newTestCache(t *testing.T) (*Service, *time.Time) {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	clock := &now
	return NewWithNow(st, func() time.Time { return *clock }), clock
}

func TestFingerprint_Deterministic(t *testing.T) {
	in := model.PaperInput{URL: "https://pubmed.ncbi.nlm.nih.gov/12345/", Text: "abstract text"}
	if Fingerprint(in) != Fingerprint(in) {
		t.Fatalf("fingerprint not deterministic")
	}
	if !strings.HasPrefix(Fingerprint(in), "analysis_") {
		t.Fatalf("unexpected key format %q", Fingerprint(in))
	}
}

func TestFingerprint_PrefersURL(t *testing.T) {
	a := model.PaperInput{URL: "https://example.org/p1", Text: "same text"}
	b := model.PaperInput{URL: "https://example.org/p2", Text: "same text"}
	if Fingerprint(a) == Fingerprint(b) {
		t.Fatalf("different URLs must produce different keys")
	}

	c := model.PaperInput{Text: "same text"}
	d := model.PaperInput{Text: "same text"}
	if Fingerprint(c) != Fingerprint(d) {
		t.Fatalf("same text must produce same key")
	}
}

func TestFingerprint_TextPrefixOnly(t *testing.T) {
	base := strings.Repeat("a", 100)
	a := model.PaperInput{Text: base + "tail one"}
	b := model.PaperInput{Text: base + "different tail"}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("only the text prefix should contribute to the key")
	}
}

func TestFingerprint_Empty(t *testing.T) {
	if Fingerprint(model.PaperInput{}) != "" {
		t.Fatalf("empty input must produce empty key")
	}
	if Fingerprint(model.PaperInput{Text: "   "}) != "" {
		t.Fatalf("whitespace-only text must produce empty key")
	}
}

func TestService_LookupTTL(t *testing.T) {
	svc, clock := newTestCache(t)
	ctx := context.Background()

	payload := model.AnalysisPayload{Score: 80, QualityPercentage: 80, TrafficLight: "Green"}
	key := Fingerprint(model.PaperInput{URL: "https://example.org/p"})
	if err := svc.Store(ctx, key, payload, "https://example.org/p"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	entry, ok, err := svc.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatalf("expected hit")
	}
	if entry.Payload.Score != 80 || entry.SourceURL != "https://example.org/p" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	// Just under the TTL: still fresh.
	*clock = clock.Add(TTL - time.Minute)
	if _, ok, _ := svc.Lookup(ctx, key); !ok {
		t.Fatalf("expected hit just under TTL")
	}

	// At the TTL: stale, reported as a miss even though the row exists.
	*clock = clock.Add(time.Minute)
	if _, ok, _ := svc.Lookup(ctx, key); ok {
		t.Fatalf("expected miss at TTL")
	}
}

func TestService_EvictExpired(t *testing.T) {
	svc, clock := newTestCache(t)
	ctx := context.Background()

	old := Fingerprint(model.PaperInput{URL: "https://example.org/old"})
	fresh := Fingerprint(model.PaperInput{URL: "https://example.org/fresh"})

	if err := svc.Store(ctx, old, model.AnalysisPayload{}, ""); err != nil {
		t.Fatalf("Store: %v", err)
	}
	*clock = clock.Add(Retention + time.Hour)
	if err := svc.Store(ctx, fresh, model.AnalysisPayload{}, ""); err != nil {
		t.Fatalf("Store: %v", err)
	}

	n, err := svc.EvictExpired(ctx)
	if err != nil {
		t.Fatalf("EvictExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}

	// The stale-but-retained window still answers miss via Lookup, and the
	// fresh entry is untouched.
	if _, ok, _ := svc.Lookup(ctx, fresh); !ok {
		t.Fatalf("fresh entry must survive eviction")
	}
}

func TestService_EmptyKeyNoops(t *testing.T) {
	svc, _ := newTestCache(t)
	ctx := context.Background()

	if err := svc.Store(ctx, "", model.AnalysisPayload{}, ""); err != nil {
		t.Fatalf("Store with empty key: %v", err)
	}
	if _, ok, err := svc.Lookup(ctx, ""); err != nil || ok {
		t.Fatalf("Lookup with empty key: ok=%v err=%v", ok, err)
	}
}
