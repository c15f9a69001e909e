// Package cache is the content-addressed, time-bounded store of prior
// analysis results. Freshness (TTL) and physical retention are separate:
// lookups treat entries past the TTL as misses even before the evictor
// removes them.
package cache

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/model"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/store"
)

const (
	TTL       = 24 * time.Hour
	Retention = 7 * 24 * time.Hour

	keyPrefix     = "analysis_"
	textPrefixLen = 100
)

// Fingerprint derives the deterministic cache key for an input: the source
// URL when available, otherwise a prefix of the raw text. Identical inputs
// always map to the same key. Empty inputs produce an empty key.
func Fingerprint(input model.PaperInput) string {
	basis := strings.TrimSpace(input.URL)
	if basis == "" {
		text := strings.TrimSpace(input.Text)
		runes := []rune(text)
		if len(runes) > textPrefixLen {
			runes = runes[:textPrefixLen]
		}
		basis = string(runes)
	}
	if basis == "" {
		return ""
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(basis))
	return keyPrefix + strconv.FormatUint(h.Sum64(), 36)
}

type Service struct {
	store *store.Store
	now   func() time.Time
}

func New(s *store.Store) *Service {
	return NewWithNow(s, time.Now)
}

func NewWithNow(s *store.Store, now func() time.Time) *Service {
	return &Service{store: s, now: now}
}

// Lookup returns the cached entry for key if it exists and is fresher than
// the TTL. Stale-but-present entries report a miss.
func (s *Service) Lookup(ctx context.Context, key string) (model.CacheEntry, bool, error) {
	if key == "" {
		return model.CacheEntry{}, false, nil
	}
	raw, sourceURL, storedAt, ok, err := s.store.CacheGet(ctx, key)
	if err != nil || !ok {
		return model.CacheEntry{}, false, err
	}
	if s.now().UnixMilli()-storedAt >= TTL.Milliseconds() {
		return model.CacheEntry{}, false, nil
	}
	var payload model.AnalysisPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		// A corrupt row reads as a miss; the evictor will reap it eventually.
		return model.CacheEntry{}, false, nil
	}
	return model.CacheEntry{Key: key, Payload: payload, SourceURL: sourceURL, StoredAt: storedAt}, true, nil
}

// Store persists a normalized result under key, stamped with the current time.
func (s *Service) Store(ctx context.Context, key string, payload model.AnalysisPayload, sourceURL string) error {
	if key == "" {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.store.CachePut(ctx, key, string(raw), sourceURL, s.now().UnixMilli())
}

// EvictExpired removes entries older than the retention horizon.
func (s *Service) EvictExpired(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-Retention).UnixMilli()
	return s.store.CacheEvictBefore(ctx, cutoff)
}
