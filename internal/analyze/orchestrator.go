// Package analyze orchestrates one paper analysis: entitlement gate, cache
// lookup, remote scoring, normalization, cache store, and usage accounting.
// Usage is only charged for successful remote analyses; cache hits are free.
package analyze

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/cache"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/model"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/store"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/usage"
)

// MinContentLength is the minimum trimmed text length accepted for analysis.
const MinContentLength = 50

const DefaultTimeout = 30 * time.Second

// Result is an analysis outcome plus whether it was served from the cache.
type Result struct {
	Payload model.AnalysisPayload `json:"analysis"`
	Cached  bool                  `json:"cached"`
}

type Orchestrator struct {
	store   *store.Store
	usage   *usage.Service
	cache   *cache.Service
	scorer  *Scorer
	log     *slog.Logger
	timeout time.Duration
	flight  singleflight.Group
}

func New(st *store.Store, us *usage.Service, ca *cache.Service, scorer *Scorer, log *slog.Logger, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Orchestrator{
		store:   st,
		usage:   us,
		cache:   ca,
		scorer:  scorer,
		log:     log,
		timeout: timeout,
	}
}

// Analyze runs the full pipeline for one input. Concurrent calls for the
// same fingerprint share a single remote call and a single usage charge.
func (o *Orchestrator) Analyze(ctx context.Context, input model.PaperInput) (Result, error) {
	cred, ok, err := o.store.GetCredential(ctx)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, ErrUnauthenticated
	}

	quota, err := o.usage.CanAnalyze(ctx, cred.Tier)
	if err != nil {
		return Result{}, err
	}
	if !quota.Allowed {
		return Result{}, &QuotaError{Limit: quota.Limit, Used: quota.Used}
	}

	key := cache.Fingerprint(input)
	if entry, hit, err := o.cache.Lookup(ctx, key); err != nil {
		return Result{}, err
	} else if hit {
		o.log.Debug("analysis served from cache", "key", key)
		return Result{Payload: entry.Payload, Cached: true}, nil
	}

	if key == "" {
		// Nothing to fingerprint means nothing to analyze either.
		return Result{}, ErrInsufficientContent
	}

	payload, err, _ := o.flight.Do(key, func() (interface{}, error) {
		return o.analyzeMiss(ctx, key, input)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Payload: payload.(model.AnalysisPayload), Cached: false}, nil
}

// analyzeMiss performs the remote half of the pipeline for a cache miss.
// Cache store and usage increment happen together, only on remote success.
func (o *Orchestrator) analyzeMiss(ctx context.Context, key string, input model.PaperInput) (interface{}, error) {
	if len(strings.TrimSpace(input.Text)) < MinContentLength {
		return nil, ErrInsufficientContent
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	raw, err := o.scorer.Evaluate(callCtx, input)
	if err != nil {
		return nil, err
	}
	payload := Normalize(raw)

	if err := o.cache.Store(ctx, key, payload, input.URL); err != nil {
		o.log.Warn("failed to cache analysis result", "key", key, "error", err)
	}
	count, err := o.usage.Increment(ctx)
	if err != nil {
		o.log.Warn("failed to record usage", "error", err)
	} else {
		o.log.Info("analysis completed", "key", key, "score", payload.Score, "usedToday", count)
	}
	return payload, nil
}
