// Package usage tracks the per-day analysis counter and checks it against
// the subscription tier's daily limit.
package usage

import (
	"context"
	"time"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/model"
	"github.com/JonasPrenissl/qsci-browser-extension/internal/store"
)

// Daily analysis limits per subscription tier. Past-due users are throttled
// to the free limit.
const (
	LimitFree       = 10
	LimitSubscribed = 100
	LimitPastDue    = 10
)

// LimitFor returns the daily limit for a tier.
func LimitFor(tier model.Tier) int {
	switch tier {
	case model.TierSubscribed:
		return LimitSubscribed
	case model.TierPastDue:
		return LimitPastDue
	default:
		return LimitFree
	}
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

// today is the UTC calendar date. The reset boundary is deliberately UTC so
// the counter cannot reset twice around a local midnight.
func (s *Service) today() string {
	return s.now().UTC().Format("2006-01-02")
}

// DailyUsage returns today's count, resetting (and persisting the reset) if
// the stored record belongs to a different day.
func (s *Service) DailyUsage(ctx context.Context) (int, error) {
	return s.store.UsageForDay(ctx, s.today())
}

// Increment adds one analysis to today's count. The reset-then-increment
// runs as a single store transaction; concurrent increments all land.
func (s *Service) Increment(ctx context.Context) (int, error) {
	return s.store.IncrementUsage(ctx, s.today())
}

// CanAnalyze reports whether another analysis is allowed under the tier's
// daily limit. It has no side effects beyond the day-boundary reset.
func (s *Service) CanAnalyze(ctx context.Context, tier model.Tier) (model.Quota, error) {
	used, err := s.DailyUsage(ctx)
	if err != nil {
		return model.Quota{}, err
	}
	limit := LimitFor(tier)
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return model.Quota{
		Allowed:   used < limit,
		Remaining: remaining,
		Limit:     limit,
		Used:      used,
	}, nil
}
