package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"medshelf/backend/internal/alert"
	"medshelf/backend/internal/cache"
	"medshelf/backend/internal/receipt"
	"medshelf/backend/internal/store"
)

// Service holds the pharmacy workflows. Every call names the owner it acts
// for; nothing is read from an ambient session.
type Service struct {
	repo          store.Repository
	alerts        cache.AlertCache
	purgeGate     cache.PurgeGate
	sink          receipt.Sink
	logger        *zap.Logger
	alertOpts     alert.Options
	purgeInterval time.Duration
	alertTTL      time.Duration
	now           func() time.Time
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAlertCache(c cache.AlertCache) Option {
	return func(s *Service) {
		if c != nil {
			s.alerts = c
		}
	}
}

func WithPurgeGate(g cache.PurgeGate) Option {
	return func(s *Service) {
		if g != nil {
			s.purgeGate = g
		}
	}
}

func WithReceiptSink(sink receipt.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func WithAlertOptions(opts alert.Options) Option {
	return func(s *Service) {
		s.alertOpts = opts
	}
}

func WithPurgeInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.purgeInterval = d
		}
	}
}

func WithAlertCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.alertTTL = d
		}
	}
}

// WithClock overrides the reference time used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		alerts:        cache.NoopAlertCache{},
		purgeGate:     cache.NewLocalPurgeGate(),
		sink:          receipt.DiscardSink{},
		logger:        zap.NewNop(),
		alertOpts:     alert.DefaultOptions(),
		purgeInterval: time.Minute,
		alertTTL:      5 * time.Minute,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("service")
	return s
}

func (s *Service) invalidateAlerts(ctx context.Context, ownerID int64) {
	if err := s.alerts.Invalidate(ctx, ownerID); err != nil {
		s.logger.Warn("alert cache invalidate failed", zap.Int64("owner_id", ownerID), zap.Error(err))
	}
}
