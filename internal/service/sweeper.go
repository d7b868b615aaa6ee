package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"scrumdeck/internal/domain"
)

// ExpirySweeper periodically flips past-due active/suspended delegations to
// expired. Lazy expiry on read remains authoritative; the sweep is hygiene
// so listings converge for delegations nobody reads.
type ExpirySweeper struct {
	store  domain.DelegationRepository
	audit  *AuditTrail
	logger *slog.Logger
	cron   *cron.Cron
	now    func() time.Time
}

// NewExpirySweeper creates a sweeper over the given store.
func NewExpirySweeper(store domain.DelegationRepository, audit *AuditTrail, logger *slog.Logger) *ExpirySweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirySweeper{
		store:  store,
		audit:  audit,
		logger: logger,
		cron:   cron.New(),
		now:    time.Now,
	}
}

// SetClock overrides the sweeper's time source.
func (s *ExpirySweeper) SetClock(now func() time.Time) { s.now = now }

// Start schedules the sweep with the given cron expression and starts the
// scheduler.
func (s *ExpirySweeper) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if n, err := s.Sweep(context.Background()); err != nil {
			s.logger.Warn("expiry sweep failed", "error", err)
		} else if n > 0 {
			s.logger.Info("expiry sweep", "expired", n)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("expiry sweeper started", "schedule", schedule)
	return nil
}

// Stop gracefully stops the scheduler.
func (s *ExpirySweeper) Stop() {
	s.cron.Stop()
	s.logger.Info("expiry sweeper stopped")
}

// Sweep expires every past-due delegation once and returns how many it
// flipped. Each flip goes through CompareAndSwap; losing a swap to a
// concurrent mutation just skips that record, it will be picked up again
// on the next run if still due.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()

	due, err := s.store.ListExpirable(ctx, now)
	if err != nil {
		return 0, err
	}

	lifecycle := LifecycleStateMachine{}
	expired := 0
	for _, d := range due {
		_, err := s.store.CompareAndSwap(ctx, d.ID, d.Version, func(cur *domain.Delegation) error {
			if cur.Status.Terminal() {
				return &domain.NotActiveError{Status: cur.Status}
			}
			return lifecycle.Transition(cur, domain.StatusExpired, now)
		})
		if err != nil {
			var conflict *domain.VersionConflictError
			var notActive *domain.NotActiveError
			if errors.As(err, &conflict) || errors.As(err, &notActive) {
				continue
			}
			return expired, err
		}
		s.audit.Record(ctx, d.PrincipalID, domain.AuditDelegationExpired, d.ID, "ok", "swept")
		expired++
	}
	return expired, nil
}
