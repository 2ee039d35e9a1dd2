package service

import (
	"context"

	"github.com/smallbiznis/tenantcore/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ExpireTrials marks every trialing subscription whose trial window has
// ended. Expired trials move to past_due and stay on their plan until the
// tenant completes a paid checkout. Returns the number expired.
func (s *service) ExpireTrials(ctx context.Context) (int, error) {
	due, err := s.repo.ListExpiredTrials(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range due {
		sub := &due[i]
		now := s.clock.Now()

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			sub.Status = domain.StatusPastDue
			sub.UpdatedAt = now
			if err := repo.Update(ctx, sub); err != nil {
				return err
			}
			if err := s.syncTenantMirror(ctx, tx, sub); err != nil {
				return err
			}
			event := &domain.TrialEvent{
				ID:             s.node.Generate(),
				TenantID:       sub.TenantID,
				SubscriptionID: sub.ID,
				Event:          domain.TrialEventExpired,
				OccurredAt:     now,
				CreatedAt:      now,
			}
			return repo.CreateTrialEvent(ctx, event)
		})
		if err != nil {
			s.log.Warn("trial expiry failed",
				zap.Int64("tenant_id", int64(sub.TenantID)),
				zap.Error(err),
			)
			continue
		}
		expired++
	}
	return expired, nil
}
