package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantcore/internal/subscription/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, subscription *domain.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) Update(ctx context.Context, subscription *domain.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) FindByTenantID(ctx context.Context, tenantID snowflake.ID) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := r.db.WithContext(ctx).First(&subscription, "tenant_id = ?", tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) FindByGatewayRef(ctx context.Context, gatewayRef string) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := r.db.WithContext(ctx).First(&subscription, "gateway_subscription_ref = ?", gatewayRef).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) ListExpiredTrials(ctx context.Context, asOf time.Time) ([]domain.Subscription, error) {
	var subscriptions []domain.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND trial_end IS NOT NULL AND trial_end <= ?", domain.StatusTrialing, asOf).
		Order("trial_end ASC").
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repository) CreateScheduledDowngrade(ctx context.Context, downgrade *domain.ScheduledDowngrade) error {
	return r.db.WithContext(ctx).Create(downgrade).Error
}

func (r *repository) UpdateScheduledDowngrade(ctx context.Context, downgrade *domain.ScheduledDowngrade) error {
	return r.db.WithContext(ctx).Save(downgrade).Error
}

func (r *repository) FindPendingDowngrade(ctx context.Context, tenantID snowflake.ID) (*domain.ScheduledDowngrade, error) {
	var downgrade domain.ScheduledDowngrade
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, domain.DowngradeStatusPending).
		Order("created_at DESC").
		First(&downgrade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &downgrade, nil
}

func (r *repository) ListDueDowngrades(ctx context.Context, asOf time.Time) ([]domain.ScheduledDowngrade, error) {
	var downgrades []domain.ScheduledDowngrade
	err := r.db.WithContext(ctx).
		Where("status = ? AND effective_at <= ?", domain.DowngradeStatusPending, asOf).
		Order("effective_at ASC").
		Find(&downgrades).Error
	if err != nil {
		return nil, err
	}
	return downgrades, nil
}

func (r *repository) CreateTrialEvent(ctx context.Context, event *domain.TrialEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListTrialEvents(ctx context.Context, tenantID snowflake.ID) ([]domain.TrialEvent, error) {
	var events []domain.TrialEvent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("occurred_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
