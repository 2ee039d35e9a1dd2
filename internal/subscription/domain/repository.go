package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, subscription *Subscription) error
	Update(ctx context.Context, subscription *Subscription) error
	FindByTenantID(ctx context.Context, tenantID snowflake.ID) (*Subscription, error)
	FindByGatewayRef(ctx context.Context, gatewayRef string) (*Subscription, error)
	ListExpiredTrials(ctx context.Context, asOf time.Time) ([]Subscription, error)

	CreateScheduledDowngrade(ctx context.Context, downgrade *ScheduledDowngrade) error
	UpdateScheduledDowngrade(ctx context.Context, downgrade *ScheduledDowngrade) error
	FindPendingDowngrade(ctx context.Context, tenantID snowflake.ID) (*ScheduledDowngrade, error)
	ListDueDowngrades(ctx context.Context, asOf time.Time) ([]ScheduledDowngrade, error)

	CreateTrialEvent(ctx context.Context, event *TrialEvent) error
	ListTrialEvents(ctx context.Context, tenantID snowflake.ID) ([]TrialEvent, error)
}
