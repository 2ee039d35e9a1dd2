package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantcore/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, payment *Payment) error
	Update(ctx context.Context, payment *Payment) error
	FindByID(ctx context.Context, id snowflake.ID) (*Payment, error)
	FindLatestByType(ctx context.Context, tenantID, subscriptionID snowflake.ID, paymentType PaymentType, status PaymentStatus) (*Payment, error)
	ListByTenant(ctx context.Context, tenantID snowflake.ID) ([]Payment, error)
	ListByTenantPage(ctx context.Context, tenantID snowflake.ID, page pagination.Pagination) ([]Payment, *pagination.PageInfo, error)
}
