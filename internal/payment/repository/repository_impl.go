package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantcore/internal/payment/domain"
	"github.com/smallbiznis/tenantcore/pkg/db/pagination"
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

func (r *repository) Create(ctx context.Context, payment *domain.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) Update(ctx context.Context, payment *domain.Payment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindLatestByType(ctx context.Context, tenantID, subscriptionID snowflake.ID, paymentType domain.PaymentType, status domain.PaymentStatus) (*domain.Payment, error) {
	var payment domain.Payment
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND subscription_id = ? AND payment_type = ? AND status = ?",
			tenantID, subscriptionID, paymentType, status).
		Order("created_at DESC").
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListByTenant(ctx context.Context, tenantID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) ListByTenantPage(ctx context.Context, tenantID snowflake.ID, page pagination.Pagination) ([]domain.Payment, *pagination.PageInfo, error) {
	limit := page.Limit()
	query := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, nil, err
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, nil, err
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, nil, err
		}
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
	}

	var payments []domain.Payment
	if err := query.Find(&payments).Error; err != nil {
		return nil, nil, err
	}

	items, info := pagination.BuildCursorPageInfo(payments, limit, func(p domain.Payment) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        p.ID.String(),
			CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	return items, info, nil
}
