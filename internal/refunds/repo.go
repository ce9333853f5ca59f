package refunds

import (
	"context"

	"gorm.io/gorm"

	"github.com/tomascarrillo/shoply-backend/pkg/db"
	"github.com/tomascarrillo/shoply-backend/pkg/db/models"
)

// Repository exposes persistence for the refund audit trail.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.RefundRecord) (*models.RefundRecord, bool, error)
	FindByStripeRefundID(ctx context.Context, refundID string) (*models.RefundRecord, error)
	ListByPaymentIntentID(ctx context.Context, intentID string) ([]models.RefundRecord, error)
	SumRefundedCents(ctx context.Context, intentID string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a refunds repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create appends one record per provider refund id. Replaying an id returns
// the already stored row with created=false.
func (r *repository) Create(ctx context.Context, record *models.RefundRecord) (*models.RefundRecord, bool, error) {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			existing, findErr := r.FindByStripeRefundID(ctx, record.StripeRefundID)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return record, true, nil
}

func (r *repository) FindByStripeRefundID(ctx context.Context, refundID string) (*models.RefundRecord, error) {
	var record models.RefundRecord
	err := r.db.WithContext(ctx).
		Where("stripe_refund_id = ?", refundID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) ListByPaymentIntentID(ctx context.Context, intentID string) ([]models.RefundRecord, error) {
	var records []models.RefundRecord
	err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", intentID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SumRefundedCents totals the non-failed refunds already recorded against an
// intent. Failed and canceled refunds never consumed captured money.
func (r *repository) SumRefundedCents(ctx context.Context, intentID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.RefundRecord{}).
		Where("stripe_payment_intent_id = ? AND status IN ?", intentID, []string{"pending", "succeeded"}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
