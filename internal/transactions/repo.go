package transactions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tomascarrillo/shoply-backend/pkg/db/models"
	"github.com/tomascarrillo/shoply-backend/pkg/enums"
)

// Repository exposes persistence for online payment transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindByPaymentIntentID(ctx context.Context, intentID string) (*models.Transaction, error)
	SetPaymentIntentID(ctx context.Context, id uuid.UUID, intentID string) error
	TransitionState(ctx context.Context, id uuid.UUID, from, to enums.TransactionState, failureReason *string) (bool, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Transaction, error)
	FindTerminalBefore(ctx context.Context, cutoff time.Time) ([]models.Transaction, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a transactions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, intentID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", intentID).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) SetPaymentIntentID(ctx context.Context, id uuid.UUID, intentID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		UpdateColumn("stripe_payment_intent_id", intentID).Error
}

// TransitionState applies the state change only when the row is still in the
// expected prior state, so the synchronous confirmation path and the webhook
// path cannot both finalize the same transaction. Returns whether this call
// won the transition.
func (r *repository) TransitionState(ctx context.Context, id uuid.UUID, from, to enums.TransactionState, failureReason *string) (bool, error) {
	updates := map[string]any{
		"state":      to,
		"updated_at": time.Now().UTC(),
	}
	if to.IsTerminal() {
		updates["finalized_at"] = time.Now().UTC()
	}
	if failureReason != nil {
		updates["failure_reason"] = *failureReason
	}

	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND state = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.WithContext(ctx).
		Where("state = ? AND created_at < ?", enums.TransactionStatePending, cutoff).
		Order("created_at ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// FindTerminalBefore returns finalized transactions whose grace window has
// passed, oldest first. These rows are safe to reclaim: no webhook
// redelivery can still reference them.
func (r *repository) FindTerminalBefore(ctx context.Context, cutoff time.Time) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.WithContext(ctx).
		Where("state <> ? AND finalized_at IS NOT NULL AND finalized_at < ?", enums.TransactionStatePending, cutoff).
		Order("finalized_at ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Transaction{}).Error
}
