package buyers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tomascarrillo/shoply-backend/pkg/db/models"
	"github.com/tomascarrillo/shoply-backend/pkg/enums"
)

// Repository exposes persistence for buyer records and their provider
// customer mapping.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, buyer *models.Buyer) (*models.Buyer, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Buyer, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*models.Buyer, error)
	SetStripeCustomerID(ctx context.Context, buyerID uuid.UUID, customerID string) (bool, error)
	UpdateSubscriptionStatus(ctx context.Context, buyerID uuid.UUID, status enums.SubscriptionStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a buyers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, buyer *models.Buyer) (*models.Buyer, error) {
	if err := r.db.WithContext(ctx).Create(buyer).Error; err != nil {
		return nil, err
	}
	return buyer, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Buyer, error) {
	var buyer models.Buyer
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&buyer).Error
	if err != nil {
		return nil, err
	}
	return &buyer, nil
}

func (r *repository) FindByStripeCustomerID(ctx context.Context, customerID string) (*models.Buyer, error) {
	var buyer models.Buyer
	err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ?", customerID).
		First(&buyer).Error
	if err != nil {
		return nil, err
	}
	return &buyer, nil
}

// SetStripeCustomerID writes the mapping only when none exists yet, so two
// concurrent first-time checkouts cannot each persist their own customer.
// Returns whether this call's write stuck.
func (r *repository) SetStripeCustomerID(ctx context.Context, buyerID uuid.UUID, customerID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Buyer{}).
		Where("id = ? AND stripe_customer_id IS NULL", buyerID).
		UpdateColumn("stripe_customer_id", customerID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) UpdateSubscriptionStatus(ctx context.Context, buyerID uuid.UUID, status enums.SubscriptionStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Buyer{}).
		Where("id = ?", buyerID).
		UpdateColumn("subscription_status", status).Error
}
