package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tomascarrillo/shoply-backend/pkg/db/models"
	"github.com/tomascarrillo/shoply-backend/pkg/enums"
	"github.com/tomascarrillo/shoply-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and payment records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]models.Order, error)
	FindByTransactionAndSeller(ctx context.Context, transactionID, sellerID uuid.UUID) (*models.Order, error)
	FindByPaymentIntentID(ctx context.Context, intentID string) ([]models.Order, error)
	TransitionPaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.PaymentStatus) (bool, error)
	CreatePaymentRecord(ctx context.Context, record *models.PaymentRecord) (bool, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListSellerOrders(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*OrderList, error)
}

// OrderList wraps one page of orders plus the cursor for the next page.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"nextCursor"`
}
