package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomascarrillo/shoply-backend/pkg/enums"
	"github.com/tomascarrillo/shoply-backend/pkg/types"
)

// Order is the per-seller slice of one checkout. The ledger columns are a
// copy of the transaction snapshot, so later pricing changes never alter a
// placed order. The (transaction_id, seller_id) unique index makes fan-out
// retries idempotent.
type Order struct {
	ID                    uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TransactionID         uuid.UUID               `gorm:"column:transaction_id;type:uuid;not null;uniqueIndex:idx_orders_txn_seller,priority:1"`
	SellerID              uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:idx_orders_txn_seller,priority:2;index"`
	SellerName            string                  `gorm:"column:seller_name;type:text;not null"`
	BuyerID               uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null;index"`
	SubtotalCents         int64                   `gorm:"column:subtotal_cents;not null"`
	ShippingCents         int64                   `gorm:"column:shipping_cents;not null"`
	TaxCents              int64                   `gorm:"column:tax_cents;not null"`
	TotalCents            int64                   `gorm:"column:total_cents;not null"`
	Currency              string                  `gorm:"column:currency;type:text;not null;default:'usd'"`
	PaymentMethod         enums.PaymentMethod     `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus         enums.PaymentStatus     `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	FulfillmentStatus     enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:text;not null;default:'pending_approval'"`
	StripePaymentIntentID *string                 `gorm:"column:stripe_payment_intent_id;type:text;index"`
	ShippingAddress       types.Address           `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	Items                 []OrderLineItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt             time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderLineItem is one cart line frozen into an order.
type OrderLineItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Name           string    `gorm:"column:name;type:text;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	Qty            int       `gorm:"column:qty;not null"`
	TotalCents     int64     `gorm:"column:total_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
