package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentRecord is the append-only credit ledger: one row per settled charge
// event per order. The unique index across the provider intent id and the
// order id is what prevents double-crediting the same charge.
type PaymentRecord struct {
	ID                    uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID               uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_payment_records_intent_order,priority:2"`
	StripePaymentIntentID string    `gorm:"column:stripe_payment_intent_id;type:text;not null;uniqueIndex:idx_payment_records_intent_order,priority:1"`
	AmountCents           int64     `gorm:"column:amount_cents;not null"`
	Currency              string    `gorm:"column:currency;type:text;not null;default:'usd'"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
}
