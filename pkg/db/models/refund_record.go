package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomascarrillo/shoply-backend/pkg/enums"
)

// RefundRecord is the audit trail for issued refunds. StripeRefundID is the
// idempotence key: replaying the provider's refund id can never create a
// second row.
type RefundRecord struct {
	ID                    uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StripeRefundID        string             `gorm:"column:stripe_refund_id;type:text;not null;unique"`
	StripePaymentIntentID string             `gorm:"column:stripe_payment_intent_id;type:text;not null;index"`
	AmountCents           int64              `gorm:"column:amount_cents;not null"`
	Currency              string             `gorm:"column:currency;type:text;not null;default:'usd'"`
	Reason                string             `gorm:"column:reason;type:text;not null"`
	Status                enums.RefundStatus `gorm:"column:status;type:text;not null"`
	CreatedAt             time.Time          `gorm:"column:created_at;autoCreateTime"`
}
