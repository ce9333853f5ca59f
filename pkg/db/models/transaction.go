package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tomascarrillo/shoply-backend/pkg/enums"
	"github.com/tomascarrillo/shoply-backend/pkg/types"
)

// Transaction is one online payment attempt. The Snapshot column freezes the
// PaymentSummary computed at initiation; fan-out always reads from it, never
// from live pricing rules. Rows outlive their terminal state until the
// sweeper reclaims them after the webhook grace window.
type Transaction struct {
	ID                    uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	State                 enums.TransactionState `gorm:"column:state;type:text;not null;default:'pending'"`
	BuyerID               uuid.UUID              `gorm:"column:buyer_id;type:uuid;not null;index"`
	PaymentMethod         enums.PaymentMethod    `gorm:"column:payment_method;type:text;not null;default:'card'"`
	Snapshot              json.RawMessage        `gorm:"column:snapshot;type:jsonb;not null"`
	GrandTotalCents       int64                  `gorm:"column:grand_total_cents;not null"`
	Currency              string                 `gorm:"column:currency;type:text;not null;default:'usd'"`
	ShippingAddress       types.Address          `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	StripePaymentIntentID *string                `gorm:"column:stripe_payment_intent_id;type:text;uniqueIndex"`
	FailureReason         *string                `gorm:"column:failure_reason;type:text"`
	FinalizedAt           *time.Time             `gorm:"column:finalized_at"`
	CreatedAt             time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
