package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomascarrillo/shoply-backend/pkg/enums"
)

// Buyer is the customer record. StripeCustomerID carries a write-time
// uniqueness constraint so two buyers can never share a provider customer.
type Buyer struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name               string                   `gorm:"column:name;type:text;not null"`
	Email              string                   `gorm:"column:email;type:text;not null;unique"`
	Phone              *string                  `gorm:"column:phone;type:text"`
	StripeCustomerID   *string                  `gorm:"column:stripe_customer_id;type:text;uniqueIndex"`
	SubscriptionStatus enums.SubscriptionStatus `gorm:"column:subscription_status;type:text;not null;default:'none'"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
