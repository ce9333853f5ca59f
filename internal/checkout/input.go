package checkout

import (
	"github.com/google/uuid"

	"github.com/tomascarrillo/shoply-backend/internal/cart"
	"github.com/tomascarrillo/shoply-backend/pkg/db/models"
	"github.com/tomascarrillo/shoply-backend/pkg/enums"
	"github.com/tomascarrillo/shoply-backend/pkg/types"
)

// BuyerInfo identifies who is paying. Contact fields are required so the
// provider customer record can be created on first online checkout.
type BuyerInfo struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone *string   `json:"phone,omitempty"`
}

// Input is one checkout request: a cart, a destination, and a payment method.
type Input struct {
	Buyer           BuyerInfo           `json:"buyer"`
	Items           []cart.Item         `json:"items"`
	PaymentMethod   enums.PaymentMethod `json:"paymentMethod"`
	ShippingAddress types.Address       `json:"shippingAddress"`
}

// Result is the outcome of Initiate or Confirm. ClientSecret is set only on
// the online initiation path; Orders only once fan-out has happened.
type Result struct {
	TransactionID uuid.UUID           `json:"transactionId"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	ClientSecret  string              `json:"clientSecret,omitempty"`
	Orders        []models.Order      `json:"orders,omitempty"`
	Summary       cart.PaymentSummary `json:"summary"`
}
