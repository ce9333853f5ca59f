package checkout

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/tomascarrillo/shoply-backend/pkg/errors"
)

type violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// validateInput checks the whole request before any side effect. All
// violations are collected so the caller sees every problem at once instead
// of fixing them one round-trip at a time.
func validateInput(input Input) error {
	var violations []violation

	if len(input.Items) == 0 {
		violations = append(violations, violation{Field: "items", Reason: "cart is empty"})
	}
	if !input.PaymentMethod.IsValid() {
		violations = append(violations, violation{Field: "paymentMethod", Reason: fmt.Sprintf("unknown payment method %q", input.PaymentMethod)})
	}
	if input.Buyer.ID == uuid.Nil {
		violations = append(violations, violation{Field: "buyer.id", Reason: "required"})
	}
	if strings.TrimSpace(input.Buyer.Name) == "" {
		violations = append(violations, violation{Field: "buyer.name", Reason: "required"})
	}
	if strings.TrimSpace(input.Buyer.Email) == "" {
		violations = append(violations, violation{Field: "buyer.email", Reason: "required"})
	}
	for _, field := range input.ShippingAddress.MissingFields() {
		violations = append(violations, violation{Field: "shippingAddress." + field, Reason: "required"})
	}
	for i, item := range input.Items {
		if item.SellerID == uuid.Nil {
			violations = append(violations, violation{Field: fmt.Sprintf("items[%d].sellerId", i), Reason: "no resolvable seller"})
		}
		if item.Quantity <= 0 {
			violations = append(violations, violation{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be positive"})
		}
		if item.UnitPriceCents < 0 {
			violations = append(violations, violation{Field: fmt.Sprintf("items[%d].unitPriceCents", i), Reason: "must not be negative"})
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation,
		fmt.Sprintf("checkout input has %d violation(s)", len(violations))).
		WithDetails(map[string]any{"violations": violations})
}
