package enums

import "fmt"

// FulfillmentStatus tracks seller-side progress for one order. It moves
// independently of PaymentStatus.
type FulfillmentStatus string

const (
	FulfillmentStatusPendingApproval FulfillmentStatus = "pending_approval"
	FulfillmentStatusApproved        FulfillmentStatus = "approved"
	FulfillmentStatusShipped         FulfillmentStatus = "shipped"
	FulfillmentStatusDelivered       FulfillmentStatus = "delivered"
	FulfillmentStatusCancelled       FulfillmentStatus = "cancelled"
)

var validFulfillmentStatuses = []FulfillmentStatus{
	FulfillmentStatusPendingApproval,
	FulfillmentStatusApproved,
	FulfillmentStatusShipped,
	FulfillmentStatusDelivered,
	FulfillmentStatusCancelled,
}

// String implements fmt.Stringer.
func (f FulfillmentStatus) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FulfillmentStatus.
func (f FulfillmentStatus) IsValid() bool {
	for _, candidate := range validFulfillmentStatuses {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFulfillmentStatus converts raw input into a FulfillmentStatus.
func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	for _, candidate := range validFulfillmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment status %q", value)
}
