package cart

import (
	"github.com/shopspring/decimal"

	"github.com/tomascarrillo/shoply-backend/pkg/money"
)

const (
	// FreeShippingThresholdCents is the subtotal a seller group must exceed
	// (strictly) before shipping is waived.
	FreeShippingThresholdCents int64 = 1000
	// FlatShippingCents is charged whenever the threshold is not exceeded.
	FlatShippingCents int64 = 100
)

// TaxRate is applied to each seller subtotal, rounded half-up.
var TaxRate = decimal.NewFromFloat(0.18)

// SellerLedger is one seller's computed slice of a checkout.
type SellerLedger struct {
	SellerGroup
	ShippingCents int64 `json:"shippingCents"`
	TaxCents      int64 `json:"taxCents"`
	TotalCents    int64 `json:"totalCents"`
}

// PaymentSummary aggregates every seller ledger of one checkout. It is the
// immutable snapshot a Transaction stores at initiation.
type PaymentSummary struct {
	Ledgers            []SellerLedger `json:"ledgers"`
	TotalSubtotalCents int64          `json:"totalSubtotalCents"`
	TotalShippingCents int64          `json:"totalShippingCents"`
	TotalTaxCents      int64          `json:"totalTaxCents"`
	GrandTotalCents    int64          `json:"grandTotalCents"`
	SellerCount        int            `json:"sellerCount"`
}

// CalculateSellerTotals derives shipping, tax and total for each group.
// Subtotal exactly at the threshold still pays shipping.
func CalculateSellerTotals(groups []SellerGroup) []SellerLedger {
	ledgers := make([]SellerLedger, 0, len(groups))
	for _, group := range groups {
		shipping := FlatShippingCents
		if group.SubtotalCents > FreeShippingThresholdCents {
			shipping = 0
		}
		tax := money.RoundHalfUpPercent(group.SubtotalCents, TaxRate)
		ledgers = append(ledgers, SellerLedger{
			SellerGroup:   group,
			ShippingCents: shipping,
			TaxCents:      tax,
			TotalCents:    group.SubtotalCents + shipping + tax,
		})
	}
	return ledgers
}

// BuildPaymentSummary folds the ledgers into the checkout aggregate. Integer
// arithmetic end to end keeps the grand total an exact sum of seller totals.
func BuildPaymentSummary(ledgers []SellerLedger) PaymentSummary {
	summary := PaymentSummary{
		Ledgers:     ledgers,
		SellerCount: len(ledgers),
	}
	for _, ledger := range ledgers {
		summary.TotalSubtotalCents += ledger.SubtotalCents
		summary.TotalShippingCents += ledger.ShippingCents
		summary.TotalTaxCents += ledger.TaxCents
		summary.GrandTotalCents += ledger.TotalCents
	}
	return summary
}

// Summarize runs grouping and ledger computation in one step.
func Summarize(items []Item) (PaymentSummary, error) {
	groups, err := Group(items)
	if err != nil {
		return PaymentSummary{}, err
	}
	return BuildPaymentSummary(CalculateSellerTotals(groups)), nil
}
