package checkout

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	pkgstripe "github.com/tomascarrillo/shoply-backend/pkg/stripe"
)

type stripeIntentWrapper struct{}

// NewStripeIntentClient wraps the shared Stripe client so the orchestrator
// can be tested without hitting the API.
func NewStripeIntentClient(api *pkgstripe.Client) PaymentIntentClient {
	if api == nil {
		return nil
	}
	return &stripeIntentWrapper{}
}

func (w *stripeIntentWrapper) Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}
