package refunds

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/tomascarrillo/shoply-backend/pkg/db/models"
	"github.com/tomascarrillo/shoply-backend/pkg/enums"
	pkgerrors "github.com/tomascarrillo/shoply-backend/pkg/errors"
	"github.com/tomascarrillo/shoply-backend/pkg/logger"
)

// Service issues refunds against captured payment intents. The captured
// amount always comes from the provider, never from local rows, so a stale
// cache can never authorize an over-refund. Order payment status is left
// untouched: refunds are an append-only audit trail.
type Service interface {
	Issue(ctx context.Context, intentID string, amountCents *int64, reason string) (*models.RefundRecord, error)
	ListForIntent(ctx context.Context, intentID string) ([]models.RefundRecord, error)
}

// ProviderClient is the slice of the Stripe API the refund processor needs.
type ProviderClient interface {
	GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error)
}

type service struct {
	repo   Repository
	stripe ProviderClient
	logg   *logger.Logger
}

// NewService wires the refund processor dependencies.
func NewService(repo Repository, provider ProviderClient, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "refunds repository required")
	}
	if provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe client required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, stripe: provider, logg: logg}, nil
}

// Issue refunds amountCents against the intent, or the entire remaining
// captured amount when amountCents is nil. The RefundRecord is keyed by the
// provider's refund id, so replaying a response lands on the same row.
func (s *service) Issue(ctx context.Context, intentID string, amountCents *int64, reason string) (*models.RefundRecord, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund reason required")
	}

	intent, err := s.stripe.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch payment intent")
	}

	captured := intent.AmountReceived
	refunded, err := s.repo.SumRefundedCents(ctx, intentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum recorded refunds")
	}
	remaining := captured - refunded

	requested := remaining
	if amountCents != nil {
		requested = *amountCents
	}
	if requested <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing left to refund").
			WithDetails(map[string]any{
				"capturedCents": captured,
				"refundedCents": refunded,
			})
	}
	if requested > remaining {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("refund of %d exceeds remaining captured amount %d", requested, remaining)).
			WithDetails(map[string]any{
				"capturedCents":  captured,
				"refundedCents":  refunded,
				"requestedCents": requested,
			})
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(requested),
	}
	if providerReason, ok := providerRefundReason(reason); ok {
		params.Reason = stripe.String(providerReason)
	}
	params.AddMetadata("reason", reason)

	refund, err := s.stripe.CreateRefund(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
	}

	currency := string(refund.Currency)
	if currency == "" {
		currency = string(intent.Currency)
	}
	record := &models.RefundRecord{
		StripeRefundID:        refund.ID,
		StripePaymentIntentID: intentID,
		AmountCents:           refund.Amount,
		Currency:              currency,
		Reason:                reason,
		Status:                refundStatusFrom(refund.Status),
	}

	stored, created, err := s.repo.Create(ctx, record)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}
	if !created {
		s.logg.Info(ctx, "refund "+refund.ID+" already recorded")
	}
	return stored, nil
}

func (s *service) ListForIntent(ctx context.Context, intentID string) ([]models.RefundRecord, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	records, err := s.repo.ListByPaymentIntentID(ctx, intentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refunds")
	}
	return records, nil
}

// providerRefundReason maps free-form reasons to the fixed set the provider
// accepts; anything else travels only in metadata and the local record.
func providerRefundReason(reason string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate), true
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent), true
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer), true
	default:
		return "", false
	}
}

func refundStatusFrom(status stripe.RefundStatus) enums.RefundStatus {
	parsed, err := enums.ParseRefundStatus(string(status))
	if err != nil {
		return enums.RefundStatusPending
	}
	return parsed
}
