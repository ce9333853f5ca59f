package stripecustomers

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/tomascarrillo/shoply-backend/internal/buyers"
	"github.com/tomascarrillo/shoply-backend/pkg/db/models"
	pkgerrors "github.com/tomascarrillo/shoply-backend/pkg/errors"
	"github.com/tomascarrillo/shoply-backend/pkg/logger"
)

// Service resolves the durable Stripe customer mapping for a buyer.
type Service interface {
	EnsureCustomer(ctx context.Context, buyer *models.Buyer) (string, error)
}

// CustomerClient is the subset of Stripe customer operations the service needs.
type CustomerClient interface {
	Create(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)
}

type service struct {
	repo   buyers.Repository
	client CustomerClient
	logg   *logger.Logger
}

// NewService wires the customer-mapping service dependencies.
func NewService(repo buyers.Repository, client CustomerClient, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "buyers repository required")
	}
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe customer client required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, client: client, logg: logg}, nil
}

// EnsureCustomer returns the buyer's Stripe customer id, creating one only
// when the buyer has none. The mapping write is conditional: if a concurrent
// checkout persisted a customer first, that one wins and is returned.
func (s *service) EnsureCustomer(ctx context.Context, buyer *models.Buyer) (string, error) {
	if buyer == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "buyer required")
	}
	if buyer.StripeCustomerID != nil && strings.TrimSpace(*buyer.StripeCustomerID) != "" {
		return *buyer.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Name:  stripe.String(buyer.Name),
		Email: stripe.String(buyer.Email),
		Metadata: map[string]string{
			"buyerId": buyer.ID.String(),
		},
	}
	if buyer.Phone != nil && strings.TrimSpace(*buyer.Phone) != "" {
		params.Phone = stripe.String(*buyer.Phone)
	}

	customer, err := s.client.Create(ctx, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe customer")
	}
	if customer == nil || strings.TrimSpace(customer.ID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "stripe customer id missing")
	}

	won, err := s.repo.SetStripeCustomerID(ctx, buyer.ID, customer.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist customer mapping")
	}
	if won {
		return customer.ID, nil
	}

	// lost the first-write race; the stored mapping is authoritative
	stored, err := s.repo.FindByID(ctx, buyer.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload buyer mapping")
	}
	if stored.StripeCustomerID == nil || strings.TrimSpace(*stored.StripeCustomerID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeConsistency, "buyer customer mapping missing after lost write")
	}
	s.logg.Warn(ctx, "discarding duplicate stripe customer "+customer.ID)
	return *stored.StripeCustomerID, nil
}
