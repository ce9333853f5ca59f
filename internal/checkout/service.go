package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/tomascarrillo/shoply-backend/internal/buyers"
	"github.com/tomascarrillo/shoply-backend/internal/cart"
	"github.com/tomascarrillo/shoply-backend/internal/notifications"
	"github.com/tomascarrillo/shoply-backend/internal/orders"
	"github.com/tomascarrillo/shoply-backend/internal/stripecustomers"
	"github.com/tomascarrillo/shoply-backend/internal/transactions"
	"github.com/tomascarrillo/shoply-backend/pkg/db/models"
	"github.com/tomascarrillo/shoply-backend/pkg/enums"
	pkgerrors "github.com/tomascarrillo/shoply-backend/pkg/errors"
	"github.com/tomascarrillo/shoply-backend/pkg/logger"
)

// Service orchestrates checkout: it validates the cart, prices it, and picks
// the cash-on-delivery path or the provider-backed online path.
type Service interface {
	Initiate(ctx context.Context, input Input) (*Result, error)
	Confirm(ctx context.Context, transactionID uuid.UUID) (*Result, error)
}

// PaymentIntentClient is the slice of the Stripe API the orchestrator needs.
type PaymentIntentClient interface {
	Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type service struct {
	buyers    buyers.Repository
	txns      transactions.Repository
	orders    orders.Service
	customers stripecustomers.Service
	intents   PaymentIntentClient
	notifier  notifications.Service
	currency  string
	logg      *logger.Logger
}

// NewService wires the checkout orchestrator dependencies.
func NewService(
	buyersRepo buyers.Repository,
	txnRepo transactions.Repository,
	ordersSvc orders.Service,
	customers stripecustomers.Service,
	intents PaymentIntentClient,
	notifier notifications.Service,
	currency string,
	logg *logger.Logger,
) (Service, error) {
	if buyersRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "buyers repository required")
	}
	if txnRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transactions repository required")
	}
	if ordersSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders service required")
	}
	if customers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe customers service required")
	}
	if intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment intent client required")
	}
	if notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications service required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if currency == "" {
		currency = "usd"
	}
	return &service{
		buyers:    buyersRepo,
		txns:      txnRepo,
		orders:    ordersSvc,
		customers: customers,
		intents:   intents,
		notifier:  notifier,
		currency:  currency,
		logg:      logg,
	}, nil
}

func (s *service) Initiate(ctx context.Context, input Input) (*Result, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	summary, err := cart.Summarize(input.Items)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithBuyerID(ctx, input.Buyer.ID.String())

	if input.PaymentMethod == enums.PaymentMethodCashOnDelivery {
		return s.initiateCashOnDelivery(ctx, input, summary)
	}
	return s.initiateOnline(ctx, input, summary)
}

// initiateCashOnDelivery settles nothing with the provider: orders are
// fanned out immediately as unpaid and collected on delivery. No
// Transaction row exists for this path.
func (s *service) initiateCashOnDelivery(ctx context.Context, input Input, summary cart.PaymentSummary) (*Result, error) {
	transactionID := uuid.New()
	ctx = s.logg.WithTransactionID(ctx, transactionID.String())

	created, err := s.orders.CreateOrdersForTransaction(ctx, orders.FanoutInput{
		TransactionID:   transactionID,
		BuyerID:         input.Buyer.ID,
		PaymentMethod:   input.PaymentMethod,
		Currency:        s.currency,
		ShippingAddress: input.ShippingAddress,
		Summary:         summary,
	})
	if err != nil {
		return nil, err
	}

	for _, order := range created {
		s.notifier.Emit(ctx, notifications.EmitInput{
			RecipientID:    order.SellerID,
			Type:           enums.NotificationTypeOrderPlaced,
			Title:          "New order placed",
			Message:        fmt.Sprintf("Order from %s for %d item(s), payable on delivery.", input.Buyer.Name, len(order.Items)),
			RelatedOrderID: &order.ID,
		})
	}

	s.logg.Info(ctx, "cash on delivery checkout completed")
	return &Result{
		TransactionID: transactionID,
		PaymentMethod: input.PaymentMethod,
		Orders:        created,
		Summary:       summary,
	}, nil
}

// initiateOnline holds the cart in a pending Transaction and hands a client
// secret back to the caller. Orders are not created until a success signal
// arrives, either synchronously via Confirm or through the webhook.
func (s *service) initiateOnline(ctx context.Context, input Input, summary cart.PaymentSummary) (*Result, error) {
	buyer, err := s.buyers.FindByID(ctx, input.Buyer.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "buyer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
	}

	customerID, err := s.customers.EnsureCustomer(ctx, buyer)
	if err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(summary)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode payment summary")
	}

	txn, err := s.txns.Create(ctx, &models.Transaction{
		State:           enums.TransactionStatePending,
		BuyerID:         buyer.ID,
		PaymentMethod:   input.PaymentMethod,
		Snapshot:        snapshot,
		GrandTotalCents: summary.GrandTotalCents,
		Currency:        s.currency,
		ShippingAddress: input.ShippingAddress,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
	}
	ctx = s.logg.WithTransactionID(ctx, txn.ID.String())

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(summary.GrandTotalCents),
		Currency: stripe.String(s.currency),
		Customer: stripe.String(customerID),
	}
	params.AddMetadata("buyerId", buyer.ID.String())
	params.AddMetadata("transactionId", txn.ID.String())

	intent, err := s.intents.Create(ctx, params)
	if err != nil {
		// leave nothing pending behind a dead attempt; a fresh Initiate
		// starts clean
		reason := "payment intent creation failed"
		if _, terr := s.txns.TransitionState(ctx, txn.ID, enums.TransactionStatePending, enums.TransactionStateFailed, &reason); terr != nil {
			s.logg.Error(ctx, "failing transaction after intent error", terr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	if err := s.txns.SetPaymentIntentID(ctx, txn.ID, intent.ID); err != nil {
		// without the stored intent id a later success signal could not be
		// materialized; kill this attempt so the buyer retries cleanly
		reason := "payment intent id could not be stored"
		if _, terr := s.txns.TransitionState(ctx, txn.ID, enums.TransactionStatePending, enums.TransactionStateFailed, &reason); terr != nil {
			s.logg.Error(ctx, "failing transaction after intent id store error", terr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment intent id")
	}

	s.logg.Info(ctx, "online checkout initiated")
	return &Result{
		TransactionID: txn.ID,
		PaymentMethod: input.PaymentMethod,
		ClientSecret:  intent.ClientSecret,
		Summary:       summary,
	}, nil
}

// Confirm is the synchronous success path: the caller's provider SDK already
// reported the charge as captured. The pending->succeeded transition is
// conditional, so racing the webhook is safe; whichever side wins, the same
// fan-out and settlement run exactly once per order.
func (s *service) Confirm(ctx context.Context, transactionID uuid.UUID) (*Result, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	txn, err := s.txns.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	ctx = s.logg.WithTransactionID(ctx, txn.ID.String())

	switch txn.State {
	case enums.TransactionStatePending:
		won, err := s.txns.TransitionState(ctx, txn.ID, enums.TransactionStatePending, enums.TransactionStateSucceeded, nil)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize transaction")
		}
		if !won {
			// lost the race; re-read what the winner decided
			txn, err = s.txns.FindByID(ctx, txn.ID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload transaction")
			}
			if txn.State != enums.TransactionStateSucceeded {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
					fmt.Sprintf("transaction already finalized as %s", txn.State))
			}
		}
	case enums.TransactionStateSucceeded:
		// settled already; fall through so a retried Confirm still returns
		// the orders
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("transaction already finalized as %s", txn.State))
	}

	return s.materialize(ctx, txn)
}

// materialize fans orders out from the frozen snapshot and settles them
// paid. Every step is an idempotent upsert or conditional write, so calling
// it again after a partial failure completes the remainder.
func (s *service) materialize(ctx context.Context, txn *models.Transaction) (*Result, error) {
	if txn.StripePaymentIntentID == nil || *txn.StripePaymentIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConsistency, "succeeded transaction has no payment intent id")
	}

	var summary cart.PaymentSummary
	if err := json.Unmarshal(txn.Snapshot, &summary); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConsistency, err, "decode transaction snapshot")
	}

	created, err := s.orders.CreateOrdersForTransaction(ctx, orders.FanoutInput{
		TransactionID:         txn.ID,
		BuyerID:               txn.BuyerID,
		PaymentMethod:         txn.PaymentMethod,
		StripePaymentIntentID: txn.StripePaymentIntentID,
		Currency:              txn.Currency,
		ShippingAddress:       txn.ShippingAddress,
		Summary:               summary,
	})
	if err != nil {
		return nil, err
	}

	settled, err := s.orders.SettleOrdersPaid(ctx, created, *txn.StripePaymentIntentID)
	if err != nil {
		return nil, err
	}

	for _, order := range settled {
		s.notifier.Emit(ctx, notifications.EmitInput{
			RecipientID:    order.SellerID,
			Type:           enums.NotificationTypeOrderPaid,
			Title:          "Order paid",
			Message:        fmt.Sprintf("Payment of %d %s received for order %s.", order.TotalCents, order.Currency, order.ID),
			RelatedOrderID: &order.ID,
		})
	}

	s.logg.Info(ctx, "online checkout confirmed")
	return &Result{
		TransactionID: txn.ID,
		PaymentMethod: txn.PaymentMethod,
		Orders:        created,
		Summary:       summary,
	}, nil
}
