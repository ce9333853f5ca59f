package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/tomascarrillo/shoply-backend/internal/buyers"
	"github.com/tomascarrillo/shoply-backend/internal/checkout"
	"github.com/tomascarrillo/shoply-backend/internal/notifications"
	"github.com/tomascarrillo/shoply-backend/internal/orders"
	"github.com/tomascarrillo/shoply-backend/internal/transactions"
	"github.com/tomascarrillo/shoply-backend/pkg/db/models"
	"github.com/tomascarrillo/shoply-backend/pkg/enums"
	pkgerrors "github.com/tomascarrillo/shoply-backend/pkg/errors"
	"github.com/tomascarrillo/shoply-backend/pkg/logger"
	"github.com/tomascarrillo/shoply-backend/pkg/metrics"
)

const providerName = "stripe"

// checkoutConfirmer is the slice of the checkout orchestrator the reconciler
// uses: a success signal for a known transaction is exactly a Confirm.
type checkoutConfirmer interface {
	Confirm(ctx context.Context, transactionID uuid.UUID) (*checkout.Result, error)
}

type handlerFunc func(ctx context.Context, event *stripe.Event) error

type ServiceParams struct {
	TxnRepo    transactions.Repository
	BuyersRepo buyers.Repository
	OrdersRepo orders.Repository
	OrdersSvc  orders.Service
	Checkout   checkoutConfirmer
	Notifier   notifications.Service
	Guard      *IdempotencyGuard
	Metrics    *metrics.WebhookMetrics
	Logger     *logger.Logger
}

// Service reconciles provider webhook deliveries against local state. Every
// mutation it performs is a conditional write, so redeliveries and races
// with the synchronous confirmation path are absorbed.
type Service struct {
	txns     transactions.Repository
	buyers   buyers.Repository
	orders   orders.Repository
	fanout   orders.Service
	checkout checkoutConfirmer
	notifier notifications.Service
	guard    *IdempotencyGuard
	metrics  *metrics.WebhookMetrics
	logg     *logger.Logger
	handlers map[stripe.EventType]handlerFunc
}

func NewService(params ServiceParams) (*Service, error) {
	if params.TxnRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transactions repo required")
	}
	if params.BuyersRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "buyers repo required")
	}
	if params.OrdersRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.OrdersSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.Checkout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout confirmer required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications service required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	if params.Metrics == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook metrics required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}

	s := &Service{
		txns:     params.TxnRepo,
		buyers:   params.BuyersRepo,
		orders:   params.OrdersRepo,
		fanout:   params.OrdersSvc,
		checkout: params.Checkout,
		notifier: params.Notifier,
		guard:    params.Guard,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}
	s.handlers = map[stripe.EventType]handlerFunc{
		stripe.EventTypePaymentIntentSucceeded:      s.handlePaymentSucceeded,
		stripe.EventTypeCheckoutSessionCompleted:    s.handleCheckoutSessionCompleted,
		stripe.EventTypePaymentIntentPaymentFailed:  s.handlePaymentFailed,
		stripe.EventTypeCustomerSubscriptionCreated: s.handleSubscriptionEvent,
		stripe.EventTypeCustomerSubscriptionUpdated: s.handleSubscriptionEvent,
		stripe.EventTypeCustomerSubscriptionDeleted: s.handleSubscriptionEvent,
	}
	return s, nil
}

// HandleEvent runs one verified event through the guard and the dispatch
// table. Duplicate ids are acked without side effects; retryable handler
// failures release the guard so the provider's redelivery gets another
// attempt.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.ID == "" || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event payload required")
	}
	eventType := string(event.Type)
	ctx = s.logg.WithEventID(ctx, event.ID)

	duplicate, err := s.guard.CheckAndMark(ctx, event.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency guard")
	}
	if duplicate {
		s.metrics.IncDuplicate(providerName, eventType)
		s.logg.Info(ctx, "duplicate webhook event acked")
		return pkgerrors.New(pkgerrors.CodeDuplicateEvent, "event already processed")
	}

	handler, ok := s.handlers[event.Type]
	if !ok {
		s.metrics.IncProcessed(providerName, eventType)
		s.logg.Info(ctx, "unhandled webhook event type "+eventType+" acked")
		return nil
	}

	started := time.Now()
	if err := handler(ctx, event); err != nil {
		if pkgerrors.IsRetryable(err) {
			if relErr := s.guard.Release(ctx, event.ID); relErr != nil {
				s.logg.Error(ctx, "releasing idempotency guard", relErr)
			}
		}
		s.metrics.IncFailure(providerName, eventType)
		return err
	}

	s.metrics.ObserveDuration(providerName, eventType, time.Since(started))
	s.metrics.IncProcessed(providerName, eventType)
	return nil
}

func (s *Service) handlePaymentSucceeded(ctx context.Context, event *stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	return s.applySuccess(ctx, intent.ID, intent.Metadata)
}

func (s *Service) handleCheckoutSessionCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
	}
	intentID := ""
	if session.PaymentIntent != nil {
		intentID = session.PaymentIntent.ID
	}
	return s.applySuccess(ctx, intentID, session.Metadata)
}

// applySuccess is the single success path shared by both success-shaped
// event types. A resolvable transaction goes through checkout.Confirm; a
// transaction that was already reclaimed falls back to settling whatever
// sibling orders carry the intent id.
func (s *Service) applySuccess(ctx context.Context, intentID string, metadata map[string]string) error {
	txn, err := s.resolveTransaction(ctx, intentID, metadata)
	if err != nil {
		return err
	}
	if txn != nil {
		ctx = s.logg.WithTransactionID(ctx, txn.ID.String())
		if intentID != "" && (txn.StripePaymentIntentID == nil || *txn.StripePaymentIntentID == "") {
			// the row was resolved by metadata alone; stamp the intent id it
			// is missing so Confirm can materialize orders from the snapshot
			if err := s.txns.SetPaymentIntentID(ctx, txn.ID, intentID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment intent id")
			}
		}
		if _, err := s.checkout.Confirm(ctx, txn.ID); err != nil {
			if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeStateConflict {
				// provider says captured, local row says failed or expired
				s.logg.Error(ctx, "success event for finalized transaction", err)
				return pkgerrors.Wrap(pkgerrors.CodeConsistency, err, "transaction finalized with a different outcome")
			}
			return err
		}
		return nil
	}

	if intentID == "" {
		s.logg.Warn(ctx, "success event carries no payment intent or transaction reference")
		return pkgerrors.New(pkgerrors.CodeConsistency, "success event references no known transaction")
	}

	siblings, err := s.orders.FindByPaymentIntentID(ctx, intentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load orders by payment intent")
	}
	if len(siblings) == 0 {
		s.logg.Warn(ctx, "success event for unknown payment intent "+intentID)
		return pkgerrors.New(pkgerrors.CodeConsistency, "success event references no known transaction")
	}

	settled, err := s.fanout.SettleOrdersPaid(ctx, siblings, intentID)
	if err != nil {
		return err
	}
	s.notifyPaid(ctx, settled)
	return nil
}

func (s *Service) handlePaymentFailed(ctx context.Context, event *stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}

	reason := "payment failed"
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		reason = intent.LastPaymentError.Msg
	}

	if intent.ID != "" {
		siblings, err := s.orders.FindByPaymentIntentID(ctx, intent.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load orders by payment intent")
		}
		if len(siblings) > 0 {
			if _, err := s.fanout.MarkOrdersFailed(ctx, siblings); err != nil {
				return err
			}
			s.notifyFailed(ctx, siblings[0].BuyerID, reason)
			return nil
		}
	}

	txn, err := s.resolveTransaction(ctx, intent.ID, intent.Metadata)
	if err != nil {
		return err
	}
	if txn == nil {
		s.logg.Warn(ctx, "failure event references no known transaction")
		return pkgerrors.New(pkgerrors.CodeConsistency, "failure event references no known transaction")
	}
	ctx = s.logg.WithTransactionID(ctx, txn.ID.String())

	won, err := s.txns.TransitionState(ctx, txn.ID, enums.TransactionStatePending, enums.TransactionStateFailed, &reason)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail transaction")
	}
	if !won {
		s.logg.Info(ctx, "failure event for already finalized transaction acked")
		return nil
	}
	s.notifyFailed(ctx, txn.BuyerID, reason)
	return nil
}

func (s *Service) notifyFailed(ctx context.Context, buyerID uuid.UUID, reason string) {
	s.notifier.Emit(ctx, notifications.EmitInput{
		RecipientID: buyerID,
		Type:        enums.NotificationTypePaymentFailed,
		Title:       "Payment failed",
		Message:     "Your payment did not go through: " + reason,
	})
}

func (s *Service) handleSubscriptionEvent(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription event")
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return pkgerrors.New(pkgerrors.CodeConsistency, "subscription event carries no customer")
	}

	buyer, err := s.buyers.FindByStripeCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			s.logg.Warn(ctx, "subscription event for unknown customer "+sub.Customer.ID)
			return pkgerrors.New(pkgerrors.CodeConsistency, "subscription event references no known buyer")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer by customer id")
	}

	status := subscriptionStatusFrom(event.Type, sub.Status)
	if err := s.buyers.UpdateSubscriptionStatus(ctx, buyer.ID, status); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription status")
	}
	return nil
}

// resolveTransaction locates the transaction by intent id first, then by the
// transactionId stamped into the intent metadata at initiation. Returns
// (nil, nil) when neither resolves.
func (s *Service) resolveTransaction(ctx context.Context, intentID string, metadata map[string]string) (*models.Transaction, error) {
	if intentID != "" {
		txn, err := s.txns.FindByPaymentIntentID(ctx, intentID)
		if err == nil {
			return txn, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction by payment intent")
		}
	}

	raw, ok := metadata["transactionId"]
	if !ok || raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		s.logg.Warn(ctx, "event metadata carries malformed transaction id "+raw)
		return nil, nil
	}
	txn, err := s.txns.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	return txn, nil
}

func (s *Service) notifyPaid(ctx context.Context, settled []models.Order) {
	for _, order := range settled {
		s.notifier.Emit(ctx, notifications.EmitInput{
			RecipientID:    order.SellerID,
			Type:           enums.NotificationTypeOrderPaid,
			Title:          "Order paid",
			Message:        fmt.Sprintf("Payment of %d %s received for order %s.", order.TotalCents, order.Currency, order.ID),
			RelatedOrderID: &order.ID,
		})
	}
}

func subscriptionStatusFrom(eventType stripe.EventType, status stripe.SubscriptionStatus) enums.SubscriptionStatus {
	if eventType == stripe.EventTypeCustomerSubscriptionDeleted {
		return enums.SubscriptionStatusCanceled
	}
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return enums.SubscriptionStatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return enums.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return enums.SubscriptionStatusCanceled
	default:
		return enums.SubscriptionStatusNone
	}
}
