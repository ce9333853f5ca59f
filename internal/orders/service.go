package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"go.uber.org/multierr"

	"github.com/tomascarrillo/shoply-backend/internal/cart"
	"github.com/tomascarrillo/shoply-backend/pkg/db"
	"github.com/tomascarrillo/shoply-backend/pkg/db/models"
	"github.com/tomascarrillo/shoply-backend/pkg/enums"
	pkgerrors "github.com/tomascarrillo/shoply-backend/pkg/errors"
	"github.com/tomascarrillo/shoply-backend/pkg/logger"
	"github.com/tomascarrillo/shoply-backend/pkg/pagination"
	"github.com/tomascarrillo/shoply-backend/pkg/types"
)

// Service turns one checkout snapshot into per-seller orders and serves
// order listings.
type Service interface {
	CreateOrdersForTransaction(ctx context.Context, input FanoutInput) ([]models.Order, error)
	SettleOrdersPaid(ctx context.Context, siblings []models.Order, intentID string) ([]models.Order, error)
	MarkOrdersFailed(ctx context.Context, siblings []models.Order) (int, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*OrderList, error)
}

// FanoutInput carries everything needed to materialize orders from a
// payment summary snapshot. Ledger values are copied as-is, never recomputed.
type FanoutInput struct {
	TransactionID         uuid.UUID
	BuyerID               uuid.UUID
	PaymentMethod         enums.PaymentMethod
	StripePaymentIntentID *string
	Currency              string
	ShippingAddress       types.Address
	Summary               cart.PaymentSummary
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires the orders service dependencies.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// CreateOrdersForTransaction creates one order per seller ledger. Creation is
// keyed by (transaction id, seller id): a pair that already exists is reused,
// never duplicated, so the whole call is safe to re-invoke after a partial
// failure. Orders created before a mid-loop error stay in place.
func (s *service) CreateOrdersForTransaction(ctx context.Context, input FanoutInput) ([]models.Order, error) {
	if input.TransactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if len(input.Summary.Ledgers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment summary has no sellers")
	}

	currency := input.Currency
	if currency == "" {
		currency = "usd"
	}

	ctx = s.logg.WithTransactionID(ctx, input.TransactionID.String())

	created := make([]models.Order, 0, len(input.Summary.Ledgers))
	var errs error

	for _, ledger := range input.Summary.Ledgers {
		order, err := s.ensureOrder(ctx, input, ledger, currency)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		created = append(created, *order)
	}

	if errs != nil {
		s.logg.Error(ctx, "order fan-out incomplete", errs)
		return created, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "create seller orders")
	}
	return created, nil
}

func (s *service) ensureOrder(ctx context.Context, input FanoutInput, ledger cart.SellerLedger, currency string) (*models.Order, error) {
	existing, err := s.repo.FindByTransactionAndSeller(ctx, input.TransactionID, ledger.SellerID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	order := &models.Order{
		TransactionID:         input.TransactionID,
		SellerID:              ledger.SellerID,
		SellerName:            ledger.SellerName,
		BuyerID:               input.BuyerID,
		SubtotalCents:         ledger.SubtotalCents,
		ShippingCents:         ledger.ShippingCents,
		TaxCents:              ledger.TaxCents,
		TotalCents:            ledger.TotalCents,
		Currency:              currency,
		PaymentMethod:         input.PaymentMethod,
		PaymentStatus:         enums.PaymentStatusUnpaid,
		FulfillmentStatus:     enums.FulfillmentStatusPendingApproval,
		StripePaymentIntentID: input.StripePaymentIntentID,
		ShippingAddress:       input.ShippingAddress,
		Items:                 lineItemsFromLedger(ledger),
	}

	if _, err := s.repo.Create(ctx, order); err != nil {
		if db.IsUniqueViolation(err, "idx_orders_txn_seller") {
			// concurrent fan-out won the insert; reuse its row
			return s.repo.FindByTransactionAndSeller(ctx, input.TransactionID, ledger.SellerID)
		}
		return nil, err
	}
	return order, nil
}

// SettleOrdersPaid marks sibling orders paid and credits one payment record
// per order. Both writes are conditional: an order that is already paid is
// skipped, and a payment record that already exists for (intent, order) is
// not duplicated, so replays of the same settlement are absorbed.
func (s *service) SettleOrdersPaid(ctx context.Context, siblings []models.Order, intentID string) ([]models.Order, error) {
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}

	settled := make([]models.Order, 0, len(siblings))
	var errs error

	for _, order := range siblings {
		updated, err := s.repo.TransitionPaymentStatus(ctx, order.ID, enums.PaymentStatusUnpaid, enums.PaymentStatusPaid)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if updated {
			order.PaymentStatus = enums.PaymentStatusPaid
			settled = append(settled, order)
		}
		if !updated && order.PaymentStatus != enums.PaymentStatusPaid {
			// the order settled through another terminal state; crediting a
			// payment record against it would invent money that never landed
			continue
		}
		inserted, err := s.repo.CreatePaymentRecord(ctx, &models.PaymentRecord{
			OrderID:               order.ID,
			StripePaymentIntentID: intentID,
			AmountCents:           order.TotalCents,
			Currency:              order.Currency,
		})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !inserted {
			s.logg.Info(ctx, "payment record already credited for order "+order.ID.String())
		}
	}

	if errs != nil {
		s.logg.Error(ctx, "order settlement incomplete", errs)
		return settled, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "settle seller orders")
	}
	return settled, nil
}

// MarkOrdersFailed flips sibling orders from unpaid to failed. Returns how
// many rows actually transitioned; orders already paid or failed are left
// untouched.
func (s *service) MarkOrdersFailed(ctx context.Context, siblings []models.Order) (int, error) {
	var failed int
	var errs error

	for _, order := range siblings {
		updated, err := s.repo.TransitionPaymentStatus(ctx, order.ID, enums.PaymentStatusUnpaid, enums.PaymentStatusFailed)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if updated {
			failed++
		}
	}

	if errs != nil {
		return failed, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "mark orders failed")
	}
	return failed, nil
}

func lineItemsFromLedger(ledger cart.SellerLedger) []models.OrderLineItem {
	items := make([]models.OrderLineItem, 0, len(ledger.Items))
	for _, item := range ledger.Items {
		items = append(items, models.OrderLineItem{
			ProductID:      item.ProductID,
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Qty:            item.Quantity,
			TotalCents:     item.LineTotalCents(),
		})
	}
	return items
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	list, err := s.repo.ListBuyerOrders(ctx, buyerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
	}
	return list, nil
}

func (s *service) ListForSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	list, err := s.repo.ListSellerOrders(ctx, sellerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list seller orders")
	}
	return list, nil
}
