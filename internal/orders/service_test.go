package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tomascarrillo/shoply-backend/internal/cart"
	"github.com/tomascarrillo/shoply-backend/pkg/db/models"
	"github.com/tomascarrillo/shoply-backend/pkg/enums"
	pkgerrors "github.com/tomascarrillo/shoply-backend/pkg/errors"
	"github.com/tomascarrillo/shoply-backend/pkg/logger"
	"github.com/tomascarrillo/shoply-backend/pkg/pagination"
)

type stubOrdersRepo struct {
	orders        map[string]*models.Order
	failFor       map[uuid.UUID]error
	createLog     []uuid.UUID
	records       map[string]*models.PaymentRecord
	transitionErr map[uuid.UUID]error
}

func newStubOrdersRepo() *stubOrdersRepo {
	return &stubOrdersRepo{
		orders:        map[string]*models.Order{},
		failFor:       map[uuid.UUID]error{},
		records:       map[string]*models.PaymentRecord{},
		transitionErr: map[uuid.UUID]error{},
	}
}

func pairKey(txnID, sellerID uuid.UUID) string {
	return txnID.String() + ":" + sellerID.String()
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err, ok := s.failFor[order.SellerID]; ok {
		return nil, err
	}
	order.ID = uuid.New()
	s.orders[pairKey(order.TransactionID, order.SellerID)] = order
	s.createLog = append(s.createLog, order.SellerID)
	return order, nil
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	for _, order := range s.orders {
		if order.ID == id {
			return order, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) FindByTransactionID(ctx context.Context, txnID uuid.UUID) ([]models.Order, error) {
	var out []models.Order
	for _, order := range s.orders {
		if order.TransactionID == txnID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *stubOrdersRepo) FindByTransactionAndSeller(ctx context.Context, txnID, sellerID uuid.UUID) (*models.Order, error) {
	if order, ok := s.orders[pairKey(txnID, sellerID)]; ok {
		return order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) FindByPaymentIntentID(ctx context.Context, intentID string) ([]models.Order, error) {
	var out []models.Order
	for _, order := range s.orders {
		if order.StripePaymentIntentID != nil && *order.StripePaymentIntentID == intentID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *stubOrdersRepo) TransitionPaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.PaymentStatus) (bool, error) {
	if err, ok := s.transitionErr[orderID]; ok {
		return false, err
	}
	for _, order := range s.orders {
		if order.ID == orderID && order.PaymentStatus == from {
			order.PaymentStatus = to
			return true, nil
		}
	}
	return false, nil
}

func (s *stubOrdersRepo) CreatePaymentRecord(ctx context.Context, record *models.PaymentRecord) (bool, error) {
	key := record.StripePaymentIntentID + ":" + record.OrderID.String()
	if _, ok := s.records[key]; ok {
		return false, nil
	}
	record.ID = uuid.New()
	s.records[key] = record
	return true, nil
}

func (s *stubOrdersRepo) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	return &OrderList{}, nil
}

func (s *stubOrdersRepo) ListSellerOrders(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	return &OrderList{}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

func summaryForSellers(sellers ...uuid.UUID) cart.PaymentSummary {
	groups := make([]cart.SellerGroup, 0, len(sellers))
	for _, sellerID := range sellers {
		groups = append(groups, cart.SellerGroup{
			SellerID:   sellerID,
			SellerName: "Seller " + sellerID.String()[:4],
			Items: []cart.Item{
				{ProductID: uuid.New(), SellerID: sellerID, Name: "Widget", UnitPriceCents: 600, Quantity: 2},
			},
			SubtotalCents: 1200,
		})
	}
	return cart.BuildPaymentSummary(cart.CalculateSellerTotals(groups))
}

func TestCreateOrdersForTransaction_oneOrderPerSeller(t *testing.T) {
	repo := newStubOrdersRepo()
	svc, err := NewService(repo, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	sellerA := uuid.New()
	sellerB := uuid.New()
	intent := "pi_abc"
	input := FanoutInput{
		TransactionID:         uuid.New(),
		BuyerID:               uuid.New(),
		PaymentMethod:         enums.PaymentMethodCard,
		StripePaymentIntentID: &intent,
		Summary:               summaryForSellers(sellerA, sellerB),
	}

	created, err := svc.CreateOrdersForTransaction(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(created))
	}
	for _, order := range created {
		if order.SubtotalCents != 1200 || order.ShippingCents != 0 || order.TaxCents != 216 || order.TotalCents != 1416 {
			t.Fatalf("ledger values not copied: %+v", order)
		}
		if order.PaymentStatus != enums.PaymentStatusUnpaid {
			t.Fatalf("expected unpaid, got %s", order.PaymentStatus)
		}
		if order.FulfillmentStatus != enums.FulfillmentStatusPendingApproval {
			t.Fatalf("expected pending_approval, got %s", order.FulfillmentStatus)
		}
		if order.StripePaymentIntentID == nil || *order.StripePaymentIntentID != intent {
			t.Fatalf("payment intent id not stamped")
		}
		if len(order.Items) != 1 {
			t.Fatalf("expected 1 line item, got %d", len(order.Items))
		}
	}
}

func TestCreateOrdersForTransaction_reinvocationIsIdempotent(t *testing.T) {
	repo := newStubOrdersRepo()
	svc, err := NewService(repo, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	input := FanoutInput{
		TransactionID: uuid.New(),
		BuyerID:       uuid.New(),
		PaymentMethod: enums.PaymentMethodUPI,
		Summary:       summaryForSellers(uuid.New(), uuid.New()),
	}

	first, err := svc.CreateOrdersForTransaction(context.Background(), input)
	if err != nil {
		t.Fatalf("first invocation: %v", err)
	}
	second, err := svc.CreateOrdersForTransaction(context.Background(), input)
	if err != nil {
		t.Fatalf("second invocation: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("expected same order count, got %d vs %d", len(second), len(first))
	}
	if len(repo.createLog) != 2 {
		t.Fatalf("expected 2 creates total, got %d", len(repo.createLog))
	}
	if second[0].ID != first[0].ID {
		t.Fatalf("re-invocation must reuse existing orders")
	}
}

func TestCreateOrdersForTransaction_partialFailureKeepsCreated(t *testing.T) {
	repo := newStubOrdersRepo()
	svc, err := NewService(repo, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	sellerOK := uuid.New()
	sellerBad := uuid.New()
	repo.failFor[sellerBad] = errors.New("connection reset")

	input := FanoutInput{
		TransactionID: uuid.New(),
		BuyerID:       uuid.New(),
		PaymentMethod: enums.PaymentMethodCard,
		Summary:       summaryForSellers(sellerOK, sellerBad),
	}

	created, err := svc.CreateOrdersForTransaction(context.Background(), input)
	if err == nil {
		t.Fatal("expected error from failed seller")
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 surviving order, got %d", len(created))
	}
	if created[0].SellerID != sellerOK {
		t.Fatalf("wrong order survived")
	}
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}

	// retry completes the missing seller without touching the first
	delete(repo.failFor, sellerBad)
	retried, err := svc.CreateOrdersForTransaction(context.Background(), input)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(retried) != 2 {
		t.Fatalf("expected 2 orders after retry, got %d", len(retried))
	}
	if len(repo.createLog) != 2 {
		t.Fatalf("expected 2 creates total, got %d", len(repo.createLog))
	}
}

func TestSettleOrdersPaid_marksPaidAndCreditsOnce(t *testing.T) {
	repo := newStubOrdersRepo()
	svc, err := NewService(repo, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	intent := "pi_settle"
	input := FanoutInput{
		TransactionID:         uuid.New(),
		BuyerID:               uuid.New(),
		PaymentMethod:         enums.PaymentMethodCard,
		StripePaymentIntentID: &intent,
		Summary:               summaryForSellers(uuid.New(), uuid.New()),
	}
	created, err := svc.CreateOrdersForTransaction(context.Background(), input)
	if err != nil {
		t.Fatalf("fan-out: %v", err)
	}

	settled, err := svc.SettleOrdersPaid(context.Background(), created, intent)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(settled) != 2 {
		t.Fatalf("expected 2 settled orders, got %d", len(settled))
	}
	for _, order := range settled {
		if order.PaymentStatus != enums.PaymentStatusPaid {
			t.Fatalf("expected paid, got %s", order.PaymentStatus)
		}
	}
	if len(repo.records) != 2 {
		t.Fatalf("expected 2 payment records, got %d", len(repo.records))
	}
	for _, record := range repo.records {
		if record.AmountCents != 1416 {
			t.Fatalf("expected credit of 1416, got %d", record.AmountCents)
		}
	}

	// replaying the same settlement transitions nothing and credits nothing
	again, err := svc.SettleOrdersPaid(context.Background(), created, intent)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("replay settled %d orders, want 0", len(again))
	}
	if len(repo.records) != 2 {
		t.Fatalf("replay duplicated payment records: %d", len(repo.records))
	}
}

func TestSettleOrdersPaid_partialFailureIsRetryable(t *testing.T) {
	repo := newStubOrdersRepo()
	svc, err := NewService(repo, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	intent := "pi_partial"
	input := FanoutInput{
		TransactionID:         uuid.New(),
		BuyerID:               uuid.New(),
		PaymentMethod:         enums.PaymentMethodCard,
		StripePaymentIntentID: &intent,
		Summary:               summaryForSellers(uuid.New(), uuid.New()),
	}
	created, err := svc.CreateOrdersForTransaction(context.Background(), input)
	if err != nil {
		t.Fatalf("fan-out: %v", err)
	}

	repo.transitionErr[created[1].ID] = errors.New("connection reset")
	settled, err := svc.SettleOrdersPaid(context.Background(), created, intent)
	if err == nil {
		t.Fatal("expected error from failed transition")
	}
	if len(settled) != 1 {
		t.Fatalf("expected 1 settled order, got %d", len(settled))
	}
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}

	delete(repo.transitionErr, created[1].ID)
	retried, err := svc.SettleOrdersPaid(context.Background(), created, intent)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(retried) != 1 {
		t.Fatalf("retry should settle the remaining order, got %d", len(retried))
	}
	if len(repo.records) != 2 {
		t.Fatalf("expected 2 payment records after retry, got %d", len(repo.records))
	}
}

func TestSettleOrdersPaid_failedOrdersAreNotCredited(t *testing.T) {
	repo := newStubOrdersRepo()
	svc, err := NewService(repo, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	intent := "pi_after_failure"
	input := FanoutInput{
		TransactionID:         uuid.New(),
		BuyerID:               uuid.New(),
		PaymentMethod:         enums.PaymentMethodCard,
		StripePaymentIntentID: &intent,
		Summary:               summaryForSellers(uuid.New(), uuid.New()),
	}
	created, err := svc.CreateOrdersForTransaction(context.Background(), input)
	if err != nil {
		t.Fatalf("fan-out: %v", err)
	}

	// a failure signal lands first and settles both orders as failed
	if _, err := svc.MarkOrdersFailed(context.Background(), created); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	// a late success signal must not credit the failed orders
	siblings, err := repo.FindByPaymentIntentID(context.Background(), intent)
	if err != nil {
		t.Fatalf("reload siblings: %v", err)
	}
	settled, err := svc.SettleOrdersPaid(context.Background(), siblings, intent)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(settled) != 0 {
		t.Fatalf("settled %d failed orders, want 0", len(settled))
	}
	if len(repo.records) != 0 {
		t.Fatalf("credited %d payment records against failed orders, want 0", len(repo.records))
	}
	for _, order := range siblings {
		stored, err := repo.FindByID(context.Background(), order.ID)
		if err != nil {
			t.Fatalf("reload order: %v", err)
		}
		if stored.PaymentStatus != enums.PaymentStatusFailed {
			t.Fatalf("expected failed, got %s", stored.PaymentStatus)
		}
	}
}

func TestMarkOrdersFailed_skipsPaidOrders(t *testing.T) {
	repo := newStubOrdersRepo()
	svc, err := NewService(repo, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	input := FanoutInput{
		TransactionID: uuid.New(),
		BuyerID:       uuid.New(),
		PaymentMethod: enums.PaymentMethodCard,
		Summary:       summaryForSellers(uuid.New(), uuid.New()),
	}
	created, err := svc.CreateOrdersForTransaction(context.Background(), input)
	if err != nil {
		t.Fatalf("fan-out: %v", err)
	}

	// one sibling already settled; failure must not claw it back
	if _, err := repo.TransitionPaymentStatus(context.Background(), created[0].ID, enums.PaymentStatusUnpaid, enums.PaymentStatusPaid); err != nil {
		t.Fatalf("seed paid order: %v", err)
	}

	failed, err := svc.MarkOrdersFailed(context.Background(), created)
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if failed != 1 {
		t.Fatalf("expected 1 failed transition, got %d", failed)
	}
}

func TestCreateOrdersForTransaction_validatesInput(t *testing.T) {
	svc, err := NewService(newStubOrdersRepo(), testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.CreateOrdersForTransaction(context.Background(), FanoutInput{
		BuyerID: uuid.New(),
		Summary: summaryForSellers(uuid.New()),
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for missing transaction id, got %v", err)
	}

	_, err = svc.CreateOrdersForTransaction(context.Background(), FanoutInput{
		TransactionID: uuid.New(),
		BuyerID:       uuid.New(),
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for empty summary, got %v", err)
	}
}
