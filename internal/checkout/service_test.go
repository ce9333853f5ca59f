package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/tomascarrillo/shoply-backend/internal/buyers"
	"github.com/tomascarrillo/shoply-backend/internal/cart"
	"github.com/tomascarrillo/shoply-backend/internal/notifications"
	"github.com/tomascarrillo/shoply-backend/internal/orders"
	"github.com/tomascarrillo/shoply-backend/internal/transactions"
	"github.com/tomascarrillo/shoply-backend/pkg/db/models"
	"github.com/tomascarrillo/shoply-backend/pkg/enums"
	pkgerrors "github.com/tomascarrillo/shoply-backend/pkg/errors"
	"github.com/tomascarrillo/shoply-backend/pkg/logger"
	"github.com/tomascarrillo/shoply-backend/pkg/pagination"
	"github.com/tomascarrillo/shoply-backend/pkg/types"
)

type buyersStub struct {
	byID map[uuid.UUID]*models.Buyer
}

func (s *buyersStub) WithTx(tx *gorm.DB) buyers.Repository { return s }

func (s *buyersStub) Create(ctx context.Context, buyer *models.Buyer) (*models.Buyer, error) {
	return buyer, nil
}

func (s *buyersStub) FindByID(ctx context.Context, id uuid.UUID) (*models.Buyer, error) {
	if buyer, ok := s.byID[id]; ok {
		return buyer, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *buyersStub) FindByStripeCustomerID(ctx context.Context, customerID string) (*models.Buyer, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *buyersStub) SetStripeCustomerID(ctx context.Context, buyerID uuid.UUID, customerID string) (bool, error) {
	return true, nil
}

func (s *buyersStub) UpdateSubscriptionStatus(ctx context.Context, buyerID uuid.UUID, status enums.SubscriptionStatus) error {
	return nil
}

type ordersServiceStub struct {
	fanoutCalls  []orders.FanoutInput
	fanoutErr    error
	settleCalls  int
	settleIntent string
	failedCalls  int
}

func (s *ordersServiceStub) CreateOrdersForTransaction(ctx context.Context, input orders.FanoutInput) ([]models.Order, error) {
	s.fanoutCalls = append(s.fanoutCalls, input)
	if s.fanoutErr != nil {
		return nil, s.fanoutErr
	}
	out := make([]models.Order, 0, len(input.Summary.Ledgers))
	for _, ledger := range input.Summary.Ledgers {
		out = append(out, models.Order{
			ID:                    uuid.New(),
			TransactionID:         input.TransactionID,
			SellerID:              ledger.SellerID,
			BuyerID:               input.BuyerID,
			TotalCents:            ledger.TotalCents,
			Currency:              input.Currency,
			PaymentMethod:         input.PaymentMethod,
			PaymentStatus:         enums.PaymentStatusUnpaid,
			StripePaymentIntentID: input.StripePaymentIntentID,
		})
	}
	return out, nil
}

func (s *ordersServiceStub) SettleOrdersPaid(ctx context.Context, siblings []models.Order, intentID string) ([]models.Order, error) {
	s.settleCalls++
	s.settleIntent = intentID
	settled := make([]models.Order, len(siblings))
	copy(settled, siblings)
	for i := range settled {
		settled[i].PaymentStatus = enums.PaymentStatusPaid
	}
	return settled, nil
}

func (s *ordersServiceStub) MarkOrdersFailed(ctx context.Context, siblings []models.Order) (int, error) {
	s.failedCalls++
	return len(siblings), nil
}

func (s *ordersServiceStub) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

func (s *ordersServiceStub) ListForSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

type customersStub struct {
	customerID string
	err        error
	calls      int
}

func (s *customersStub) EnsureCustomer(ctx context.Context, buyer *models.Buyer) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.customerID, nil
}

type intentsStub struct {
	created []*stripe.PaymentIntentParams
	err     error
}

func (s *intentsStub) Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.created = append(s.created, params)
	if s.err != nil {
		return nil, s.err
	}
	return &stripe.PaymentIntent{ID: "pi_test", ClientSecret: "pi_test_secret"}, nil
}

type notifierStub struct {
	emitted []notifications.EmitInput
}

func (s *notifierStub) Emit(ctx context.Context, input notifications.EmitInput) error {
	s.emitted = append(s.emitted, input)
	return nil
}

func (s *notifierStub) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (s *notifierStub) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	return nil
}

func (s *notifierStub) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	return 0, nil
}

type fakeTxnRepo struct {
	byID         map[uuid.UUID]*models.Transaction
	createErr    error
	setIntentErr error
}

func newFakeTxnRepo() *fakeTxnRepo {
	return &fakeTxnRepo{byID: map[uuid.UUID]*models.Transaction{}}
}

func (r *fakeTxnRepo) WithTx(tx *gorm.DB) transactions.Repository { return r }

func (r *fakeTxnRepo) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	txn.ID = uuid.New()
	txn.CreatedAt = time.Now().UTC()
	r.byID[txn.ID] = txn
	return txn, nil
}

func (r *fakeTxnRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	if txn, ok := r.byID[id]; ok {
		clone := *txn
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeTxnRepo) FindByPaymentIntentID(ctx context.Context, intentID string) (*models.Transaction, error) {
	for _, txn := range r.byID {
		if txn.StripePaymentIntentID != nil && *txn.StripePaymentIntentID == intentID {
			clone := *txn
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeTxnRepo) SetPaymentIntentID(ctx context.Context, id uuid.UUID, intentID string) error {
	if r.setIntentErr != nil {
		return r.setIntentErr
	}
	if txn, ok := r.byID[id]; ok {
		txn.StripePaymentIntentID = &intentID
	}
	return nil
}

func (r *fakeTxnRepo) TransitionState(ctx context.Context, id uuid.UUID, from, to enums.TransactionState, failureReason *string) (bool, error) {
	txn, ok := r.byID[id]
	if !ok || txn.State != from {
		return false, nil
	}
	txn.State = to
	if failureReason != nil {
		txn.FailureReason = failureReason
	}
	if to.IsTerminal() {
		now := time.Now().UTC()
		txn.FinalizedAt = &now
	}
	return true, nil
}

func (r *fakeTxnRepo) FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Transaction, error) {
	return nil, nil
}

func (r *fakeTxnRepo) FindTerminalBefore(ctx context.Context, cutoff time.Time) ([]models.Transaction, error) {
	return nil, nil
}

func (r *fakeTxnRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.byID, id)
	return nil
}

func testAddress() types.Address {
	return types.Address{
		Line1:      "12 Harbor Lane",
		City:       "Pune",
		State:      "MH",
		PostalCode: "411001",
		Country:    "IN",
	}
}

func testItems(sellerID uuid.UUID) []cart.Item {
	return []cart.Item{
		{ProductID: uuid.New(), SellerID: sellerID, SellerName: "Harbor Goods", Name: "Lamp", UnitPriceCents: 600, Quantity: 2},
	}
}

type checkoutFixture struct {
	buyers    *buyersStub
	txns      *fakeTxnRepo
	orders    *ordersServiceStub
	customers *customersStub
	intents   *intentsStub
	notifier  *notifierStub
	svc       Service
	buyerID   uuid.UUID
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	buyerID := uuid.New()
	phone := "+911234567890"
	f := &checkoutFixture{
		buyers: &buyersStub{byID: map[uuid.UUID]*models.Buyer{
			buyerID: {ID: buyerID, Name: "Asha", Email: "asha@example.com", Phone: &phone},
		}},
		txns:      newFakeTxnRepo(),
		orders:    &ordersServiceStub{},
		customers: &customersStub{customerID: "cus_123"},
		intents:   &intentsStub{},
		notifier:  &notifierStub{},
		buyerID:   buyerID,
	}

	svc, err := NewService(f.buyers, f.txns, f.orders, f.customers, f.intents, f.notifier, "usd",
		logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *checkoutFixture) input(method enums.PaymentMethod, sellerID uuid.UUID) Input {
	buyer := f.buyers.byID[f.buyerID]
	return Input{
		Buyer:           BuyerInfo{ID: buyer.ID, Name: buyer.Name, Email: buyer.Email, Phone: buyer.Phone},
		Items:           testItems(sellerID),
		PaymentMethod:   method,
		ShippingAddress: testAddress(),
	}
}

func TestInitiate_collectsAllViolations(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.Initiate(context.Background(), Input{
		PaymentMethod: enums.PaymentMethod("wire"),
		Items:         []cart.Item{{Name: "Lamp", UnitPriceCents: 600, Quantity: 0}},
	})
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	details, ok := appErr.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", appErr.Details())
	}
	violations, ok := details["violations"].([]violation)
	if !ok {
		t.Fatalf("expected violations list, got %T", details["violations"])
	}
	// bad method, missing buyer id/name/email, whole address, seller, qty
	if len(violations) < 7 {
		t.Fatalf("expected every violation reported, got %d: %+v", len(violations), violations)
	}
	if len(f.orders.fanoutCalls) != 0 || len(f.intents.created) != 0 {
		t.Fatal("validation failure must not reach orders or the provider")
	}
}

func TestInitiate_cashOnDeliveryFansOutImmediately(t *testing.T) {
	f := newCheckoutFixture(t)
	sellerID := uuid.New()

	result, err := f.svc.Initiate(context.Background(), f.input(enums.PaymentMethodCashOnDelivery, sellerID))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	if result.TransactionID == uuid.Nil {
		t.Fatal("expected a minted transaction id")
	}
	if len(result.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(result.Orders))
	}
	if result.ClientSecret != "" {
		t.Fatal("cash on delivery must not return a client secret")
	}
	if len(f.txns.byID) != 0 {
		t.Fatal("cash on delivery must not create a transaction row")
	}
	if len(f.intents.created) != 0 || f.customers.calls != 0 {
		t.Fatal("cash on delivery must not touch the provider")
	}
	if f.orders.fanoutCalls[0].StripePaymentIntentID != nil {
		t.Fatal("cash on delivery orders carry no payment intent")
	}
	if len(f.notifier.emitted) != 1 || f.notifier.emitted[0].Type != enums.NotificationTypeOrderPlaced {
		t.Fatalf("expected one order_placed notification, got %+v", f.notifier.emitted)
	}
	if f.notifier.emitted[0].RecipientID != sellerID {
		t.Fatal("order_placed must go to the seller")
	}
}

func TestInitiate_onlineCreatesPendingTransactionAndIntent(t *testing.T) {
	f := newCheckoutFixture(t)
	sellerID := uuid.New()

	result, err := f.svc.Initiate(context.Background(), f.input(enums.PaymentMethodCard, sellerID))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	if result.ClientSecret != "pi_test_secret" {
		t.Fatalf("expected client secret, got %q", result.ClientSecret)
	}
	if len(result.Orders) != 0 || len(f.orders.fanoutCalls) != 0 {
		t.Fatal("online initiation must not create orders")
	}
	if f.customers.calls != 1 {
		t.Fatalf("expected a customer lookup, got %d", f.customers.calls)
	}

	txn, ok := f.txns.byID[result.TransactionID]
	if !ok {
		t.Fatal("expected a pending transaction row")
	}
	if txn.State != enums.TransactionStatePending {
		t.Fatalf("expected pending, got %s", txn.State)
	}
	if txn.GrandTotalCents != result.Summary.GrandTotalCents {
		t.Fatalf("transaction total %d != summary %d", txn.GrandTotalCents, result.Summary.GrandTotalCents)
	}
	if txn.StripePaymentIntentID == nil || *txn.StripePaymentIntentID != "pi_test" {
		t.Fatal("intent id not stored on the transaction")
	}
	if len(txn.Snapshot) == 0 {
		t.Fatal("snapshot must be frozen on the transaction")
	}

	params := f.intents.created[0]
	if params.Amount == nil || *params.Amount != result.Summary.GrandTotalCents {
		t.Fatal("intent amount must equal the grand total")
	}
	if params.Customer == nil || *params.Customer != "cus_123" {
		t.Fatal("intent must charge the stored customer")
	}
	if params.Metadata["transactionId"] != result.TransactionID.String() {
		t.Fatal("intent metadata must carry the transaction id")
	}
	if params.Metadata["buyerId"] != f.buyerID.String() {
		t.Fatal("intent metadata must carry the buyer id")
	}
}

func TestInitiate_intentFailureFailsTransaction(t *testing.T) {
	f := newCheckoutFixture(t)
	f.intents.err = errors.New("stripe: 502")

	_, err := f.svc.Initiate(context.Background(), f.input(enums.PaymentMethodCard, uuid.New()))
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatal("provider failure must be retryable")
	}

	// the dead attempt must not linger as pending
	for _, txn := range f.txns.byID {
		if txn.State != enums.TransactionStateFailed {
			t.Fatalf("expected failed transaction, got %s", txn.State)
		}
	}
}

func TestInitiate_intentIDStoreFailureFailsTransaction(t *testing.T) {
	f := newCheckoutFixture(t)
	f.txns.setIntentErr = errors.New("db: connection reset")

	_, err := f.svc.Initiate(context.Background(), f.input(enums.PaymentMethodCard, uuid.New()))
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatal("intent id store failure must be retryable")
	}

	// a succeeded signal must never find this row pending without an
	// intent id to materialize from
	for _, txn := range f.txns.byID {
		if txn.State != enums.TransactionStateFailed {
			t.Fatalf("expected failed transaction, got %s", txn.State)
		}
	}
}

func TestInitiate_unknownBuyerIsNotFound(t *testing.T) {
	f := newCheckoutFixture(t)
	input := f.input(enums.PaymentMethodCard, uuid.New())
	input.Buyer.ID = uuid.New()

	_, err := f.svc.Initiate(context.Background(), input)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConfirm_settlesOrdersFromSnapshot(t *testing.T) {
	f := newCheckoutFixture(t)
	sellerID := uuid.New()

	initiated, err := f.svc.Initiate(context.Background(), f.input(enums.PaymentMethodCard, sellerID))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	confirmed, err := f.svc.Confirm(context.Background(), initiated.TransactionID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if len(confirmed.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(confirmed.Orders))
	}
	if f.orders.settleCalls != 1 || f.orders.settleIntent != "pi_test" {
		t.Fatalf("expected settlement against pi_test, got %d calls for %q", f.orders.settleCalls, f.orders.settleIntent)
	}
	if f.txns.byID[initiated.TransactionID].State != enums.TransactionStateSucceeded {
		t.Fatal("transaction must be succeeded after confirm")
	}

	fanout := f.orders.fanoutCalls[0]
	if fanout.Summary.GrandTotalCents != initiated.Summary.GrandTotalCents {
		t.Fatal("fan-out must read the frozen snapshot")
	}
	if fanout.StripePaymentIntentID == nil || *fanout.StripePaymentIntentID != "pi_test" {
		t.Fatal("fan-out must stamp the intent id")
	}

	var paid int
	for _, emitted := range f.notifier.emitted {
		if emitted.Type == enums.NotificationTypeOrderPaid {
			paid++
		}
	}
	if paid != 1 {
		t.Fatalf("expected one order_paid notification, got %d", paid)
	}
}

func TestConfirm_isIdempotent(t *testing.T) {
	f := newCheckoutFixture(t)

	initiated, err := f.svc.Initiate(context.Background(), f.input(enums.PaymentMethodCard, uuid.New()))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	first, err := f.svc.Confirm(context.Background(), initiated.TransactionID)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	second, err := f.svc.Confirm(context.Background(), initiated.TransactionID)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if len(second.Orders) != len(first.Orders) {
		t.Fatalf("replayed confirm returned %d orders, want %d", len(second.Orders), len(first.Orders))
	}
}

func TestConfirm_rejectsFinalizedFailure(t *testing.T) {
	f := newCheckoutFixture(t)

	initiated, err := f.svc.Initiate(context.Background(), f.input(enums.PaymentMethodCard, uuid.New()))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	reason := "card declined"
	if _, err := f.txns.TransitionState(context.Background(), initiated.TransactionID,
		enums.TransactionStatePending, enums.TransactionStateFailed, &reason); err != nil {
		t.Fatalf("seed failed state: %v", err)
	}

	_, err = f.svc.Confirm(context.Background(), initiated.TransactionID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if f.orders.settleCalls != 0 {
		t.Fatal("failed transaction must not settle orders")
	}
}

func TestConfirm_unknownTransaction(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.Confirm(context.Background(), uuid.New())
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewService_requiresDependencies(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})

	_, err := NewService(nil, newFakeTxnRepo(), &ordersServiceStub{}, &customersStub{}, &intentsStub{}, &notifierStub{}, "usd", logg)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error for nil buyers repository, got %v", err)
	}
	_, err = NewService(&buyersStub{}, newFakeTxnRepo(), &ordersServiceStub{}, &customersStub{}, nil, &notifierStub{}, "usd", logg)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error for nil intent client, got %v", err)
	}
}
