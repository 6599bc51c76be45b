package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/notification"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/paypal"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/repository"
)

// --- pending orders ---

type pendingEntry struct {
	payload      models.CheckoutPayload
	claimedUntil time.Time
}

type mockPending struct {
	mu       sync.Mutex
	entries  map[string]*pendingEntry
	claimErr error
	deleted  []string
	released []string
}

func newMockPending() *mockPending {
	return &mockPending{entries: make(map[string]*pendingEntry)}
}

func (m *mockPending) Put(_ context.Context, token string, p *models.CheckoutPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[token] = &pendingEntry{payload: *p}
	return nil
}

func (m *mockPending) Get(_ context.Context, token string) (*models.CheckoutPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[token]
	if !ok {
		return nil, repository.ErrPendingOrderNotFound
	}
	p := e.payload
	return &p, nil
}

func (m *mockPending) Claim(_ context.Context, token string, lease time.Duration) (*models.CheckoutPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	e, ok := m.entries[token]
	if !ok || time.Now().Before(e.claimedUntil) {
		return nil, repository.ErrPendingOrderNotFound
	}
	e.claimedUntil = time.Now().Add(lease)
	p := e.payload
	return &p, nil
}

func (m *mockPending) Release(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, token)
	if e, ok := m.entries[token]; ok {
		e.claimedUntil = time.Time{}
	}
	return nil
}

func (m *mockPending) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, token)
	delete(m.entries, token)
	return nil
}

func (m *mockPending) PurgeExpired(context.Context) (int64, error) { return 0, nil }

func (m *mockPending) has(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[token]
	return ok
}

// --- gateway ---

type mockGateway struct {
	mu           sync.Mutex
	captureCalls int
	getCalls     int
	createCalls  []paypal.CreateOrderInput
	captureFn    func(ctx context.Context, orderID string) (*paypal.CaptureResult, error)
	getFn        func(ctx context.Context, orderID string) (*paypal.CaptureResult, error)
	createFn     func(ctx context.Context, in paypal.CreateOrderInput) (*paypal.CreatedOrder, error)
}

func completedCapture(orderID string) *paypal.CaptureResult {
	return &paypal.CaptureResult{
		OrderID:    orderID,
		Status:     paypal.StatusCompleted,
		PayerEmail: "payer@example.com",
		CaptureID:  "CAP-" + orderID,
	}
}

func (m *mockGateway) CaptureOrder(ctx context.Context, orderID string) (*paypal.CaptureResult, error) {
	m.mu.Lock()
	m.captureCalls++
	fn := m.captureFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, orderID)
	}
	return completedCapture(orderID), nil
}

func (m *mockGateway) GetOrder(ctx context.Context, orderID string) (*paypal.CaptureResult, error) {
	m.mu.Lock()
	m.getCalls++
	fn := m.getFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, orderID)
	}
	return completedCapture(orderID), nil
}

func (m *mockGateway) CreateOrder(ctx context.Context, in paypal.CreateOrderInput) (*paypal.CreatedOrder, error) {
	m.mu.Lock()
	m.createCalls = append(m.createCalls, in)
	fn := m.createFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, in)
	}
	return &paypal.CreatedOrder{ID: "PAYPAL-ORDER-1", Status: "CREATED", ApproveURL: "https://paypal.test/approve?token=PAYPAL-ORDER-1"}, nil
}

func (m *mockGateway) captures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captureCalls
}

// --- orders ---

type mockOrderRepo struct {
	mu         sync.Mutex
	orders     map[uuid.UUID]*models.Order
	createErrs []error
	existing   map[string]bool
	// beforeRefLookup runs at the start of FindByPaymentReference.
	beforeRefLookup func()
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[uuid.UUID]*models.Order), existing: make(map[string]bool)}
}

func (m *mockOrderRepo) Create(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, o := range m.orders {
		if o.OrderNumber == order.OrderNumber {
			return repository.ErrDuplicate
		}
		if order.PaymentReference != "" && o.PaymentReference == order.PaymentReference {
			return repository.ErrDuplicate
		}
	}
	order.ID = uuid.New()
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
	}
	stored := *order
	stored.Items = append([]models.OrderItem(nil), order.Items...)
	m.orders[order.ID] = &stored
	return nil
}

func (m *mockOrderRepo) OrderNumberExists(_ context.Context, n string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existing[n] {
		return true, nil
	}
	for _, o := range m.orders {
		if o.OrderNumber == n {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockOrderRepo) find(match func(*models.Order) bool) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if match(o) {
			cp := *o
			cp.Items = append([]models.OrderItem(nil), o.Items...)
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	return m.find(func(o *models.Order) bool { return o.ID == id })
}

func (m *mockOrderRepo) FindByOrderNumber(_ context.Context, n string) (*models.Order, error) {
	return m.find(func(o *models.Order) bool { return o.OrderNumber == n })
}

func (m *mockOrderRepo) FindByPaymentReference(_ context.Context, ref string) (*models.Order, error) {
	if m.beforeRefLookup != nil {
		m.beforeRefLookup()
	}
	return m.find(func(o *models.Order) bool { return o.PaymentReference == ref })
}

func (m *mockOrderRepo) TransitionStatus(_ context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (m *mockOrderRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// --- gift cards ---

type mockGiftCardRepo struct {
	mu         sync.Mutex
	cards      []models.GiftCard
	failures   []models.GiftCardIssuanceFailure
	createErr  error
	takenCodes map[string]bool
}

func newMockGiftCardRepo() *mockGiftCardRepo {
	return &mockGiftCardRepo{takenCodes: make(map[string]bool)}
}

func (m *mockGiftCardRepo) CodeExists(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.takenCodes[code] {
		return true, nil
	}
	for _, c := range m.cards {
		if c.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockGiftCardRepo) Create(_ context.Context, card *models.GiftCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, c := range m.cards {
		if c.Code == card.Code || (c.OrderItemID == card.OrderItemID && c.UnitIndex == card.UnitIndex) {
			return repository.ErrDuplicate
		}
	}
	card.ID = uuid.New()
	m.cards = append(m.cards, *card)
	return nil
}

func (m *mockGiftCardRepo) FindByOrderID(_ context.Context, orderID uuid.UUID) ([]models.GiftCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GiftCard
	for _, c := range m.cards {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockGiftCardRepo) UnitIssued(_ context.Context, itemID uuid.UUID, unit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cards {
		if c.OrderItemID == itemID && c.UnitIndex == unit {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockGiftCardRepo) RecordFailure(_ context.Context, f *models.GiftCardIssuanceFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = uuid.New()
	m.failures = append(m.failures, *f)
	return nil
}

func (m *mockGiftCardRepo) UnresolvedFailures(_ context.Context, orderID uuid.UUID) ([]models.GiftCardIssuanceFailure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GiftCardIssuanceFailure
	for _, f := range m.failures {
		if f.OrderID == orderID && f.ResolvedAt == nil {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockGiftCardRepo) ResolveFailure(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for i := range m.failures {
		if m.failures[i].ID == id {
			m.failures[i].ResolvedAt = &now
		}
	}
	return nil
}

func (m *mockGiftCardRepo) setCreateErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

// --- coupons, dealers, customers ---

type mockCouponRepo struct {
	coupons    map[string]*models.Coupon
	increments []string
}

func newMockCouponRepo(coupons ...*models.Coupon) *mockCouponRepo {
	m := &mockCouponRepo{coupons: make(map[string]*models.Coupon)}
	for _, c := range coupons {
		m.coupons[c.Code] = c
	}
	return m
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*models.Coupon, error) {
	c, ok := m.coupons[code]
	if !ok || !c.Active {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (m *mockCouponRepo) IncrementUsedCount(_ context.Context, code string) (bool, error) {
	m.increments = append(m.increments, code)
	c, ok := m.coupons[code]
	if !ok {
		return false, nil
	}
	c.UsedCount++
	return true, nil
}

type mockDealerTierRepo struct {
	tiers map[int]models.DealerTier
	err   error
}

func (m *mockDealerTierRepo) FindByTier(_ context.Context, tier int) (*models.DealerTier, error) {
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.tiers[tier]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (m *mockDealerTierRepo) List(context.Context) ([]models.DealerTier, error) { return nil, nil }

func (m *mockDealerTierRepo) Upsert(context.Context, *models.DealerTier) error { return nil }

type mockCustomerRepo struct {
	customers map[uuid.UUID]models.Customer
}

func (m *mockCustomerRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

// --- side effects ---

type sentConfirmation struct {
	email string
	data  *notification.OrderConfirmation
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []sentConfirmation
}

func (m *mockNotifier) SendOrderConfirmation(_ context.Context, email string, data *notification.OrderConfirmation) <-chan notification.Result {
	m.mu.Lock()
	m.sent = append(m.sent, sentConfirmation{email: email, data: data})
	m.mu.Unlock()
	ch := make(chan notification.Result, 1)
	ch <- notification.Result{Email: email, OrderNumber: data.OrderNumber}
	return ch
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type publishedEvent struct {
	topic, eventType string
	payload          interface{}
}

type mockEvents struct {
	events []publishedEvent
	err    error
}

func (m *mockEvents) PublishEvent(_ context.Context, topic, eventType string, v interface{}) error {
	m.events = append(m.events, publishedEvent{topic, eventType, v})
	return m.err
}

var errBoom = errors.New("boom")
