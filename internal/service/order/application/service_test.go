package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"meridian/internal/service/order/domain"
)

// ---- 端口的内存实现 ----

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	staged map[string][]domain.Event

	saveErr error
	saves   int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders: make(map[string]*domain.Order),
		staged: make(map[string][]domain.Event),
	}
}

func (r *fakeOrderRepo) Save(ctx context.Context, order *domain.Order, events []domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.orders[order.ID] = order
	r.staged[order.ID] = append(r.staged[order.ID], events...)
	return nil
}

func (r *fakeOrderRepo) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r *fakeOrderRepo) FindByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) FindAll(ctx context.Context) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		out = append(out, o)
	}
	return out, nil
}

func (r *fakeOrderRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.orders)), nil
}

type fakeFlashSaleRepo struct {
	mu    sync.Mutex
	sales map[string]*domain.FlashSale
}

func newFakeFlashSaleRepo() *fakeFlashSaleRepo {
	return &fakeFlashSaleRepo{sales: make(map[string]*domain.FlashSale)}
}

func (r *fakeFlashSaleRepo) Save(ctx context.Context, sale *domain.FlashSale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sales[sale.ID] = sale
	return nil
}

func (r *fakeFlashSaleRepo) FindByID(ctx context.Context, id string) (*domain.FlashSale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sales[id], nil
}

func (r *fakeFlashSaleRepo) SyncRemaining(ctx context.Context, id string, remaining int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sale, ok := r.sales[id]; ok {
		sale.RemainingQuantity = remaining
	}
	return nil
}

type fakePricing struct {
	prices map[string]domain.Money
	err    error
}

func (p *fakePricing) LoadPrices(ctx context.Context, currency string, productIDs []string) (map[string]domain.Money, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[string]domain.Money)
	for _, id := range productIDs {
		if price, ok := p.prices[id]; ok {
			out[id] = price
		}
	}
	return out, nil
}

type fakeInventory struct {
	mu         sync.Mutex
	reserveOK  bool
	reserveErr error
	reserved   []map[string]int
	released   []map[string]int
}

func (i *fakeInventory) ReserveStock(ctx context.Context, orderID string, items map[string]int) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.reserveErr != nil {
		return false, i.reserveErr
	}
	if i.reserveOK {
		i.reserved = append(i.reserved, items)
	}
	return i.reserveOK, nil
}

func (i *fakeInventory) ReleaseStock(ctx context.Context, orderID string, items map[string]int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.released = append(i.released, items)
	return nil
}

// fakeStockGuard 用互斥锁模拟 Redis Lua 脚本的原子检查并扣减语义。
type fakeStockGuard struct {
	mu       sync.Mutex
	counters map[string]int
}

func newFakeStockGuard() *fakeStockGuard {
	return &fakeStockGuard{counters: make(map[string]int)}
}

func (g *fakeStockGuard) DecrementStock(ctx context.Context, flashSaleID string, quantity int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	remaining, ok := g.counters[flashSaleID]
	if !ok || remaining < quantity {
		return false, nil
	}
	g.counters[flashSaleID] = remaining - quantity
	return true, nil
}

func (g *fakeStockGuard) IncrementStock(ctx context.Context, flashSaleID string, quantity int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[flashSaleID] += quantity
	return nil
}

func (g *fakeStockGuard) SetStock(ctx context.Context, flashSaleID string, quantity int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[flashSaleID] = quantity
	return nil
}

func (g *fakeStockGuard) GetStock(ctx context.Context, flashSaleID string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counters[flashSaleID], nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

// ---- 测试脚手架 ----

type fixture struct {
	service   *OrderApplicationService
	orderRepo *fakeOrderRepo
	saleRepo  *fakeFlashSaleRepo
	pricing   *fakePricing
	inventory *fakeInventory
	guard     *fakeStockGuard
	publisher *fakePublisher
}

func newFixture() *fixture {
	f := &fixture{
		orderRepo: newFakeOrderRepo(),
		saleRepo:  newFakeFlashSaleRepo(),
		pricing:   &fakePricing{prices: map[string]domain.Money{}},
		inventory: &fakeInventory{reserveOK: true},
		guard:     newFakeStockGuard(),
		publisher: &fakePublisher{},
	}
	f.service = NewOrderApplicationService(
		f.orderRepo, f.saleRepo,
		f.pricing, f.inventory, f.guard, f.publisher,
		noop.NewTracerProvider().Tracer("test"),
	)
	return f
}

func (f *fixture) activeFlashSale(id string, stock int) {
	now := time.Now()
	sale := &domain.FlashSale{
		ID:                id,
		ProductID:         "p-flash",
		Price:             money("8.00"),
		OriginalPrice:     money("20.00"),
		StartTime:         now.Add(-time.Hour),
		EndTime:           now.Add(time.Hour),
		TotalQuantity:     stock,
		RemainingQuantity: stock,
		Status:            domain.FlashSaleActive,
	}
	_ = f.saleRepo.Save(context.Background(), sale)
	_ = f.guard.SetStock(context.Background(), id, stock)
}

func (f *fixture) seedOrder(t *testing.T, prepare func(*domain.Order)) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder("order-1", "user-1", "USD", []domain.OrderItem{
		{ProductID: "p-1", Quantity: 2, UnitPrice: money("10.00")},
	})
	require.NoError(t, err)
	order.DrainEvents()
	if prepare != nil {
		prepare(order)
		order.DrainEvents()
	}
	f.orderRepo.orders[order.ID] = order
	return order
}

func money(amount string) domain.Money {
	return domain.NewMoney(decimal.RequireFromString(amount), "USD")
}

func standardRequest() *CreateOrderRequest {
	return &CreateOrderRequest{
		UserID:   "user-1",
		Currency: "USD",
		Items: []CreateOrderItem{
			{ProductID: "p-1", Quantity: 2, Price: "9.00"},
			{ProductID: "p-2", Quantity: 1, Price: "5.00"},
		},
	}
}

// ---- 下单工作流 ----

func TestCreateOrderStandardPathUsesCatalogPrice(t *testing.T) {
	f := newFixture()
	// 目录给 p-1 的权威价是 10.00，应覆盖调用方传的 9.00；p-2 无目录价，回退
	f.pricing.prices["p-1"] = money("10.00")

	view, err := f.service.CreateOrder(context.Background(), standardRequest())
	require.NoError(t, err)

	assert.Equal(t, "PENDING", view.Status)
	assert.Equal(t, "25.00", view.TotalAmount)
	assert.Equal(t, "USD", view.Currency)

	require.Len(t, f.inventory.reserved, 1)
	assert.Equal(t, map[string]int{"p-1": 2, "p-2": 1}, f.inventory.reserved[0])

	// 事件与订单同批落库，并走了直连发布
	staged := f.orderRepo.staged[view.OrderID]
	require.Len(t, staged, 1)
	assert.Equal(t, domain.EventTypeOrderCreated, staged[0].EventType())
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, view.OrderID, f.publisher.events[0].AggregateID())
}

func TestCreateOrderFlashSaleAdmission(t *testing.T) {
	f := newFixture()
	f.activeFlashSale("fs-1", 5)

	req := &CreateOrderRequest{
		UserID:   "user-1",
		Currency: "USD",
		Items: []CreateOrderItem{
			{ProductID: "p-flash", FlashSaleID: "fs-1", Quantity: 2, Price: "8.00"},
		},
	}
	view, err := f.service.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "16.00", view.TotalAmount)

	remaining, _ := f.guard.GetStock(context.Background(), "fs-1")
	assert.Equal(t, 3, remaining)
	// 纯秒杀订单不应触碰普通库存
	assert.Empty(t, f.inventory.reserved)
}

func TestCreateOrderFlashSaleStockExhausted(t *testing.T) {
	f := newFixture()
	f.activeFlashSale("fs-1", 1)

	req := &CreateOrderRequest{
		UserID:   "user-1",
		Currency: "USD",
		Items: []CreateOrderItem{
			{ProductID: "p-flash", FlashSaleID: "fs-1", Quantity: 2, Price: "8.00"},
		},
	}
	_, err := f.service.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrFlashSaleStockExhausted)

	// 扣减失败时计数器必须原样保留
	remaining, _ := f.guard.GetStock(context.Background(), "fs-1")
	assert.Equal(t, 1, remaining)
	assert.Equal(t, 0, f.orderRepo.saves)
}

func TestCreateOrderConcurrentFlashSaleAdmitsExactlyOne(t *testing.T) {
	f := newFixture()
	f.activeFlashSale("fs-1", 3)

	req := func() *CreateOrderRequest {
		return &CreateOrderRequest{
			UserID:   "user-1",
			Currency: "USD",
			Items: []CreateOrderItem{
				{ProductID: "p-flash", FlashSaleID: "fs-1", Quantity: 2, Price: "8.00"},
			},
		}
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.service.CreateOrder(context.Background(), req())
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrFlashSaleStockExhausted):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	remaining, _ := f.guard.GetStock(context.Background(), "fs-1")
	assert.Equal(t, 1, remaining)
}

func TestCreateOrderFlashSaleNotFound(t *testing.T) {
	f := newFixture()

	req := &CreateOrderRequest{
		UserID:   "user-1",
		Currency: "USD",
		Items: []CreateOrderItem{
			{ProductID: "p-flash", FlashSaleID: "fs-missing", Quantity: 1, Price: "8.00"},
		},
	}
	_, err := f.service.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrFlashSaleNotFound)
}

func TestCreateOrderFlashSaleOutsideWindow(t *testing.T) {
	f := newFixture()
	f.activeFlashSale("fs-1", 5)
	f.saleRepo.sales["fs-1"].EndTime = time.Now().Add(-time.Minute)

	req := &CreateOrderRequest{
		UserID:   "user-1",
		Currency: "USD",
		Items: []CreateOrderItem{
			{ProductID: "p-flash", FlashSaleID: "fs-1", Quantity: 1, Price: "8.00"},
		},
	}
	_, err := f.service.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrFlashSaleNotActive)

	// 活动校验发生在扣减之前，计数器不应被触碰
	remaining, _ := f.guard.GetStock(context.Background(), "fs-1")
	assert.Equal(t, 5, remaining)
}

func TestCreateOrderCompensatesFlashSaleOnReserveFailure(t *testing.T) {
	f := newFixture()
	f.activeFlashSale("fs-1", 5)
	f.inventory.reserveOK = false

	req := &CreateOrderRequest{
		UserID:   "user-1",
		Currency: "USD",
		Items: []CreateOrderItem{
			{ProductID: "p-flash", FlashSaleID: "fs-1", Quantity: 2, Price: "8.00"},
			{ProductID: "p-1", Quantity: 1, Price: "10.00"},
		},
	}
	_, err := f.service.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrStockReservationFailed)

	// 已扣减的秒杀计数器必须补偿回初始值
	remaining, _ := f.guard.GetStock(context.Background(), "fs-1")
	assert.Equal(t, 5, remaining)
	assert.Equal(t, 0, f.orderRepo.saves)
}

func TestCreateOrderCompensatesOnPersistFailure(t *testing.T) {
	f := newFixture()
	f.activeFlashSale("fs-1", 5)
	f.orderRepo.saveErr = errors.New("mysql is down")

	req := &CreateOrderRequest{
		UserID:   "user-1",
		Currency: "USD",
		Items: []CreateOrderItem{
			{ProductID: "p-flash", FlashSaleID: "fs-1", Quantity: 2, Price: "8.00"},
			{ProductID: "p-1", Quantity: 1, Price: "10.00"},
		},
	}
	_, err := f.service.CreateOrder(context.Background(), req)
	require.Error(t, err)

	remaining, _ := f.guard.GetStock(context.Background(), "fs-1")
	assert.Equal(t, 5, remaining)
	// 普通预占也要释放
	require.Len(t, f.inventory.released, 1)
	assert.Equal(t, map[string]int{"p-1": 1}, f.inventory.released[0])
	assert.Empty(t, f.publisher.events)
}

// ---- 生命周期流转 ----

func TestPayOrderStagesPaidEvent(t *testing.T) {
	f := newFixture()
	order := f.seedOrder(t, nil)

	view, err := f.service.PayOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "PAID", view.Status)

	staged := f.orderRepo.staged[order.ID]
	require.Len(t, staged, 1)
	assert.Equal(t, domain.EventTypeOrderPaid, staged[0].EventType())
	require.Len(t, f.publisher.events, 1)
}

func TestCancelDeliveredOrderRejected(t *testing.T) {
	f := newFixture()
	order := f.seedOrder(t, func(o *domain.Order) {
		require.NoError(t, o.Pay())
		require.NoError(t, o.Ship("TN-1", "dhl"))
		require.NoError(t, o.MarkDelivered())
	})

	_, err := f.service.CancelOrder(context.Background(), order.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidOrderState)

	// 拒绝的流转不落库、不发事件
	assert.Equal(t, domain.StatusDelivered, order.Status)
	assert.Equal(t, 0, f.orderRepo.saves)
	assert.Empty(t, f.publisher.events)
}

func TestShipUnknownOrder(t *testing.T) {
	f := newFixture()
	_, err := f.service.ShipOrder(context.Background(), &ShipOrderRequest{OrderID: "missing", TrackingNumber: "TN"})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestReturnLifecycle(t *testing.T) {
	f := newFixture()
	order := f.seedOrder(t, func(o *domain.Order) {
		require.NoError(t, o.Pay())
		require.NoError(t, o.Ship("TN-1", "dhl"))
		require.NoError(t, o.MarkDelivered())
	})

	view, err := f.service.RequestReturn(context.Background(), &ReturnRequest{OrderID: order.ID, Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, string(domain.ReturnRequested), view.ReturnStatus)

	view, err = f.service.ApproveReturn(context.Background(), &ApproveReturnRequest{OrderID: order.ID, RefundAmount: "20.00"})
	require.NoError(t, err)
	assert.Equal(t, "RETURNED", view.Status)
	assert.Equal(t, "20.00", view.RefundAmount)
}

// ---- 秒杀活动管理 ----

func TestCreateFlashSaleInitializesCounterWhenActive(t *testing.T) {
	f := newFixture()
	now := time.Now()

	view, err := f.service.CreateFlashSale(context.Background(), &CreateFlashSaleRequest{
		ProductID:     "p-flash",
		Price:         "8.00",
		OriginalPrice: "20.00",
		Currency:      "USD",
		StartTime:     now.Add(-time.Minute),
		EndTime:       now.Add(time.Hour),
		TotalQuantity: 100,
		Active:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", view.Status)
	assert.Equal(t, 100, view.RemainingStock)

	remaining, _ := f.guard.GetStock(context.Background(), view.ID)
	assert.Equal(t, 100, remaining)
}

func TestGetFlashSaleSyncsReadModel(t *testing.T) {
	f := newFixture()
	f.activeFlashSale("fs-1", 10)
	// 模拟计数器已被扣到 4，读模型还停留在 10
	require.NoError(t, f.guard.SetStock(context.Background(), "fs-1", 4))

	view, err := f.service.GetFlashSale(context.Background(), "fs-1")
	require.NoError(t, err)
	assert.Equal(t, 4, view.RemainingStock)
	assert.Equal(t, 4, f.saleRepo.sales["fs-1"].RemainingQuantity)
}
