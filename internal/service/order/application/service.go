// internal/service/order/application/service.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"meridian/internal/pkg/logger"
	"meridian/internal/service/order/domain"
	"meridian/internal/service/order/domain/port"
)

var (
	ordersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_created_total",
		Help: "Number of orders successfully created.",
	})
	flashSaleRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_flash_sale_rejected_total",
		Help: "Number of order placements rejected by flash-sale stock admission.",
	})
)

// OrderApplicationService 编排订单的创建与生命周期流转。
// 领域规则在聚合内部，这里只负责端口调用的顺序、补偿和事件投递。
type OrderApplicationService struct {
	orderRepo     domain.OrderRepository
	flashSaleRepo domain.FlashSaleRepository

	pricingService   port.PricingService
	inventoryService port.InventoryService
	stockGuard       port.FlashSaleStockGuard
	publisher        port.EventPublisher

	tracer trace.Tracer
}

func NewOrderApplicationService(
	orderRepo domain.OrderRepository,
	flashSaleRepo domain.FlashSaleRepository,
	pricingService port.PricingService,
	inventoryService port.InventoryService,
	stockGuard port.FlashSaleStockGuard,
	publisher port.EventPublisher,
	tracer trace.Tracer,
) *OrderApplicationService {
	return &OrderApplicationService{
		orderRepo:        orderRepo,
		flashSaleRepo:    flashSaleRepo,
		pricingService:   pricingService,
		inventoryService: inventoryService,
		stockGuard:       stockGuard,
		publisher:        publisher,
		tracer:           tracer,
	}
}

// CreateOrder 是下单工作流：
//
//  1. 按是否携带 flashSaleId 把条目分成普通和秒杀两组；
//  2. 普通条目批量解析目录价，解析不到的回退为调用方价格；
//  3. 秒杀条目校验活动存在且处于时间窗口内，价格直接采用调用方价格；
//  4. 先做秒杀计数器的原子扣减，再做普通库存预占——所有稀缺资源
//     都拿到之后才落库，任何一步失败都把已扣减的计数器补偿回去，
//     不会留下已提交却无人认领的预占；
//  5. 订单行、条目和 drain 出的事件（outbox 条目）在同一个事务提交；
//  6. 提交后在直连路径上 best-effort 发布事件，outbox relay 兜底。
func (s *OrderApplicationService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", req.UserID),
		attribute.Int("order.item_count", len(req.Items)),
	)

	items, err := s.resolveItems(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve order items")
		return nil, err
	}

	orderID := uuid.New().String()

	// 秒杀准入：原子扣减每个秒杀条目的共享计数器。
	// decremented 记录已成功扣减的条目，后续任何失败都按它补偿。
	decremented := make([]domain.OrderItem, 0)
	compensate := func() {
		for _, item := range decremented {
			if err := s.stockGuard.IncrementStock(ctx, item.FlashSaleID, item.Quantity); err != nil {
				logger.Ctx(ctx).Error().Err(err).
					Str("flash_sale_id", item.FlashSaleID).
					Int("quantity", item.Quantity).
					Msg("failed to compensate flash sale stock, counter is now under-counted")
			}
		}
	}

	for _, item := range items {
		if item.FlashSaleID == "" {
			continue
		}
		ok, err := s.stockGuard.DecrementStock(ctx, item.FlashSaleID, item.Quantity)
		if err != nil {
			compensate()
			span.RecordError(err)
			return nil, err
		}
		if !ok {
			compensate()
			flashSaleRejectedTotal.Inc()
			span.AddEvent("flash sale stock exhausted",
				trace.WithAttributes(attribute.String("flash_sale.id", item.FlashSaleID)))
			return nil, domain.ErrFlashSaleStockExhausted
		}
		decremented = append(decremented, item)
	}

	// 普通库存预占。端口只给一个布尔信号，失败同样触发秒杀补偿。
	standard := make(map[string]int)
	for _, item := range items {
		if item.FlashSaleID == "" {
			standard[item.ProductID] += item.Quantity
		}
	}
	if len(standard) > 0 {
		ok, err := s.inventoryService.ReserveStock(ctx, orderID, standard)
		if err != nil {
			compensate()
			span.RecordError(err)
			return nil, err
		}
		if !ok {
			compensate()
			return nil, domain.ErrStockReservationFailed
		}
	}

	order, err := domain.NewOrder(orderID, req.UserID, req.Currency, items)
	if err != nil {
		compensate()
		s.releaseStandard(ctx, orderID, standard)
		span.RecordError(err)
		return nil, err
	}

	// 订单 + outbox 条目单事务落库
	events := order.DrainEvents()
	if err := s.orderRepo.Save(ctx, order, events); err != nil {
		compensate()
		s.releaseStandard(ctx, orderID, standard)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist order")
		return nil, err
	}

	s.publishEvents(ctx, events)
	ordersCreatedTotal.Inc()
	span.AddEvent("order created and events staged")
	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("user_id", order.UserID).
		Str("total", order.TotalAmount.String()).
		Msg("order created")
	return ToOrderView(order), nil
}

// resolveItems 把请求条目解析为带权威价格的领域条目。
func (s *OrderApplicationService) resolveItems(ctx context.Context, req *CreateOrderRequest) ([]domain.OrderItem, error) {
	standardIDs := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if item.FlashSaleID == "" {
			standardIDs = append(standardIDs, item.ProductID)
		}
	}

	catalogPrices := map[string]domain.Money{}
	if len(standardIDs) > 0 {
		prices, err := s.pricingService.LoadPrices(ctx, req.Currency, standardIDs)
		if err != nil {
			return nil, err
		}
		catalogPrices = prices
	}

	now := time.Now()
	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, in := range req.Items {
		price, err := domain.NewMoneyFromString(in.Price, req.Currency)
		if err != nil {
			return nil, err
		}

		if in.FlashSaleID != "" {
			// 秒杀条目使用调用方传入的活动价，不再回查目录
			sale, err := s.flashSaleRepo.FindByID(ctx, in.FlashSaleID)
			if err != nil {
				return nil, err
			}
			if sale == nil {
				return nil, domain.ErrFlashSaleNotFound
			}
			if !sale.IsActive(now) {
				return nil, domain.ErrFlashSaleNotActive
			}
		} else if catalog, ok := catalogPrices[in.ProductID]; ok {
			price = catalog
		} else {
			// 目录中没有价格时回退为调用方价格，留一条日志便于追查
			logger.Ctx(ctx).Warn().
				Str("product_id", in.ProductID).
				Str("currency", req.Currency).
				Msg("no catalog price resolved, falling back to caller-supplied price")
		}

		items = append(items, domain.OrderItem{
			ProductID:   in.ProductID,
			VariantSKU:  in.VariantSKU,
			FlashSaleID: in.FlashSaleID,
			Quantity:    in.Quantity,
			UnitPrice:   price,
		})
	}
	return items, nil
}

func (s *OrderApplicationService) releaseStandard(ctx context.Context, orderID string, items map[string]int) {
	if len(items) == 0 {
		return
	}
	if err := s.inventoryService.ReleaseStock(ctx, orderID, items); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Msg("failed to release standard stock reservation")
	}
}

// PayOrder 将订单流转为已支付。
func (s *OrderApplicationService) PayOrder(ctx context.Context, orderID string) (*OrderView, error) {
	return s.applyAndSave(ctx, "app.PayOrder", orderID, func(o *domain.Order) error {
		return o.Pay()
	})
}

// CancelOrder 取消订单。
func (s *OrderApplicationService) CancelOrder(ctx context.Context, orderID, reason string) (*OrderView, error) {
	return s.applyAndSave(ctx, "app.CancelOrder", orderID, func(o *domain.Order) error {
		return o.Cancel(reason)
	})
}

// ShipOrder 记录发货信息。
func (s *OrderApplicationService) ShipOrder(ctx context.Context, req *ShipOrderRequest) (*OrderView, error) {
	return s.applyAndSave(ctx, "app.ShipOrder", req.OrderID, func(o *domain.Order) error {
		return o.Ship(req.TrackingNumber, req.TrackingCarrier)
	})
}

// MarkDelivered 将在途订单标记为已签收。
func (s *OrderApplicationService) MarkDelivered(ctx context.Context, orderID string) (*OrderView, error) {
	return s.applyAndSave(ctx, "app.MarkDelivered", orderID, func(o *domain.Order) error {
		return o.MarkDelivered()
	})
}

// RequestReturn 发起退货申请。
func (s *OrderApplicationService) RequestReturn(ctx context.Context, req *ReturnRequest) (*OrderView, error) {
	return s.applyAndSave(ctx, "app.RequestReturn", req.OrderID, func(o *domain.Order) error {
		return o.RequestReturn(req.Reason, req.Note)
	})
}

// ApproveReturn 批准退货并记录退款金额。
func (s *OrderApplicationService) ApproveReturn(ctx context.Context, req *ApproveReturnRequest) (*OrderView, error) {
	return s.applyAndSave(ctx, "app.ApproveReturn", req.OrderID, func(o *domain.Order) error {
		refund, err := domain.NewMoneyFromString(req.RefundAmount, o.TotalAmount.Currency)
		if err != nil {
			return err
		}
		return o.ApproveReturn(refund, req.Note)
	})
}

// RejectReturn 驳回退货申请。
func (s *OrderApplicationService) RejectReturn(ctx context.Context, orderID, note string) (*OrderView, error) {
	return s.applyAndSave(ctx, "app.RejectReturn", orderID, func(o *domain.Order) error {
		return o.RejectReturn(note)
	})
}

// GetOrder 返回订单投影。
func (s *OrderApplicationService) GetOrder(ctx context.Context, orderID string) (*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetOrder")
	defer span.End()

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return ToOrderView(order), nil
}

// ListOrders 返回某个用户的订单列表；userID 为空则返回全部。
func (s *OrderApplicationService) ListOrders(ctx context.Context, userID string) ([]*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "app.ListOrders")
	defer span.End()

	var (
		orders []*domain.Order
		err    error
	)
	if userID == "" {
		orders, err = s.orderRepo.FindAll(ctx)
	} else {
		orders, err = s.orderRepo.FindByUserID(ctx, userID)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	views := make([]*OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, ToOrderView(o))
	}
	return views, nil
}

// CountOrders 返回订单总数。
func (s *OrderApplicationService) CountOrders(ctx context.Context) (int64, error) {
	return s.orderRepo.Count(ctx)
}

// CreateFlashSale 创建秒杀活动；ACTIVE 状态的活动同时初始化 Redis 计数器。
func (s *OrderApplicationService) CreateFlashSale(ctx context.Context, req *CreateFlashSaleRequest) (*FlashSaleView, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateFlashSale")
	defer span.End()

	price, err := domain.NewMoneyFromString(req.Price, req.Currency)
	if err != nil {
		return nil, err
	}
	originalPrice, err := domain.NewMoneyFromString(req.OriginalPrice, req.Currency)
	if err != nil {
		return nil, err
	}

	status := domain.FlashSalePending
	if req.Active {
		status = domain.FlashSaleActive
	}
	sale := &domain.FlashSale{
		ID:                uuid.New().String(),
		ProductID:         req.ProductID,
		Price:             price,
		OriginalPrice:     originalPrice,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		TotalQuantity:     req.TotalQuantity,
		RemainingQuantity: req.TotalQuantity,
		Status:            status,
	}

	if err := s.flashSaleRepo.Save(ctx, sale); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if sale.Status == domain.FlashSaleActive {
		if err := s.stockGuard.SetStock(ctx, sale.ID, sale.TotalQuantity); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to initialize flash sale counter")
			return nil, err
		}
	}

	logger.Ctx(ctx).Info().Str("flash_sale_id", sale.ID).Str("product_id", sale.ProductID).
		Int("quantity", sale.TotalQuantity).Msg("flash sale created")
	return ToFlashSaleView(sale, sale.TotalQuantity), nil
}

// GetFlashSale 返回活动记录与计数器快照，并顺带把读模型回写一次。
func (s *OrderApplicationService) GetFlashSale(ctx context.Context, id string) (*FlashSaleView, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetFlashSale")
	defer span.End()

	sale, err := s.flashSaleRepo.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if sale == nil {
		return nil, domain.ErrFlashSaleNotFound
	}

	remaining, err := s.stockGuard.GetStock(ctx, id)
	if err != nil {
		// 快照拿不到时退回读模型的值，不让展示路径失败
		logger.Ctx(ctx).Warn().Err(err).Str("flash_sale_id", id).Msg("failed to read flash sale counter snapshot")
		remaining = sale.RemainingQuantity
	} else if remaining != sale.RemainingQuantity {
		if err := s.flashSaleRepo.SyncRemaining(ctx, id, remaining); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("flash_sale_id", id).Msg("failed to sync remaining quantity read model")
		}
	}
	return ToFlashSaleView(sale, remaining), nil
}

// applyAndSave 加载聚合、应用一次状态流转、把订单和 drain 出的事件
// 落库，最后 best-effort 直接发布。流转失败时聚合未被修改，直接返回。
func (s *OrderApplicationService) applyAndSave(ctx context.Context, spanName, orderID string, apply func(*domain.Order) error) (*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := apply(order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "domain transition rejected")
		return nil, err
	}

	events := order.DrainEvents()
	if err := s.orderRepo.Save(ctx, order, events); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist order")
		return nil, err
	}

	s.publishEvents(ctx, events)
	return ToOrderView(order), nil
}

// publishEvents 是直连发布路径：失败只记日志，不影响请求结果，
// 可靠投递由 outbox relay 保证。
func (s *OrderApplicationService) publishEvents(ctx context.Context, events []domain.Event) {
	for _, event := range events {
		if err := s.publisher.Publish(ctx, event); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("event_type", event.EventType()).
				Str("aggregate_id", event.AggregateID()).
				Msg("direct publish failed, relying on outbox relay")
		}
	}
}
