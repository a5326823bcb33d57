// internal/service/order/domain/order.go
package domain

import (
	"strings"
	"time"
)

// OrderItem 是订单中的一个商品条目值对象。
// FlashSaleID 非空表示该条目占用秒杀库存。
type OrderItem struct {
	ProductID   string
	VariantSKU  string
	FlashSaleID string
	Quantity    int
	UnitPrice   Money
}

// Subtotal 返回 单价 * 数量，保留两位小数（half-up）。
func (i OrderItem) Subtotal() Money {
	return i.UnitPrice.MulInt(i.Quantity)
}

// Order 是订单聚合的根实体。
// 不变量：TotalAmount 始终等于所有条目小计之和，且币种一致；
// 状态只能通过自身的流转方法改变，每次合法流转可能在 pendingEvents
// 中缓存一个领域事件，由应用层统一 Drain。
// 聚合本身不触碰存储和消息总线。
type Order struct {
	ID          string
	UserID      string
	Status      Status
	Items       []OrderItem
	TotalAmount Money

	TrackingNumber  string
	TrackingCarrier string
	ShippedAt       *time.Time
	DeliveredAt     *time.Time

	ReturnStatus      ReturnStatus
	ReturnReason      string
	ReturnNote        string
	ReturnRequestedAt *time.Time
	ReturnResolvedAt  *time.Time
	RefundAmount      *Money

	CreatedAt time.Time
	UpdatedAt time.Time

	pendingEvents []Event
}

// NewOrder 构建一个新的订单聚合，初始状态为 PENDING，
// 并缓存一条 OrderCreated 事件（仅构建时一次）。
func NewOrder(id, userID, currency string, items []OrderItem) (*Order, error) {
	if id == "" || userID == "" {
		return nil, newInvalidState("create", "non-empty id and userId", "<empty>")
	}
	if len(items) == 0 {
		return nil, newInvalidState("create", "at least one item", "no items")
	}

	now := time.Now()
	o := &Order{
		ID:           id,
		UserID:       userID,
		Status:       StatusPending,
		ReturnStatus: ReturnNone,
		TotalAmount:  NewMoney(zeroDecimal(), currency),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, item := range items {
		if err := o.appendItem(item); err != nil {
			return nil, err
		}
	}

	o.buffer(&OrderCreated{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount.Amount.StringFixed(2),
		Currency:    o.TotalAmount.Currency,
		CreatedAt:   o.CreatedAt,
	})
	return o, nil
}

// AddItem 追加一个商品条目并重算总额。
func (o *Order) AddItem(item OrderItem) error {
	if err := o.appendItem(item); err != nil {
		return err
	}
	o.touch()
	return nil
}

// Pay 将订单从 PENDING 流转为 PAID，缓存 OrderPaid 事件。
func (o *Order) Pay() error {
	next, err := nextStatus(o.Status, ActionPay)
	if err != nil {
		return err
	}
	o.Status = next
	o.touch()

	paidItems := make([]PaidItem, 0, len(o.Items))
	for _, item := range o.Items {
		paidItems = append(paidItems, PaidItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	o.buffer(&OrderPaid{OrderID: o.ID, PaidAt: o.UpdatedAt, Items: paidItems})
	return nil
}

// Ship 记录发货信息并流转为 SHIPPING。运单号不能为空。
func (o *Order) Ship(trackingNumber, trackingCarrier string) error {
	if strings.TrimSpace(trackingNumber) == "" {
		return newInvalidState("ship", "non-blank tracking number", "<blank>")
	}
	next, err := nextStatus(o.Status, ActionShip)
	if err != nil {
		return err
	}
	o.Status = next
	o.TrackingNumber = trackingNumber
	o.TrackingCarrier = trackingCarrier
	now := time.Now()
	o.ShippedAt = &now
	o.touch()
	return nil
}

// MarkDelivered 将在途订单标记为已签收。
func (o *Order) MarkDelivered() error {
	next, err := nextStatus(o.Status, ActionDeliver)
	if err != nil {
		return err
	}
	o.Status = next
	now := time.Now()
	o.DeliveredAt = &now
	o.touch()
	return nil
}

// RequestReturn 在签收后发起退货申请，每个订单最多一次。
func (o *Order) RequestReturn(reason, note string) error {
	if o.Status != StatusDelivered {
		return newInvalidState("request return", string(StatusDelivered), string(o.Status))
	}
	if o.ReturnStatus != ReturnNone {
		return newInvalidState("request return", "return status "+string(ReturnNone), "return status "+string(o.ReturnStatus))
	}
	o.ReturnStatus = ReturnRequested
	o.ReturnReason = reason
	o.ReturnNote = note
	now := time.Now()
	o.ReturnRequestedAt = &now
	o.touch()
	return nil
}

// ApproveReturn 批准退货：订单进入 RETURNED，记录退款金额。
func (o *Order) ApproveReturn(refund Money, note string) error {
	if o.ReturnStatus != ReturnRequested {
		return newInvalidState("approve return", "return status "+string(ReturnRequested), "return status "+string(o.ReturnStatus))
	}
	next, err := nextStatus(o.Status, ActionApproveReturn)
	if err != nil {
		return err
	}
	o.Status = next
	o.ReturnStatus = ReturnApproved
	o.ReturnNote = note
	o.RefundAmount = &refund
	now := time.Now()
	o.ReturnResolvedAt = &now
	o.touch()
	return nil
}

// RejectReturn 驳回退货申请，订单主状态不变。
func (o *Order) RejectReturn(note string) error {
	if o.ReturnStatus != ReturnRequested {
		return newInvalidState("reject return", "return status "+string(ReturnRequested), "return status "+string(o.ReturnStatus))
	}
	o.ReturnStatus = ReturnRejected
	o.ReturnNote = note
	now := time.Now()
	o.ReturnResolvedAt = &now
	o.touch()
	return nil
}

// Cancel 取消订单，只允许在 PENDING 或 PAID 状态下进行。
func (o *Order) Cancel(reason string) error {
	next, err := nextStatus(o.Status, ActionCancel)
	if err != nil {
		return err
	}
	o.Status = next
	o.touch()
	o.buffer(&OrderCancelled{OrderID: o.ID, Reason: reason, CancelledAt: o.UpdatedAt})
	return nil
}

// PendingEvents 返回当前缓存的事件副本，不清空缓冲区。
func (o *Order) PendingEvents() []Event {
	events := make([]Event, len(o.pendingEvents))
	copy(events, o.pendingEvents)
	return events
}

// DrainEvents 取出并清空缓存的事件，事件保持缓存时的顺序。
func (o *Order) DrainEvents() []Event {
	events := o.pendingEvents
	o.pendingEvents = nil
	return events
}

func (o *Order) buffer(event Event) {
	o.pendingEvents = append(o.pendingEvents, event)
}

func (o *Order) appendItem(item OrderItem) error {
	if item.ProductID == "" || item.Quantity <= 0 {
		return newInvalidState("add item", "productId and quantity > 0", "invalid item")
	}
	o.Items = append(o.Items, item)
	return o.recomputeTotal()
}

// recomputeTotal 重算总额，任何条目币种不一致都会让整个操作失败。
func (o *Order) recomputeTotal() error {
	total := NewMoney(zeroDecimal(), o.TotalAmount.Currency)
	for _, item := range o.Items {
		sum, err := total.Add(item.Subtotal())
		if err != nil {
			return err
		}
		total = sum
	}
	o.TotalAmount = total
	return nil
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now()
}
