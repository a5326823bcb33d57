// internal/service/order/domain/event.go
package domain

import "time"

// Event 是订单聚合产生的领域事件。
// 事件先缓存在聚合内部，由应用层 Drain 后写入 outbox 并发布。
type Event interface {
	EventType() string
	AggregateID() string
}

const (
	EventTypeOrderCreated   = "order.created"
	EventTypeOrderPaid      = "order.paid"
	EventTypeOrderCancelled = "order.cancelled"
)

// OrderCreated 在订单聚合构建成功时发布
type OrderCreated struct {
	OrderID     string    `json:"orderId"`
	UserID      string    `json:"userId"`
	TotalAmount string    `json:"totalAmount"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (e *OrderCreated) EventType() string   { return EventTypeOrderCreated }
func (e *OrderCreated) AggregateID() string { return e.OrderID }

// PaidItem 是支付事件中携带的商品条目
type PaidItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderPaid 在订单支付成功时发布，携带当前的商品清单
type OrderPaid struct {
	OrderID string     `json:"orderId"`
	PaidAt  time.Time  `json:"paidAt"`
	Items   []PaidItem `json:"items"`
}

func (e *OrderPaid) EventType() string   { return EventTypeOrderPaid }
func (e *OrderPaid) AggregateID() string { return e.OrderID }

// OrderCancelled 在订单取消时发布
type OrderCancelled struct {
	OrderID     string    `json:"orderId"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelledAt"`
}

func (e *OrderCancelled) EventType() string   { return EventTypeOrderCancelled }
func (e *OrderCancelled) AggregateID() string { return e.OrderID }
