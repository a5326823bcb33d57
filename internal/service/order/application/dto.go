// internal/service/order/application/dto.go
package application

import (
	"time"

	"meridian/internal/service/order/domain"
)

// CreateOrderItem 是创建订单请求中的一个条目。
// Price 为十进制字符串；FlashSaleID 非空表示走秒杀库存。
type CreateOrderItem struct {
	ProductID   string `json:"productId"`
	VariantSKU  string `json:"variantSku,omitempty"`
	FlashSaleID string `json:"flashSaleId,omitempty"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
}

// CreateOrderRequest 是创建订单用例的输入数据
type CreateOrderRequest struct {
	UserID   string            `json:"userId"`
	Currency string            `json:"currency"`
	Items    []CreateOrderItem `json:"items"`
}

// ShipOrderRequest 是发货用例的输入数据
type ShipOrderRequest struct {
	OrderID         string `json:"orderId"`
	TrackingNumber  string `json:"trackingNumber"`
	TrackingCarrier string `json:"trackingCarrier"`
}

// ReturnRequest 是发起退货用例的输入数据
type ReturnRequest struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
	Note    string `json:"note,omitempty"`
}

// ApproveReturnRequest 是批准退货用例的输入数据
type ApproveReturnRequest struct {
	OrderID      string `json:"orderId"`
	RefundAmount string `json:"refundAmount"`
	Note         string `json:"note,omitempty"`
}

// CreateFlashSaleRequest 是创建秒杀活动用例的输入数据
type CreateFlashSaleRequest struct {
	ProductID     string    `json:"productId"`
	Price         string    `json:"price"`
	OriginalPrice string    `json:"originalPrice"`
	Currency      string    `json:"currency"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	TotalQuantity int       `json:"totalQuantity"`
	Active        bool      `json:"active"`
}

// OrderItemView 是订单条目的对外投影
type OrderItemView struct {
	ProductID   string `json:"productId"`
	VariantSKU  string `json:"variantSku,omitempty"`
	FlashSaleID string `json:"flashSaleId,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	Subtotal    string `json:"subtotal"`
}

// OrderView 是订单聚合的对外投影
type OrderView struct {
	OrderID         string          `json:"orderId"`
	UserID          string          `json:"userId"`
	Status          string          `json:"status"`
	Items           []OrderItemView `json:"items"`
	TotalAmount     string          `json:"totalAmount"`
	Currency        string          `json:"currency"`
	TrackingNumber  string          `json:"trackingNumber,omitempty"`
	TrackingCarrier string          `json:"trackingCarrier,omitempty"`
	ShippedAt       *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`
	ReturnStatus    string          `json:"returnStatus"`
	ReturnReason    string          `json:"returnReason,omitempty"`
	RefundAmount    string          `json:"refundAmount,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// FlashSaleView 是秒杀活动的对外投影。
// RemainingStock 来自 Redis 计数器快照，仅用于展示。
type FlashSaleView struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"productId"`
	Price          string    `json:"price"`
	OriginalPrice  string    `json:"originalPrice"`
	Currency       string    `json:"currency"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	TotalQuantity  int       `json:"totalQuantity"`
	RemainingStock int       `json:"remainingStock"`
	Status         string    `json:"status"`
}

// ToOrderView 把订单聚合转换为对外投影
func ToOrderView(o *domain.Order) *OrderView {
	items := make([]OrderItemView, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemView{
			ProductID:   item.ProductID,
			VariantSKU:  item.VariantSKU,
			FlashSaleID: item.FlashSaleID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.Amount.StringFixed(2),
			Subtotal:    item.Subtotal().Amount.StringFixed(2),
		})
	}

	view := &OrderView{
		OrderID:         o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		Items:           items,
		TotalAmount:     o.TotalAmount.Amount.StringFixed(2),
		Currency:        o.TotalAmount.Currency,
		TrackingNumber:  o.TrackingNumber,
		TrackingCarrier: o.TrackingCarrier,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		ReturnStatus:    string(o.ReturnStatus),
		ReturnReason:    o.ReturnReason,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.RefundAmount != nil {
		view.RefundAmount = o.RefundAmount.Amount.StringFixed(2)
	}
	return view
}

// ToFlashSaleView 把秒杀活动转换为对外投影
func ToFlashSaleView(f *domain.FlashSale, remainingStock int) *FlashSaleView {
	return &FlashSaleView{
		ID:             f.ID,
		ProductID:      f.ProductID,
		Price:          f.Price.Amount.StringFixed(2),
		OriginalPrice:  f.OriginalPrice.Amount.StringFixed(2),
		Currency:       f.Price.Currency,
		StartTime:      f.StartTime,
		EndTime:        f.EndTime,
		TotalQuantity:  f.TotalQuantity,
		RemainingStock: remainingStock,
		Status:         string(f.Status),
	}
}
