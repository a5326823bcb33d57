// internal/service/order/infrastructure/mapper.go
package infrastructure

import (
	"meridian/internal/service/order/domain"
)

// ToOrderModel 把订单聚合转换为数据库模型
func ToOrderModel(o *domain.Order) *OrderModel {
	model := &OrderModel{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		Currency:        o.TotalAmount.Currency,
		TotalAmount:     o.TotalAmount.Amount,
		TrackingNumber:  o.TrackingNumber,
		TrackingCarrier: o.TrackingCarrier,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		ReturnStatus:    string(o.ReturnStatus),
		ReturnReason:    o.ReturnReason,
		ReturnNote:      o.ReturnNote,
		ReturnRequested: o.ReturnRequestedAt,
		ReturnResolved:  o.ReturnResolvedAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.RefundAmount != nil {
		amount := o.RefundAmount.Amount
		model.RefundAmount = &amount
	}
	for _, item := range o.Items {
		model.Items = append(model.Items, OrderItemModel{
			OrderID:     o.ID,
			ProductID:   item.ProductID,
			VariantSKU:  item.VariantSKU,
			FlashSaleID: item.FlashSaleID,
			Quantity:    item.Quantity,
			Price:       item.UnitPrice.Amount,
		})
	}
	return model
}

// ToDomainOrder 把数据库模型还原为订单聚合
func ToDomainOrder(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:                m.ID,
		UserID:            m.UserID,
		Status:            domain.Status(m.Status),
		TotalAmount:       domain.NewMoney(m.TotalAmount, m.Currency),
		TrackingNumber:    m.TrackingNumber,
		TrackingCarrier:   m.TrackingCarrier,
		ShippedAt:         m.ShippedAt,
		DeliveredAt:       m.DeliveredAt,
		ReturnStatus:      domain.ReturnStatus(m.ReturnStatus),
		ReturnReason:      m.ReturnReason,
		ReturnNote:        m.ReturnNote,
		ReturnRequestedAt: m.ReturnRequested,
		ReturnResolvedAt:  m.ReturnResolved,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.RefundAmount != nil {
		refund := domain.NewMoney(*m.RefundAmount, m.Currency)
		o.RefundAmount = &refund
	}
	for _, item := range m.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ProductID:   item.ProductID,
			VariantSKU:  item.VariantSKU,
			FlashSaleID: item.FlashSaleID,
			Quantity:    item.Quantity,
			UnitPrice:   domain.NewMoney(item.Price, m.Currency),
		})
	}
	return o
}

// ToOutboxModel 把 outbox 条目转换为数据库模型
func ToOutboxModel(e *domain.OutboxEntry) *OutboxModel {
	return &OutboxModel{
		ID:          e.ID,
		AggregateID: e.AggregateID,
		Type:        e.Type,
		Payload:     e.Payload,
		Status:      string(e.Status),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// ToDomainOutboxEntry 把数据库模型还原为 outbox 条目
func ToDomainOutboxEntry(m *OutboxModel) *domain.OutboxEntry {
	return &domain.OutboxEntry{
		ID:          m.ID,
		AggregateID: m.AggregateID,
		Type:        m.Type,
		Payload:     m.Payload,
		Status:      domain.OutboxStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ToFlashSaleModel 把秒杀活动转换为数据库模型
func ToFlashSaleModel(f *domain.FlashSale) *FlashSaleModel {
	return &FlashSaleModel{
		ID:                f.ID,
		ProductID:         f.ProductID,
		Price:             f.Price.Amount,
		OriginalPrice:     f.OriginalPrice.Amount,
		Currency:          f.Price.Currency,
		StartTime:         f.StartTime,
		EndTime:           f.EndTime,
		TotalQuantity:     f.TotalQuantity,
		RemainingQuantity: f.RemainingQuantity,
		Status:            string(f.Status),
	}
}

// ToDomainFlashSale 把数据库模型还原为秒杀活动
func ToDomainFlashSale(m *FlashSaleModel) *domain.FlashSale {
	return &domain.FlashSale{
		ID:                m.ID,
		ProductID:         m.ProductID,
		Price:             domain.NewMoney(m.Price, m.Currency),
		OriginalPrice:     domain.NewMoney(m.OriginalPrice, m.Currency),
		StartTime:         m.StartTime,
		EndTime:           m.EndTime,
		TotalQuantity:     m.TotalQuantity,
		RemainingQuantity: m.RemainingQuantity,
		Status:            domain.FlashSaleStatus(m.Status),
	}
}
