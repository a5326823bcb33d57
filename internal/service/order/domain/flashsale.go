// internal/service/order/domain/flashsale.go
package domain

import "time"

// FlashSaleStatus 是秒杀活动的生命周期状态
type FlashSaleStatus string

const (
	FlashSalePending   FlashSaleStatus = "PENDING"
	FlashSaleActive    FlashSaleStatus = "ACTIVE"
	FlashSaleEnded     FlashSaleStatus = "ENDED"
	FlashSaleCancelled FlashSaleStatus = "CANCELLED"
)

// FlashSale 是限时限量的秒杀活动。
// RemainingQuantity 只是数据库里的最终一致读模型，
// 准入控制依据的是 Redis 中的共享计数器（flashsale:{id}:stock）。
type FlashSale struct {
	ID                string
	ProductID         string
	Price             Money
	OriginalPrice     Money
	StartTime         time.Time
	EndTime           time.Time
	TotalQuantity     int
	RemainingQuantity int
	Status            FlashSaleStatus
}

// IsActive 判断活动在给定时刻是否可下单。
func (f *FlashSale) IsActive(now time.Time) bool {
	return f.Status == FlashSaleActive && !now.Before(f.StartTime) && now.Before(f.EndTime)
}
