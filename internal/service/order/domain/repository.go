// internal/service/order/domain/repository.go
package domain

import "context"

// OrderRepository 定义了订单聚合的持久化接口。
// 它位于领域层，但由基础设施层实现。
//
// Save 除了订单本身，还要把同批 drain 出来的领域事件作为 outbox
// 条目写入，两者必须在同一个本地事务中提交。
type OrderRepository interface {
	Save(ctx context.Context, order *Order, events []Event) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByUserID(ctx context.Context, userID string) ([]*Order, error)
	FindAll(ctx context.Context) ([]*Order, error)
	Count(ctx context.Context) (int64, error)
}

// FlashSaleRepository 定义了秒杀活动记录的持久化接口。
// 数据库中的剩余数量只是读模型，准入控制走 FlashSaleStockGuard。
type FlashSaleRepository interface {
	Save(ctx context.Context, sale *FlashSale) error
	FindByID(ctx context.Context, id string) (*FlashSale, error)
	// SyncRemaining 把计数器快照回写到读模型字段。
	SyncRemaining(ctx context.Context, id string, remaining int) error
}
