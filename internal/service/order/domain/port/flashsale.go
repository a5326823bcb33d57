package port

import "context"

// FlashSaleStockGuard 是秒杀库存的准入控制原语。
//
// DecrementStock 必须作为单次原子操作执行：读取当前值，足够则扣减并
// 返回 true，否则不动计数器返回 false。检查和扣减对并发调用方不可分，
// 计数器永远不会为负。
type FlashSaleStockGuard interface {
	DecrementStock(ctx context.Context, flashSaleID string, quantity int) (bool, error)

	// IncrementStock 把数量加回计数器，用于扣减后续步骤失败时的补偿。
	IncrementStock(ctx context.Context, flashSaleID string, quantity int) error

	// SetStock 在活动以 ACTIVE 状态创建时初始化计数器。
	SetStock(ctx context.Context, flashSaleID string, quantity int) error

	// GetStock 返回计数器的非权威快照，仅用于展示。
	GetStock(ctx context.Context, flashSaleID string) (int, error)
}
