package port

import "context"

// InventoryService 是普通（非秒杀）库存的出站端口。
type InventoryService interface {
	// ReserveStock 为订单预占一批商品库存，返回是否全部预占成功。
	// 返回 false 或 error 时，实现必须已释放本次调用中已成功预占的
	// 条目，不会留下部分预占。
	ReserveStock(ctx context.Context, orderID string, items map[string]int) (bool, error)

	// ReleaseStock 是 ReserveStock 的补偿操作。
	ReleaseStock(ctx context.Context, orderID string, items map[string]int) error
}
