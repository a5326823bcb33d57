package adapter

import (
	"context"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"meridian/internal/pkg/redis"
)

const decrementScriptName = "flashsale_decrement"

// FlashSaleRedisAdapter 是 port.FlashSaleStockGuard 的 Redis 实现。
// 检查与扣减在一段 Lua 脚本里完成，对并发调用方是单次原子操作，
// 任何第二个调用方都观察不到中间状态。
type FlashSaleRedisAdapter struct {
	redisClient *redis.Client
}

// NewFlashSaleRedisAdapter 创建适配器实例，创建时加载所需的 Lua 脚本。
func NewFlashSaleRedisAdapter(redisClient *redis.Client) (*FlashSaleRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(decrementScriptName, decrementScript); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to load flash sale decrement script")
	}
	return &FlashSaleRedisAdapter{redisClient: redisClient}, nil
}

func stockKey(flashSaleID string) string {
	// hash tag 保证集群模式下同一活动的 Key 落在同一 slot
	return fmt.Sprintf("flashsale:{%s}:stock", flashSaleID)
}

// DecrementStock 原子地检查并扣减库存计数器。
// 库存足够返回 true，不足返回 false 且计数器保持不变。
func (a *FlashSaleRedisAdapter) DecrementStock(ctx context.Context, flashSaleID string, quantity int) (bool, error) {
	result, err := a.redisClient.RunScript(ctx, decrementScriptName, []string{stockKey(flashSaleID)}, quantity)
	if err != nil {
		return false, pkgerrors.Wrap(err, "flash sale adapter failed to run script")
	}

	remaining, ok := result.(int64)
	if !ok {
		return false, pkgerrors.Errorf("unexpected result type from Lua script: %T", result)
	}
	// 脚本约定：扣减成功返回剩余量（>=0），库存不足返回 -1
	return remaining >= 0, nil
}

// IncrementStock 把数量加回计数器，用于补偿。
func (a *FlashSaleRedisAdapter) IncrementStock(ctx context.Context, flashSaleID string, quantity int) error {
	err := a.redisClient.GetClient().IncrBy(ctx, stockKey(flashSaleID), int64(quantity)).Err()
	return pkgerrors.Wrap(err, "failed to increment flash sale stock")
}

// SetStock 初始化库存计数器。
func (a *FlashSaleRedisAdapter) SetStock(ctx context.Context, flashSaleID string, quantity int) error {
	err := a.redisClient.GetClient().Set(ctx, stockKey(flashSaleID), quantity, 0).Err()
	return pkgerrors.Wrap(err, "failed to set flash sale stock")
}

// GetStock 返回计数器的非权威快照。
func (a *FlashSaleRedisAdapter) GetStock(ctx context.Context, flashSaleID string) (int, error) {
	val, err := a.redisClient.GetClient().Get(ctx, stockKey(flashSaleID)).Int()
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to get flash sale stock")
	}
	return val, nil
}

var decrementScript = `
-- KEYS[1]: 秒杀库存计数器, 例如: flashsale:{sale_123}:stock
-- ARGV[1]: 本次请求扣减的数量

local qty = tonumber(ARGV[1])
local stock = tonumber(redis.call('get', KEYS[1]))

-- 计数器不存在视为无库存
if not stock or stock < qty then
    return -1
end

-- 库存充足，扣减并返回剩余量
return redis.call('decrby', KEYS[1], qty)
`
