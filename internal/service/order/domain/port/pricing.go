package port

import (
	"context"

	"meridian/internal/service/order/domain"
)

// PricingService 是商品目录定价的出站端口。
type PricingService interface {
	// LoadPrices 按币种批量解析一组商品的权威价格。
	// 返回的 map 里缺失的商品表示目录中没有可用价格。
	LoadPrices(ctx context.Context, currency string, productIDs []string) (map[string]domain.Money, error)
}
