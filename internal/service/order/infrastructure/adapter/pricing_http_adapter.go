package adapter

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"meridian/internal/pkg/httpclient"
	"meridian/internal/service/order/domain"
)

const (
	pricingServiceName = "pricing-service"
	pricingLoadPath    = "/prices/batch"
)

// PricingHTTPAdapter 是 port.PricingService 的 HTTP 实现，
// 下游实例通过 Nacos 服务发现解析。
type PricingHTTPAdapter struct {
	client *httpclient.Client
}

// NewPricingHTTPAdapter 创建一个新的定价适配器。
func NewPricingHTTPAdapter(client *httpclient.Client) *PricingHTTPAdapter {
	return &PricingHTTPAdapter{client: client}
}

// LoadPrices 按币种批量解析商品价格。
// 下游没有收录的商品不会出现在返回的 map 中，由调用方决定回退策略。
func (a *PricingHTTPAdapter) LoadPrices(ctx context.Context, currency string, productIDs []string) (map[string]domain.Money, error) {
	params := url.Values{}
	params.Set("currency", currency)
	params.Set("productIds", strings.Join(productIDs, ","))

	resp, err := a.client.CallService(ctx, pricingServiceName, pricingLoadPath, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Prices map[string]string `json:"prices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, pkgerrors.Wrap(err, "decode pricing response")
	}

	prices := make(map[string]domain.Money, len(body.Prices))
	for productID, amount := range body.Prices {
		money, err := domain.NewMoneyFromString(amount, currency)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "invalid price for product %s", productID)
		}
		prices[productID] = money
	}
	return prices, nil
}
