package adapter

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"meridian/internal/pkg/httpclient"
	"meridian/internal/pkg/logger"
)

const (
	inventoryServiceName = "inventory-service"
	inventoryReservePath = "/stock/reserve"
	inventoryReleasePath = "/stock/release"
)

// InventoryHTTPAdapter 是 port.InventoryService 的 HTTP 实现。
type InventoryHTTPAdapter struct {
	client *httpclient.Client
}

// NewInventoryHTTPAdapter 创建一个新的库存服务适配器。
func NewInventoryHTTPAdapter(client *httpclient.Client) *InventoryHTTPAdapter {
	return &InventoryHTTPAdapter{client: client}
}

// ReserveStock 为订单预占一批库存。
// 任何一个条目预占失败都视为整体失败：此前已预占成功的条目会在
// 返回前全部释放，调用方看到 false 时下游没有残留的预占。
func (a *InventoryHTTPAdapter) ReserveStock(ctx context.Context, orderID string, items map[string]int) (bool, error) {
	reserved := make(map[string]int, len(items))
	for productID, quantity := range items {
		ok, err := a.reserveOne(ctx, orderID, productID, quantity)
		if err != nil {
			a.rollback(ctx, orderID, reserved)
			return false, err
		}
		if !ok {
			a.rollback(ctx, orderID, reserved)
			return false, nil
		}
		reserved[productID] = quantity
	}
	return true, nil
}

func (a *InventoryHTTPAdapter) reserveOne(ctx context.Context, orderID, productID string, quantity int) (bool, error) {
	params := url.Values{}
	params.Set("productId", productID)
	params.Set("quantity", strconv.Itoa(quantity))
	params.Set("orderId", orderID)

	resp, err := a.client.CallService(ctx, inventoryServiceName, inventoryReservePath, params)
	if err != nil {
		return false, err
	}

	var body struct {
		Reserved bool `json:"reserved"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if decodeErr != nil {
		return false, pkgerrors.Wrap(decodeErr, "decode inventory response")
	}
	return body.Reserved, nil
}

// rollback 释放一次失败的 ReserveStock 中已成功预占的条目。
func (a *InventoryHTTPAdapter) rollback(ctx context.Context, orderID string, reserved map[string]int) {
	if len(reserved) == 0 {
		return
	}
	if err := a.ReleaseStock(ctx, orderID, reserved); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("order_id", orderID).
			Msg("failed to roll back partial stock reservation")
	}
}

// ReleaseStock 是 ReserveStock 的补偿操作。
// 单个条目的失败不会中断其余条目的释放。
func (a *InventoryHTTPAdapter) ReleaseStock(ctx context.Context, orderID string, items map[string]int) error {
	var lastErr error
	for productID, quantity := range items {
		params := url.Values{}
		params.Set("productId", productID)
		params.Set("quantity", strconv.Itoa(quantity))
		params.Set("orderId", orderID)

		resp, err := a.client.CallService(ctx, inventoryServiceName, inventoryReleasePath, params)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
	}
	return lastErr
}
