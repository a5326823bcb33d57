// internal/service/order/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound 表示订单不存在。
	ErrOrderNotFound = errors.New("order not found")

	// ErrFlashSaleNotFound 表示引用的秒杀活动不存在。
	ErrFlashSaleNotFound = errors.New("flash sale not found")

	// ErrFlashSaleNotActive 表示秒杀活动不在可下单的时间窗口内。
	ErrFlashSaleNotActive = errors.New("flash sale is not active")

	// ErrFlashSaleStockExhausted 表示原子扣减返回库存不足。
	ErrFlashSaleStockExhausted = errors.New("flash sale stock exhausted")

	// ErrStockReservationFailed 表示普通库存预占端口返回失败。
	ErrStockReservationFailed = errors.New("standard stock reservation failed")

	// ErrCurrencyMismatch 表示跨币种运算，属于编程缺陷，调用方不应捕获后继续。
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrInvalidOrderState 是所有非法状态流转的哨兵错误，
	// 具体的期望/实际状态在 InvalidOrderStateError 中。
	ErrInvalidOrderState = errors.New("invalid order state")
)

// InvalidOrderStateError 携带一次非法流转的上下文：
// 做什么操作、期望处于什么状态、实际处于什么状态。
type InvalidOrderStateError struct {
	Op       string
	Expected string
	Actual   string
}

func (e *InvalidOrderStateError) Error() string {
	return fmt.Sprintf("cannot %s: expected state %s, actual %s", e.Op, e.Expected, e.Actual)
}

// Is 让 errors.Is(err, ErrInvalidOrderState) 成立。
func (e *InvalidOrderStateError) Is(target error) bool {
	return target == ErrInvalidOrderState
}

func newInvalidState(op, expected, actual string) error {
	return &InvalidOrderStateError{Op: op, Expected: expected, Actual: actual}
}
