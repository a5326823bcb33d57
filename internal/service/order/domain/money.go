// internal/service/order/domain/money.go
package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money 是不可变的金额值对象。
// 所有运算都要求双方币种一致（不区分大小写），不一致属于编程错误，
// 绝不做静默换算。
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney 创建一个金额值对象，币种统一转为大写。
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{
		Amount:   amount,
		Currency: strings.ToUpper(currency),
	}
}

// NewMoneyFromString 从十进制字符串创建金额，例如 "19.90"。
func NewMoneyFromString(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid money amount %q: %w", amount, err)
	}
	return NewMoney(d, currency), nil
}

// Add 返回两个金额之和。
func (m Money) Add(other Money) (Money, error) {
	if err := m.assertSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// MulInt 返回金额乘以整数数量的结果，四舍五入保留两位小数。
func (m Money) MulInt(quantity int) Money {
	product := m.Amount.Mul(decimal.NewFromInt(int64(quantity)))
	// decimal.Round 对正数即为 half-up
	return Money{Amount: product.Round(2), Currency: m.Currency}
}

// Equals 判断金额与币种是否完全一致。
func (m Money) Equals(other Money) bool {
	return strings.EqualFold(m.Currency, other.Currency) && m.Amount.Equal(other.Amount)
}

// IsZero 判断是否为零值金额。
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}

func zeroDecimal() decimal.Decimal {
	return decimal.NewFromInt(0)
}

func (m Money) assertSameCurrency(other Money) error {
	if !strings.EqualFold(m.Currency, other.Currency) {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return nil
}
