package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(amount string) Money {
	return NewMoney(decimal.RequireFromString(amount), "USD")
}

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	order, err := NewOrder("order-1", "user-1", "USD", []OrderItem{
		{ProductID: "p-1", Quantity: 2, UnitPrice: usd("10.00")},
		{ProductID: "p-2", Quantity: 1, UnitPrice: usd("5.00")},
	})
	require.NoError(t, err)
	return order
}

func TestNewOrderComputesTotalAndBuffersCreated(t *testing.T) {
	order := newTestOrder(t)

	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, "25.00 USD", order.TotalAmount.String())
	assert.Equal(t, ReturnNone, order.ReturnStatus)

	events := order.PendingEvents()
	require.Len(t, events, 1)
	created, ok := events[0].(*OrderCreated)
	require.True(t, ok)
	assert.Equal(t, "order-1", created.OrderID)
	assert.Equal(t, "user-1", created.UserID)
	assert.Equal(t, "25.00", created.TotalAmount)
	assert.Equal(t, "USD", created.Currency)
}

func TestNewOrderRejectsEmptyInput(t *testing.T) {
	_, err := NewOrder("", "user-1", "USD", []OrderItem{{ProductID: "p", Quantity: 1, UnitPrice: usd("1.00")}})
	assert.ErrorIs(t, err, ErrInvalidOrderState)

	_, err = NewOrder("order-1", "user-1", "USD", nil)
	assert.ErrorIs(t, err, ErrInvalidOrderState)

	_, err = NewOrder("order-1", "user-1", "USD", []OrderItem{{ProductID: "p", Quantity: 0, UnitPrice: usd("1.00")}})
	assert.ErrorIs(t, err, ErrInvalidOrderState)
}

func TestNewOrderRejectsMixedCurrencies(t *testing.T) {
	_, err := NewOrder("order-1", "user-1", "USD", []OrderItem{
		{ProductID: "p-1", Quantity: 1, UnitPrice: usd("10.00")},
		{ProductID: "p-2", Quantity: 1, UnitPrice: NewMoney(decimal.RequireFromString("5.00"), "EUR")},
	})
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestAddItemRecomputesTotal(t *testing.T) {
	order := newTestOrder(t)
	require.NoError(t, order.AddItem(OrderItem{ProductID: "p-3", Quantity: 3, UnitPrice: usd("2.50")}))
	assert.Equal(t, "32.50 USD", order.TotalAmount.String())
}

func TestPayBuffersOrderPaidWithItems(t *testing.T) {
	order := newTestOrder(t)
	order.DrainEvents()

	require.NoError(t, order.Pay())
	assert.Equal(t, StatusPaid, order.Status)

	events := order.DrainEvents()
	require.Len(t, events, 1)
	paid, ok := events[0].(*OrderPaid)
	require.True(t, ok)
	assert.ElementsMatch(t, []PaidItem{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-2", Quantity: 1},
	}, paid.Items)
}

func TestInvalidTransitionsLeaveStateUntouched(t *testing.T) {
	order := newTestOrder(t)

	err := order.Ship("TN-1", "dhl")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidOrderState)
	assert.Equal(t, StatusPending, order.Status)
	assert.Empty(t, order.TrackingNumber)

	err = order.MarkDelivered()
	assert.ErrorIs(t, err, ErrInvalidOrderState)
	assert.Equal(t, StatusPending, order.Status)

	var invalidState *InvalidOrderStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, string(StatusShipping), invalidState.Expected)
	assert.Equal(t, string(StatusPending), invalidState.Actual)
}

func TestShipRequiresTrackingNumber(t *testing.T) {
	order := newTestOrder(t)
	require.NoError(t, order.Pay())

	err := order.Ship("   ", "dhl")
	assert.ErrorIs(t, err, ErrInvalidOrderState)
	assert.Equal(t, StatusPaid, order.Status)

	require.NoError(t, order.Ship("TN-42", "dhl"))
	assert.Equal(t, StatusShipping, order.Status)
	assert.Equal(t, "TN-42", order.TrackingNumber)
	assert.NotNil(t, order.ShippedAt)
}

func TestCancelMatrix(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(o *Order)
		wantErr bool
	}{
		{"pending can cancel", func(o *Order) {}, false},
		{"paid can cancel", func(o *Order) { _ = o.Pay() }, false},
		{"shipping cannot cancel", func(o *Order) { _ = o.Pay(); _ = o.Ship("TN", "dhl") }, true},
		{"delivered cannot cancel", func(o *Order) { _ = o.Pay(); _ = o.Ship("TN", "dhl"); _ = o.MarkDelivered() }, true},
		{"cancelled cannot cancel again", func(o *Order) { _ = o.Cancel("first") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := newTestOrder(t)
			tt.prepare(order)
			before := order.Status

			err := order.Cancel("changed my mind")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOrderState)
				assert.Equal(t, before, order.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusCancelled, order.Status)
		})
	}
}

func TestCancelBuffersOrderCancelled(t *testing.T) {
	order := newTestOrder(t)
	order.DrainEvents()

	require.NoError(t, order.Cancel("out of stock"))
	events := order.DrainEvents()
	require.Len(t, events, 1)
	cancelled, ok := events[0].(*OrderCancelled)
	require.True(t, ok)
	assert.Equal(t, "out of stock", cancelled.Reason)
}

func deliveredOrder(t *testing.T) *Order {
	t.Helper()
	order := newTestOrder(t)
	require.NoError(t, order.Pay())
	require.NoError(t, order.Ship("TN-1", "dhl"))
	require.NoError(t, order.MarkDelivered())
	return order
}

func TestReturnFlowApprove(t *testing.T) {
	order := deliveredOrder(t)

	require.NoError(t, order.RequestReturn("damaged", "box crushed"))
	assert.Equal(t, ReturnRequested, order.ReturnStatus)
	assert.Equal(t, StatusDelivered, order.Status)

	require.NoError(t, order.ApproveReturn(usd("25.00"), "full refund"))
	assert.Equal(t, StatusReturned, order.Status)
	assert.Equal(t, ReturnApproved, order.ReturnStatus)
	require.NotNil(t, order.RefundAmount)
	assert.Equal(t, "25.00 USD", order.RefundAmount.String())
	assert.NotNil(t, order.ReturnResolvedAt)
}

func TestReturnFlowReject(t *testing.T) {
	order := deliveredOrder(t)

	require.NoError(t, order.RequestReturn("damaged", ""))
	require.NoError(t, order.RejectReturn("wear and tear not covered"))
	assert.Equal(t, ReturnRejected, order.ReturnStatus)
	// 驳回退货不改变订单主状态
	assert.Equal(t, StatusDelivered, order.Status)
}

func TestRequestReturnOnlyOnce(t *testing.T) {
	order := deliveredOrder(t)
	require.NoError(t, order.RequestReturn("damaged", ""))

	err := order.RequestReturn("damaged again", "")
	assert.ErrorIs(t, err, ErrInvalidOrderState)
	assert.Equal(t, ReturnRequested, order.ReturnStatus)

	require.NoError(t, order.RejectReturn("no"))
	err = order.RequestReturn("third time", "")
	assert.ErrorIs(t, err, ErrInvalidOrderState)
	assert.Equal(t, ReturnRejected, order.ReturnStatus)
}

func TestRequestReturnRequiresDelivered(t *testing.T) {
	order := newTestOrder(t)
	err := order.RequestReturn("damaged", "")
	assert.ErrorIs(t, err, ErrInvalidOrderState)
}

func TestApproveReturnRequiresRequested(t *testing.T) {
	order := deliveredOrder(t)
	err := order.ApproveReturn(usd("25.00"), "")
	assert.ErrorIs(t, err, ErrInvalidOrderState)
	assert.Equal(t, StatusDelivered, order.Status)
}

func TestDrainEventsClearsBuffer(t *testing.T) {
	order := newTestOrder(t)
	require.NoError(t, order.Pay())

	events := order.DrainEvents()
	assert.Len(t, events, 2) // OrderCreated + OrderPaid
	assert.Empty(t, order.DrainEvents())
	assert.Empty(t, order.PendingEvents())
}

func TestEventOrderingFollowsTransitions(t *testing.T) {
	order := newTestOrder(t)
	require.NoError(t, order.Pay())

	events := order.DrainEvents()
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeOrderCreated, events[0].EventType())
	assert.Equal(t, EventTypeOrderPaid, events[1].EventType())
}
