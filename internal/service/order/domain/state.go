// internal/service/order/domain/state.go
package domain

import "strings"

// Status 定义了订单的生命周期状态
type Status string

const (
	StatusPending   Status = "PENDING"   // 已创建，未支付
	StatusPaid      Status = "PAID"      // 已支付
	StatusShipping  Status = "SHIPPING"  // 已发货，在途
	StatusDelivered Status = "DELIVERED" // 已签收
	StatusReturned  Status = "RETURNED"  // 退货完成
	StatusCancelled Status = "CANCELLED" // 已取消
)

// ReturnStatus 是独立于主状态的退货子状态，只在签收后有意义
type ReturnStatus string

const (
	ReturnNone      ReturnStatus = "NONE"
	ReturnRequested ReturnStatus = "REQUESTED"
	ReturnApproved  ReturnStatus = "APPROVED"
	ReturnRejected  ReturnStatus = "REJECTED"
)

// Action 是订单状态机上的一次迁移动作
type Action string

const (
	ActionPay           Action = "pay"
	ActionShip          Action = "ship"
	ActionDeliver       Action = "deliver"
	ActionCancel        Action = "cancel"
	ActionApproveReturn Action = "approve_return"
)

// transitions 是显式的状态迁移表：(当前状态, 动作) -> 下一状态。
// 所有主状态的合法迁移都收敛在这里，非法迁移可以被完整枚举和测试。
var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionPay:    StatusPaid,
		ActionCancel: StatusCancelled,
	},
	StatusPaid: {
		ActionShip:   StatusShipping,
		ActionCancel: StatusCancelled,
	},
	StatusShipping: {
		ActionDeliver: StatusDelivered,
	},
	StatusDelivered: {
		ActionApproveReturn: StatusReturned,
	},
}

// nextStatus 查表执行一次迁移，非法迁移返回 InvalidOrderStateError。
func nextStatus(current Status, action Action) (Status, error) {
	if next, ok := transitions[current][action]; ok {
		return next, nil
	}
	return current, newInvalidState(string(action), expectedStatesFor(action), string(current))
}

// expectedStatesFor 枚举某个动作合法的起始状态，用于错误信息。
func expectedStatesFor(action Action) string {
	var states []string
	for from, actions := range transitions {
		if _, ok := actions[action]; ok {
			states = append(states, string(from))
		}
	}
	if len(states) == 0 {
		return "<none>"
	}
	// map 遍历无序，排序一下保证错误信息稳定
	for i := 0; i < len(states); i++ {
		for j := i + 1; j < len(states); j++ {
			if states[j] < states[i] {
				states[i], states[j] = states[j], states[i]
			}
		}
	}
	return strings.Join(states, "|")
}
