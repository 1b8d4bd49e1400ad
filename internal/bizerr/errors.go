// Package bizerr 定义结算核心的业务错误分类。
//
// 所有钱包/订单/权益操作返回的业务失败都是 *Error，调用方用 errors.Is 按 Kind 判断，
// 与具体文案无关：
//
//	if errors.Is(err, bizerr.ErrInsufficientFunds) { ... }
package bizerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInvalidAmount Kind = iota + 1
	KindInsufficientFunds
	KindDuplicateGrant
	KindInvalidTransition
	KindTerminalState
	KindOverUnfreeze
	KindNotFound
	KindPermissionDenied
	KindWalletFrozen
	KindInvalidArgument
	KindNotPurchasable
	KindBusy
	KindPaymentFailed
)

var kindNames = map[Kind]string{
	KindInvalidAmount:     "InvalidAmount",
	KindInsufficientFunds: "InsufficientFunds",
	KindDuplicateGrant:    "DuplicateGrant",
	KindInvalidTransition: "InvalidTransition",
	KindTerminalState:     "TerminalState",
	KindOverUnfreeze:      "OverUnfreeze",
	KindNotFound:          "NotFound",
	KindPermissionDenied:  "PermissionDenied",
	KindWalletFrozen:      "WalletFrozen",
	KindInvalidArgument:   "InvalidArgument",
	KindNotPurchasable:    "NotPurchasable",
	KindBusy:              "Busy",
	KindPaymentFailed:     "PaymentFailed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error 业务错误
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// Is 按 Kind 匹配，文案不同的同类错误视为相等
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidAmount     = &Error{Kind: KindInvalidAmount, Msg: "金额必须大于0"}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds, Msg: "余额不足"}
	ErrDuplicateGrant    = &Error{Kind: KindDuplicateGrant, Msg: "权益已发放"}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition, Msg: "订单状态流转不合法"}
	ErrTerminalState     = &Error{Kind: KindTerminalState, Msg: "订单已处于终态"}
	ErrOverUnfreeze      = &Error{Kind: KindOverUnfreeze, Msg: "解冻金额超过冻结金额"}
	ErrNotFound          = &Error{Kind: KindNotFound, Msg: "记录不存在"}
	ErrPermissionDenied  = &Error{Kind: KindPermissionDenied, Msg: "无权限"}
	ErrWalletFrozen      = &Error{Kind: KindWalletFrozen, Msg: "钱包已冻结"}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument, Msg: "参数错误"}
	ErrNotPurchasable    = &Error{Kind: KindNotPurchasable, Msg: "内容无需购买"}
	ErrBusy              = &Error{Kind: KindBusy, Msg: "系统繁忙，请稍后重试"}
	ErrPaymentFailed     = &Error{Kind: KindPaymentFailed, Msg: "支付失败"}
)

// Newf 基于哨兵错误生成带上下文文案的同类错误
func Newf(sentinel *Error, format string, args ...interface{}) error {
	return &Error{Kind: sentinel.Kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf 取出错误链上的业务错误类型，非业务错误返回 0
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsUserFacing 可以直接展示给用户的业务失败（余额、权限、参数类）
func IsUserFacing(err error) bool {
	switch KindOf(err) {
	case KindInvalidAmount, KindInsufficientFunds, KindDuplicateGrant, KindNotFound,
		KindPermissionDenied, KindWalletFrozen, KindInvalidArgument, KindNotPurchasable,
		KindOverUnfreeze, KindBusy, KindPaymentFailed:
		return true
	}
	return false
}

// IsCallerBug 状态机拒绝，通常意味着调用方 bug 或并发竞争，需要记录告警日志
func IsCallerBug(err error) bool {
	k := KindOf(err)
	return k == KindTerminalState || k == KindInvalidTransition
}
