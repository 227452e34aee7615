package bizerr

import (
	"errors"
	"fmt"
)

// Kind 错误大类
type Kind int

const (
	KindParams   Kind = iota + 1 // 参数错误
	KindNotFound                 // 数据不存在
	KindState                    // 状态不允许当前操作
	KindSystem                   // 存储/事务失败
)

func (k Kind) String() string {
	switch k {
	case KindParams:
		return "ParamsError"
	case KindNotFound:
		return "NotFoundError"
	case KindState:
		return "StateError"
	case KindSystem:
		return "SystemError"
	default:
		return "UnknownError"
	}
}

// 错误码，与 pkg/response 的返回码保持一致
const (
	CodeParams              = 400
	CodeNotFound            = 404
	CodeSystem              = 500
	CodeOrderNotFound       = 1001
	CodeOrderStatusInvalid  = 1002
	CodeInsufficientBalance = 1003
	CodeWalletNotFound      = 1005
	CodeWalletFrozen        = 1008
)

// Error 业务错误
//
// errors.Is 按错误码比较，所以 Params("金额必须大于0") 与 ErrParams 视为同一类错误。
type Error struct {
	Kind    Kind
	Code    int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage 复制一份错误并替换提示信息
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), cause: e.cause}
}

var (
	ErrParams              = &Error{Kind: KindParams, Code: CodeParams, Message: "参数错误"}
	ErrNotFound            = &Error{Kind: KindNotFound, Code: CodeNotFound, Message: "数据不存在"}
	ErrWalletNotFound      = &Error{Kind: KindNotFound, Code: CodeWalletNotFound, Message: "钱包不存在"}
	ErrOrderNotFound       = &Error{Kind: KindNotFound, Code: CodeOrderNotFound, Message: "订单不存在"}
	ErrWalletFrozen        = &Error{Kind: KindState, Code: CodeWalletFrozen, Message: "钱包已冻结"}
	ErrInsufficientBalance = &Error{Kind: KindState, Code: CodeInsufficientBalance, Message: "余额不足"}
	ErrOrderStatusInvalid  = &Error{Kind: KindState, Code: CodeOrderStatusInvalid, Message: "订单状态不合法"}
	ErrSystem              = &Error{Kind: KindSystem, Code: CodeSystem, Message: "系统错误"}
)

// Params 构造参数错误
func Params(format string, args ...interface{}) *Error {
	return ErrParams.WithMessage(format, args...)
}

// System 把底层错误包装为系统错误，已经是业务错误的原样返回
func System(msg string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return &Error{Kind: KindSystem, Code: CodeSystem, Message: msg, cause: err}
}

// KindOf 返回错误所属大类，非业务错误一律视为系统错误
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindSystem
}

// CodeOf 返回错误码
func CodeOf(err error) int {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeSystem
}
