package response

import (
	"net/http"

	"contentpay/internal/bizerr"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// 业务错误码
const (
	CodeInvalidAmount     = 1001
	CodeInsufficientFunds = 1002
	CodeDuplicateGrant    = 1003
	CodeInvalidTransition = 1004
	CodeTerminalState     = 1005
	CodeOverUnfreeze      = 1006
	CodePermissionDenied  = 1007
	CodeWalletFrozen      = 1008
	CodeNotPurchasable    = 1009
	CodeBusy              = 1010
	CodePaymentFailed     = 1011
)

var kindCodes = map[bizerr.Kind]int{
	bizerr.KindInvalidAmount:     CodeInvalidAmount,
	bizerr.KindInsufficientFunds: CodeInsufficientFunds,
	bizerr.KindDuplicateGrant:    CodeDuplicateGrant,
	bizerr.KindInvalidTransition: CodeInvalidTransition,
	bizerr.KindTerminalState:     CodeTerminalState,
	bizerr.KindOverUnfreeze:      CodeOverUnfreeze,
	bizerr.KindNotFound:          CodeNotFound,
	bizerr.KindPermissionDenied:  CodePermissionDenied,
	bizerr.KindWalletFrozen:      CodeWalletFrozen,
	bizerr.KindInvalidArgument:   CodeParamError,
	bizerr.KindNotPurchasable:    CodeNotPurchasable,
	bizerr.KindBusy:              CodeBusy,
	bizerr.KindPaymentFailed:     CodePaymentFailed,
}

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}

// CodeOf 业务错误映射到错误码，非业务错误为 CodeServerError
func CodeOf(err error) int {
	if code, ok := kindCodes[bizerr.KindOf(err)]; ok {
		return code
	}
	return CodeServerError
}

// FromError 业务错误原样返回文案；状态机拒绝记警告；其余错误隐藏细节
func FromError(c *gin.Context, err error) {
	code := CodeOf(err)
	switch {
	case bizerr.IsCallerBug(err):
		log.WithError(err).WithField("path", c.FullPath()).Warn("[HTTP] 状态机拒绝请求")
		BusinessError(c, code, err.Error())
	case code != CodeServerError:
		BusinessError(c, code, err.Error())
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("[HTTP] 请求处理失败")
		ServerError(c, "服务器内部错误")
	}
}
