package response

import (
	"errors"
	"net/http"

	"gamemarket/pkg/bizerr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	CodeSuccess     = 0
	CodeParamError  = bizerr.CodeParams
	CodeNotFound    = bizerr.CodeNotFound
	CodeServerError = bizerr.CodeSystem
)

const (
	CodeOrderNotFound       = bizerr.CodeOrderNotFound
	CodeOrderStatusInvalid  = bizerr.CodeOrderStatusInvalid
	CodeInsufficientBalance = bizerr.CodeInsufficientBalance
	CodeWalletNotFound      = bizerr.CodeWalletNotFound
	CodeWalletFrozen        = bizerr.CodeWalletFrozen
)

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

// FromError 按业务错误码返回，系统错误不向调用方暴露底层原因
func FromError(c *gin.Context, err error) {
	var be *bizerr.Error
	if !errors.As(err, &be) || be.Kind == bizerr.KindSystem {
		zap.L().Error("请求处理失败",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		Error(c, CodeServerError, "系统繁忙，请稍后重试")
		return
	}
	Error(c, be.Code, be.Message)
}
