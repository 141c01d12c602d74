package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Códigos de negócio do envelope.
const (
	CodeSuccess     = 0
	CodeValidation  = 40001
	CodeNotFound    = 40401
	CodeRateLimited = 42901
	CodeUnknown     = 50001
	CodeUnavailable = 50301
)

var messages = map[int]string{
	CodeSuccess:     "success",
	CodeValidation:  "invalid parameters",
	CodeNotFound:    "resource not found",
	CodeRateLimited: "too many requests",
	CodeUnknown:     "internal server error",
	CodeUnavailable: "service unavailable",
}

var statuses = map[int]int{
	CodeSuccess:     http.StatusOK,
	CodeValidation:  http.StatusBadRequest,
	CodeNotFound:    http.StatusNotFound,
	CodeRateLimited: http.StatusTooManyRequests,
	CodeUnknown:     http.StatusInternalServerError,
	CodeUnavailable: http.StatusServiceUnavailable,
}

// Response é o formato único das respostas JSON da API.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: messages[CodeSuccess],
		Data:    data,
	})
}

func Fail(c *gin.Context, code int, data interface{}) {
	FailWithMessage(c, code, messages[code], data)
}

func FailWithMessage(c *gin.Context, code int, message string, data interface{}) {
	status, ok := statuses[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func ParamError(c *gin.Context, message string) {
	FailWithMessage(c, CodeValidation, message, nil)
}

func NotFound(c *gin.Context, message string) {
	FailWithMessage(c, CodeNotFound, message, nil)
}

func ServerError(c *gin.Context) {
	Fail(c, CodeUnknown, nil)
}
