package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Response[T any] struct {
	Code ErrorCode `json:"code"`
	Data T         `json:"data"`
	Msg  string    `json:"msg"`
}

// Success writes a 200 envelope carrying data.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response[any]{Code: OK, Data: data})
}

// Created writes a 201 envelope carrying data.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response[any]{Code: OK, Data: data})
}

// HTTPError writes an error envelope and aborts the handler chain.
func HTTPError(c *gin.Context, httpCode int, msg string, errorCode ErrorCode) {
	c.AbortWithStatusJSON(httpCode, Response[any]{Code: errorCode, Msg: msg})
}

// BadRequestError is used when binding or validating the request fails.
func BadRequestError(c *gin.Context, msg string) {
	HTTPError(c, http.StatusBadRequest, msg, InvalidRequest)
}

func UnauthorizedError(c *gin.Context, msg string) {
	HTTPError(c, http.StatusUnauthorized, msg, Unauthorized)
}

func ForbiddenError(c *gin.Context, msg string) {
	HTTPError(c, http.StatusForbidden, msg, PermissionDenied)
}

func NotFoundError(c *gin.Context, msg string) {
	HTTPError(c, http.StatusNotFound, msg, NotFound)
}

func TooManyRequestsError(c *gin.Context) {
	HTTPError(c, http.StatusTooManyRequests, "too many requests", TooManyRequests)
}

// InternalServerError hides the cause from the client; log it before calling.
func InternalServerError(c *gin.Context) {
	HTTPError(c, http.StatusInternalServerError, "internal server error", InternalError)
}
