package handlers

import (
	"net/http"

	"backend/internal/types"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
	Err  string      `json:"err,omitempty"`
}

// statusOf 错误分类到 HTTP 状态码的映射
func statusOf(err error) int {
	switch types.KindOf(err) {
	case types.KindInvalidArgument:
		return http.StatusBadRequest
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindPreconditionFailed:
		return http.StatusConflict
	case types.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 200, Msg: "ok", Data: data})
}

func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	c.JSON(status, Response{Code: status, Msg: "request failed", Err: err.Error()})
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{Code: 400, Msg: "invalid request", Err: err.Error()})
}
