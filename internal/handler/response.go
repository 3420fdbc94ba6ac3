// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"ecoadvisor-go/internal/service"
	"ecoadvisor-go/pkg/ecoapi"

	"github.com/gin-gonic/gin"
)

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    nil,
	})
}

// respondErr 根据错误类型选择 HTTP 状态码，message 使用错误自身的稳定文案。
func respondErr(c *gin.Context, err error) {
	respondError(c, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrEmptyQuestion),
		errors.Is(err, service.ErrNoFiles),
		errors.Is(err, service.ErrNothingUploaded):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrSendInProgress),
		errors.Is(err, service.ErrUploadInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrConversationNotFound),
		errors.Is(err, service.ErrUploadEntryNotFound):
		return http.StatusNotFound
	}

	switch ecoapi.KindOf(err) {
	case ecoapi.KindPermission:
		return http.StatusForbidden
	case ecoapi.KindNotFound:
		return http.StatusNotFound
	case ecoapi.KindValidation, ecoapi.KindFileRead:
		return http.StatusBadRequest
	case ecoapi.KindNetwork, ecoapi.KindServer, ecoapi.KindParse:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
