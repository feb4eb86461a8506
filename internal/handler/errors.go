package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"runquest/internal/service"

	"github.com/gin-gonic/gin"
)

// writeError 把业务错误映射为 HTTP 状态码与稳定的错误码；内部错误不回显细节
func writeError(c *gin.Context, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "请求处理失败",
			"path", c.Request.URL.Path,
			"run_id", c.Param("id"),
			"err", err,
		)
	}
	c.JSON(status, gin.H{"error": code, "message": msg})
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, service.ErrInvalidUser):
		return http.StatusBadRequest, "invalid_user", err.Error()
	case errors.Is(err, service.ErrInvalidOutcome):
		return http.StatusBadRequest, "invalid_outcome", err.Error()
	case errors.Is(err, service.ErrRunNotFound):
		return http.StatusNotFound, "run_not_found", err.Error()
	case errors.Is(err, service.ErrRunAlreadyFinished):
		return http.StatusConflict, "run_finished", err.Error()
	case errors.Is(err, service.ErrStaleOutcome):
		return http.StatusConflict, "stale_outcome", err.Error()
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "file_too_large", err.Error()
	case errors.Is(err, service.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, "unsupported_type", err.Error()
	case errors.Is(err, service.ErrCatalogEmpty):
		return http.StatusServiceUnavailable, "catalog_empty", "暂无可用关卡，请先导入关卡目录"
	case errors.Is(err, service.ErrExternalStorage):
		return http.StatusBadGateway, "upload_failed", "上传失败，请重试"
	case errors.Is(err, service.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable", "服务暂不可用，请稍后重试"
	default:
		// 包含 ErrNoPendingChallenge / ErrChallengeMissing 等一致性错误
		return http.StatusInternalServerError, "internal_error", "服务器内部错误"
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
}
