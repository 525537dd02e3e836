package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// serverError 記錄錯誤並回應 500，不將內部細節洩漏給客戶端
func serverError(c *gin.Context, err error) {
	slog.Error("Unexpected server error", slog.String("path", c.FullPath()), slog.Any("error", err))
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
}

// validationError 回應 400 與欄位層級的錯誤訊息
func validationError(c *gin.Context, fieldErrors map[string]string) {
	c.JSON(http.StatusBadRequest, gin.H{"errors": fieldErrors})
}

// pathID 解析路徑中的數字 id，格式不正確時回應 404
func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Status(http.StatusNotFound)
		return 0, false
	}
	return uint(id), true
}
