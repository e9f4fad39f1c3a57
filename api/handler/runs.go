package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/netfleetpro/netfleet/internal/database"
)

// RunHandler 运行审计记录查询
type RunHandler struct {
	store *database.RunStore
}

// NewRunHandler store 为空时接口返回 501
func NewRunHandler(store *database.RunStore) *RunHandler {
	return &RunHandler{store: store}
}

func (h *RunHandler) available(c *gin.Context) bool {
	if h.store == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Code: "STORE_DISABLED", Message: "未启用运行审计库"})
		return false
	}
	return true
}

// ListRuns 分页列出历史运行，?kind=exec&page=1&size=20
func (h *RunHandler) ListRuns(c *gin.Context) {
	if !h.available(c) {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 500 {
		size = 20
	}
	runs, total, err := h.store.List(c.Request.Context(), c.Query("kind"), size, (page-1)*size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "获取运行列表成功",
		Data:    gin.H{"total": total, "page": page, "size": size, "runs": runs},
	})
}

// GetRun 查询运行及设备摘要
func (h *RunHandler) GetRun(c *gin.Context) {
	if !h.available(c) {
		return
	}
	run, err := h.store.Get(c.Request.Context(), c.Param("run_id"))
	if errors.Is(err, database.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "RUN_NOT_FOUND", Message: "运行不存在: " + c.Param("run_id")})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "获取运行成功", Data: run})
}

// PruneRuns 删除早于 ?days=N 天的运行记录
func (h *RunHandler) PruneRuns(c *gin.Context) {
	if !h.available(c) {
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_PARAMS", Message: "days 必须为正整数"})
		return
	}
	n, err := h.store.Prune(c.Request.Context(), time.Now().AddDate(0, 0, -days))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "PRUNE_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "已清理历史运行", Data: gin.H{"deleted": n}})
}
