package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/netfleetpro/netfleet/internal/facts"
	"github.com/netfleetpro/netfleet/internal/filter"
	"github.com/netfleetpro/netfleet/internal/fleet"
	"github.com/netfleetpro/netfleet/internal/service"
	"github.com/netfleetpro/netfleet/pkg/logger"
)

// FleetHandler 设备与运行接口
type FleetHandler struct {
	fleetService *service.FleetService
}

// NewFleetHandler 创建处理器
func NewFleetHandler(fleetService *service.FleetService) *FleetHandler {
	return &FleetHandler{fleetService: fleetService}
}

// ExecBody 批量执行请求
type ExecBody struct {
	filter.Flags
	Commands   []string `json:"commands" binding:"required,min=1"`
	Structured bool     `json:"structured"`
}

// ConfigBody 逐行下发请求
type ConfigBody struct {
	filter.Flags
	Lines []string `json:"lines" binding:"required,min=1"`
}

// ApplyBody 模板下发请求
type ApplyBody struct {
	filter.Flags
	TemplateID string `json:"template_id" binding:"required"`
	Check      bool   `json:"check"`
}

// DescribeBody 接口描述请求
type DescribeBody struct {
	filter.Flags
	Tag     string   `json:"tag"`
	Markers []string `json:"markers"`
	Check   bool     `json:"check"`
}

// DNSBody DNS 记录请求
type DNSBody struct {
	filter.Flags
	Domain string `json:"domain"`
}

// FactsBody 信息采集请求
type FactsBody struct {
	filter.Flags
	Getters []string `json:"getters"`
}

// MLAGBody MLAG 检查请求
type MLAGBody struct {
	filter.Flags
}

// Health 健康检查
func (h *FleetHandler) Health(c *gin.Context) {
	stats := h.fleetService.GetStats()
	if running, ok := stats["running"].(bool); !ok || !running {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "SERVICE_UNAVAILABLE",
			Message: "编排服务未运行",
		})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "服务正常", Data: stats})
}

// GetStats 服务统计
func (h *FleetHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "获取统计信息成功", Data: h.fleetService.GetStats()})
}

// ListDevices 按查询参数筛选设备，如 ?site=sjc&platform=eos
func (h *FleetHandler) ListDevices(c *gin.Context) {
	var flags filter.Flags
	if err := c.ShouldBindQuery(&flags); err != nil {
		badRequest(c, err)
		return
	}
	devices, err := h.fleetService.Select(flags.Predicate())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "INVENTORY_UNAVAILABLE", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "获取设备列表成功",
		Data:    gin.H{"filter": flags.Predicate().String(), "total": len(devices), "devices": devices},
	})
}

// GetDevice 查询单台设备
func (h *FleetHandler) GetDevice(c *gin.Context) {
	reg := h.fleetService.Registry()
	if reg == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "INVENTORY_UNAVAILABLE", Message: service.ErrNoInventory.Error()})
		return
	}
	d, err := reg.Get(c.Param("hostname"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "DEVICE_NOT_FOUND", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "获取设备成功", Data: d})
}

// Reload 重新加载清单
func (h *FleetHandler) Reload(c *gin.Context) {
	if err := h.fleetService.Reload(c.Request.Context()); err != nil {
		logger.WithField("error", err).Warn("Inventory reload via api failed")
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Code: "RELOAD_FAILED", Message: "清单重载失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "清单已重载", Data: gin.H{"devices": h.fleetService.Registry().Len()}})
}

// Exec 批量执行只读命令
func (h *FleetHandler) Exec(c *gin.Context) {
	var body ExecBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.fleetService.Exec(c.Request.Context(), service.ExecRequest{
		Filter:     body.Predicate(),
		Commands:   body.Commands,
		Structured: body.Structured,
	})
	h.respondRun(c, res, err)
}

// Configure 逐行下发配置
func (h *FleetHandler) Configure(c *gin.Context) {
	var body ConfigBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.fleetService.Configure(c.Request.Context(), service.ConfigRequest{
		Filter: body.Predicate(),
		Lines:  body.Lines,
	})
	h.respondRun(c, res, err)
}

// Apply 渲染模板并替换运行配置
func (h *FleetHandler) Apply(c *gin.Context) {
	var body ApplyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.fleetService.Apply(c.Request.Context(), service.ApplyRequest{
		Filter:     body.Predicate(),
		TemplateID: body.TemplateID,
		Check:      body.Check,
	})
	h.respondRun(c, res, err)
}

// Describe 根据 LLDP 邻居生成接口描述
func (h *FleetHandler) Describe(c *gin.Context) {
	var body DescribeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.fleetService.Describe(c.Request.Context(), service.DescribeRequest{
		Filter:  body.Predicate(),
		Tag:     body.Tag,
		Markers: body.Markers,
		Check:   body.Check,
	})
	if err != nil {
		h.runError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "运行完成", Data: res})
}

// DNS 根据接口地址生成 DNS 记录
func (h *FleetHandler) DNS(c *gin.Context) {
	var body DNSBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.fleetService.DNS(c.Request.Context(), service.DNSRequest{Filter: body.Predicate(), Domain: body.Domain})
	if err != nil {
		h.runError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "运行完成", Data: gin.H{"run": res.Run, "records": res.Records, "skipped": res.Skipped, "lines": res.Lines()}})
}

// Facts 按 getter 采集设备信息
func (h *FleetHandler) Facts(c *gin.Context) {
	var body FactsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.fleetService.Facts(c.Request.Context(), service.FactsRequest{Filter: body.Predicate(), Getters: body.Getters})
	if err != nil {
		if errors.Is(err, facts.ErrUnknownGetter) {
			badRequest(c, err)
			return
		}
		h.runError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "运行完成", Data: res})
}

// ValidateMLAG 检查 EOS MLAG 状态
func (h *FleetHandler) ValidateMLAG(c *gin.Context) {
	var body MLAGBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.fleetService.ValidateMLAG(c.Request.Context(), service.MLAGRequest{Filter: body.Predicate()})
	if err != nil {
		h.runError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "运行完成", Data: gin.H{"run": res.Run, "reports": res.Reports, "unhealthy": res.Unhealthy()}})
}

// ActiveRuns 进行中的运行
func (h *FleetHandler) ActiveRuns(c *gin.Context) {
	runs := h.fleetService.ActiveRuns()
	out := make([]gin.H, 0, len(runs))
	for _, r := range runs {
		out = append(out, gin.H{
			"run_id":     r.ID,
			"kind":       r.Kind,
			"filter":     r.Filter,
			"selected":   r.Selected,
			"status":     r.Status,
			"start_time": r.StartTime,
			"duration":   time.Since(r.StartTime).String(),
		})
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "获取进行中的运行成功", Data: out})
}

// CancelRun 取消运行
func (h *FleetHandler) CancelRun(c *gin.Context) {
	runID := c.Param("run_id")
	if err := h.fleetService.CancelRun(runID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "RUN_NOT_FOUND", Message: "运行不存在: " + runID})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "运行已取消", Data: gin.H{"run_id": runID}})
}

func (h *FleetHandler) respondRun(c *gin.Context, res *fleet.FleetResult, err error) {
	if err != nil {
		h.runError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "运行完成", Data: res})
}

func (h *FleetHandler) runError(c *gin.Context, err error) {
	logger.WithFields(logger.KV("path", c.Request.URL.Path, "error", err)).Warn("Run request failed")
	switch {
	case errors.Is(err, service.ErrNotRunning), errors.Is(err, service.ErrNoInventory):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "SERVICE_UNAVAILABLE", Message: err.Error()})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, ErrorResponse{Code: "CANCELLED", Message: err.Error()})
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "RUN_REJECTED", Message: err.Error()})
	}
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_PARAMS", Message: "请求参数无效: " + err.Error()})
}

