package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/fiberspec/internal/avs"
	"github.com/wfunc/fiberspec/internal/middleware"
	"github.com/wfunc/fiberspec/internal/models"
	"github.com/wfunc/fiberspec/internal/service"
	"github.com/wfunc/fiberspec/internal/spectrograph"
	"go.uber.org/zap"
)

// SpectrographHandler 光谱仪处理器
type SpectrographHandler struct {
	svc service.SpectrographService
	log *zap.Logger
}

// NewSpectrographHandler 创建光谱仪处理器
func NewSpectrographHandler(svc service.SpectrographService, log *zap.Logger) *SpectrographHandler {
	return &SpectrographHandler{svc: svc, log: log}
}

// ExposeBody 曝光请求体，duration 单位为秒
type ExposeBody struct {
	Duration *float64 `json:"duration" binding:"required"`
	Type     string   `json:"type" binding:"max=50"`
	Source   string   `json:"source" binding:"max=50"`
}

// StatusResponse 状态响应
type StatusResponse struct {
	*spectrograph.DeviceStatus
	Config *avs.DeviceConfig `json:"config,omitempty"`
}

// StateResponse 服务状态响应
type StateResponse struct {
	Connected     bool                       `json:"connected"`
	ExposureState spectrograph.ExposureState `json:"exposure_state"`
	Fault         *service.Fault             `json:"fault,omitempty"`
}

// Status 实时状态，full=true 时附带完整设备配置
func (h *SpectrographHandler) Status(c *gin.Context) {
	full, _ := strconv.ParseBool(c.Query("full"))
	status, err := h.svc.Status(full)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{DeviceStatus: status, Config: status.Config})
}

// DeviceInfo 设备信息
func (h *SpectrographHandler) DeviceInfo(c *gin.Context) {
	info, err := h.svc.DeviceInfo()
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// State 连接、曝光与故障状态
func (h *SpectrographHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.state())
}

func (h *SpectrographHandler) state() StateResponse {
	return StateResponse{
		Connected:     h.svc.Connected(),
		ExposureState: h.svc.ExposureState(),
		Fault:         h.svc.Fault(),
	}
}

// Expose 进行一次曝光，请求阻塞到曝光结束
func (h *SpectrographHandler) Expose(c *gin.Context) {
	var body ExposeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	operator, _ := middleware.GetOperator(c)
	h.log.Info("Expose command",
		zap.Float64("duration", *body.Duration),
		zap.String("type", body.Type),
		zap.String("source", body.Source),
		zap.String("operator", operator))

	record, err := h.svc.Expose(c.Request.Context(), &service.ExposeRequest{
		Duration: secondsToDuration(*body.Duration),
		Type:     body.Type,
		Source:   body.Source,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// secondsToDuration 超出 time.Duration 范围的值映射为最大值，交由曝光时间检查拒绝
func secondsToDuration(seconds float64) time.Duration {
	if math.IsNaN(seconds) {
		return 0
	}
	ns := seconds * float64(time.Second)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	if ns <= math.MinInt64 {
		return time.Duration(math.MinInt64)
	}
	return time.Duration(ns)
}

// CancelExposure 取消进行中的曝光
func (h *SpectrographHandler) CancelExposure(c *gin.Context) {
	operator, _ := middleware.GetOperator(c)
	h.log.Info("Cancel exposure command", zap.String("operator", operator))

	if err := h.svc.CancelExposure(); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "exposure cancelled"})
}

// ListExposures 分页查询曝光记录
func (h *SpectrographHandler) ListExposures(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	records, p, err := h.svc.ListExposures(c.Request.Context(), &models.ExposureQuery{
		Band:     c.Query("band"),
		State:    models.ExposureRecordState(c.Query("state")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, PageResponse{Items: records, Page: p.Page, PageSize: p.PageSize, Total: p.Total})
}

// GetExposure 按ID查询曝光记录
func (h *SpectrographHandler) GetExposure(c *gin.Context) {
	record, err := h.svc.GetExposure(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// ExposureStats 各状态的曝光数量
func (h *SpectrographHandler) ExposureStats(c *gin.Context) {
	counts, err := h.svc.ExposureStats(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}
