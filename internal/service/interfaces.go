package service

import (
	"context"
	"time"

	"github.com/wfunc/fiberspec/internal/models"
	"github.com/wfunc/fiberspec/internal/repository"
	"github.com/wfunc/fiberspec/internal/spectrograph"
)

// SpectrographService 光谱仪服务接口
type SpectrographService interface {
	// 连接管理
	Start(ctx context.Context) error
	Stop()
	Connected() bool

	// 状态
	Status(full bool) (*spectrograph.DeviceStatus, error)
	DeviceInfo() (*DeviceInfo, error)
	ExposureState() spectrograph.ExposureState
	Fault() *Fault

	// 曝光
	Expose(ctx context.Context, req *ExposeRequest) (*models.ExposureRecord, error)
	CancelExposure() error

	// 曝光记录
	GetExposure(ctx context.Context, exposureID string) (*models.ExposureRecord, error)
	ListExposures(ctx context.Context, query *models.ExposureQuery) ([]*models.ExposureRecord, *repository.Pagination, error)
	ExposureStats(ctx context.Context) (map[models.ExposureRecordState]int64, error)

	// 事件推送
	SetEventPublisher(p EventPublisher)
}

// EventPublisher 事件推送，Publish 不能阻塞
type EventPublisher interface {
	Publish(eventType string, data interface{})
}

// 事件类型
const (
	EventConnection       = "connection"
	EventExposureState    = "exposure_state"
	EventExposureFinished = "exposure_finished"
	EventFault            = "fault"
)

// ConnectionEvent 连接状态变化
type ConnectionEvent struct {
	Connected bool        `json:"connected"`
	Device    *DeviceInfo `json:"device,omitempty"`
}

// ExposureStateEvent 曝光状态变化
type ExposureStateEvent struct {
	State spectrograph.ExposureState `json:"state"`
}

// 故障码
const (
	FaultConnect  = 1  // 连接光谱仪失败
	FaultExposure = 20 // 曝光失败或超时
)

// Fault 服务故障，成功 Start 后清除
type Fault struct {
	Code   int       `json:"code"`
	Report string    `json:"report"`
	At     time.Time `json:"at"`
}

// ExposeRequest 曝光请求
type ExposeRequest struct {
	Duration time.Duration `json:"-"`
	Type     string        `json:"type"`
	Source   string        `json:"source"`
}

// DeviceInfo 连接时读取的设备信息
type DeviceInfo struct {
	Band            string `json:"band"`
	SerialNumber    string `json:"serial_number"`
	Name            string `json:"name"`
	PixelCount      int    `json:"n_pixels"`
	FPGAVersion     string `json:"fpga_version"`
	FirmwareVersion string `json:"firmware_version"`
	LibraryVersion  string `json:"library_version"`
}
