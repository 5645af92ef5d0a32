package models

import (
	"time"
)

// ExposureRecordState 曝光记录状态
type ExposureRecordState string

const (
	ExposureIntegrating ExposureRecordState = "integrating"
	ExposureDone        ExposureRecordState = "done"
	ExposureCancelled   ExposureRecordState = "cancelled"
	ExposureTimedOut    ExposureRecordState = "timed_out"
	ExposureFailed      ExposureRecordState = "failed"
)

// Terminal 是否为终态
func (s ExposureRecordState) Terminal() bool {
	return s != ExposureIntegrating
}

// ExposureRecord 曝光记录表
type ExposureRecord struct {
	BaseModel
	ExposureID   string              `gorm:"uniqueIndex;size:36;not null" json:"exposure_id"`
	Band         string              `gorm:"size:20;index" json:"band"`
	SerialNumber string              `gorm:"size:20" json:"serial_number"`
	Duration     float64             `gorm:"not null" json:"duration"` // 秒
	Type         string              `gorm:"size:50" json:"type"`      // 曝光类型，例如 object / dark / flat
	Source       string              `gorm:"size:50" json:"source"`    // 光源名称
	State        ExposureRecordState `gorm:"size:20;index;not null" json:"state"`
	StartedAt    time.Time           `gorm:"index" json:"started_at"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`

	Temperature         float64 `json:"temperature"`
	TemperatureSetpoint float64 `json:"temperature_setpoint"`
	PixelCount          int     `json:"n_pixels"`

	Wavelength []float64 `gorm:"serializer:json" json:"wavelength,omitempty"` // nm
	Spectrum   []float64 `gorm:"serializer:json" json:"spectrum,omitempty"`

	Error string `gorm:"size:1000" json:"error,omitempty"`
}

// TableName 表名
func (ExposureRecord) TableName() string {
	return "exposure_records"
}

// ExposureQuery 曝光记录查询条件
type ExposureQuery struct {
	Band     string
	State    ExposureRecordState
	Page     int
	PageSize int
}
