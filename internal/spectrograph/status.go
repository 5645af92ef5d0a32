package spectrograph

import (
	"github.com/wfunc/fiberspec/internal/avs"
)

// DeviceStatus 光谱仪状态，每次查询重新读取
type DeviceStatus struct {
	PixelCount          int     `json:"n_pixels"`
	FPGAVersion         string  `json:"fpga_version"`
	FirmwareVersion     string  `json:"firmware_version"`
	LibraryVersion      string  `json:"library_version"`
	TemperatureSetpoint float64 `json:"temperature_setpoint"` // 摄氏度
	Temperature         float64 `json:"temperature"`          // 摄氏度

	// Config 仅在 full 查询时返回
	Config *avs.DeviceConfig `json:"-"`
}

// DecodeTemperature 按第三个温度传感器的拟合系数计算温度：sum(fit[i] * voltage^i)
func DecodeTemperature(cfg *avs.DeviceConfig, voltage float32) float64 {
	fit := cfg.ThermistorFit()
	v := float64(voltage)
	var (
		sum  float64
		term = 1.0
	)
	for _, c := range fit {
		sum += float64(c) * term
		term *= v
	}
	return sum
}

// Status 查询版本、配置和热敏电阻电压，计算当前温度
//
// 厂商调用失败时直接返回错误，不会断开连接。
func (c *Controller) Status(full bool) (*DeviceStatus, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	h, ok := c.Handle()
	if !ok {
		return nil, notConnected()
	}

	var fpga, firmware, library avs.VersionString
	if err := vendorError(c.lib.GetVersionInfo(h, &fpga, &firmware, &library), "GetVersionInfo"); err != nil {
		return nil, err
	}

	cfg := &avs.DeviceConfig{}
	required := uint32(avs.DeviceConfigSize)
	if err := vendorError(c.lib.GetParameter(h, avs.DeviceConfigSize, &required, cfg), "GetParameter"); err != nil {
		return nil, err
	}

	var voltage float32
	if err := vendorError(c.lib.GetAnalogIn(h, 0, &voltage), "GetAnalogIn"); err != nil {
		return nil, err
	}

	status := &DeviceStatus{
		PixelCount:          c.PixelCount(),
		FPGAVersion:         fpga.String(),
		FirmwareVersion:     firmware.String(),
		LibraryVersion:      library.String(),
		TemperatureSetpoint: float64(cfg.TecControl.Setpoint),
		Temperature:         DecodeTemperature(cfg, voltage),
	}
	if full {
		status.Config = cfg
	}
	return status, nil
}
