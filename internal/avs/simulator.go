package avs

import (
	"sync"

	"github.com/wfunc/fiberspec/internal/logger"
	"go.uber.org/zap"
)

// 调用名称，用于 SetReturnCode / Calls
const (
	OpInit             = "Init"
	OpDone             = "Done"
	OpUpdateUSBDevices = "UpdateUSBDevices"
	OpGetList          = "GetList"
	OpActivate         = "Activate"
	OpDeactivate       = "Deactivate"
	OpGetNumPixels     = "GetNumPixels"
	OpGetParameter     = "GetParameter"
	OpGetVersionInfo   = "GetVersionInfo"
	OpGetAnalogIn      = "GetAnalogIn"
	OpPrepareMeasure   = "PrepareMeasure"
	OpMeasure          = "Measure"
	OpGetLambda        = "GetLambda"
	OpPollScan         = "PollScan"
	OpGetScopeData     = "GetScopeData"
	OpStopMeasure      = "StopMeasure"
)

// 模拟器默认值，与红色光谱仪一致
const (
	SimSerialNumber    = "1606190U1"
	SimDeviceName      = "Fake Spectrograph"
	SimNumPixels       = 2048
	SimSetpoint        = 5
	SimVoltage         = 2
	SimFPGAVersion     = "fpga12345678901"
	SimFirmwareVersion = "firmware123456"
	SimLibraryVersion  = "library123456"
)

// SimHandle 模拟器返回的设备句柄
const SimHandle Handle = 314159

// Simulator 模拟 libavs（用于测试和无硬件运行）
//
// 默认连接一台 USB_AVAILABLE 的设备，PollScan 第4次返回就绪。
type Simulator struct {
	mu     sync.Mutex
	logger *zap.Logger

	devices          []Identity
	handle           Handle
	activeHandle     Handle
	deactivateResult bool

	numPixels   uint16
	setpoint    float32
	tecFit      [5]float32
	voltage     float32
	fpga        string
	firmware    string
	library     string
	wavelength  []float64
	spectrum    []float64
	pollScript  []int32
	pollIndex   int
	lastMeasure *MeasureConfig

	codes map[string]int32
	calls map[string]int
	hooks map[string]func()
}

// NewSimulator 创建模拟器
func NewSimulator() *Simulator {
	s := &Simulator{
		logger:           logger.GetModuleLogger("avs"),
		devices:          []Identity{NewIdentity(SimSerialNumber, SimDeviceName, StatusUSBAvailable)},
		handle:           SimHandle,
		activeHandle:     InvalidHandle,
		deactivateResult: true,
		numPixels:        SimNumPixels,
		setpoint:         SimSetpoint,
		tecFit:           [5]float32{1, 2, 0, 0, 0},
		voltage:          SimVoltage,
		fpga:             SimFPGAVersion,
		firmware:         SimFirmwareVersion,
		library:          SimLibraryVersion,
		pollScript:       []int32{0, 0, 0, 1},
		codes:            make(map[string]int32),
		calls:            make(map[string]int),
		hooks:            make(map[string]func()),
	}
	s.wavelength = make([]float64, SimNumPixels)
	s.spectrum = make([]float64, SimNumPixels)
	for i := range s.wavelength {
		s.wavelength[i] = float64(i)
		s.spectrum[i] = float64(2 * i)
	}
	return s
}

// SetDevices 设置连接的设备列表
func (s *Simulator) SetDevices(devices ...Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append([]Identity(nil), devices...)
}

// SetHandle 设置 Activate 返回的句柄
func (s *Simulator) SetHandle(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
}

// SetDeactivateResult 设置 Deactivate 的返回值
func (s *Simulator) SetDeactivateResult(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivateResult = ok
}

// SetReturnCode 强制 op 返回 code，Activate 会把 code 作为句柄返回
func (s *Simulator) SetReturnCode(op string, code int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[op] = code
}

// ClearReturnCode 恢复正常返回
func (s *Simulator) ClearReturnCode(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, op)
}

// SetPollScript 设置 PollScan 的返回序列，每次 Measure 后从头开始，用完后重复最后一个值
func (s *Simulator) SetPollScript(script ...int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollScript = append([]int32(nil), script...)
	s.pollIndex = 0
}

// SetThermistor 设置热敏电阻电压与多项式系数
func (s *Simulator) SetThermistor(voltage float32, fit [5]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voltage = voltage
	s.tecFit = fit
}

// OnCall 每次调用 op 时执行 fn（不持锁），fn 为 nil 时移除
func (s *Simulator) OnCall(op string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.hooks, op)
		return
	}
	s.hooks[op] = fn
}

// Calls 返回 op 被调用的次数
func (s *Simulator) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// LastMeasureConfig 最近一次 PrepareMeasure 收到的配置
func (s *Simulator) LastMeasureConfig() *MeasureConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastMeasure == nil {
		return nil
	}
	cfg := *s.lastMeasure
	return &cfg
}

// Wavelength 模拟的波长数组
func (s *Simulator) Wavelength() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.wavelength...)
}

// Spectrum 模拟的光谱数组
func (s *Simulator) Spectrum() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.spectrum...)
}

// enter 记录调用并执行钩子，forced 为 true 时返回强制的返回值。
// 钩子在不持锁时执行；返回时持有锁，由调用方释放。
func (s *Simulator) enter(op string) (code int32, forced bool) {
	s.mu.Lock()
	s.calls[op]++
	hook := s.hooks[op]
	code, forced = s.codes[op]
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	s.mu.Lock()
	if forced {
		s.logger.Debug("simulated vendor call forced",
			zap.String("op", op), zap.Int32("code", code))
	}
	return code, forced
}

func (s *Simulator) checkHandle(h Handle) int32 {
	if h != s.activeHandle || h == InvalidHandle {
		return int32(ErrInvalidDeviceID)
	}
	return int32(Success)
}

// Init 返回设备数量
func (s *Simulator) Init(port int16) int32 {
	code, forced := s.enter(OpInit)
	defer s.mu.Unlock()
	if forced {
		return code
	}
	return int32(len(s.devices))
}

// Done 释放资源
func (s *Simulator) Done() int32 {
	code, forced := s.enter(OpDone)
	defer s.mu.Unlock()
	if forced {
		return code
	}
	s.activeHandle = InvalidHandle
	return int32(Success)
}

// UpdateUSBDevices 返回连接的USB设备数量
func (s *Simulator) UpdateUSBDevices() int32 {
	code, forced := s.enter(OpUpdateUSBDevices)
	defer s.mu.Unlock()
	if forced {
		return code
	}
	return int32(len(s.devices))
}

// GetList 两阶段枚举：空间不足时写入所需大小并返回 ERR_INVALID_SIZE
func (s *Simulator) GetList(listSize uint32, requiredSize *uint32, list []Identity) int32 {
	code, forced := s.enter(OpGetList)
	defer s.mu.Unlock()
	if forced {
		return code
	}
	need := uint32(len(s.devices) * IdentitySize)
	if requiredSize != nil {
		*requiredSize = need
	}
	if listSize < need || len(list) < len(s.devices) {
		return int32(ErrInvalidSize)
	}
	copy(list, s.devices)
	return int32(len(s.devices))
}

// Activate 返回设备句柄
func (s *Simulator) Activate(id *Identity) Handle {
	code, forced := s.enter(OpActivate)
	defer s.mu.Unlock()
	if forced {
		return Handle(code)
	}
	for _, dev := range s.devices {
		if dev.SerialNumber == id.SerialNumber {
			s.activeHandle = s.handle
			return s.handle
		}
	}
	return Handle(ErrDeviceNotFound)
}

// Deactivate 关闭设备
func (s *Simulator) Deactivate(h Handle) bool {
	_, forced := s.enter(OpDeactivate)
	defer s.mu.Unlock()
	if forced || !s.deactivateResult {
		return false
	}
	if s.checkHandle(h) != int32(Success) {
		return false
	}
	s.activeHandle = InvalidHandle
	return true
}

// GetNumPixels 像素数量
func (s *Simulator) GetNumPixels(h Handle, numPixels *uint16) int32 {
	code, forced := s.enter(OpGetNumPixels)
	defer s.mu.Unlock()
	if forced {
		return code
	}
	if rc := s.checkHandle(h); rc < 0 {
		return rc
	}
	*numPixels = s.numPixels
	return int32(Success)
}

// GetParameter 返回设备配置
func (s *Simulator) GetParameter(h Handle, size uint32, requiredSize *uint32, cfg *DeviceConfig) int32 {
	code, forced := s.enter(OpGetParameter)
	defer s.mu.Unlock()
	if forced {
		return code
	}
	if rc := s.checkHandle(h); rc < 0 {
		return rc
	}
	if requiredSize != nil {
		*requiredSize = DeviceConfigSize
	}
	if size < DeviceConfigSize {
		return int32(ErrInvalidSize)
	}
	*cfg = DeviceConfig{}
	cfg.Len = DeviceConfigSize
	cfg.Detector.NrPixels = s.numPixels
	cfg.TecControl.Enable = true
	cfg.TecControl.Setpoint = s.setpoint
	cfg.Temperature[2].Fit = s.tecFit
	return int32(Success)
}

// GetVersionInfo 版本信息
func (s *Simulator) GetVersionInfo(h Handle, fpga, firmware, library *VersionString) int32 {
	code, forced := s.enter(OpGetVersionInfo)
	defer s.mu.Unlock()
	if forced {
		return code
	}
	if rc := s.checkHandle(h); rc < 0 {
		return rc
	}
	*fpga, *firmware, *library = VersionString{}, VersionString{}, VersionString{}
	copy(fpga[:], s.fpga)
	copy(firmware[:], s.firmware)
	copy(library[:], s.library)
	return int32(Success)
}

// GetAnalogIn 通道0为热敏电阻电压
func (s *Simulator) GetAnalogIn(h Handle, id uint8, value *float32) int32 {
	code, forced := s.enter(OpGetAnalogIn)
	defer s.mu.Unlock()
	if forced {
		return code
	}
	if rc := s.checkHandle(h); rc < 0 {
		return rc
	}
	if id == 0 {
		*value = s.voltage
	}
	return int32(Success)
}

// PrepareMeasure 保存测量配置
func (s *Simulator) PrepareMeasure(h Handle, cfg *MeasureConfig) int32 {
	code, forced := s.enter(OpPrepareMeasure)
	defer s.mu.Unlock()
	if forced {
		return code
	}
	if rc := s.checkHandle(h); rc < 0 {
		return rc
	}
	saved := *cfg
	s.lastMeasure = &saved
	return int32(Success)
}

// Measure 开始测量
func (s *Simulator) Measure(h Handle, nrOfScans int16) int32 {
	code, forced := s.enter(OpMeasure)
	defer s.mu.Unlock()
	if forced {
		return code
	}
	if rc := s.checkHandle(h); rc < 0 {
		return rc
	}
	s.pollIndex = 0
	return int32(Success)
}

// GetLambda 波长
func (s *Simulator) GetLambda(h Handle, wavelength []float64) int32 {
	code, forced := s.enter(OpGetLambda)
	defer s.mu.Unlock()
	if forced {
		return code
	}
	if rc := s.checkHandle(h); rc < 0 {
		return rc
	}
	if len(wavelength) < len(s.wavelength) {
		return int32(ErrInvalidSize)
	}
	copy(wavelength, s.wavelength)
	return int32(Success)
}

// PollScan 按脚本返回
func (s *Simulator) PollScan(h Handle) int32 {
	code, forced := s.enter(OpPollScan)
	defer s.mu.Unlock()
	if forced {
		return code
	}
	if rc := s.checkHandle(h); rc < 0 {
		return rc
	}
	if len(s.pollScript) == 0 {
		return 1
	}
	i := s.pollIndex
	if i >= len(s.pollScript) {
		i = len(s.pollScript) - 1
	} else {
		s.pollIndex++
	}
	return s.pollScript[i]
}

// GetScopeData 光谱数据
func (s *Simulator) GetScopeData(h Handle, timeLabel *uint32, spectrum []float64) int32 {
	code, forced := s.enter(OpGetScopeData)
	defer s.mu.Unlock()
	if forced {
		return code
	}
	if rc := s.checkHandle(h); rc < 0 {
		return rc
	}
	if len(spectrum) < len(s.spectrum) {
		return int32(ErrInvalidSize)
	}
	if timeLabel != nil {
		*timeLabel = uint32(s.calls[OpGetScopeData])
	}
	copy(spectrum, s.spectrum)
	return int32(Success)
}

// StopMeasure 停止测量
func (s *Simulator) StopMeasure(h Handle) int32 {
	code, forced := s.enter(OpStopMeasure)
	defer s.mu.Unlock()
	if forced {
		return code
	}
	if rc := s.checkHandle(h); rc < 0 {
		return rc
	}
	return int32(Success)
}
