package avs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// 字段长度（字节）
const (
	UserIDLen      = 64
	SerialLen      = 10
	VersionLen     = 16
	NrDefectivePix = 30
	MaxTempSensors = 3
	MaxNrPixels    = 4096
)

// 记录大小，必须与 avaspec.h 完全一致
const (
	IdentitySize      = 75
	MeasureConfigSize = 41
	DeviceConfigSize  = 63484
)

// DeviceStatus 设备可用状态字节
type DeviceStatus uint8

const (
	StatusUnknown               DeviceStatus = 0
	StatusUSBAvailable          DeviceStatus = 1
	StatusUSBInUseByApplication DeviceStatus = 2
	StatusUSBInUseByOther       DeviceStatus = 3
	StatusEthAvailable          DeviceStatus = 4
	StatusEthInUseByApplication DeviceStatus = 5
	StatusEthInUseByOther       DeviceStatus = 6
	StatusEthAlreadyInUseUSB    DeviceStatus = 7
)

var deviceStatusNames = map[DeviceStatus]string{
	StatusUnknown:               "UNKNOWN",
	StatusUSBAvailable:          "USB_AVAILABLE",
	StatusUSBInUseByApplication: "USB_IN_USE_BY_APPLICATION",
	StatusUSBInUseByOther:       "USB_IN_USE_BY_OTHER",
	StatusEthAvailable:          "ETH_AVAILABLE",
	StatusEthInUseByApplication: "ETH_IN_USE_BY_APPLICATION",
	StatusEthInUseByOther:       "ETH_IN_USE_BY_OTHER",
	StatusEthAlreadyInUseUSB:    "ETH_ALREADY_IN_USE_USB",
}

func (s DeviceStatus) String() string {
	if name, ok := deviceStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("DeviceStatus(%d)", uint8(s))
}

// InUse 设备是否已被占用
func (s DeviceStatus) InUse() bool {
	switch s {
	case StatusUSBInUseByApplication, StatusUSBInUseByOther,
		StatusEthInUseByApplication, StatusEthInUseByOther, StatusEthAlreadyInUseUSB:
		return true
	}
	return false
}

// Identity 对应 AvsIdentityType
type Identity struct {
	SerialNumber     [SerialLen]byte
	UserFriendlyName [UserIDLen]byte
	Status           DeviceStatus
}

// NewIdentity 创建设备标识，超长字段会被截断
func NewIdentity(serial, name string, status DeviceStatus) Identity {
	var id Identity
	copy(id.SerialNumber[:], serial)
	copy(id.UserFriendlyName[:], name)
	id.Status = status
	return id
}

// Serial 返回去掉NUL的序列号
func (id Identity) Serial() string {
	return DecodeString(id.SerialNumber[:])
}

// Name 返回去掉NUL的设备名
func (id Identity) Name() string {
	return DecodeString(id.UserFriendlyName[:])
}

func (id Identity) String() string {
	return fmt.Sprintf("AvsIdentity(%q, %q, %s)", id.Serial(), id.Name(), id.Status)
}

// VersionString 版本信息缓冲区
type VersionString [VersionLen]byte

func (v VersionString) String() string {
	return DecodeString(v[:])
}

// DecodeString 定长 ASCII 字段转字符串，截断到第一个 NUL
func DecodeString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Smoothing 平滑参数
type Smoothing struct {
	SmoothPix   uint16
	SmoothModel uint8
}

// DynamicDark 动态暗电流校正
type DynamicDark struct {
	Enable           uint8
	ForgetPercentage uint8
}

// Trigger 触发配置
type Trigger struct {
	Mode       uint8
	Source     uint8
	SourceType uint8
}

// Control 控制参数
type Control struct {
	StrobeControl   uint16
	LaserDelay      uint32
	LaserWidth      uint32
	LaserWaveLength float32
	StoreToRam      uint16
}

// MeasureConfig 对应 MeasConfigType
type MeasureConfig struct {
	StartPixel          uint16
	StopPixel           uint16
	IntegrationTime     float32 // 毫秒
	IntegrationDelay    uint32  // FPGA时钟周期
	NrAverages          uint32
	DynamicDark         DynamicDark
	Smoothing           Smoothing
	SaturationDetection uint8
	Trigger             Trigger
	Control             Control
}

// Detector 探测器参数
type Detector struct {
	SensorType      uint8
	NrPixels        uint16
	Fit             [5]float32
	NLEnable        bool
	NLCorrect       [8]float64
	LowNLCounts     float64
	HighNLCounts    float64
	Gain            [2]float32
	Reserved        float32
	Offset          [2]float32
	ExtOffset       float32
	DefectivePixels [NrDefectivePix]uint16
}

// IntensityCalib 强度校准
type IntensityCalib struct {
	Smoothing    Smoothing
	CalInttime   float32
	CalibConvers [MaxNrPixels]float32
}

// Irradiance 辐照度校准
type Irradiance struct {
	IntensityCalib  IntensityCalib
	CalibrationType uint8
	FiberDiameter   uint32
}

// Reflectance 反射率校准
type Reflectance struct {
	Smoothing    Smoothing
	CalInttime   float32
	CalibConvers [MaxNrPixels]float32
}

// StandAlone 独立运行模式
type StandAlone struct {
	Enable   bool
	Meas     MeasureConfig
	Nmsr     int16
	Reserved [12]uint8
}

// TempSensor 温度传感器多项式系数
type TempSensor struct {
	Fit [5]float32
}

// TecControl 制冷控制
type TecControl struct {
	Enable   bool
	Setpoint float32 // 摄氏度
	Fit      [2]float32
}

// ProcessControl 过程控制
type ProcessControl struct {
	AnalogLow   [2]float32
	AnalogHigh  [2]float32
	DigitalLow  [10]float32
	DigitalHigh [10]float32
}

// EthernetSettings 以太网设置
type EthernetSettings struct {
	IPAddr      uint32
	NetMask     uint32
	Gateway     uint32
	DHCPEnabled uint8
	TCPPort     uint16
	LinkStatus  uint8
}

// DeviceConfig 对应 DeviceConfigType
type DeviceConfig struct {
	Len             uint16
	ConfigVersion   uint16
	UserFriendlyID  [UserIDLen]byte
	Detector        Detector
	Irradiance      Irradiance
	Reflectance     Reflectance
	SpectrumCorrect [MaxNrPixels]float32
	StandAlone      StandAlone
	Temperature     [MaxTempSensors]TempSensor
	TecControl      TecControl
	ProcessControl  ProcessControl
	Ethernet        EthernetSettings
	Reserved        [9720]uint8
	OEMData         [4096]uint8
}

// ThermistorFit 光具座热敏电阻的多项式系数（第三个温度传感器）
func (c *DeviceConfig) ThermistorFit() [5]float32 {
	return c.Temperature[2].Fit
}

// 打印时省略的大数组
var longFields = map[string]bool{
	"Irradiance.IntensityCalib.CalibConvers": true,
	"Reflectance.CalibConvers":               true,
	"SpectrumCorrect":                        true,
	"Reserved":                               true,
	"OEMData":                                true,
}

func (c *DeviceConfig) String() string {
	fields, values := layoutValues(c)
	parts := make([]string, 0, len(fields))
	for i, f := range fields {
		if longFields[f.Name] {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", f.Name, values[i]))
	}
	return "DeviceConfig(" + strings.Join(parts, ", ") + ")"
}

func (m MeasureConfig) String() string {
	fields, values := layoutValues(&m)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s=%v", f.Name, values[i])
	}
	return "MeasureConfig(" + strings.Join(parts, ", ") + ")"
}

// Marshal 按紧凑小端布局编码记录
func Marshal(record any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(binary.Size(record))
	if err := binary.Write(&buf, binary.LittleEndian, record); err != nil {
		return nil, fmt.Errorf("marshal %T: %w", record, err)
	}
	return buf.Bytes(), nil
}

// Unmarshal 解码紧凑记录，record 必须是指针
func Unmarshal(data []byte, record any) error {
	size := binary.Size(record)
	if size < 0 {
		return fmt.Errorf("unmarshal %T: not a fixed-size record", record)
	}
	if len(data) < size {
		return fmt.Errorf("unmarshal %T: need %d bytes, have %d", record, size, len(data))
	}
	return binary.Read(bytes.NewReader(data[:size]), binary.LittleEndian, record)
}
