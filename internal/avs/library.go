package avs

// Handle 设备句柄
type Handle int32

// InvalidHandle libavs 在句柄无效时返回的值
const InvalidHandle Handle = 1000

// DefaultLibraryPath libavs 默认安装位置
const DefaultLibraryPath = "/usr/local/lib/libavs.so.0.2.0"

// Library 控制器使用的 AVS_* 函数。所有调用都是同步的，返回有符号状态码（负数为错误）；
// Activate 返回句柄或负数错误码，Deactivate 返回是否成功。
//
// 实现不要求并发安全，由调用方串行访问。
type Library interface {
	Init(port int16) int32
	Done() int32
	UpdateUSBDevices() int32
	GetList(listSize uint32, requiredSize *uint32, list []Identity) int32
	Activate(id *Identity) Handle
	Deactivate(h Handle) bool
	GetNumPixels(h Handle, numPixels *uint16) int32
	GetParameter(h Handle, size uint32, requiredSize *uint32, cfg *DeviceConfig) int32
	GetVersionInfo(h Handle, fpga, firmware, library *VersionString) int32
	GetAnalogIn(h Handle, id uint8, value *float32) int32
	PrepareMeasure(h Handle, cfg *MeasureConfig) int32
	Measure(h Handle, nrOfScans int16) int32
	GetLambda(h Handle, wavelength []float64) int32
	PollScan(h Handle) int32
	GetScopeData(h Handle, timeLabel *uint32, spectrum []float64) int32
	StopMeasure(h Handle) int32
}

// Closer 由需要释放动态库的实现提供
type Closer interface {
	Close() error
}
