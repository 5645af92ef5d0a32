package spectrograph

import (
	"strings"
	"sync"

	"github.com/wfunc/fiberspec/internal/avs"
	"github.com/wfunc/fiberspec/internal/errors"
	"github.com/wfunc/fiberspec/internal/logger"
	"go.uber.org/zap"
)

// Controller 单台 Avantes 光纤光谱仪的控制器
//
// 设备句柄与厂商库由控制器独占。所有厂商调用经 callMu 串行执行；
// 曝光等待与轮询间隔期间不持锁，因此 Status 可以与曝光交错执行。
type Controller struct {
	lib    avs.Library
	opts   Options
	logger *zap.Logger

	// callMu 串行化厂商调用，加锁顺序为 callMu -> mu
	callMu sync.Mutex

	mu        sync.Mutex
	handle    avs.Handle
	connected bool
	closed    bool
	device    avs.Identity
	pixels    int
	task      *exposureTask
	state     ExposureState
}

// Connect 初始化厂商库并连接光谱仪
//
// Init 之后的任何失败都会释放已获取的资源（已激活则 Deactivate，然后 Done）。
func Connect(lib avs.Library, opts Options) (*Controller, error) {
	opts = opts.withDefaults()
	c := &Controller{
		lib:    lib,
		opts:   opts,
		logger: opts.Logger,
		handle: avs.InvalidHandle,
		state:  StateIdle,
	}
	if c.logger == nil {
		c.logger = logger.GetModuleLogger("spectrograph")
	}

	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) connect() error {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	// Init(0) 初始化USB通信，参数不是设备编号
	if err := vendorError(c.lib.Init(0), "Init"); err != nil {
		return err
	}

	activated := avs.InvalidHandle
	release := func() {
		if activated != avs.InvalidHandle && !c.lib.Deactivate(activated) {
			c.logger.Error("Could not deactivate device after failed connect",
				zap.Int32("handle", int32(activated)))
		}
		c.lib.Done()
	}

	device, err := c.selectDevice()
	if err != nil {
		release()
		return err
	}

	// 状态字节只是参考，激活失败同样按错误处理
	if device.Status.InUse() {
		release()
		return errors.Newf(errors.ErrDeviceInUse, "Requested AVS device is already in use: %s", device)
	}

	h := c.lib.Activate(&device)
	if h < 0 {
		release()
		return vendorError(int32(h), "Activate")
	}
	if h == avs.InvalidHandle {
		release()
		return errors.Newf(errors.ErrInvalidHandle, "Invalid device handle; cannot activate device %s", device)
	}
	activated = h
	c.logger.Info("Activated connection with USB device",
		zap.Int32("handle", int32(h)),
		zap.Stringer("device", device))

	var pixels uint16
	if err := vendorError(c.lib.GetNumPixels(h, &pixels), "GetNumPixels"); err != nil {
		release()
		return err
	}
	if pixels == 0 {
		release()
		return errors.New(errors.ErrVendorCall, "GetNumPixels reported zero pixels")
	}

	c.mu.Lock()
	c.handle = h
	c.device = device
	c.pixels = int(pixels)
	c.connected = true
	c.mu.Unlock()
	return nil
}

// selectDevice 两阶段枚举设备并按序列号选择
func (c *Controller) selectDevice() (avs.Identity, error) {
	n := c.lib.UpdateUSBDevices()
	if err := vendorError(n, "UpdateUSBDevices"); err != nil {
		return avs.Identity{}, err
	}
	if n == 0 {
		return avs.Identity{}, errors.New(errors.ErrNoDevices, "No attached USB Avantes devices found.")
	}
	c.logger.Debug("Found attached USB Avantes devices", zap.Int32("count", n))

	var required uint32
	code := c.lib.GetList(0, &required, nil)
	if code < 0 && avs.ReturnCode(code) != avs.ErrInvalidSize {
		return avs.Identity{}, vendorError(code, "GetList (size query)")
	}
	if required == 0 {
		required = uint32(n) * avs.IdentitySize
	}

	list := make([]avs.Identity, required/avs.IdentitySize)
	code = c.lib.GetList(required, &required, list)
	if err := vendorError(code, "GetList (device list)"); err != nil {
		return avs.Identity{}, err
	}
	if int(code) < len(list) {
		list = list[:code]
	}
	if len(list) == 0 {
		return avs.Identity{}, errors.New(errors.ErrNoDevices, "No attached USB Avantes devices found.")
	}
	c.logger.Debug("Found devices", zap.String("devices", formatDevices(list)))

	serial := c.opts.SerialNumber
	if serial == "" {
		if len(list) > 1 {
			return avs.Identity{}, errors.Newf(errors.ErrAmbiguousDevice,
				"Multiple devices found, but no serial number specified. Attached devices: %s", formatDevices(list))
		}
		return list[0], nil
	}

	for _, dev := range list {
		if dev.Serial() == serial {
			return dev, nil
		}
	}
	return avs.Identity{}, errors.Newf(errors.ErrDeviceNotFound,
		"Device serial_number=%q not found in device list: %s", serial, formatDevices(list))
}

func formatDevices(list []avs.Identity) string {
	parts := make([]string, len(list))
	for i, dev := range list {
		parts[i] = dev.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Disconnect 断开连接，可重复调用
//
// 进行中的曝光先被取消，取消失败只记录日志。之后尽力 Deactivate 并调用 Done。
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	task := c.task
	c.mu.Unlock()

	if task != nil {
		if err := c.StopExposure(); err != nil {
			c.logger.Error("Failed to stop exposure while disconnecting", zap.Error(err))
		}
		<-task.done
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.mu.Lock()
	h, device := c.handle, c.device
	c.mu.Unlock()

	if h != avs.InvalidHandle {
		if !c.lib.Deactivate(h) {
			c.logger.Error("Could not deactivate device; assuming it is safe to close the communication port anyway",
				zap.Stringer("device", device),
				zap.Int32("handle", int32(h)))
		}
	}
	c.lib.Done()

	c.mu.Lock()
	c.handle = avs.InvalidHandle
	c.connected = false
	c.mu.Unlock()

	c.logger.Info("Disconnected from spectrograph", zap.Stringer("device", device))
}

// Handle 当前句柄，未连接时第二个返回值为 false
func (c *Controller) Handle() (avs.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return avs.InvalidHandle, false
	}
	return c.handle, true
}

// Connected 是否已连接
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Device 已连接设备的标识
func (c *Controller) Device() avs.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

// PixelCount 连接时缓存的像素数
func (c *Controller) PixelCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pixels
}

// vendorError 将厂商返回值转换为应用错误，code >= 0 时返回 nil
func vendorError(code int32, op string) error {
	if code >= 0 {
		return nil
	}
	return classified(code, op)
}

func classified(code int32, op string) error {
	rerr := avs.Classify(code, op)
	if !rerr.Recognized {
		return errors.Wrap(rerr, errors.ErrUnknownVendorCode)
	}
	return errors.Wrap(rerr, errors.ErrVendorCall)
}

func notConnected() error {
	return errors.New(errors.ErrNotConnected, "no spectrograph connected")
}
