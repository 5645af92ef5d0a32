package spectrograph

import (
	"time"

	"go.uber.org/zap"
)

// 曝光时间范围
const (
	MinDuration = 2 * time.Microsecond
	MaxDuration = 600 * time.Second
)

// 轮询默认值。厂商建议两次 PollScan 之间至少间隔1ms
const (
	DefaultPollTimeout  = time.Second
	DefaultPollInterval = time.Millisecond
)

// Options 控制器参数
type Options struct {
	// SerialNumber 为空时连接唯一接入的设备
	SerialNumber string
	Logger       *zap.Logger

	// PollTimeout 积分结束后等待数据就绪的上限，与曝光时间无关
	PollTimeout  time.Duration
	PollInterval time.Duration

	// OnStateChange 曝光状态变化时回调，在锁外调用，回调中不能调用 Disconnect
	OnStateChange func(ExposureState)
}

func (o Options) withDefaults() Options {
	if o.PollTimeout <= 0 {
		o.PollTimeout = DefaultPollTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}
