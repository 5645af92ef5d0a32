package spectrograph

import (
	"context"
	"time"

	"github.com/wfunc/fiberspec/internal/avs"
	"github.com/wfunc/fiberspec/internal/errors"
	"go.uber.org/zap"
)

// ExposureState 曝光状态
type ExposureState string

const (
	StateIdle        ExposureState = "idle"
	StatePreparing   ExposureState = "preparing"
	StateIntegrating ExposureState = "integrating"
	StatePolling     ExposureState = "polling"
	StateDone        ExposureState = "done"
	StateCancelled   ExposureState = "cancelled"
	StateFailed      ExposureState = "failed"
	StateTimedOut    ExposureState = "timed_out"
)

// Active 是否处于进行中的状态
func (s ExposureState) Active() bool {
	switch s {
	case StatePreparing, StateIntegrating, StatePolling:
		return true
	}
	return false
}

// Exposure 一次曝光的结果
type Exposure struct {
	Duration   time.Duration
	Wavelength []float64 // nm
	Spectrum   []float64
	TimeLabel  uint32
	StartedAt  time.Time
	FinishedAt time.Time
}

// exposureTask 进行中的曝光，同一时间最多一个
//
// measured 表示 Measure 已返回；stopped 表示在那之后已经发出过 StopMeasure。
// 早于 Measure 的 StopMeasure 不算数。
type exposureTask struct {
	cancel        context.CancelFunc
	done          chan struct{}
	stopRequested bool
	measured      bool
	stopped       bool
}

// CheckExposeOK 检查是否可以开始曝光，不产生任何副作用
func (c *Controller) CheckExposeOK(duration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkExposeLocked(duration)
}

func (c *Controller) checkExposeLocked(duration time.Duration) error {
	if duration < MinDuration || duration > MaxDuration {
		return errors.Newf(errors.ErrInvalidDuration,
			"Exposure duration not in valid range: %s not in [%s, %s]", duration, MinDuration, MaxDuration)
	}
	if c.task != nil {
		return errors.New(errors.ErrExposureActive,
			"Cannot start new exposure; an exposure is already in progress")
	}
	if !c.connected || c.closed {
		return notConnected()
	}
	return nil
}

// ExposureState 当前曝光状态
func (c *Controller) ExposureState() ExposureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Expose 进行一次曝光并读出光谱
//
// 顺序固定为 PrepareMeasure -> Measure -> GetLambda -> 等待 duration -> 轮询 PollScan -> GetScopeData。
// 等待积分和轮询间隔两处可以被取消，其余厂商调用之间也会检查取消；取消后返回 ErrCanceled，
// 不再发出新的测量调用。
func (c *Controller) Expose(ctx context.Context, duration time.Duration) (*Exposure, error) {
	c.mu.Lock()
	if err := c.checkExposeLocked(duration); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	taskCtx, cancel := context.WithCancel(ctx)
	task := &exposureTask{cancel: cancel, done: make(chan struct{})}
	c.task = task
	h, pixels := c.handle, c.pixels
	c.mu.Unlock()

	result, state, err := c.runExposure(taskCtx, task, h, pixels, duration)
	c.setState(state)

	c.mu.Lock()
	c.task = nil
	c.mu.Unlock()
	cancel()
	close(task.done)

	return result, err
}

func (c *Controller) runExposure(ctx context.Context, task *exposureTask, h avs.Handle, pixels int,
	duration time.Duration) (*Exposure, ExposureState, error) {
	log := c.logger.With(zap.Duration("duration", duration))
	exp := &Exposure{Duration: duration, StartedAt: time.Now()}

	c.setState(StatePreparing)
	if err := ctx.Err(); err != nil {
		return nil, StateCancelled, c.cancelled(task, h, err)
	}
	cfg := &avs.MeasureConfig{
		StartPixel:      0,
		StopPixel:       uint16(pixels - 1),
		IntegrationTime: float32(float64(duration) / float64(time.Millisecond)),
		NrAverages:      1,
	}
	log.Debug("Preparing measurement", zap.Stringer("config", cfg))
	if err := c.call("PrepareMeasure", func() int32 { return c.lib.PrepareMeasure(h, cfg) }); err != nil {
		return nil, StateFailed, err
	}
	if err := ctx.Err(); err != nil {
		return nil, StateCancelled, c.cancelled(task, h, err)
	}

	log.Info("Beginning measurement")
	if err := c.call("Measure", func() int32 { return c.lib.Measure(h, 1) }); err != nil {
		return nil, StateFailed, err
	}
	c.mu.Lock()
	task.measured = true
	c.mu.Unlock()
	c.setState(StateIntegrating)
	if err := ctx.Err(); err != nil {
		return nil, StateCancelled, c.cancelled(task, h, err)
	}

	// 积分期间读取波长
	exp.Wavelength = make([]float64, pixels)
	if err := c.call("GetLambda", func() int32 { return c.lib.GetLambda(h, exp.Wavelength) }); err != nil {
		return nil, StateFailed, err
	}

	if err := sleep(ctx, duration); err != nil {
		return nil, StateCancelled, c.cancelled(task, h, err)
	}

	c.setState(StatePolling)
	deadline := time.Now().Add(c.opts.PollTimeout)
	for {
		var ready int32
		c.callMu.Lock()
		ready = c.lib.PollScan(h)
		c.callMu.Unlock()

		if ready == 1 {
			break
		}
		if ready != 0 {
			return nil, StateFailed, classified(ready, "PollScan")
		}
		if !time.Now().Before(deadline) {
			log.Error("Timeout polling for exposure to be ready", zap.Duration("poll_timeout", c.opts.PollTimeout))
			c.stopAfterTimeout(h)
			return nil, StateTimedOut, errors.Newf(errors.ErrTimeout,
				"Timeout polling for exposure to be ready after %s", c.opts.PollTimeout)
		}
		if err := sleep(ctx, c.opts.PollInterval); err != nil {
			return nil, StateCancelled, c.cancelled(task, h, err)
		}
	}

	// StopExposure 可能在最后一次 PollScan 期间到达
	if err := ctx.Err(); err != nil {
		return nil, StateCancelled, c.cancelled(task, h, err)
	}

	log.Debug("Reading measured data from spectrograph")
	exp.Spectrum = make([]float64, pixels)
	if err := c.call("GetScopeData", func() int32 { return c.lib.GetScopeData(h, &exp.TimeLabel, exp.Spectrum) }); err != nil {
		return nil, StateFailed, err
	}

	// 读出期间收到的 StopExposure
	c.mu.Lock()
	stopRequested := task.stopRequested
	c.mu.Unlock()
	if stopRequested {
		return nil, StateCancelled, c.cancelled(task, h, context.Canceled)
	}
	exp.FinishedAt = time.Now()
	log.Info("Measurement complete")
	return exp, StateDone, nil
}

// StopExposure 取消进行中的曝光并调用 StopMeasure
//
// 没有曝光时什么也不做。无论 StopMeasure 是否成功，曝光都会被取消；失败时返回其错误。
func (c *Controller) StopExposure() error {
	c.mu.Lock()
	task := c.task
	if task == nil {
		c.mu.Unlock()
		return nil
	}
	task.stopRequested = true
	task.stopped = task.measured
	h := c.handle
	c.mu.Unlock()

	c.logger.Info("Cancelling running exposure")
	task.cancel()
	return c.call("StopMeasure", func() int32 { return c.lib.StopMeasure(h) })
}

// cancelled 处理收到的取消。测量已经开始而之后还没有发出过 StopMeasure 时
// （取消来自调用方的 context，或 StopExposure 早于 Measure），由这里停止测量。
func (c *Controller) cancelled(task *exposureTask, h avs.Handle, cause error) error {
	c.mu.Lock()
	needStop := task.measured && !task.stopped
	task.stopRequested = true
	if task.measured {
		task.stopped = true
	}
	c.mu.Unlock()

	if needStop {
		if err := c.call("StopMeasure", func() int32 { return c.lib.StopMeasure(h) }); err != nil {
			c.logger.Error("Failed to stop measurement after cancellation", zap.Error(err))
		}
	}
	c.logger.Info("Running exposure cancelled")
	return errors.Wrap(cause, errors.ErrCanceled, "exposure cancelled")
}

func (c *Controller) stopAfterTimeout(h avs.Handle) {
	if err := c.call("StopMeasure", func() int32 { return c.lib.StopMeasure(h) }); err != nil {
		c.logger.Warn("StopMeasure after poll timeout failed", zap.Error(err))
	}
}

// call 串行执行一次厂商调用
func (c *Controller) call(op string, fn func() int32) error {
	c.callMu.Lock()
	code := fn()
	c.callMu.Unlock()
	return vendorError(code, op)
}

func (c *Controller) setState(state ExposureState) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()

	if changed && c.opts.OnStateChange != nil {
		c.opts.OnStateChange(state)
	}
}

// sleep 可取消的等待
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
