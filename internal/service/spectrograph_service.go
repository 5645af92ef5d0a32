package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/fiberspec/internal/avs"
	"github.com/wfunc/fiberspec/internal/config"
	"github.com/wfunc/fiberspec/internal/errors"
	"github.com/wfunc/fiberspec/internal/logger"
	"github.com/wfunc/fiberspec/internal/models"
	"github.com/wfunc/fiberspec/internal/repository"
	"github.com/wfunc/fiberspec/internal/spectrograph"
	"go.uber.org/zap"
)

// LibraryOpener 打开厂商库
type LibraryOpener func(cfg config.SpectrographConfig) (avs.Library, error)

// OpenLibrary 默认的打开方式：simulate 时使用内置模拟器，否则加载 libavs
func OpenLibrary(cfg config.SpectrographConfig) (avs.Library, error) {
	if cfg.Simulate {
		sim := avs.NewSimulator()
		if serial := cfg.TargetSerial(); serial != "" {
			sim.SetDevices(avs.NewIdentity(serial, avs.SimDeviceName, avs.StatusUSBAvailable))
		}
		return sim, nil
	}
	return avs.Open(cfg.LibraryPath)
}

type spectrographService struct {
	cfg    config.SpectrographConfig
	repo   repository.ExposureRepository
	open   LibraryOpener
	logger *zap.Logger

	mu     sync.RWMutex
	lib    avs.Library
	ctrl   *spectrograph.Controller
	info   *DeviceInfo
	fault  *Fault
	events EventPublisher
}

// NewSpectrographService 创建光谱仪服务，open 为空时使用 OpenLibrary
func NewSpectrographService(cfg config.SpectrographConfig, repo repository.ExposureRepository,
	open LibraryOpener, log *zap.Logger) SpectrographService {
	if open == nil {
		open = OpenLibrary
	}
	if log == nil {
		log = logger.GetModuleLogger("spectrograph")
	}
	return &spectrographService{
		cfg:    cfg,
		repo:   repo,
		open:   open,
		logger: log.With(zap.String("band", bandName(cfg.Band))),
	}
}

func bandName(band string) string {
	if band == "" {
		return "unknown"
	}
	return band
}

// Start 连接光谱仪并读取设备信息，已连接时什么也不做
func (s *spectrographService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl != nil {
		return nil
	}

	const msg = "Failed to connect to fiber spectrograph"
	lib, err := s.open(s.cfg)
	if err != nil {
		s.setFaultLocked(FaultConnect, fmt.Sprintf("%s: %v", msg, err))
		return errors.Wrap(err, errors.ErrLibraryUnavailable, msg)
	}

	onState := func(state spectrograph.ExposureState) {
		s.publish(EventExposureState, ExposureStateEvent{State: state})
	}
	ctrl, err := spectrograph.Connect(lib, spectrograph.Options{
		SerialNumber:  s.cfg.TargetSerial(),
		Logger:        s.logger,
		PollTimeout:   s.cfg.PollTimeout,
		PollInterval:  s.cfg.PollInterval,
		OnStateChange: onState,
	})
	if err != nil {
		closeLibrary(lib, s.logger)
		s.setFaultLocked(FaultConnect, fmt.Sprintf("%s: %v", msg, err))
		return err
	}

	status, err := ctrl.Status(false)
	if err != nil {
		ctrl.Disconnect()
		closeLibrary(lib, s.logger)
		s.setFaultLocked(FaultConnect, fmt.Sprintf("%s: %v", msg, err))
		return err
	}

	device := ctrl.Device()
	s.lib, s.ctrl, s.fault = lib, ctrl, nil
	s.info = &DeviceInfo{
		Band:            bandName(s.cfg.Band),
		SerialNumber:    device.Serial(),
		Name:            device.Name(),
		PixelCount:      status.PixelCount,
		FPGAVersion:     status.FPGAVersion,
		FirmwareVersion: status.FirmwareVersion,
		LibraryVersion:  status.LibraryVersion,
	}
	info := *s.info
	s.publishLocked(EventConnection, ConnectionEvent{Connected: true, Device: &info})
	s.logger.Info("Fiber spectrograph ready",
		zap.String("serial_number", s.info.SerialNumber),
		zap.Int("n_pixels", s.info.PixelCount),
		zap.String("firmware_version", s.info.FirmwareVersion))

	// 上次进程退出时未完成的曝光
	if s.repo != nil {
		if n, err := s.repo.MarkInterrupted(ctx, "exposure interrupted by service restart"); err != nil {
			s.logger.Warn("Could not mark interrupted exposures", zap.Error(err))
		} else if n > 0 {
			s.logger.Warn("Marked interrupted exposures as failed", zap.Int64("count", n))
		}
	}
	return nil
}

// Stop 断开连接，进行中的曝光会被取消
func (s *spectrographService) Stop() {
	s.mu.Lock()
	ctrl, lib := s.ctrl, s.lib
	s.ctrl, s.lib, s.info = nil, nil, nil
	s.mu.Unlock()

	if ctrl == nil {
		return
	}
	ctrl.Disconnect()
	closeLibrary(lib, s.logger)
	s.publish(EventConnection, ConnectionEvent{Connected: false})
}

// SetEventPublisher 设置事件推送
func (s *spectrographService) SetEventPublisher(p EventPublisher) {
	s.mu.Lock()
	s.events = p
	s.mu.Unlock()
}

func (s *spectrographService) publish(eventType string, data interface{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.publishLocked(eventType, data)
}

func (s *spectrographService) publishLocked(eventType string, data interface{}) {
	if s.events != nil {
		s.events.Publish(eventType, data)
	}
}

func closeLibrary(lib avs.Library, log *zap.Logger) {
	if c, ok := lib.(avs.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn("Closing vendor library failed", zap.Error(err))
		}
	}
}

// Connected 是否已连接
func (s *spectrographService) Connected() bool {
	return s.controller() != nil
}

func (s *spectrographService) controller() *spectrograph.Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctrl
}

// Status 实时状态
func (s *spectrographService) Status(full bool) (*spectrograph.DeviceStatus, error) {
	ctrl := s.controller()
	if ctrl == nil {
		return nil, errors.New(errors.ErrNotConnected, "no spectrograph connected")
	}
	return ctrl.Status(full)
}

// DeviceInfo 连接时读取的设备信息
func (s *spectrographService) DeviceInfo() (*DeviceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info == nil {
		return nil, errors.New(errors.ErrNotConnected, "no spectrograph connected")
	}
	info := *s.info
	return &info, nil
}

// ExposureState 当前曝光状态，未连接时为 idle
func (s *spectrographService) ExposureState() spectrograph.ExposureState {
	ctrl := s.controller()
	if ctrl == nil {
		return spectrograph.StateIdle
	}
	return ctrl.ExposureState()
}

// Fault 当前故障，没有故障时返回 nil
func (s *spectrographService) Fault() *Fault {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fault == nil {
		return nil
	}
	f := *s.fault
	return &f
}

func (s *spectrographService) setFault(code int, report string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setFaultLocked(code, report)
}

func (s *spectrographService) setFaultLocked(code int, report string) {
	s.fault = &Fault{Code: code, Report: report, At: time.Now()}
	s.logger.Error("Spectrograph fault", zap.Int("code", code), zap.String("report", report))
	fault := *s.fault
	s.publishLocked(EventFault, &fault)
}

// Expose 进行一次曝光并保存记录
//
// 参数检查失败时不写记录。曝光开始前先写入 integrating 记录，结束后更新为终态；
// 超时和失败会进入故障 20，取消不会。
func (s *spectrographService) Expose(ctx context.Context, req *ExposeRequest) (*models.ExposureRecord, error) {
	ctrl := s.controller()
	if ctrl == nil {
		return nil, errors.New(errors.ErrNotConnected, "no spectrograph connected")
	}
	if err := ctrl.CheckExposeOK(req.Duration); err != nil {
		return nil, err
	}

	// 记录在调用方取消后仍需更新
	dbCtx := context.WithoutCancel(ctx)
	device := ctrl.Device()
	record := &models.ExposureRecord{
		ExposureID:   uuid.NewString(),
		Band:         bandName(s.cfg.Band),
		SerialNumber: device.Serial(),
		Duration:     req.Duration.Seconds(),
		Type:         req.Type,
		Source:       req.Source,
		State:        models.ExposureIntegrating,
		StartedAt:    time.Now(),
		PixelCount:   ctrl.PixelCount(),
	}
	if err := s.repo.Create(dbCtx, record); err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("exposure_id", record.ExposureID))
	exp, expErr := ctrl.Expose(ctx, req.Duration)

	finished := time.Now()
	record.FinishedAt = &finished
	switch {
	case expErr == nil:
		record.State = models.ExposureDone
		record.StartedAt = exp.StartedAt
		record.FinishedAt = &exp.FinishedAt
		record.Wavelength = exp.Wavelength
		record.Spectrum = exp.Spectrum
		if status, err := ctrl.Status(false); err != nil {
			log.Warn("Could not read temperature after exposure", zap.Error(err))
		} else {
			record.Temperature = status.Temperature
			record.TemperatureSetpoint = status.TemperatureSetpoint
		}
	case errors.Is(expErr, errors.ErrCanceled):
		record.State = models.ExposureCancelled
		record.Error = expErr.Error()
	case errors.Is(expErr, errors.ErrTimeout):
		record.State = models.ExposureTimedOut
		record.Error = fmt.Sprintf("Timeout waiting for exposure: %v", expErr)
		s.setFault(FaultExposure, record.Error)
	case errors.Is(expErr, errors.ErrExposureActive):
		// 检查之后被并发请求抢先
		record.State = models.ExposureFailed
		record.Error = expErr.Error()
	default:
		record.State = models.ExposureFailed
		record.Error = fmt.Sprintf("Failed to take exposure with fiber spectrograph: %v", expErr)
		s.setFault(FaultExposure, record.Error)
	}

	if err := s.repo.Update(dbCtx, record); err != nil {
		log.Error("Could not save exposure record", zap.String("state", string(record.State)), zap.Error(err))
		if expErr == nil {
			return record, err
		}
	}
	log.Info("Exposure finished", zap.String("state", string(record.State)))

	// 推送时不带光谱数据
	summary := *record
	summary.Wavelength, summary.Spectrum = nil, nil
	s.publish(EventExposureFinished, &summary)
	return record, expErr
}

// CancelExposure 取消进行中的曝光
func (s *spectrographService) CancelExposure() error {
	ctrl := s.controller()
	if ctrl == nil {
		return errors.New(errors.ErrNotConnected, "no spectrograph connected")
	}
	return ctrl.StopExposure()
}

// GetExposure 按ID查询曝光记录
func (s *spectrographService) GetExposure(ctx context.Context, exposureID string) (*models.ExposureRecord, error) {
	return s.repo.FindByExposureID(ctx, exposureID)
}

// ListExposures 分页查询曝光记录
func (s *spectrographService) ListExposures(ctx context.Context, query *models.ExposureQuery) ([]*models.ExposureRecord, *repository.Pagination, error) {
	return s.repo.List(ctx, query)
}

// ExposureStats 各状态的曝光数量
func (s *spectrographService) ExposureStats(ctx context.Context) (map[models.ExposureRecordState]int64, error) {
	return s.repo.CountByState(ctx)
}
