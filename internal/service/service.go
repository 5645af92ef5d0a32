package service

import (
	"github.com/wfunc/fiberspec/internal/config"
	"github.com/wfunc/fiberspec/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Spectrograph SpectrographService
}

// NewServices 创建服务集合
func NewServices(db *gorm.DB, cfg *config.Config, log *zap.Logger) *Services {
	exposureRepo := repository.NewExposureRepository(db)

	return &Services{
		Spectrograph: NewSpectrographService(cfg.Spectrograph, exposureRepo, nil, log),
	}
}
