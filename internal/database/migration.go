package database

import (
	"fmt"

	"github.com/wfunc/fiberspec/internal/logger"
	"github.com/wfunc/fiberspec/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 迁移全局数据库
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	return Migrate(DB)
}

// Migrate 迁移表结构，sqlite 文件数据库迁移期间持有文件锁
func Migrate(db *gorm.DB) error {
	log := logger.GetModuleLogger("database")

	if path := sqlitePath(db); path != "" {
		lockFile, err := acquireMigrationLock(path, log)
		if err != nil {
			return err
		}
		defer releaseMigrationLock(lockFile, log)
	}

	log.Info("Migrating database")
	for _, model := range []interface{}{
		&models.ExposureRecord{},
	} {
		if err := db.AutoMigrate(model); err != nil {
			log.Error("Migration failed", zap.String("model", fmt.Sprintf("%T", model)), zap.Error(err))
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}

	// 按开始时间倒序分页
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_exposure_records_band_started ON exposure_records(band, started_at)").Error; err != nil {
		log.Warn("Create index failed", zap.String("index", "idx_exposure_records_band_started"), zap.Error(err))
	}

	log.Info("Database migration complete")
	return nil
}

// sqlitePath 返回 sqlite 主数据库文件路径，内存库或其他驱动返回空字符串
func sqlitePath(db *gorm.DB) string {
	if db.Dialector.Name() != "sqlite" {
		return ""
	}
	sqlDB, err := db.DB()
	if err != nil {
		return ""
	}
	var (
		seq        int
		name, file string
	)
	if err := sqlDB.QueryRow("PRAGMA database_list").Scan(&seq, &name, &file); err != nil {
		return ""
	}
	return file
}
