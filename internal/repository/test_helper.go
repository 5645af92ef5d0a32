package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/fiberspec/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 创建已迁移的内存数据库，测试结束时关闭
func SetupTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 内存库只在单个连接内有效
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.ExposureRecord{}))

	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// SeedExposures 按给定状态依次写入记录，开始时间间隔一秒
func SeedExposures(t testing.TB, repo ExposureRepository, band string, states ...models.ExposureRecordState) []*models.ExposureRecord {
	t.Helper()

	base := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	records := make([]*models.ExposureRecord, 0, len(states))
	for i, state := range states {
		rec := &models.ExposureRecord{
			ExposureID:   fmt.Sprintf("seed-%s-%d", band, i),
			Band:         band,
			SerialNumber: "1606190U1",
			Duration:     1,
			Type:         "object",
			State:        state,
			StartedAt:    base.Add(time.Duration(i) * time.Second),
			PixelCount:   3,
			Wavelength:   []float64{400, 500, 600},
			Spectrum:     []float64{1, 2, 3},
		}
		require.NoError(t, repo.Create(context.Background(), rec))
		records = append(records, rec)
	}
	return records
}
