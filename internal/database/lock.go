package database

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

const (
	lockAttempts = 30
	lockStaleAge = 5 * time.Minute
)

// acquireMigrationLock 获取 sqlite 文件的迁移锁，避免两个进程同时迁移
func acquireMigrationLock(dbPath string, log *zap.Logger) (*os.File, error) {
	lockPath := dbPath + ".migration.lock"

	for i := 0; i < lockAttempts; i++ {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
		if err == nil {
			log.Debug("Acquired migration lock", zap.String("lock", lockPath))
			return lockFile, nil
		}

		// 锁文件过旧，认为持有者已退出
		if info, err := os.Stat(lockPath); err == nil && time.Since(info.ModTime()) > lockStaleAge {
			log.Warn("Removing stale migration lock", zap.String("lock", lockPath))
			os.Remove(lockPath)
			continue
		}

		log.Debug("Waiting for migration lock", zap.Int("attempt", i+1))
		time.Sleep(time.Second)
	}

	return nil, fmt.Errorf("could not acquire migration lock %s; another process may be migrating", lockPath)
}

// releaseMigrationLock 释放迁移锁
func releaseMigrationLock(lockFile *os.File, log *zap.Logger) {
	if lockFile == nil {
		return
	}
	lockPath := lockFile.Name()
	lockFile.Close()
	os.Remove(lockPath)
	log.Debug("Released migration lock", zap.String("lock", lockPath))
}
