package repository

import (
	"context"
	stderrors "errors"

	"github.com/wfunc/fiberspec/internal/errors"
	"github.com/wfunc/fiberspec/internal/models"
	"gorm.io/gorm"
)

// ExposureRepository 曝光记录仓储接口
type ExposureRepository interface {
	Create(ctx context.Context, record *models.ExposureRecord) error
	Update(ctx context.Context, record *models.ExposureRecord) error
	FindByExposureID(ctx context.Context, exposureID string) (*models.ExposureRecord, error)
	List(ctx context.Context, query *models.ExposureQuery) ([]*models.ExposureRecord, *Pagination, error)
	CountByState(ctx context.Context) (map[models.ExposureRecordState]int64, error)
	// MarkInterrupted 将遗留的 integrating 记录标记为 failed，用于进程重启后
	MarkInterrupted(ctx context.Context, reason string) (int64, error)
}

type exposureRepo struct {
	*BaseRepo
}

// NewExposureRepository 创建曝光记录仓储
func NewExposureRepository(db *gorm.DB) ExposureRepository {
	return &exposureRepo{BaseRepo: &BaseRepo{db: db}}
}

// Create 创建记录
func (r *exposureRepo) Create(ctx context.Context, record *models.ExposureRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if r.exists(ctx, record.ExposureID) {
			return errors.Wrapf(err, errors.ErrDataIntegrity, "duplicate exposure id %s", record.ExposureID)
		}
		return errors.Wrap(err, errors.ErrDatabaseInsert)
	}
	return nil
}

func (r *exposureRepo) exists(ctx context.Context, exposureID string) bool {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ExposureRecord{}).
		Where("exposure_id = ?", exposureID).Count(&count).Error
	return err == nil && count > 0
}

// Update 保存记录的全部字段
func (r *exposureRepo) Update(ctx context.Context, record *models.ExposureRecord) error {
	if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
		return errors.Wrap(err, errors.ErrDatabaseUpdate)
	}
	return nil
}

// FindByExposureID 按曝光ID查找
func (r *exposureRepo) FindByExposureID(ctx context.Context, exposureID string) (*models.ExposureRecord, error) {
	var record models.ExposureRecord
	err := r.db.WithContext(ctx).Where("exposure_id = ?", exposureID).First(&record).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf(errors.ErrNotFound, "exposure %s not found", exposureID)
		}
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return &record, nil
}

// List 分页查询，按开始时间倒序；列表不包含光谱数组
func (r *exposureRepo) List(ctx context.Context, query *models.ExposureQuery) ([]*models.ExposureRecord, *Pagination, error) {
	p := NewPagination(query.Page, query.PageSize)

	db := r.db.WithContext(ctx).Model(&models.ExposureRecord{})
	if query.Band != "" {
		db = db.Where("band = ?", query.Band)
	}
	if query.State != "" {
		db = db.Where("state = ?", query.State)
	}

	if err := db.Session(&gorm.Session{}).Count(&p.Total).Error; err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}

	var records []*models.ExposureRecord
	err := db.Omit("wavelength", "spectrum").
		Order("started_at DESC").Order("id DESC").
		Scopes(Paginate(p)).
		Find(&records).Error
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return records, p, nil
}

// CountByState 各状态的记录数
func (r *exposureRepo) CountByState(ctx context.Context) (map[models.ExposureRecordState]int64, error) {
	var rows []struct {
		State models.ExposureRecordState
		Count int64
	}
	err := r.db.WithContext(ctx).Model(&models.ExposureRecord{}).
		Select("state, COUNT(*) AS count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}

	counts := make(map[models.ExposureRecordState]int64, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Count
	}
	return counts, nil
}

// MarkInterrupted 标记未完成的记录
func (r *exposureRepo) MarkInterrupted(ctx context.Context, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.ExposureRecord{}).
		Where("state = ?", models.ExposureIntegrating).
		Updates(map[string]interface{}{"state": models.ExposureFailed, "error": reason})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, errors.ErrDatabaseUpdate)
	}
	return res.RowsAffected, nil
}
