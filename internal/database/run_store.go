package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/netfleetpro/netfleet/internal/fleet"
	"github.com/netfleetpro/netfleet/internal/model"
)

// ErrRunNotFound 运行记录不存在
var ErrRunNotFound = errors.New("run not found")

// RunStore 运行审计读写
type RunStore struct {
	db *gorm.DB
}

// NewRunStore 创建运行审计存储
func NewRunStore(conn *gorm.DB) *RunStore {
	return &RunStore{db: conn}
}

// RunMeta 运行开始时已知的信息
type RunMeta struct {
	ID         string
	Kind       string
	Filter     string
	TemplateID string
	DryRun     bool
	Selected   int
}

// Begin 记录运行开始
func (s *RunStore) Begin(ctx context.Context, meta RunMeta) error {
	run := &model.Run{
		ID:         meta.ID,
		Kind:       meta.Kind,
		Filter:     meta.Filter,
		TemplateID: meta.TemplateID,
		DryRun:     meta.DryRun,
		Status:     model.RunStatusRunning,
		Selected:   meta.Selected,
		StartTime:  time.Now(),
	}
	return s.db.WithContext(ctx).Create(run).Error
}

// Finish 写入运行汇总与每台设备的结果摘要；Begin 未调用时补建运行记录
func (s *RunStore) Finish(ctx context.Context, meta RunMeta, res *fleet.FleetResult) error {
	status := model.RunStatusSuccess
	switch {
	case res.Incomplete > 0:
		status = model.RunStatusCancelled
	case res.Failed > 0:
		status = model.RunStatusFailed
	}

	run := model.Run{
		ID:         res.RunID,
		Kind:       meta.Kind,
		Filter:     meta.Filter,
		TemplateID: meta.TemplateID,
		DryRun:     meta.DryRun,
		Status:     status,
		Selected:   res.Selected,
		Succeeded:  res.Succeeded,
		Changed:    res.Changed,
		Failed:     res.Failed,
		Incomplete: res.Incomplete,
		StartTime:  res.Started,
		EndTime:    res.Finished,
		Duration:   res.Finished.Sub(res.Started).Milliseconds(),
	}

	rows := make([]model.RunDevice, 0, len(res.Order))
	for _, dr := range res.Results() {
		row := model.RunDevice{
			RunID:      res.RunID,
			Hostname:   dr.Hostname,
			Platform:   dr.Platform,
			Status:     string(dr.Status()),
			Subtasks:   len(dr.Subtasks),
			Incomplete: dr.Incomplete,
			Duration:   dr.Duration().Milliseconds(),
		}
		if dr.Err != nil {
			row.ErrorMsg = dr.Err.Error()
		} else {
			for _, st := range dr.Subtasks {
				if st.Err != nil {
					row.ErrorMsg = fmt.Sprintf("%s: %v", st.Name, st.Err)
					break
				}
			}
		}
		rows = append(rows, row)
	}

	return TransactionWithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&run).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}, {Name: "hostname"}},
			UpdateAll: true,
		}).CreateInBatches(rows, 100).Error
	}, 5, 50*time.Millisecond)
}

// Get 查询运行及其设备摘要
func (s *RunStore) Get(ctx context.Context, id string) (*model.Run, error) {
	var run model.Run
	err := s.db.WithContext(ctx).Preload("Devices", func(db *gorm.DB) *gorm.DB {
		return db.Order("hostname")
	}).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List 按开始时间倒序列出运行，kind 为空时不过滤
func (s *RunStore) List(ctx context.Context, kind string, limit, offset int) ([]model.Run, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Run{})
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 20
	}
	var runs []model.Run
	if err := q.Order("start_time DESC").Limit(limit).Offset(offset).Find(&runs).Error; err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// Prune 删除早于 before 的运行记录
func (s *RunStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.Run{}).Where("start_time < ?", before).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	err := TransactionWithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.Where("run_id IN ?", ids).Delete(&model.RunDevice{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&model.Run{})
		n = res.RowsAffected
		return res.Error
	}, 5, 50*time.Millisecond)
	return n, err
}
