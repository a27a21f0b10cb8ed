package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-feeds/internal/model"
)

// MaxBatchSize 单次批量删除的上限
const MaxBatchSize = 500

// ImportColumns ImportState 对应的全部列
var ImportColumns = []string{
	"import_status",
	"import_should_fetch",
	"import_last_import_requested_time",
	"import_import_started_time",
	"import_last_successful_import_time",
	"import_import_failed_time",
	"import_error_message",
	"import_attempt_id",
	"import_attempt_count",
}

var queryableItemFields = map[string]struct{}{
	"id":                     {},
	"account_id":             {},
	"url":                    {},
	"content_kind":           {},
	"source_type":            {},
	"source_subscription_id": {},
	"import_status":          {},
	"import_should_fetch":    {},
	"triage_status":          {},
}

// ItemObserver 记录写入后的回调,相当于文档数据库的触发器
type ItemObserver interface {
	OnItemCreated(ctx context.Context, item model.FeedItem)
	OnItemUpdated(ctx context.Context, before, after model.FeedItem)
}

// ItemStore FeedItem 的记录存储
type ItemStore struct {
	db  *gorm.DB
	now func() time.Time

	mu        sync.RWMutex
	observers []ItemObserver
}

func NewItemStore(db *gorm.DB) *ItemStore {
	return &ItemStore{db: db, now: time.Now}
}

// Observe 注册写入回调
func (s *ItemStore) Observe(o ItemObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *ItemStore) snapshotObservers() []ItemObserver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ItemObserver(nil), s.observers...)
}

// GetByID 按ID读取
func (s *ItemStore) GetByID(ctx context.Context, id string) (*model.FeedItem, error) {
	var item model.FeedItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("get feed item %s: %w", id, notFound(err))
	}
	return &item, nil
}

// Create 写入新条目
func (s *ItemStore) Create(ctx context.Context, item *model.FeedItem) error {
	now := s.now()
	if item.CreatedTime.IsZero() {
		item.CreatedTime = now
	}
	item.LastUpdatedTime = now
	if item.TriageStatus == "" {
		item.TriageStatus = model.TriageUntriaged
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			err = ErrAlreadyExists
		}
		return fmt.Errorf("create feed item %s: %w", item.ID, err)
	}
	for _, o := range s.snapshotObservers() {
		o.OnItemCreated(ctx, *item)
	}
	return nil
}

// Update 只更新 columns 指定的列,值取自 patch;last_updated_time 总会更新
func (s *ItemStore) Update(ctx context.Context, id string, patch *model.FeedItem, columns ...string) error {
	before, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	patch.LastUpdatedTime = s.now()
	res := s.db.WithContext(ctx).
		Model(&model.FeedItem{}).
		Where("id = ?", id).
		Select(withUpdatedTime(columns)).
		Updates(patch)
	if res.Error != nil {
		return fmt.Errorf("update feed item %s: %w", id, res.Error)
	}
	return s.notifyUpdated(ctx, *before)
}

// ClaimImport 条件写入:仅当当前状态与 expected 的 status/attempt 一致时才写入 next
func (s *ItemStore) ClaimImport(ctx context.Context, id string, expected, next model.ImportState) error {
	before, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	patch := &model.FeedItem{ImportState: next, LastUpdatedTime: s.now()}
	res := s.db.WithContext(ctx).
		Model(&model.FeedItem{}).
		Where("id = ? AND import_status = ? AND import_attempt_id = ? AND import_should_fetch = ?",
			id, expected.Status, expected.AttemptID, expected.ShouldFetch).
		Select(withUpdatedTime(ImportColumns)).
		Updates(patch)
	if res.Error != nil {
		return fmt.Errorf("write import state for %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("feed item %s: %w", id, ErrImportInProgress)
	}
	return s.notifyUpdated(ctx, *before)
}

func withUpdatedTime(columns []string) []string {
	out := make([]string, 0, len(columns)+1)
	out = append(out, columns...)
	return append(out, "last_updated_time")
}

func (s *ItemStore) notifyUpdated(ctx context.Context, before model.FeedItem) error {
	observers := s.snapshotObservers()
	if len(observers) == 0 {
		return nil
	}
	after, err := s.GetByID(ctx, before.ID)
	if err != nil {
		return err
	}
	for _, o := range observers {
		o.OnItemUpdated(ctx, before, *after)
	}
	return nil
}

// QueryByField 按单个字段等值查询
func (s *ItemStore) QueryByField(ctx context.Context, field string, value any) ([]model.FeedItem, error) {
	if _, ok := queryableItemFields[field]; !ok {
		return nil, fmt.Errorf("field %q is not queryable", field)
	}
	var items []model.FeedItem
	err := s.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: field}, Value: value}).
		Order("created_time DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("query feed items by %s: %w", field, err)
	}
	return items, nil
}

// ExistsForSubscription 订阅下是否已有相同链接的条目
func (s *ItemStore) ExistsForSubscription(ctx context.Context, subscriptionID, url string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.FeedItem{}).
		Where("source_subscription_id = ? AND url = ?", subscriptionID, url).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check existing item for %s: %w", url, err)
	}
	return count > 0, nil
}

// CountByImportStatus 各导入状态的数量
func (s *ItemStore) CountByImportStatus(ctx context.Context) (map[model.ImportStatus]int64, error) {
	var rows []struct {
		Status model.ImportStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&model.FeedItem{}).
		Select("import_status AS status, COUNT(*) AS count").
		Group("import_status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count feed items: %w", err)
	}
	counts := make(map[model.ImportStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// BatchDelete 按 MaxBatchSize 分批顺序删除;某一批失败不影响后续批次,返回第一个错误
func (s *ItemStore) BatchDelete(ctx context.Context, ids []string) error {
	return deleteInBatches(ids, MaxBatchSize, func(batch []string) error {
		return s.db.WithContext(ctx).Where("id IN ?", batch).Delete(&model.FeedItem{}).Error
	})
}

func deleteInBatches(ids []string, size int, del func(batch []string) error) error {
	var errs []error
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		if err := del(ids[start:end]); err != nil {
			errs = append(errs, fmt.Errorf("delete batch %d-%d: %w", start, end, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if len(errs) > 1 {
		return fmt.Errorf("%w (and %d more failed batches)", errs[0], len(errs)-1)
	}
	return errs[0]
}

// IsImportConflict 是否为租约冲突
func IsImportConflict(err error) bool {
	return errors.Is(err, ErrImportInProgress)
}
