package repository

import (
	"context"

	"github.com/sandeepkv93/activity-logging-gateway/internal/domain"
	"github.com/sandeepkv93/activity-logging-gateway/internal/observability"
	"github.com/sandeepkv93/activity-logging-gateway/internal/realtime"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ActivityListQuery struct {
	PageRequest
	UserID       string
	SessionID    string
	ActivityType domain.ActivityType
}

type ActivityRepository interface {
	CreateBatch(ctx context.Context, activities []domain.UserActivity) error
	ListPaged(ctx context.Context, query ActivityListQuery) (PageResult[domain.UserActivity], error)
}

type GormActivityRepository struct {
	db        *gorm.DB
	publisher realtime.Publisher
}

func NewActivityRepository(db *gorm.DB, publisher realtime.Publisher) ActivityRepository {
	if publisher == nil {
		publisher = realtime.NoopPublisher{}
	}
	return &GormActivityRepository{db: db, publisher: publisher}
}

// CreateBatch inserts every activity in one statement. Rows whose id already
// exists are skipped so a retried batch cannot duplicate records.
func (r *GormActivityRepository) CreateBatch(ctx context.Context, activities []domain.UserActivity) error {
	if len(activities) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&activities).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user_activities", "create_batch", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "user_activities", "create_batch", "success")
	for i := range activities {
		publish(ctx, r.publisher, "user_activities", realtime.EventInsert, &activities[i])
	}
	return nil
}

func (r *GormActivityRepository) ListPaged(ctx context.Context, query ActivityListQuery) (PageResult[domain.UserActivity], error) {
	page := normalizePageRequest(query.PageRequest)

	q := r.db.WithContext(ctx).Model(&domain.UserActivity{})
	if query.UserID != "" {
		q = q.Where("user_id = ?", query.UserID)
	}
	if query.SessionID != "" {
		q = q.Where("session_id = ?", query.SessionID)
	}
	if query.ActivityType != "" {
		q = q.Where("activity_type = ?", query.ActivityType)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "user_activities", "list_paged", "error")
		return newPageResult[domain.UserActivity](page, 0, nil), err
	}
	var items []domain.UserActivity
	if err := q.Order("created_at DESC").Order("id").
		Offset(page.offset()).Limit(page.PageSize).
		Find(&items).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "user_activities", "list_paged", "error")
		return newPageResult[domain.UserActivity](page, total, nil), err
	}
	observability.RecordRepositoryOperation(ctx, "user_activities", "list_paged", "success")
	return newPageResult(page, total, items), nil
}
