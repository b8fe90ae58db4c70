package repository

import (
	"context"

	"github.com/sandeepkv93/activity-logging-gateway/internal/domain"
	"github.com/sandeepkv93/activity-logging-gateway/internal/observability"
	"github.com/sandeepkv93/activity-logging-gateway/internal/realtime"

	"gorm.io/gorm"
)

// LogRepository persists the specialized logs that are written directly rather
// than through the activity queue.
type LogRepository interface {
	CreateAIPromptLog(ctx context.Context, log *domain.AIPromptLog) error
	CreateCommunicationLog(ctx context.Context, log *domain.CommunicationLog) error
	CreateFileOperationLog(ctx context.Context, log *domain.FileOperationLog) error
}

type GormLogRepository struct {
	db        *gorm.DB
	publisher realtime.Publisher
}

func NewLogRepository(db *gorm.DB, publisher realtime.Publisher) LogRepository {
	if publisher == nil {
		publisher = realtime.NoopPublisher{}
	}
	return &GormLogRepository{db: db, publisher: publisher}
}

func (r *GormLogRepository) CreateAIPromptLog(ctx context.Context, log *domain.AIPromptLog) error {
	return r.create(ctx, "ai_prompt_logs", log)
}

func (r *GormLogRepository) CreateCommunicationLog(ctx context.Context, log *domain.CommunicationLog) error {
	return r.create(ctx, "communication_logs", log)
}

func (r *GormLogRepository) CreateFileOperationLog(ctx context.Context, log *domain.FileOperationLog) error {
	return r.create(ctx, "file_operation_logs", log)
}

func (r *GormLogRepository) create(ctx context.Context, table string, row any) error {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, table, "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, table, "create", "success")
	publish(ctx, r.publisher, table, realtime.EventInsert, row)
	return nil
}
