package activity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sandeepkv93/activity-logging-gateway/internal/auth"
	"github.com/sandeepkv93/activity-logging-gateway/internal/domain"
	"github.com/sandeepkv93/activity-logging-gateway/internal/observability"
	"github.com/sandeepkv93/activity-logging-gateway/internal/redact"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type AIPromptParams struct {
	PromptType     string
	Model          string
	PromptText     string
	ResponseText   string
	Parameters     map[string]any
	TokensInput    int
	TokensOutput   int
	Cost           decimal.Decimal
	ResponseTimeMs int64
	Success        *bool
	ErrorMessage   string
	Metadata       map[string]any
}

type EmailParams struct {
	Recipient    string
	Subject      string
	Template     string
	Status       string
	MessageID    string
	ErrorMessage string
	Metadata     map[string]any
}

type FileUploadParams struct {
	FileName     string
	FileSize     int64
	MimeType     string
	StoragePath  string
	Success      *bool
	ErrorMessage string
	Metadata     map[string]any
}

const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"
)

// LogAIPrompt writes an ai_prompt_logs row and, only if that succeeds, queues
// a generic ai_prompt activity.
func (l *Logger) LogAIPrompt(ctx context.Context, p AIPromptParams) (*domain.AIPromptLog, error) {
	userID, err := l.specializedUser(ctx, "ai_prompt")
	if err != nil {
		return nil, err
	}
	success := boolOr(p.Success, true)
	total := p.TokensInput + p.TokensOutput
	rec := &domain.AIPromptLog{
		ID:             uuid.NewString(),
		UserID:         userID,
		SessionID:      l.sessionRef(),
		PromptType:     p.PromptType,
		Model:          p.Model,
		PromptText:     p.PromptText,
		ResponseText:   p.ResponseText,
		Parameters:     datatypes.JSONMap(redact.Map(p.Parameters)),
		TokensInput:    p.TokensInput,
		TokensOutput:   p.TokensOutput,
		TokensTotal:    total,
		Cost:           p.Cost,
		ResponseTimeMs: p.ResponseTimeMs,
		Success:        success,
		ErrorMessage:   p.ErrorMessage,
		Metadata:       datatypes.JSONMap(redact.Map(p.Metadata)),
		CreatedAt:      l.now(),
	}
	if err := l.logs.CreateAIPromptLog(ctx, rec); err != nil {
		l.logger.ErrorContext(ctx, "write ai prompt log failed", "user_id", userID, "error", err)
		observability.RecordSpecializedWrite(ctx, "ai_prompt", "error")
		return nil, fmt.Errorf("log ai prompt: %w", err)
	}
	observability.RecordSpecializedWrite(ctx, "ai_prompt", "success")

	responseTime := p.ResponseTimeMs
	l.LogActivity(ctx, Entry{
		Type:     domain.ActivityAIPrompt,
		Category: domain.CategoryAI,
		Label:    p.PromptType,
		Details: map[string]any{
			"log_id":      rec.ID,
			"prompt_type": p.PromptType,
			"model":       p.Model,
			"cost":        p.Cost.String(),
		},
		ResponseTimeMs: &responseTime,
		Success:        &success,
		ErrorMessage:   p.ErrorMessage,
	})
	return rec, nil
}

// LogEmailSent records an outbound email. Status defaults to sent.
func (l *Logger) LogEmailSent(ctx context.Context, p EmailParams) (*domain.CommunicationLog, error) {
	userID, err := l.specializedUser(ctx, "email")
	if err != nil {
		return nil, err
	}
	status := strings.ToLower(strings.TrimSpace(p.Status))
	if status == "" {
		status = EmailStatusSent
	}
	rec := &domain.CommunicationLog{
		ID:           uuid.NewString(),
		UserID:       userID,
		SessionID:    l.sessionRef(),
		Channel:      "email",
		Recipient:    p.Recipient,
		Subject:      p.Subject,
		Template:     p.Template,
		Status:       status,
		MessageID:    p.MessageID,
		ErrorMessage: p.ErrorMessage,
		Metadata:     datatypes.JSONMap(redact.Map(p.Metadata)),
		CreatedAt:    l.now(),
	}
	if err := l.logs.CreateCommunicationLog(ctx, rec); err != nil {
		l.logger.ErrorContext(ctx, "write communication log failed", "user_id", userID, "error", err)
		observability.RecordSpecializedWrite(ctx, "email", "error")
		return nil, fmt.Errorf("log email: %w", err)
	}
	observability.RecordSpecializedWrite(ctx, "email", "success")

	success := status != EmailStatusFailed
	l.LogActivity(ctx, Entry{
		Type:     domain.ActivityEmailSent,
		Category: domain.CategoryCommunication,
		Label:    p.Subject,
		Details: map[string]any{
			"log_id":    rec.ID,
			"recipient": p.Recipient,
			"template":  p.Template,
			"status":    status,
		},
		Success:      &success,
		ErrorMessage: p.ErrorMessage,
	})
	return rec, nil
}

func (l *Logger) LogFileUpload(ctx context.Context, p FileUploadParams) (*domain.FileOperationLog, error) {
	userID, err := l.specializedUser(ctx, "file_upload")
	if err != nil {
		return nil, err
	}
	success := boolOr(p.Success, true)
	rec := &domain.FileOperationLog{
		ID:           uuid.NewString(),
		UserID:       userID,
		SessionID:    l.sessionRef(),
		Operation:    "upload",
		FileName:     p.FileName,
		FileSize:     p.FileSize,
		MimeType:     p.MimeType,
		StoragePath:  p.StoragePath,
		Success:      success,
		ErrorMessage: p.ErrorMessage,
		Metadata:     datatypes.JSONMap(redact.Map(p.Metadata)),
		CreatedAt:    l.now(),
	}
	if err := l.logs.CreateFileOperationLog(ctx, rec); err != nil {
		l.logger.ErrorContext(ctx, "write file operation log failed", "user_id", userID, "error", err)
		observability.RecordSpecializedWrite(ctx, "file_upload", "error")
		return nil, fmt.Errorf("log file upload: %w", err)
	}
	observability.RecordSpecializedWrite(ctx, "file_upload", "success")

	l.LogActivity(ctx, Entry{
		Type:     domain.ActivityFileUpload,
		Category: domain.CategoryFile,
		Label:    p.FileName,
		Details: map[string]any{
			"log_id":    rec.ID,
			"file_name": p.FileName,
			"file_size": p.FileSize,
			"mime_type": p.MimeType,
		},
		Success:      &success,
		ErrorMessage: p.ErrorMessage,
	})
	return rec, nil
}

func (l *Logger) specializedUser(ctx context.Context, kind string) (string, error) {
	userID := l.resolveUser(ctx)
	if userID == "" {
		l.logger.WarnContext(ctx, "specialized log skipped without user", "kind", kind)
		observability.RecordSpecializedWrite(ctx, kind, "no_user")
		return "", auth.ErrNoUser
	}
	return userID, nil
}

func (l *Logger) sessionRef() *string {
	if id := l.SessionID(); id != "" {
		return &id
	}
	return nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
