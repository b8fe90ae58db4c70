package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type AIPromptLog struct {
	ID             string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID         string            `gorm:"type:varchar(64);index;not null" json:"user_id"`
	SessionID      *string           `gorm:"type:varchar(36);index" json:"session_id,omitempty"`
	PromptType     string            `gorm:"size:64;not null" json:"prompt_type"`
	Model          string            `gorm:"size:128" json:"model"`
	PromptText     string            `gorm:"type:text" json:"prompt_text"`
	ResponseText   string            `gorm:"type:text" json:"response_text"`
	Parameters     datatypes.JSONMap `json:"parameters"`
	TokensInput    int               `json:"tokens_input"`
	TokensOutput   int               `json:"tokens_output"`
	TokensTotal    int               `json:"tokens_total"`
	Cost           decimal.Decimal   `gorm:"type:decimal(12,6)" json:"cost"`
	ResponseTimeMs int64             `json:"response_time_ms"`
	Success        bool              `gorm:"not null" json:"success"`
	ErrorMessage   string            `gorm:"type:text" json:"error_message,omitempty"`
	Metadata       datatypes.JSONMap `json:"metadata"`
	CreatedAt      time.Time         `gorm:"index" json:"created_at"`
}

func (AIPromptLog) TableName() string { return "ai_prompt_logs" }

type CommunicationLog struct {
	ID           string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID       string            `gorm:"type:varchar(64);index;not null" json:"user_id"`
	SessionID    *string           `gorm:"type:varchar(36);index" json:"session_id,omitempty"`
	Channel      string            `gorm:"size:32;not null" json:"channel"`
	Recipient    string            `gorm:"size:320;not null" json:"recipient"`
	Subject      string            `gorm:"size:512" json:"subject"`
	Template     string            `gorm:"size:128" json:"template"`
	Status       string            `gorm:"size:32;not null" json:"status"`
	MessageID    string            `gorm:"size:255" json:"message_id,omitempty"`
	ErrorMessage string            `gorm:"type:text" json:"error_message,omitempty"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`
}

func (CommunicationLog) TableName() string { return "communication_logs" }

type FileOperationLog struct {
	ID           string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID       string            `gorm:"type:varchar(64);index;not null" json:"user_id"`
	SessionID    *string           `gorm:"type:varchar(36);index" json:"session_id,omitempty"`
	Operation    string            `gorm:"size:32;not null" json:"operation"`
	FileName     string            `gorm:"size:512;not null" json:"file_name"`
	FileSize     int64             `json:"file_size"`
	MimeType     string            `gorm:"size:128" json:"mime_type"`
	StoragePath  string            `gorm:"size:1024" json:"storage_path"`
	Success      bool              `gorm:"not null" json:"success"`
	ErrorMessage string            `gorm:"type:text" json:"error_message,omitempty"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`
}

func (FileOperationLog) TableName() string { return "file_operation_logs" }
