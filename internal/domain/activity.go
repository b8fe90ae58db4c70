package domain

import (
	"time"

	"gorm.io/datatypes"
)

type ActivityType string

const (
	ActivityPageView      ActivityType = "page_view"
	ActivityButtonClick   ActivityType = "button_click"
	ActivityFormSubmit    ActivityType = "form_submit"
	ActivityTabSwitch     ActivityType = "tab_switch"
	ActivityNetworkStatus ActivityType = "network_status"
	ActivityError         ActivityType = "error"
	ActivityAPICall       ActivityType = "api_call"
	ActivityAIPrompt      ActivityType = "ai_prompt"
	ActivityEmailSent     ActivityType = "email_sent"
	ActivityFileUpload    ActivityType = "file_upload"
)

var activityTypes = map[ActivityType]struct{}{
	ActivityPageView:      {},
	ActivityButtonClick:   {},
	ActivityFormSubmit:    {},
	ActivityTabSwitch:     {},
	ActivityNetworkStatus: {},
	ActivityError:         {},
	ActivityAPICall:       {},
	ActivityAIPrompt:      {},
	ActivityEmailSent:     {},
	ActivityFileUpload:    {},
}

func (t ActivityType) Valid() bool {
	_, ok := activityTypes[t]
	return ok
}

const (
	CategoryNavigation    = "navigation"
	CategoryInteraction   = "interaction"
	CategoryForm          = "form"
	CategorySystem        = "system"
	CategoryError         = "error"
	CategoryAPI           = "api"
	CategoryAI            = "ai"
	CategoryCommunication = "communication"
	CategoryFile          = "file"
)

// UserActivity is one captured interaction, persisted in batches.
type UserActivity struct {
	ID               string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID           *string           `gorm:"type:varchar(64);index" json:"user_id,omitempty"`
	SessionID        *string           `gorm:"type:varchar(36);index" json:"session_id,omitempty"`
	ActivityType     ActivityType      `gorm:"type:varchar(32);index;not null" json:"activity_type"`
	ActivityCategory string            `gorm:"type:varchar(32);not null" json:"activity_category"`
	ActivityLabel    string            `gorm:"size:255" json:"activity_label"`
	Details          datatypes.JSONMap `json:"details"`
	PageURL          string            `gorm:"size:2048" json:"page_url"`
	PageTitle        string            `gorm:"size:512" json:"page_title"`
	Route            string            `gorm:"size:512" json:"route"`
	ElementID        string            `gorm:"size:255" json:"element_id"`
	ElementClass     string            `gorm:"size:512" json:"element_class"`
	ElementType      string            `gorm:"size:64" json:"element_type"`
	ElementText      string            `gorm:"size:512" json:"element_text"`
	LoadTimeMs       *int64            `json:"load_time_ms,omitempty"`
	ResponseTimeMs   *int64            `json:"response_time_ms,omitempty"`
	Success          bool              `gorm:"not null" json:"success"`
	ErrorMessage     string            `gorm:"type:text" json:"error_message,omitempty"`
	ErrorCode        string            `gorm:"size:64" json:"error_code,omitempty"`
	Metadata         datatypes.JSONMap `json:"metadata"`
	IPAddress        string            `gorm:"size:64" json:"ip_address"`
	CreatedAt        time.Time         `gorm:"index" json:"created_at"`
}

func (UserActivity) TableName() string { return "user_activities" }
