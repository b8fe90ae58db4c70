package domain

import "time"

// Session is one authenticated device/browser instance.
type Session struct {
	ID                string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID            string     `gorm:"type:varchar(64);index:idx_user_sessions_user_ip;not null" json:"user_id"`
	DeviceName        string     `gorm:"size:128" json:"device_name"`
	DeviceType        string     `gorm:"size:32" json:"device_type"`
	OSName            string     `gorm:"size:64" json:"os_name"`
	OSVersion         string     `gorm:"size:64" json:"os_version"`
	BrowserName       string     `gorm:"size:64" json:"browser_name"`
	BrowserVersion    string     `gorm:"size:64" json:"browser_version"`
	ScreenResolution  string     `gorm:"size:32" json:"screen_resolution"`
	IPAddress         string     `gorm:"size:64;index:idx_user_sessions_user_ip" json:"ip_address"`
	Country           string     `gorm:"size:64" json:"country"`
	Region            string     `gorm:"size:128" json:"region"`
	City              string     `gorm:"size:128" json:"city"`
	Latitude          float64    `json:"latitude"`
	Longitude         float64    `json:"longitude"`
	Timezone          string     `gorm:"size:64" json:"timezone"`
	UserAgent         string     `gorm:"size:512" json:"user_agent"`
	Language          string     `gorm:"size:32" json:"language"`
	DeviceFingerprint string     `gorm:"size:64;index" json:"device_fingerprint"`
	IsCurrent         bool       `gorm:"not null;default:false" json:"is_current"`
	IsActive          bool       `gorm:"index;not null;default:false" json:"is_active"`
	LastActivityAt    time.Time  `gorm:"index" json:"last_activity_at"`
	ExpiresAt         time.Time  `gorm:"index;not null" json:"expires_at"`
	LoginAt           time.Time  `json:"login_at"`
	LogoutAt          *time.Time `json:"logout_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (Session) TableName() string { return "user_sessions" }

// Reusable reports whether the session may be refreshed instead of replaced.
func (s Session) Reusable(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}
