package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/activity-logging-gateway/internal/domain"
	"github.com/sandeepkv93/activity-logging-gateway/internal/observability"
	"github.com/sandeepkv93/activity-logging-gateway/internal/realtime"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	FindReusable(ctx context.Context, userID, ip string, now time.Time) (*domain.Session, error)
	FindByIDForUser(ctx context.Context, userID, sessionID string) (*domain.Session, error)
	ListActiveByUserID(ctx context.Context, userID string, now time.Time) ([]domain.Session, error)
	Touch(ctx context.Context, s *domain.Session, now time.Time) error
	MarkInactive(ctx context.Context, s *domain.Session, now time.Time) error
	MarkInactiveForUser(ctx context.Context, userID, sessionID string, now time.Time) (bool, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormSessionRepository struct {
	db        *gorm.DB
	publisher realtime.Publisher
}

func NewSessionRepository(db *gorm.DB, publisher realtime.Publisher) SessionRepository {
	if publisher == nil {
		publisher = realtime.NoopPublisher{}
	}
	return &GormSessionRepository{db: db, publisher: publisher}
}

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user_sessions", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "user_sessions", "create", "success")
	publish(ctx, r.publisher, "user_sessions", realtime.EventInsert, s)
	return nil
}

// FindReusable returns the most recently active session for (user, ip) that is
// still active and unexpired.
func (r *GormSessionRepository) FindReusable(ctx context.Context, userID, ip string, now time.Time) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND ip_address = ? AND is_active = ? AND expires_at > ?", userID, ip, true, now).
		Order("last_activity_at DESC").
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user_sessions", "find_reusable", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user_sessions", "find_reusable", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user_sessions", "find_reusable", "success")
	return &s, nil
}

func (r *GormSessionRepository) FindByIDForUser(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, sessionID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user_sessions", "find_by_id_for_user", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user_sessions", "find_by_id_for_user", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user_sessions", "find_by_id_for_user", "success")
	return &s, nil
}

func (r *GormSessionRepository) ListActiveByUserID(ctx context.Context, userID string, now time.Time) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, now).
		Order("last_activity_at DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user_sessions", "list_active_by_user_id", "error")
		return sessions, err
	}
	observability.RecordRepositoryOperation(ctx, "user_sessions", "list_active_by_user_id", "success")
	return sessions, nil
}

// Touch refreshes last_activity_at and is_current on a reused session.
func (r *GormSessionRepository) Touch(ctx context.Context, s *domain.Session, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ?", s.ID).
		Updates(map[string]any{"last_activity_at": now, "is_current": true})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "user_sessions", "touch", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "user_sessions", "touch", "not_found")
		return ErrSessionNotFound
	}
	s.LastActivityAt = now
	s.IsCurrent = true
	observability.RecordRepositoryOperation(ctx, "user_sessions", "touch", "success")
	publish(ctx, r.publisher, "user_sessions", realtime.EventUpdate, s)
	return nil
}

// MarkInactive ends a session without deleting it.
func (r *GormSessionRepository) MarkInactive(ctx context.Context, s *domain.Session, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ?", s.ID).
		Updates(inactiveUpdates(now))
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "user_sessions", "mark_inactive", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "user_sessions", "mark_inactive", "not_found")
		return ErrSessionNotFound
	}
	s.IsActive = false
	s.IsCurrent = false
	s.LogoutAt = &now
	observability.RecordRepositoryOperation(ctx, "user_sessions", "mark_inactive", "success")
	publish(ctx, r.publisher, "user_sessions", realtime.EventUpdate, s)
	return nil
}

// MarkInactiveForUser signs out one of the user's sessions. It reports false
// when the session was already inactive.
func (r *GormSessionRepository) MarkInactiveForUser(ctx context.Context, userID, sessionID string, now time.Time) (bool, error) {
	session, err := r.FindByIDForUser(ctx, userID, sessionID)
	if err != nil {
		return false, err
	}
	if !session.IsActive {
		observability.RecordRepositoryOperation(ctx, "user_sessions", "mark_inactive_for_user", "success")
		return false, nil
	}
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND id = ? AND is_active = ?", userID, sessionID, true).
		Updates(inactiveUpdates(now))
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "user_sessions", "mark_inactive_for_user", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "user_sessions", "mark_inactive_for_user", "success")
	if res.RowsAffected > 0 {
		session.IsActive = false
		session.IsCurrent = false
		session.LogoutAt = &now
		publish(ctx, r.publisher, "user_sessions", realtime.EventUpdate, session)
	}
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("is_active = ? AND expires_at <= ?", true, now).
		Updates(map[string]any{"is_active": false, "is_current": false})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "user_sessions", "deactivate_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "user_sessions", "deactivate_expired", "success")
	return res.RowsAffected, nil
}

func inactiveUpdates(now time.Time) map[string]any {
	return map[string]any{"is_active": false, "is_current": false, "logout_at": now}
}
