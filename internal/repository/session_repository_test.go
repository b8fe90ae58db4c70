package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sandeepkv93/activity-logging-gateway/internal/domain"
	"github.com/sandeepkv93/activity-logging-gateway/internal/realtime"
)

func newSession(userID, ip string, expiresAt time.Time) *domain.Session {
	now := time.Now().UTC()
	return &domain.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		IPAddress:      ip,
		IsActive:       true,
		IsCurrent:      true,
		LastActivityAt: now,
		LoginAt:        now,
		ExpiresAt:      expiresAt,
	}
}

func TestSessionRepositoryFindReusable(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(newTestDB(t), nil)
	now := time.Now().UTC()

	expired := newSession("u1", "10.0.0.1", now.Add(-time.Minute))
	inactive := newSession("u1", "10.0.0.1", now.Add(time.Hour))
	inactive.IsActive = false
	otherIP := newSession("u1", "10.0.0.2", now.Add(time.Hour))
	active := newSession("u1", "10.0.0.1", now.Add(time.Hour))
	for _, s := range []*domain.Session{expired, inactive, otherIP, active} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := repo.FindReusable(ctx, "u1", "10.0.0.1", now)
	if err != nil {
		t.Fatalf("find reusable: %v", err)
	}
	if got.ID != active.ID {
		t.Fatalf("expected active session %s, got %s", active.ID, got.ID)
	}

	if _, err := repo.FindReusable(ctx, "u2", "10.0.0.1", now); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionRepositoryTouchAndMarkInactive(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	repo := NewSessionRepository(newTestDB(t), pub)
	now := time.Now().UTC()

	s := newSession("u1", "10.0.0.1", now.Add(time.Hour))
	s.IsCurrent = false
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	later := now.Add(time.Minute)
	if err := repo.Touch(ctx, s, later); err != nil {
		t.Fatalf("touch: %v", err)
	}
	stored, err := repo.FindByIDForUser(ctx, "u1", s.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !stored.IsCurrent || !stored.LastActivityAt.Equal(later) {
		t.Fatalf("expected refreshed session, got %+v", stored)
	}

	if err := repo.MarkInactive(ctx, s, later); err != nil {
		t.Fatalf("mark inactive: %v", err)
	}
	stored, err = repo.FindByIDForUser(ctx, "u1", s.ID)
	if err != nil {
		t.Fatalf("sessions must not be deleted: %v", err)
	}
	if stored.IsActive || stored.IsCurrent || stored.LogoutAt == nil {
		t.Fatalf("expected inactive session with logout_at, got %+v", stored)
	}

	changes := pub.snapshot()
	if len(changes) != 3 {
		t.Fatalf("expected insert + 2 updates, got %d", len(changes))
	}
	if changes[0].Event != realtime.EventInsert || changes[2].Event != realtime.EventUpdate {
		t.Fatalf("unexpected change events: %+v", changes)
	}
	if changes[0].UserID() != "u1" {
		t.Fatalf("expected user_id on change row, got %q", changes[0].UserID())
	}

	missing := &domain.Session{ID: uuid.NewString()}
	if err := repo.Touch(ctx, missing, later); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found on touch, got %v", err)
	}
}

func TestSessionRepositoryMarkInactiveScopedByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(newTestDB(t), nil)
	now := time.Now().UTC()

	s1 := newSession("u1", "10.0.0.1", now.Add(time.Hour))
	s2 := newSession("u2", "10.0.0.1", now.Add(time.Hour))
	for _, s := range []*domain.Session{s1, s2} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	if _, err := repo.MarkInactiveForUser(ctx, "u1", s2.ID, now); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found for another user's session, got %v", err)
	}

	changed, err := repo.MarkInactiveForUser(ctx, "u2", s2.ID, now)
	if err != nil {
		t.Fatalf("mark owned session: %v", err)
	}
	if !changed {
		t.Fatal("expected changed=true on first sign out")
	}
	changed, err = repo.MarkInactiveForUser(ctx, "u2", s2.ID, now)
	if err != nil {
		t.Fatalf("repeat sign out: %v", err)
	}
	if changed {
		t.Fatal("expected changed=false for already inactive session")
	}

	active, err := repo.ListActiveByUserID(ctx, "u1", now)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != s1.ID {
		t.Fatalf("expected only s1 active for u1, got %+v", active)
	}
}

func TestSessionRepositoryDeactivateExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(newTestDB(t), nil)
	now := time.Now().UTC()

	for _, s := range []*domain.Session{
		newSession("u1", "10.0.0.1", now.Add(-time.Hour)),
		newSession("u2", "10.0.0.2", now.Add(-time.Minute)),
		newSession("u3", "10.0.0.3", now.Add(time.Hour)),
	} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	n, err := repo.DeactivateExpired(ctx, now)
	if err != nil {
		t.Fatalf("deactivate expired: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 expired sessions, got %d", n)
	}
	n, err = repo.DeactivateExpired(ctx, now)
	if err != nil || n != 0 {
		t.Fatalf("expected second sweep to be a no-op, got %d %v", n, err)
	}
}
