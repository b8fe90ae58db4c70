package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/sandeepkv93/activity-logging-gateway/internal/auth"
	"github.com/sandeepkv93/activity-logging-gateway/internal/domain"
	"github.com/sandeepkv93/activity-logging-gateway/internal/redact"
	"github.com/shopspring/decimal"
)

func TestLogAIPromptWritesAndTraces(t *testing.T) {
	var stored *domain.AIPromptLog
	logs := &stubLogRepo{createAIPromptLogFn: func(_ context.Context, log *domain.AIPromptLog) error {
		stored = log
		return nil
	}}
	l := newTestLogger(Options{Logs: logs, Users: staticUsers{id: "u1"}})

	rec, err := l.LogAIPrompt(context.Background(), AIPromptParams{
		PromptType:   "summarize",
		Model:        "gpt-4o-mini",
		Parameters:   map[string]any{"temperature": 0.3, "api_key_secret": "sk"},
		TokensInput:  100,
		TokensOutput: 50,
		Cost:         decimal.RequireFromString("0.0042"),
		Metadata:     map[string]any{"auth": map[string]any{"access_token": "t"}},
	})
	if err != nil {
		t.Fatalf("log ai prompt: %v", err)
	}
	if rec != stored || rec.TokensTotal != 150 || rec.UserID != "u1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Parameters["api_key_secret"] != redact.Marker || rec.Parameters["temperature"] != 0.3 {
		t.Fatalf("expected redacted parameters, got %v", rec.Parameters)
	}
	if rec.Metadata["auth"].(map[string]any)["access_token"] != redact.Marker {
		t.Fatalf("expected nested metadata redacted, got %v", rec.Metadata)
	}
	if l.QueueLen() != 1 {
		t.Fatalf("expected generic trace queued, got %d", l.QueueLen())
	}
}

func TestSpecializedWriteFailureSkipsTrace(t *testing.T) {
	boom := errors.New("insert failed")
	logs := &stubLogRepo{
		createAIPromptLogFn:      func(context.Context, *domain.AIPromptLog) error { return boom },
		createCommunicationLogFn: func(context.Context, *domain.CommunicationLog) error { return boom },
		createFileOperationLogFn: func(context.Context, *domain.FileOperationLog) error { return boom },
	}
	l := newTestLogger(Options{Logs: logs, Users: staticUsers{id: "u1"}})
	ctx := context.Background()

	if rec, err := l.LogAIPrompt(ctx, AIPromptParams{PromptType: "chat"}); rec != nil || !errors.Is(err, boom) {
		t.Fatalf("ai prompt: rec=%v err=%v", rec, err)
	}
	if rec, err := l.LogEmailSent(ctx, EmailParams{Recipient: "a@b.com"}); rec != nil || !errors.Is(err, boom) {
		t.Fatalf("email: rec=%v err=%v", rec, err)
	}
	if rec, err := l.LogFileUpload(ctx, FileUploadParams{FileName: "a.pdf"}); rec != nil || !errors.Is(err, boom) {
		t.Fatalf("file: rec=%v err=%v", rec, err)
	}
	if l.QueueLen() != 0 {
		t.Fatalf("expected no generic trace after failed write, got %d", l.QueueLen())
	}
}

func TestSpecializedLoggersRequireUser(t *testing.T) {
	l := newTestLogger(Options{Users: staticUsers{}})
	if _, err := l.LogFileUpload(context.Background(), FileUploadParams{FileName: "a.pdf"}); !errors.Is(err, auth.ErrNoUser) {
		t.Fatalf("expected ErrNoUser, got %v", err)
	}
}

func TestLogEmailSentDefaultsAndTrace(t *testing.T) {
	l := newTestLogger(Options{Users: staticUsers{id: "u1"}})
	ctx := context.Background()
	l.Initialize(ctx, "u1")
	defer l.Cleanup(ctx)

	rec, err := l.LogEmailSent(ctx, EmailParams{
		Recipient: "team@example.com",
		Subject:   "Invitation",
		Template:  "team-invite",
		Metadata:  map[string]any{"invite_token": "abc", "team": "core"},
	})
	if err != nil {
		t.Fatalf("log email: %v", err)
	}
	if rec.Status != EmailStatusSent || rec.Channel != "email" {
		t.Fatalf("unexpected defaults %+v", rec)
	}
	if rec.SessionID == nil || *rec.SessionID != l.SessionID() {
		t.Fatal("expected log tagged with current session")
	}
	if rec.Metadata["invite_token"] != redact.Marker || rec.Metadata["team"] != "core" {
		t.Fatalf("unexpected metadata %v", rec.Metadata)
	}
}

func TestLogFileUploadTraceDetails(t *testing.T) {
	repo := newRecordingActivityRepo()
	l := newTestLogger(Options{Activities: repo, Users: staticUsers{id: "u1"}})
	ctx := context.Background()
	failed := false
	if _, err := l.LogFileUpload(ctx, FileUploadParams{FileName: "a.pdf", FileSize: 10, Success: &failed, ErrorMessage: "too large"}); err != nil {
		t.Fatalf("log file: %v", err)
	}
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	batches, _ := repo.snapshot()
	trace := batches[0][0]
	if trace.ActivityType != domain.ActivityFileUpload || trace.Success || trace.ErrorMessage != "too large" {
		t.Fatalf("unexpected trace %+v", trace)
	}
	if trace.Details["file_name"] != "a.pdf" {
		t.Fatalf("unexpected details %v", trace.Details)
	}
}
