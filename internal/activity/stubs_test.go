package activity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sandeepkv93/activity-logging-gateway/internal/domain"
	"github.com/sandeepkv93/activity-logging-gateway/internal/fingerprint"
	"github.com/sandeepkv93/activity-logging-gateway/internal/geoip"
	"github.com/sandeepkv93/activity-logging-gateway/internal/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubSessionRepo struct {
	createFn       func(ctx context.Context, s *domain.Session) error
	findReusableFn func(ctx context.Context, userID, ip string, now time.Time) (*domain.Session, error)
	touchFn        func(ctx context.Context, s *domain.Session, now time.Time) error
	markInactiveFn func(ctx context.Context, s *domain.Session, now time.Time) error
}

func (s *stubSessionRepo) Create(ctx context.Context, sess *domain.Session) error {
	if s.createFn != nil {
		return s.createFn(ctx, sess)
	}
	return nil
}

func (s *stubSessionRepo) FindReusable(ctx context.Context, userID, ip string, now time.Time) (*domain.Session, error) {
	if s.findReusableFn != nil {
		return s.findReusableFn(ctx, userID, ip, now)
	}
	return nil, repository.ErrSessionNotFound
}

func (s *stubSessionRepo) FindByIDForUser(context.Context, string, string) (*domain.Session, error) {
	return nil, repository.ErrSessionNotFound
}

func (s *stubSessionRepo) ListActiveByUserID(context.Context, string, time.Time) ([]domain.Session, error) {
	return nil, nil
}

func (s *stubSessionRepo) Touch(ctx context.Context, sess *domain.Session, now time.Time) error {
	if s.touchFn != nil {
		return s.touchFn(ctx, sess, now)
	}
	return nil
}

func (s *stubSessionRepo) MarkInactive(ctx context.Context, sess *domain.Session, now time.Time) error {
	if s.markInactiveFn != nil {
		return s.markInactiveFn(ctx, sess, now)
	}
	return nil
}

func (s *stubSessionRepo) MarkInactiveForUser(context.Context, string, string, time.Time) (bool, error) {
	return false, nil
}

func (s *stubSessionRepo) DeactivateExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// recordingActivityRepo keeps every successful batch; failNext makes the
// next N inserts fail and failCall fails only the insert with that 1-based
// call number.
type recordingActivityRepo struct {
	mu       sync.Mutex
	batches  [][]domain.UserActivity
	calls    int
	failNext int
	failCall int
	written  chan int
}

func newRecordingActivityRepo() *recordingActivityRepo {
	return &recordingActivityRepo{written: make(chan int, 16)}
}

func (r *recordingActivityRepo) CreateBatch(_ context.Context, activities []domain.UserActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failNext > 0 {
		r.failNext--
		return fmt.Errorf("insert failed")
	}
	if r.failCall == r.calls {
		return fmt.Errorf("insert %d failed", r.calls)
	}
	r.batches = append(r.batches, append([]domain.UserActivity(nil), activities...))
	select {
	case r.written <- len(activities):
	default:
	}
	return nil
}

func (r *recordingActivityRepo) ListPaged(context.Context, repository.ActivityListQuery) (repository.PageResult[domain.UserActivity], error) {
	return repository.PageResult[domain.UserActivity]{}, nil
}

func (r *recordingActivityRepo) snapshot() ([][]domain.UserActivity, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]domain.UserActivity(nil), r.batches...), r.calls
}

type stubLogRepo struct {
	createAIPromptLogFn      func(ctx context.Context, log *domain.AIPromptLog) error
	createCommunicationLogFn func(ctx context.Context, log *domain.CommunicationLog) error
	createFileOperationLogFn func(ctx context.Context, log *domain.FileOperationLog) error
}

func (s *stubLogRepo) CreateAIPromptLog(ctx context.Context, log *domain.AIPromptLog) error {
	if s.createAIPromptLogFn != nil {
		return s.createAIPromptLogFn(ctx, log)
	}
	return nil
}

func (s *stubLogRepo) CreateCommunicationLog(ctx context.Context, log *domain.CommunicationLog) error {
	if s.createCommunicationLogFn != nil {
		return s.createCommunicationLogFn(ctx, log)
	}
	return nil
}

func (s *stubLogRepo) CreateFileOperationLog(ctx context.Context, log *domain.FileOperationLog) error {
	if s.createFileOperationLogFn != nil {
		return s.createFileOperationLogFn(ctx, log)
	}
	return nil
}

type countingGeo struct {
	calls atomic.Int32
	info  geoip.Info
}

func (g *countingGeo) Lookup(context.Context, string) geoip.Info {
	g.calls.Add(1)
	return g.info
}

type staticUsers struct {
	id  string
	err error
}

func (s staticUsers) UserID(context.Context) (string, error) { return s.id, s.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testEnvironment() fingerprint.Environment {
	return fingerprint.Environment{
		UserAgent:    "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		ScreenWidth:  1440,
		ScreenHeight: 900,
		Timezone:     "UTC",
		Language:     "en-US",
		IPAddress:    "203.0.113.7",
	}
}

func newTestLogger(opts Options) *Logger {
	if opts.Sessions == nil {
		opts.Sessions = &stubSessionRepo{}
	}
	if opts.Activities == nil {
		opts.Activities = newRecordingActivityRepo()
	}
	if opts.Logs == nil {
		opts.Logs = &stubLogRepo{}
	}
	if opts.Geo == nil {
		opts.Geo = &countingGeo{info: geoip.Info{IP: "203.0.113.7", Country: "US"}}
	}
	if opts.FlushInterval == 0 {
		opts.FlushInterval = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.Environment == (fingerprint.Environment{}) {
		opts.Environment = testEnvironment()
	}
	return NewLogger(opts)
}

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Session{}, &domain.UserActivity{}, &domain.AIPromptLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
