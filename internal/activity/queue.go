package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sandeepkv93/activity-logging-gateway/internal/domain"
	"github.com/sandeepkv93/activity-logging-gateway/internal/observability"
	"github.com/sandeepkv93/activity-logging-gateway/internal/redact"

	"gorm.io/datatypes"
)

// Entry holds caller supplied fields. Zero values take the defaults: type
// page_view, category navigation, success true and empty maps.
type Entry struct {
	Type         domain.ActivityType
	Category     string
	Label        string
	Details      map[string]any
	Metadata     map[string]any
	PageURL      string
	PageTitle    string
	Route        string
	ElementID    string
	ElementClass string
	ElementType  string
	ElementText  string

	LoadTimeMs     *int64
	ResponseTimeMs *int64
	Success        *bool
	ErrorMessage   string
	ErrorCode      string
}

// LogActivity queues a record and returns it. The returned record has not
// been persisted yet. The call that fills the queue to the batch size cuts
// that batch off before returning, so later records start a new batch.
func (l *Logger) LogActivity(ctx context.Context, e Entry) domain.UserActivity {
	record := l.buildRecord(ctx, e)

	l.queueMu.Lock()
	l.queue = append(l.queue, record)
	overflow := len(l.queue) >= l.batchSize
	if overflow {
		l.pending = append(l.pending, l.queue)
		l.queue = nil
	}
	l.queueMu.Unlock()

	observability.RecordActivityEnqueued(ctx, string(record.ActivityType))
	if overflow {
		l.requestFlush(ctx)
	}
	return record
}

func (l *Logger) buildRecord(ctx context.Context, e Entry) domain.UserActivity {
	if e.Type == "" {
		e.Type = domain.ActivityPageView
	}
	if e.Category == "" {
		e.Category = domain.CategoryNavigation
	}
	success := true
	if e.Success != nil {
		success = *e.Success
	}

	record := domain.UserActivity{
		ID:               uuid.NewString(),
		ActivityType:     e.Type,
		ActivityCategory: e.Category,
		ActivityLabel:    e.Label,
		Details:          datatypes.JSONMap(redact.Map(e.Details)),
		Metadata:         datatypes.JSONMap(redact.Map(e.Metadata)),
		PageURL:          e.PageURL,
		PageTitle:        e.PageTitle,
		Route:            e.Route,
		ElementID:        e.ElementID,
		ElementClass:     e.ElementClass,
		ElementType:      e.ElementType,
		ElementText:      e.ElementText,
		LoadTimeMs:       e.LoadTimeMs,
		ResponseTimeMs:   e.ResponseTimeMs,
		Success:          success,
		ErrorMessage:     e.ErrorMessage,
		ErrorCode:        e.ErrorCode,
		CreatedAt:        l.now(),
	}
	if userID := l.resolveUser(ctx); userID != "" {
		record.UserID = &userID
	}
	if sessionID := l.SessionID(); sessionID != "" {
		record.SessionID = &sessionID
	}
	return record
}

// Flush writes batches cut at overflow in the order they were cut, then the
// rest of the queue in one insert. On failure the unwritten records go back
// ahead of anything queued meanwhile. Concurrent calls run one at a time.
func (l *Logger) Flush(ctx context.Context) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.queueMu.Lock()
	batches := l.pending
	if len(l.queue) > 0 {
		batches = append(batches, l.queue)
	}
	l.pending = nil
	l.queue = nil
	l.queueMu.Unlock()

	for i, batch := range batches {
		if err := l.writeBatch(ctx, batch); err != nil {
			l.requeue(batches[i:])
			return err
		}
	}
	return nil
}

func (l *Logger) writeBatch(ctx context.Context, batch []domain.UserActivity) error {
	geo := l.geo.Lookup(ctx, l.env.IPAddress)
	ip := geo.IP
	if geo.IsFallback() && l.env.IPAddress != "" {
		ip = l.env.IPAddress
	}
	for i := range batch {
		if batch[i].IPAddress == "" {
			batch[i].IPAddress = ip
		}
	}

	if err := l.activities.CreateBatch(ctx, batch); err != nil {
		l.logger.ErrorContext(ctx, "flush activity batch failed", "batch_size", len(batch), "error", err)
		observability.RecordActivityFlush(ctx, "error", len(batch))
		return fmt.Errorf("flush %d activities: %w", len(batch), err)
	}
	observability.RecordActivityFlush(ctx, "success", len(batch))
	return nil
}

// requeue puts unwritten batches back as the oldest queued records. They
// merge into the open queue unless newer overflow batches are waiting.
func (l *Logger) requeue(batches [][]domain.UserActivity) {
	var n int
	for _, b := range batches {
		n += len(b)
	}
	rest := make([]domain.UserActivity, 0, n)
	for _, b := range batches {
		rest = append(rest, b...)
	}

	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	if len(l.pending) > 0 {
		l.pending = append([][]domain.UserActivity{rest}, l.pending...)
		return
	}
	l.queue = append(rest, l.queue...)
}

// requestFlush hands an overflow flush to the worker, or runs one in the
// background when no worker is running.
func (l *Logger) requestFlush(ctx context.Context) {
	if l.workerOn.Load() {
		select {
		case l.kick <- struct{}{}:
		default:
		}
		return
	}
	go l.flushLogged(context.WithoutCancel(ctx))
}

func (l *Logger) flushLogged(ctx context.Context) {
	// Flush logs its own failure; the error only matters to direct callers.
	_ = l.Flush(ctx)
}

func (l *Logger) startWorker(ctx context.Context) {
	if l.workerOn.Load() {
		return
	}
	l.workerStop = make(chan struct{})
	l.workerDone = make(chan struct{})
	l.workerOn.Store(true)
	go l.runWorker(context.WithoutCancel(ctx), l.workerStop, l.workerDone)
}

func (l *Logger) stopWorker() {
	if !l.workerOn.Load() {
		return
	}
	close(l.workerStop)
	<-l.workerDone
	l.workerOn.Store(false)
}

func (l *Logger) runWorker(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.flushLogged(ctx)
		case <-l.kick:
			l.flushLogged(ctx)
		}
	}
}
