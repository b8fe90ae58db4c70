package repository

import (
	"context"

	"github.com/sandeepkv93/activity-logging-gateway/internal/observability"
	"github.com/sandeepkv93/activity-logging-gateway/internal/realtime"
)

// publish emits a change for a persisted row. Delivery is best effort; a
// failed publish never fails the write that produced it.
func publish(ctx context.Context, p realtime.Publisher, table string, event realtime.EventType, row any) {
	change, err := realtime.NewChange(table, event, row, nil)
	if err != nil {
		observability.RecordRepositoryOperation(ctx, table, "publish", "error")
		return
	}
	if err := p.Publish(ctx, change); err != nil {
		observability.RecordRepositoryOperation(ctx, table, "publish", "error")
	}
}
