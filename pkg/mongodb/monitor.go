package mongodb

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/event"

	"github.com/wms-platform/ingredient-stock/pkg/logging"
	"github.com/wms-platform/ingredient-stock/pkg/metrics"
)

// commands that touch stock documents; handshakes and pings are ignored
var dataCommands = map[string]bool{
	"find":          true,
	"insert":        true,
	"update":        true,
	"delete":        true,
	"aggregate":     true,
	"findAndModify": true,
}

// NewCommandMonitor reports data commands as operation metrics. Failed commands,
// and commands slower than slow when it is non-zero, are also logged.
func NewCommandMonitor(m *metrics.Metrics, logger *logging.Logger, slow time.Duration) *event.CommandMonitor {
	var collections sync.Map

	finish := func(ctx context.Context, requestID int64, command string, duration time.Duration, success bool) {
		name, ok := collections.LoadAndDelete(requestID)
		if !ok {
			return
		}
		collection := name.(string)
		m.RecordMongoDBOperation(collection, command, success, duration)
		if !success || (slow > 0 && duration >= slow) {
			logger.DatabaseQuery(ctx, collection, command, duration, success)
		}
	}

	return &event.CommandMonitor{
		Started: func(_ context.Context, e *event.CommandStartedEvent) {
			if !dataCommands[e.CommandName] {
				return
			}
			if v, err := e.Command.LookupErr(e.CommandName); err == nil {
				if name, ok := v.StringValueOK(); ok {
					collections.Store(e.RequestID, name)
				}
			}
		},
		Succeeded: func(ctx context.Context, e *event.CommandSucceededEvent) {
			finish(ctx, e.RequestID, e.CommandName, e.Duration, true)
		},
		Failed: func(ctx context.Context, e *event.CommandFailedEvent) {
			finish(ctx, e.RequestID, e.CommandName, e.Duration, false)
		},
	}
}
