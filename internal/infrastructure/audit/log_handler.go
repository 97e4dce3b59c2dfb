package audit

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/barangay-lifecycle/internal/domain/event"
)

// LogHandler writes every lifecycle event to the structured log
func LogHandler(logger *zap.Logger) dispatcher.Handler {
	logger = logger.Named("audit")

	return func(_ context.Context, evt *event.Event) error {
		fields := []zap.Field{
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type.String()),
			zap.String("request_id", evt.RequestID),
			zap.Time("occurred_at", evt.Timestamp),
		}

		if entry := evt.Entry; entry != nil {
			fields = append(fields,
				zap.Int64("sequence", entry.Sequence),
				zap.String("from_status", entry.FromStatus.String()),
				zap.String("to_status", entry.ToStatus.String()),
				zap.String("actor_role", entry.ActorRole.String()),
				zap.String("actor_identity", entry.ActorIdentity),
			)
			if entry.ORNumber != nil {
				fields = append(fields, zap.String("or_number", *entry.ORNumber))
			}
		} else {
			for k, v := range evt.Payload {
				fields = append(fields, zap.String(k, fmt.Sprint(v)))
			}
		}

		logger.Info("Lifecycle event", fields...)
		return nil
	}
}
