package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"deploygate/pkg/requestcontext"
)

// Publisher accepts audit events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// enrich fills timestamp and request metadata that callers leave empty.
func enrich(ctx context.Context, event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx).UTC()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}
	return event
}

// LogPublisher writes events to a structured logger. It is the default sink
// when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Emit(ctx context.Context, event Event) error {
	event = enrich(ctx, event)
	level := slog.LevelInfo
	if event.Category == CategorySecurity {
		level = slog.LevelWarn
	}
	p.logger.Log(ctx, level, "audit event",
		"category", string(event.Category),
		"action", event.Action,
		"subject", event.Subject,
		"reason", event.Reason,
		"namespace", event.Namespace,
		"resource", event.Resource,
		"count", event.Count,
		"request_id", event.RequestID,
		"client_ip", event.ClientIP,
		"timestamp", event.Timestamp.Format(time.RFC3339),
	)
	return nil
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
