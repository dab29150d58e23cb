package events

import (
	"context"
	"log/slog"

	"github.com/casualjim/folio/pkg/slogx"
)

// Hook receives the server side events of a session.
type Hook interface {
	OnSession(ctx context.Context, s Session)
	OnProgress(ctx context.Context, p Progress)
	OnReport(ctx context.Context, r Report)
	OnError(ctx context.Context, e Error)
}

// Dispatch calls the hook method matching e. Client events are ignored and
// reported as not handled.
func Dispatch(ctx context.Context, h Hook, e Event) bool {
	switch ev := e.(type) {
	case Session:
		h.OnSession(ctx, ev)
	case Progress:
		h.OnProgress(ctx, ev)
	case Report:
		h.OnReport(ctx, ev)
	case Error:
		h.OnError(ctx, ev)
	default:
		return false
	}
	return true
}

// NewCompositeHook forwards every event to each of hooks in order.
func NewCompositeHook(hooks ...Hook) Hook {
	return compositeHook(hooks)
}

type compositeHook []Hook

func (c compositeHook) OnSession(ctx context.Context, s Session) {
	for _, h := range c {
		h.OnSession(ctx, s)
	}
}

func (c compositeHook) OnProgress(ctx context.Context, p Progress) {
	for _, h := range c {
		h.OnProgress(ctx, p)
	}
}

func (c compositeHook) OnReport(ctx context.Context, r Report) {
	for _, h := range c {
		h.OnReport(ctx, r)
	}
}

func (c compositeHook) OnError(ctx context.Context, e Error) {
	for _, h := range c {
		h.OnError(ctx, e)
	}
}

// LoggingHook logs every event at debug level, errors at warn level.
func LoggingHook(logger *slog.Logger) Hook {
	if logger == nil {
		logger = slogx.Component("events")
	}
	return &loggingHook{log: logger}
}

type loggingHook struct {
	log *slog.Logger
}

func (l *loggingHook) OnSession(ctx context.Context, s Session) {
	l.log.DebugContext(ctx, "session started", slog.String("client_id", s.ClientID.String()))
}

func (l *loggingHook) OnProgress(ctx context.Context, p Progress) {
	l.log.DebugContext(ctx, "template completed",
		slog.String("request_id", p.RequestID.String()),
		slog.String("template", p.Progress.Entry.Template),
		slog.String("state", string(p.Progress.Entry.State)),
		slog.Int("completed", p.Progress.Completed),
		slog.Int("total", p.Progress.Total),
	)
}

func (l *loggingHook) OnReport(ctx context.Context, r Report) {
	attrs := []any{slog.String("request_id", r.RequestID.String())}
	if r.Result != nil {
		attrs = append(attrs, slog.Bool("success", r.Result.Success), slog.String("summary", r.Result.String()))
	}
	l.log.DebugContext(ctx, "request finished", attrs...)
}

func (l *loggingHook) OnError(ctx context.Context, e Error) {
	l.log.WarnContext(ctx, "request failed", slog.String("request_id", e.RequestID.String()), slogx.Error(e.Err))
}
