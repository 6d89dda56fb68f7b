package logging

import (
	"context"
	"log/slog"
	"time"
)

// Span times a long-running unit of work, such as a media stream or an upload,
// and logs a single completion record.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	attrs  []any
}

// StartSpan derives a span from the request-scoped logger in ctx.
func StartSpan(ctx context.Context, name string, args ...any) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx).With(slog.String("span", name))
	if len(args) > 0 {
		logger = logger.With(args...)
	}

	return WithLogger(ctx, logger), &Span{name: name, logger: logger, start: time.Now()}
}

// Annotate records attributes emitted when the span ends.
func (s *Span) Annotate(args ...any) {
	if s == nil {
		return
	}
	s.attrs = append(s.attrs, args...)
}

// End emits the completion record. A non-nil err is logged at warn level.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	args := append([]any{slog.Duration("duration", time.Since(s.start))}, s.attrs...)
	if err != nil {
		s.logger.Warn(s.name+" aborted", append(args, slog.Any("error", err))...)
		return
	}
	s.logger.Info(s.name+" completed", args...)
}
