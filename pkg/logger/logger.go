package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/angelmondragon/stockledger-backend/pkg/env"
	"github.com/angelmondragon/stockledger-backend/pkg/instance"
)

// Format selects the line encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Options configures a Logger. Zero values mean: info level, JSON to stdout,
// format taken from LOG_FORMAT.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	Format      Format
	// WarnStack attaches a goroutine stack to warnings as well as errors.
	WarnStack bool
	// Caller adds file:line of the logging call site.
	Caller bool
	Output io.Writer
}

// Fields is the shape accepted by WithFields.
type Fields = map[string]any

// Logger writes structured entries. Request-scoped fields travel in the
// context, so a handler and everything it calls log with the same tags.
type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

func New(opts Options) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	ctx := zerolog.New(writerFor(opts)).
		Level(levelOrDefault(opts.Level)).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Str("instance", instance.GetID())
	if opts.Caller {
		ctx = ctx.CallerWithSkipFrameCount(3)
	}
	return &Logger{root: ctx.Logger(), warnStack: opts.WarnStack}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{root: zerolog.Nop()}
}

func writerFor(opts Options) io.Writer {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = Format(strings.ToLower(env.Get("LOG_FORMAT", string(FormatJSON))))
	}
	if format == FormatConsole {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return out
}

func levelOrDefault(lvl zerolog.Level) zerolog.Level {
	if lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// ParseLevel maps a config string to a level. Unknown or blank values fall
// back to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return zerolog.InfoLevel
	}
	return levelOrDefault(lvl)
}

// from returns the context-scoped logger, or the root when none is attached.
func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if scoped, ok := ctx.Value(scopeKey{}).(*zerolog.Logger); ok {
			return scoped
		}
	}
	return &l.root
}

type scopeKey struct{}

func (l *Logger) scope(ctx context.Context, build func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	scoped := build(l.from(ctx).With()).Logger()
	return context.WithValue(ctx, scopeKey{}, &scoped)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.scope(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Interface(key, value)
	})
}

// WithFields adds fields in key order so repeated entries serialize the same
// way.
func (l *Logger) WithFields(ctx context.Context, fields Fields) context.Context {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return l.scope(ctx, func(c zerolog.Context) zerolog.Context {
		for _, k := range keys {
			c = c.Interface(k, fields[k])
		}
		return c
	})
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithUserID(ctx context.Context, userID string) context.Context {
	return l.WithField(ctx, "user_id", userID)
}

func (l *Logger) WithTenantID(ctx context.Context, tenantID string) context.Context {
	return l.WithField(ctx, "tenant_id", tenantID)
}

// WithOperation tags entries with the ledger operation, e.g. record_sale.
func (l *Logger) WithOperation(ctx context.Context, op string) context.Context {
	return l.WithField(ctx, "operation", op)
}

// WithStep tags entries with the saga step being executed or compensated.
func (l *Logger) WithStep(ctx context.Context, step string) context.Context {
	return l.WithField(ctx, "step", step)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.from(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.from(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	withStack(l.from(ctx).Warn(), l.warnStack).Msg(msg)
}

// Error always carries a stack; err may be nil.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	event := l.from(ctx).Error()
	if err != nil {
		event = event.Err(err)
	}
	withStack(event, true).Msg(msg)
}

func withStack(event *zerolog.Event, enabled bool) *zerolog.Event {
	if !enabled || event == nil {
		return event
	}
	return event.Str("stack", strings.TrimSpace(string(debug.Stack())))
}
