package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/angelmondragon/experiences-backend/pkg/env"
	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options configures the structured logger. Format falls back to
// EXPERIENCES_LOG_FORMAT and then to JSON.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	Format      string
	Output      io.Writer
}

// Logger writes zerolog entries enriched with fields carried on the context.
type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

type ctxKey struct{}

func New(opts Options) *Logger {
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	root := zerolog.New(writerFor(opts)).
		Level(level).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()
	return &Logger{root: root, warnStack: opts.WarnStack}
}

func writerFor(opts Options) io.Writer {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = env.Get("EXPERIENCES_LOG_FORMAT", FormatJSON)
	}
	if strings.EqualFold(format, FormatConsole) {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return out
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) entry(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if scoped, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
			return scoped
		}
	}
	return &l.root
}

// WithFields returns a child context whose entries carry fields. The
// parent context is left untouched.
func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	scoped := l.entry(ctx).With().Fields(fields).Logger()
	return context.WithValue(ctx, ctxKey{}, &scoped)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	scoped := l.entry(ctx).With().Interface(key, value).Logger()
	return context.WithValue(ctx, ctxKey{}, &scoped)
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

// WithExperienceID tags entries with the catalog or ledger experience reference.
func (l *Logger) WithExperienceID(ctx context.Context, experienceID string) context.Context {
	return l.WithField(ctx, "experience_id", experienceID)
}

// WithAccount tags entries with the on-chain account acting in the flow.
func (l *Logger) WithAccount(ctx context.Context, account string) context.Context {
	return l.WithField(ctx, "account", account)
}

func (l *Logger) WithTxHash(ctx context.Context, hash string) context.Context {
	return l.WithField(ctx, "tx_hash", hash)
}

func (l *Logger) WithOperation(ctx context.Context, operation string) context.Context {
	return l.WithField(ctx, "operation", operation)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.entry(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.entry(ctx).Info().Msg(msg)
}

// Warn attaches a stack only when WarnStack is enabled.
func (l *Logger) Warn(ctx context.Context, msg string) {
	event := l.entry(ctx).Warn()
	if l.warnStack {
		event = event.Str("stack", stackTrace())
	}
	event.Msg(msg)
}

// Error always attaches a stack.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	l.entry(ctx).Error().Err(err).Str("stack", stackTrace()).Msg(msg)
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
