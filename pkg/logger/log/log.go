// Package log logs through a logger carried by the context, falling back to
// the root logger. Fields added with WithFields follow the context.
package log

import (
	"context"

	"go.uber.org/zap"

	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger"
)

type (
	ctxKey       struct{}
	requestIDKey struct{}
)

// WithLogger attaches l to ctx.
func WithLogger(ctx context.Context, l *logger.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l.Unwrap())
}

// WithFields returns a context whose logger carries the given key/value pairs.
func WithFields(ctx context.Context, keysAndValues ...any) context.Context {
	return context.WithValue(ctx, ctxKey{}, from(ctx).With(keysAndValues...))
}

// WithRequestID tags ctx with a request id. The context logger carries it
// as request_id and RequestID returns it.
func WithRequestID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey{}, id)
	return WithFields(ctx, "request_id", id)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// From returns the context logger.
func From(ctx context.Context) *logger.Logger {
	return &logger.Logger{SugaredLogger: from(ctx)}
}

func from(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok {
			return l
		}
	}
	return logger.Root().Unwrap()
}

func caller(ctx context.Context) *zap.SugaredLogger {
	return from(ctx).WithOptions(zap.AddCallerSkip(1))
}

func Debugw(ctx context.Context, msg string, keysAndValues ...any) {
	caller(ctx).Debugw(msg, keysAndValues...)
}

func Infow(ctx context.Context, msg string, keysAndValues ...any) {
	caller(ctx).Infow(msg, keysAndValues...)
}

func Warnw(ctx context.Context, msg string, keysAndValues ...any) {
	caller(ctx).Warnw(msg, keysAndValues...)
}

func Errorw(ctx context.Context, msg string, keysAndValues ...any) {
	caller(ctx).Errorw(msg, keysAndValues...)
}

func Infof(ctx context.Context, template string, args ...any) {
	caller(ctx).Infof(template, args...)
}

func Warnf(ctx context.Context, template string, args ...any) {
	caller(ctx).Warnf(template, args...)
}

func Logw(ctx context.Context, level logger.Level, msg string, keysAndValues ...any) {
	caller(ctx).Logw(level, msg, keysAndValues...)
}
