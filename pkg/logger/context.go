package logger

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type ctxKey struct{}

const echoKey = "logger"

// FromContext returns the request logger stored in ctx or the process logger
func FromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
			return l
		}
	}
	return GetLogger()
}

func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromEcho is FromContext for handlers holding an echo.Context
func FromEcho(c echo.Context) *zap.Logger {
	if l, ok := c.Get(echoKey).(*zap.Logger); ok {
		return l
	}
	return GetLogger()
}
