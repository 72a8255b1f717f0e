package logger

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig selects the level, encoder and static fields of the process logger
type LogConfig struct {
	Level       string
	Environment string
	ServiceName string
}

var log = zap.NewNop()

// InitLogger builds the process logger. Production emits JSON with ISO8601
// timestamps; every other environment gets the colored console encoder.
// Unknown levels fall back to info.
func InitLogger(cfg *LogConfig) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewDevelopmentConfig()
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if cfg.Environment == "production" {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	built, err := zc.Build(zap.Fields(
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
	))
	if err != nil {
		return err
	}

	log = built
	zap.ReplaceGlobals(log)
	return nil
}

// GetLogger returns the process logger, a no-op until InitLogger runs
func GetLogger() *zap.Logger {
	return log
}

// Middleware logs one line per request with a request scoped logger that
// handlers reach through FromEcho or FromContext. Register it after the
// request id middleware.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			began := time.Now()
			req := c.Request()

			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = c.Response().Header().Get(echo.HeaderXRequestID)
			}
			reqLog := log.With(zap.String("request_id", rid))
			c.Set(echoKey, reqLog)
			c.SetRequest(req.WithContext(WithContext(req.Context(), reqLog)))

			if err := next(c); err != nil {
				// the error handler writes the status we log below
				c.Error(err)
			}

			status := c.Response().Status
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(began)),
				zap.String("ip", c.RealIP()),
			}
			if tenant := c.Get("tenant_slug"); tenant != nil {
				fields = append(fields, zap.Any("tenant", tenant))
			}
			switch {
			case status >= 500:
				reqLog.Error("HTTP Request", fields...)
			case status >= 400:
				reqLog.Warn("HTTP Request", fields...)
			default:
				reqLog.Info("HTTP Request", fields...)
			}
			return nil
		}
	}
}
