package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/rutas-academicas/pkg/config"
	"github.com/noah-isme/rutas-academicas/pkg/middleware/requestid"
)

// ActorKey is the gin context key holding the resolved acting user.
const ActorKey = "actor"

// New builds the process logger. Production gets the sampled production preset,
// everything else the development preset; the encoding always follows LOG_FORMAT.
func New(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Env == config.EnvProduction {
		zapCfg = zap.NewProductionConfig()
	}

	zapCfg.Encoding = "json"
	if cfg.Log.Format == "console" {
		zapCfg.Encoding = "console"
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Log.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
	}
	zapCfg.Level = level

	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapCfg.Build(zap.Fields(zap.String("service", "rutas-academicas")))
}

// GinMiddleware logs one line per request once the handler chain has finished.
func GinMiddleware(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if reqID := requestid.Value(c); reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}
		if actor := c.GetString(ActorKey); actor != "" {
			fields = append(fields, zap.String("actor", actor))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= 500:
			l.Error("http_request", fields...)
		case c.Writer.Status() >= 400:
			l.Warn("http_request", fields...)
		default:
			l.Info("http_request", fields...)
		}
	}
}
