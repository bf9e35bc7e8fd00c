package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxelworld/internal/logging"
)

// TraceIDKey ключ gin.Context и заголовок ответа с идентификатором запроса
const (
	TraceIDKey    = "trace_id"
	TraceIDHeader = "X-Trace-ID"
)

// RequestLogger пишет по строке на запрос. Пути из quiet (health-чеки,
// опрос статуса) уходят в Debug, чтобы не забивать лог.
type RequestLogger struct {
	logger *logging.Logger
	quiet  map[string]bool
}

func NewRequestLogger(quietPaths ...string) *RequestLogger {
	rl := &RequestLogger{
		logger: logging.GetComponentLogger("http"),
		quiet:  make(map[string]bool, len(quietPaths)),
	}
	for _, p := range quietPaths {
		rl.quiet[p] = true
	}
	return rl
}

// traceID берёт id из span'а otelgin, без него генерирует uuid
func traceID(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return uuid.NewString()
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := traceID(c)
		c.Set(TraceIDKey, id)
		c.Header(TraceIDHeader, id)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.Request.URL.Path
		elapsed := time.Since(start)
		switch {
		case status >= 500:
			rl.logger.Warn("[HTTP] %s %s %d %s trace=%s err=%s", c.Request.Method, path, status, elapsed, id, c.Errors.String())
		case rl.quiet[path]:
			rl.logger.Debug("[HTTP] %s %s %d %s", c.Request.Method, path, status, elapsed)
		default:
			rl.logger.Info("[HTTP] %s %s %d %s ip=%s trace=%s", c.Request.Method, path, status, elapsed, c.ClientIP(), id)
		}
	}
}
