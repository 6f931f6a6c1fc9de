package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/habit-tracker/internal/metrics"
)

// Logger логирует каждый запрос и пишет метрики. m может быть nil.
// Записывает: метод, маршрут, статус, время, IP и пользователя.
func Logger(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		route := c.FullPath()
		m.ObserveHTTP(c.Request.Method, route, status, latency)

		fields := log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  status,
			"latency": latency.String(),
			"ip":      c.ClientIP(),
		}
		if p, ok := CurrentUser(c); ok {
			fields["user_id"] = p.UserID
		}

		entry := log.WithFields(fields)
		switch {
		case status >= 500:
			entry.Error("Запрос завершился ошибкой")
		case status >= 400:
			entry.Info("Запрос отклонён")
		default:
			entry.Debug("Запрос обработан")
		}
	}
}
