// Package respond формирует JSON-ответы API в едином формате:
// {"success": true, ...} или {"success": false, "message": "..."}.
package respond

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/habit-tracker/internal/common"
)

// OK отвечает успехом. body может быть nil.
func OK(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(status, body)
}

// Fail отвечает ошибкой с текстом для пользователя и прерывает цепочку.
func Fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

// Error выбирает HTTP-статус по типу ошибки.
// Неизвестные ошибки логируются и отдаются как 500 без подробностей.
func Error(c *gin.Context, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("Ошибка обработки запроса")
		Fail(c, status, "Ошибка сервера")
		return
	}
	Fail(c, status, err.Error())
}

// StatusOf возвращает HTTP-статус для ошибки.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrInvalidDate),
		errors.Is(err, common.ErrFutureDate),
		errors.Is(err, common.ErrUsernameTaken):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrUnauthorized),
		errors.Is(err, common.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrForbidden),
		errors.Is(err, common.ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, common.ErrHabitNotFound),
		errors.Is(err, common.ErrCommunityNotFound),
		errors.Is(err, common.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
