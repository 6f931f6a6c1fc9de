// Package middleware содержит промежуточные обработчики gin: авторизация,
// доступ администратора, логирование, восстановление после паники,
// rate-limiting и CORS.
package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"serotonyl.ru/habit-tracker/internal/api/respond"
	"serotonyl.ru/habit-tracker/internal/common"
)

const principalKey = "principal"

// Principal — авторизованный пользователь запроса.
type Principal struct {
	UserID   uuid.UUID
	Username string
	Token    string
	IsAdmin  bool
}

// Authenticator проверяет токен сессии.
type Authenticator func(ctx context.Context, token string) (*Principal, error)

// RequireAuth пропускает только запросы с действующим токеном.
// Токен берётся из "Authorization: Bearer <token>" или из заголовка без префикса.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			respond.Error(c, common.ErrUnauthorized)
			return
		}

		p, err := auth(c.Request.Context(), token)
		if err != nil {
			respond.Error(c, err)
			return
		}
		p.Token = token
		SetPrincipal(c, p)
		c.Next()
	}
}

// SetPrincipal кладёт пользователя в контекст запроса.
func SetPrincipal(c *gin.Context, p *Principal) {
	c.Set(principalKey, p)
}

// CurrentUser возвращает пользователя запроса.
func CurrentUser(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok && p != nil
}

func extractToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	if len(header) >= 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if strings.EqualFold(header, "Bearer") || strings.Contains(header, " ") {
		return ""
	}
	return header
}
