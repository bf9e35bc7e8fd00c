package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/annel0/voxelworld/internal/auth"
)

const claimsKey = "claims"

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, GenericResponse{Message: msg})
}

// bearerToken "" если заголовка нет или схема не Bearer
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// jwtMiddleware кладёт проверенные claims в контекст под claimsKey
func (rs *RestServer) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, http.StatusUnauthorized, "Отсутствует токен авторизации")
			return
		}
		token := bearerToken(header)
		if token == "" {
			abort(c, http.StatusUnauthorized, "Неверный формат токена")
			return
		}
		claims, err := rs.tokens.Validate(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Недействительный токен")
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// requirePrivs ставится после jwtMiddleware
func requirePrivs(want auth.Privs) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := c.Value(claimsKey).(*auth.Claims)
		switch {
		case claims == nil:
			abort(c, http.StatusInternalServerError, "Отсутствует информация о пользователе")
		case !claims.Privs.Has(want):
			abort(c, http.StatusForbidden, "Недостаточно прав доступа: нужно "+want.String())
		default:
			c.Next()
		}
	}
}
