package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// AuthRequired проверяет Bearer-токен из конфигурации.
// Пустой токен отключает проверку.
func AuthRequired(token string) gin.HandlerFunc {
	if token == "" {
		log.Warn().Msg("[AUTH] API_TOKEN не задан, авторизация отключена")
		return func(c *gin.Context) { c.Next() }
	}
	expected := []byte("Bearer " + token)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader("Authorization"))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
