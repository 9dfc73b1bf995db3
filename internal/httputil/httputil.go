// Package httputil содержит общие помощники для gin-обработчиков.
package httputil

import "github.com/gin-gonic/gin"

// ErrorResponse: тело ответа с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondError отвечает ErrorResponse и прерывает цепочку обработчиков.
func RespondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}
