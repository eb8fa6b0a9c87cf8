package middleware

import (
	"net/http"

	"insight-qa-go/internal/apperr"

	"github.com/gin-gonic/gin"
)

// BodyLimit 限制请求体大小。声明的长度超出上限时直接返回 413，
// 否则在读取超过上限时由处理函数得到 *http.MaxBytesError。
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"code":    http.StatusRequestEntityTooLarge,
				"message": "request body too large",
				"error":   apperr.KindValidation,
				"data":    nil,
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
