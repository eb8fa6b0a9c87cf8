// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"net/http"
	"strings"

	"insight-qa-go/pkg/log"
	"insight-qa-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// SessionIDKey 是会话 ID 在 Gin 上下文中的键。
const SessionIDKey = "sessionID"

// SessionOptions 描述会话令牌在请求中的位置。
type SessionOptions struct {
	CookieName string
	HeaderName string
	// MaxAge 是 cookie 的有效期（秒）。
	MaxAge int
	Secure bool
}

// SessionMiddleware 为每个请求确定会话。
// 依次从请求头和 cookie 中读取令牌，缺失或无效时签发新会话，
// 并把令牌同时写回 cookie 和响应头，会话 ID 存入 Gin 上下文。
func SessionMiddleware(manager *token.SessionManager, opts SessionOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimSpace(c.GetHeader(opts.HeaderName))
		if tokenString == "" {
			tokenString, _ = c.Cookie(opts.CookieName)
		}

		var sessionID string
		if tokenString != "" {
			if claims, err := manager.Verify(tokenString); err == nil {
				sessionID = claims.SessionID
			}
		}

		if sessionID == "" {
			sessionID = token.NewSessionID()
			signed, err := manager.Issue(sessionID)
			if err != nil {
				log.Error("签发会话令牌失败", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    http.StatusInternalServerError,
					"message": "failed to create session",
					"data":    nil,
				})
				return
			}
			tokenString = signed
			log.Infof("[Session] 创建新会话, SessionID: %s", sessionID)
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(opts.CookieName, tokenString, opts.MaxAge, "/", "", opts.Secure, true)
		c.Header(opts.HeaderName, tokenString)
		c.Set(SessionIDKey, sessionID)
		c.Next()
	}
}

// SessionID 返回当前请求的会话 ID。
func SessionID(c *gin.Context) string {
	return c.GetString(SessionIDKey)
}
