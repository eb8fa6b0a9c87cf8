package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"insight-qa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

const multipartPlaceholder = "[multipart omitted]"

// bodyLogWriter 用于捕获响应体的前 limit 个字节
type bodyLogWriter struct {
	gin.ResponseWriter
	body  *bytes.Buffer
	limit int
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	capture(w.body, b, w.limit)
	return w.ResponseWriter.Write(b)
}

// bodyLogReader 在处理函数读取请求体时顺带记录前 limit 个字节，
// 不会提前读取整个请求体。
type bodyLogReader struct {
	io.ReadCloser
	body  *bytes.Buffer
	limit int
}

func (r bodyLogReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	capture(r.body, p[:n], r.limit)
	return n, err
}

func capture(buf *bytes.Buffer, b []byte, limit int) {
	if room := limit - buf.Len(); room > 0 {
		buf.Write(b[:min(len(b), room)])
	}
}

func truncated(buf *bytes.Buffer, limit int) string {
	s := buf.String()
	if buf.Len() >= limit && limit > 0 {
		return s + "...(truncated)"
	}
	return s
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
// 请求体和响应体最多记录 maxBodyBytes 个字节，multipart 请求体不记录。
func RequestLogger(maxBodyBytes int) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 记录请求开始时间
		startTime := time.Now()

		requestBody := &bytes.Buffer{}
		multipart := strings.HasPrefix(c.ContentType(), "multipart/")
		if c.Request.Body != nil && !multipart {
			c.Request.Body = bodyLogReader{ReadCloser: c.Request.Body, body: requestBody, limit: maxBodyBytes}
		}

		// 使用自定义的 ResponseWriter 捕获响应
		blw := &bodyLogWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer, limit: maxBodyBytes}
		c.Writer = blw

		// 处理请求
		c.Next()

		reqBody := truncated(requestBody, maxBodyBytes)
		if multipart {
			reqBody = multipartPlaceholder
		}

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"sessionID", SessionID(c),
			"requestBody", reqBody,
			"responseBody", truncated(blw.body, maxBodyBytes),
		)
	}
}
