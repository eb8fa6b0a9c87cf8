// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/pipeline"
	"insight-qa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// QuestionRequest 是各类问答接口的请求体。
type QuestionRequest struct {
	Question string `json:"question"`
}

func success(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

// respondError 把错误映射为统一的错误响应。
// 表格查询失败时 data 中附带生成的 SQL。
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	body := gin.H{"code": status, "data": nil}

	var e *apperr.Error
	if errors.As(err, &e) {
		body["message"] = e.Message
		body["error"] = e.Kind
		if e.Query != "" {
			body["data"] = gin.H{"sql_query": e.Query}
		}
	} else {
		body["message"] = "服务器内部错误"
		body["error"] = "InternalError"
	}

	if status >= http.StatusInternalServerError {
		log.Error("请求处理失败", err)
	}
	c.JSON(status, body)
}

// bindJSON 解析 JSON 请求体，失败时直接写出错误响应并返回 false。
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, requestError(err))
		return false
	}
	return true
}

// bindOptionalJSON 与 bindJSON 相同，但允许空请求体。
func bindOptionalJSON(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, requestError(err))
		return false
	}
	return true
}

// requestError 把读取请求体时的错误转为校验错误，超出大小上限时为 413。
func requestError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperr.Validation("request body too large", apperr.ErrPayloadTooLarge)
	}
	if errors.Is(err, io.EOF) {
		return apperr.Validation("request body is empty", err)
	}
	return apperr.Validation("invalid request body", err)
}

// readUpload 读取一个上传文件的全部内容。
func readUpload(fh *multipart.FileHeader) (pipeline.File, error) {
	f, err := fh.Open()
	if err != nil {
		return pipeline.File{}, apperr.Validation("failed to open uploaded file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return pipeline.File{}, requestError(err)
	}
	return pipeline.File{Name: fh.Filename, Data: data}, nil
}
