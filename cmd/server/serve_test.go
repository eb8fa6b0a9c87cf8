package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"insight-qa-go/internal/config"
	"insight-qa-go/internal/handler"
	"insight-qa-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := config.Config{
		Upload:  config.UploadConfig{MaxRequestBytes: 1 << 20},
		Session: config.SessionConfig{CookieName: "session_token", HeaderName: "X-Session-Token"},
		JWT:     config.JWTConfig{SessionExpireDays: 1},
	}
	registerRoutes(r, cfg, token.NewSessionManager("secret", 1), routeHandlers{
		dataset:   handler.NewDatasetHandler(nil, nil),
		document:  handler.NewDocumentHandler(nil, nil),
		video:     handler.NewVideoHandler(nil, nil),
		session:   handler.NewSessionHandler(nil, nil),
		coding:    handler.NewCodingHandler(nil),
		interview: handler.NewInterviewHandler(nil),
	})
	return r
}

func TestRegisterRoutes(t *testing.T) {
	routes := map[string]bool{}
	for _, rt := range testRouter().Routes() {
		routes[rt.Method+" "+rt.Path] = true
	}

	for _, want := range []string{
		"POST /api/v1/datasets/upload",
		"POST /api/v1/datasets/ask",
		"POST /api/v1/documents/upload",
		"POST /api/v1/documents/ask",
		"GET /api/v1/documents/search",
		"POST /api/v1/videos/analyze",
		"POST /api/v1/videos/ask",
		"GET /api/v1/videos/search",
		"POST /api/v1/session/clear",
		"GET /api/v1/session/status",
		"GET /api/v1/session/history",
		"GET /api/v1/session/ingestions",
		"GET /api/v1/coding/languages",
		"POST /api/v1/coding/generate",
		"POST /api/v1/coding/validate",
		"POST /api/v1/coding/hint",
		"POST /api/v1/coding/run",
		"POST /api/v1/coding/solution",
		"POST /api/v1/interview/generate",
		"POST /api/v1/interview/answer",
		"POST /api/v1/interview/analyze",
		"GET /api/v1/interview/recorder",
	} {
		assert.True(t, routes[want], want)
	}
}

func TestRoutesIssueSessionAndRejectOversizedBodies(t *testing.T) {
	r := testRouter()

	// 校验失败发生在调用业务服务之前
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/session/history?modality=audio", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Session-Token"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets/ask", nil)
	req.ContentLength = 2 << 20
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
