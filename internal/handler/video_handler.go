package handler

import (
	"insight-qa-go/internal/middleware"
	"insight-qa-go/internal/model"
	"insight-qa-go/internal/service"

	"github.com/gin-gonic/gin"
)

// VideoRequest 是视频分析的请求体。
type VideoRequest struct {
	VideoURL string `json:"video_url"`
}

// VideoHandler 负责视频字幕的导入。
type VideoHandler struct {
	*IndexedHandler
	ingestionService service.IngestionService
}

// NewVideoHandler 创建一个新的 VideoHandler 实例。
func NewVideoHandler(ingestionService service.IngestionService, qaService service.QAService) *VideoHandler {
	return &VideoHandler{
		IndexedHandler:   NewIndexedHandler(model.ModalityVideo, qaService),
		ingestionService: ingestionService,
	}
}

// Analyze 抓取视频字幕并建立索引。
func (h *VideoHandler) Analyze(c *gin.Context) {
	var req VideoRequest
	if !bindJSON(c, &req) {
		return
	}
	summary, err := h.ingestionService.AnalyzeVideo(c.Request.Context(), middleware.SessionID(c), req.VideoURL)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, "Video processed successfully", summary)
}
