package handler

import (
	"errors"
	"net/http"
	"strconv"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/middleware"
	"insight-qa-go/internal/model"
	"insight-qa-go/internal/service"

	"github.com/gin-gonic/gin"
)

// IndexedHandler 负责文档与视频字幕这类向量索引产物的问答和检索，
// 两者只在问答类型上不同。
type IndexedHandler struct {
	modality  model.Modality
	qaService service.QAService
}

// NewIndexedHandler 创建一个新的 IndexedHandler 实例。
func NewIndexedHandler(modality model.Modality, qaService service.QAService) *IndexedHandler {
	return &IndexedHandler{modality: modality, qaService: qaService}
}

// Ask 对当前会话的文档或字幕提问。
func (h *IndexedHandler) Ask(c *gin.Context) {
	var req QuestionRequest
	if !bindJSON(c, &req) {
		return
	}
	answer, err := h.qaService.Ask(c.Request.Context(), middleware.SessionID(c), h.modality, req.Question)
	if err != nil {
		respondError(c, err)
		return
	}
	sources := answer.Sources
	if sources == nil {
		sources = []model.SourceExcerpt{}
	}
	success(c, "success", gin.H{"answer": answer.Answer, "sources": sources})
}

// Search 在关键词索引上检索，参数为 q 和可选的 k。
func (h *IndexedHandler) Search(c *gin.Context) {
	k := 0
	if raw := c.Query("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, apperr.Validation("k must be an integer", err))
			return
		}
		k = n
	}
	hits, err := h.qaService.Search(c.Request.Context(), middleware.SessionID(c), h.modality, c.Query("q"), k)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, "success", gin.H{"query": c.Query("q"), "results": hits})
}

// DocumentHandler 负责文档上传。
type DocumentHandler struct {
	*IndexedHandler
	ingestionService service.IngestionService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(ingestionService service.IngestionService, qaService service.QAService) *DocumentHandler {
	return &DocumentHandler{
		IndexedHandler:   NewIndexedHandler(model.ModalityDocument, qaService),
		ingestionService: ingestionService,
	}
}

// Upload 处理文档上传，表单字段为 document。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("document")
	if errors.Is(err, http.ErrMissingFile) {
		respondError(c, apperr.Validation("No document provided", err))
		return
	}
	if err != nil {
		respondError(c, requestError(err))
		return
	}
	file, err := readUpload(fh)
	if err != nil {
		respondError(c, err)
		return
	}

	meta, err := h.ingestionService.UploadDocument(c.Request.Context(), middleware.SessionID(c), file)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, "Document processed successfully", meta)
}
