package handler

import (
	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/middleware"
	"insight-qa-go/internal/model"
	"insight-qa-go/internal/service"

	"github.com/gin-gonic/gin"
)

// SessionHandler 负责会话状态、历史与清除。
type SessionHandler struct {
	sessionService service.SessionService
	auditService   service.AuditService
}

// NewSessionHandler 创建一个新的 SessionHandler 实例。auditService 可以为 nil。
func NewSessionHandler(sessionService service.SessionService, auditService service.AuditService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService, auditService: auditService}
}

// Clear 清除会话的全部数据，总是成功。
func (h *SessionHandler) Clear(c *gin.Context) {
	h.sessionService.Clear(c.Request.Context(), middleware.SessionID(c))
	success(c, "Session cleared", nil)
}

// Status 返回各问答类型的槽位状态。
func (h *SessionHandler) Status(c *gin.Context) {
	success(c, "success", h.sessionService.Status(middleware.SessionID(c)))
}

// History 返回指定问答类型的历史记录。
func (h *SessionHandler) History(c *gin.Context) {
	m, ok := model.ParseModality(c.Query("modality"))
	if !ok {
		respondError(c, apperr.Validation("modality must be one of dataset, document, video", nil))
		return
	}
	messages, err := h.sessionService.History(c.Request.Context(), middleware.SessionID(c), m)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, "success", gin.H{"modality": m, "messages": messages})
}

// Ingestions 返回会话的导入审计记录。
func (h *SessionHandler) Ingestions(c *gin.Context) {
	if h.auditService == nil {
		success(c, "success", []model.IngestionRecord{})
		return
	}
	records, err := h.auditService.ListIngestions(middleware.SessionID(c))
	if err != nil {
		respondError(c, apperr.External("failed to load ingestion records", err))
		return
	}
	success(c, "success", records)
}
