package handler

import (
	"insight-qa-go/internal/middleware"
	"insight-qa-go/internal/service"

	"github.com/gin-gonic/gin"
)

// CodeRequest 是提交代码的请求体。
type CodeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// CodingHandler 负责编程练习相关的 API 请求。
type CodingHandler struct {
	codingService service.CodingService
}

// NewCodingHandler 创建一个新的 CodingHandler 实例。
func NewCodingHandler(codingService service.CodingService) *CodingHandler {
	return &CodingHandler{codingService: codingService}
}

// Languages 返回各语言在执行服务上的可用性。
func (h *CodingHandler) Languages(c *gin.Context) {
	success(c, "success", h.codingService.Languages(c.Request.Context()))
}

// Generate 生成一道新的练习题，隐藏测试只返回数量。
func (h *CodingHandler) Generate(c *gin.Context) {
	var req service.GenerateExerciseRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.codingService.Generate(c.Request.Context(), middleware.SessionID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, "Exercise generated", view)
}

func (h *CodingHandler) Validate(c *gin.Context) {
	var req CodeRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.codingService.Validate(c.Request.Context(), middleware.SessionID(c), req.Code, req.Language)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, "success", res)
}

func (h *CodingHandler) Hint(c *gin.Context) {
	res, err := h.codingService.Hint(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, "success", res)
}

// Run 在执行服务上运行可见与隐藏测试。
func (h *CodingHandler) Run(c *gin.Context) {
	var req CodeRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.codingService.Run(c.Request.Context(), middleware.SessionID(c), req.Code, req.Language)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, "success", res)
}

func (h *CodingHandler) Solution(c *gin.Context) {
	res, err := h.codingService.Solution(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, "success", res)
}
