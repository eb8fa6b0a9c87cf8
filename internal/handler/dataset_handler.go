package handler

import (
	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/middleware"
	"insight-qa-go/internal/model"
	"insight-qa-go/internal/pipeline"
	"insight-qa-go/internal/service"

	"github.com/gin-gonic/gin"
)

// DatasetHandler 负责表格数据的上传与问答。
type DatasetHandler struct {
	ingestionService service.IngestionService
	qaService        service.QAService
}

// NewDatasetHandler 创建一个新的 DatasetHandler 实例。
func NewDatasetHandler(ingestionService service.IngestionService, qaService service.QAService) *DatasetHandler {
	return &DatasetHandler{ingestionService: ingestionService, qaService: qaService}
}

// Upload 处理数据文件上传，表单字段为 files[] 或 files。
// 成功后替换会话中已有的表格数据。
func (h *DatasetHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, requestError(err))
		return
	}
	headers := form.File["files[]"]
	if len(headers) == 0 {
		headers = form.File["files"]
	}
	if len(headers) == 0 {
		respondError(c, apperr.Validation("No files provided", nil))
		return
	}

	files := make([]pipeline.File, 0, len(headers))
	for _, fh := range headers {
		f, err := readUpload(fh)
		if err != nil {
			respondError(c, err)
			return
		}
		files = append(files, f)
	}

	summaries, err := h.ingestionService.UploadDatasets(c.Request.Context(), middleware.SessionID(c), files)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, "Datasets uploaded successfully", gin.H{"files": summaries})
}

// Ask 对当前会话的表格数据提问。
func (h *DatasetHandler) Ask(c *gin.Context) {
	var req QuestionRequest
	if !bindJSON(c, &req) {
		return
	}
	answer, err := h.qaService.Ask(c.Request.Context(), middleware.SessionID(c), model.ModalityDataset, req.Question)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, "success", answer)
}
