package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"insight-qa-go/internal/interview"
	"insight-qa-go/internal/middleware"
	"insight-qa-go/internal/model"
	"insight-qa-go/internal/service"
	"insight-qa-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 在生产中应设置严格的来源检查
	},
}

// InterviewHandler 负责模拟面试相关的 API 请求。
type InterviewHandler struct {
	interviewService service.InterviewService
}

// NewInterviewHandler 创建一个新的 InterviewHandler 实例。
func NewInterviewHandler(interviewService service.InterviewService) *InterviewHandler {
	return &InterviewHandler{interviewService: interviewService}
}

// Generate 生成一组面试题，并重置会话中的作答记录。
func (h *InterviewHandler) Generate(c *gin.Context) {
	var req service.GenerateInterviewRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	iv, err := h.interviewService.Generate(c.Request.Context(), middleware.SessionID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, "Interview generated", iv)
}

// Answer 记录一道题的回答，同一题重复提交时覆盖。
func (h *InterviewHandler) Answer(c *gin.Context) {
	var req model.InterviewAnswer
	if !bindJSON(c, &req) {
		return
	}
	if err := h.interviewService.Answer(c.Request.Context(), middleware.SessionID(c), req); err != nil {
		respondError(c, err)
		return
	}
	success(c, "Answer recorded", gin.H{"question_id": req.QuestionID})
}

// Analyze 分析面试表现。请求体可以为空，此时使用会话中保存的面试记录。
func (h *InterviewHandler) Analyze(c *gin.Context) {
	var req service.AnalyzeInterviewRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	report, err := h.interviewService.Analyze(c.Request.Context(), middleware.SessionID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, "Interview analyzed", report)
}

// recorderMessage 是录制通道上客户端发送的控制消息。
type recorderMessage struct {
	Type       string `json:"type"`
	QuestionID int    `json:"question_id"`
	Text       string `json:"text"`
}

// recorderReply 是服务端的回执。
type recorderReply struct {
	Type       string                 `json:"type"`
	State      interview.State        `json:"state"`
	QuestionID int                    `json:"question_id,omitempty"`
	Answer     *model.InterviewAnswer `json:"answer,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// Recorder 处理录制状态机的 WebSocket 连接。
// 浏览器负责语音识别，通过 transcript 消息推送识别结果，stop 时提交回答。
func (h *InterviewHandler) Recorder(c *gin.Context) {
	sessionID := middleware.SessionID(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("WebSocket upgrade failed for session %s: %v", sessionID, err)
		return
	}
	defer conn.Close()
	log.Infof("[Recorder] WebSocket 连接已建立, SessionID: %s", sessionID)

	ctx := c.Request.Context()
	rec := interview.NewRecorder(func(ctx context.Context, a model.InterviewAnswer) error {
		return h.interviewService.Answer(ctx, sessionID, a)
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("[Recorder] 连接异常关闭, SessionID: %s, Error: %v", sessionID, err)
			}
			break
		}

		reply := handleRecorderMessage(ctx, rec, raw)
		b, _ := json.Marshal(reply)
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Warnf("[Recorder] 回写消息失败, SessionID: %s, Error: %v", sessionID, err)
			break
		}
	}
	log.Infof("[Recorder] WebSocket 连接已关闭, SessionID: %s, 最终状态: %s", sessionID, rec.State())
}

func handleRecorderMessage(ctx context.Context, rec *interview.Recorder, raw []byte) recorderReply {
	var msg recorderMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return recorderReply{Type: "error", State: rec.State(), Error: "invalid message"}
	}

	var err error
	switch msg.Type {
	case "start":
		err = rec.Start(msg.QuestionID)
	case "transcript":
		err = rec.AppendTranscript(msg.Text)
	case "stop":
		var answer model.InterviewAnswer
		answer, err = rec.Stop(ctx)
		if err == nil {
			return recorderReply{Type: "submitted", State: rec.State(), QuestionID: answer.QuestionID, Answer: &answer}
		}
	case "reset":
		rec.Reset()
	case "state":
	default:
		err = errors.New("unknown message type: " + msg.Type)
	}
	if err != nil {
		return recorderReply{Type: "error", State: rec.State(), QuestionID: rec.QuestionID(), Error: err.Error()}
	}
	return recorderReply{Type: "state", State: rec.State(), QuestionID: rec.QuestionID()}
}
