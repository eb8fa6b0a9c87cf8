package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/model"
	"insight-qa-go/internal/repository"
	"insight-qa-go/internal/session"
	"insight-qa-go/pkg/log"
	"insight-qa-go/pkg/metrics"
)

// 各问答类型没有活动产物时的提示。
var missingArtifactMessages = map[model.Modality]string{
	model.ModalityDataset:  "No datasets uploaded",
	model.ModalityDocument: "Please upload a document first",
	model.ModalityVideo:    "Please analyze a video first",
}

// QAService 定义了问答与检索的业务接口。
type QAService interface {
	Ask(ctx context.Context, sessionID string, m model.Modality, question string) (*model.Answer, error)
	Search(ctx context.Context, sessionID string, m model.Modality, query string, k int) ([]model.SearchHit, error)
}

type qaService struct {
	store    *session.Store
	router   *QueryRouter
	composer *AnswerComposer
	history  repository.ConversationRepository
	maxTopK  int
}

// NewQAService 创建一个新的 QAService 实例。history 为 nil 时不记录问答历史。
func NewQAService(store *session.Store, router *QueryRouter, composer *AnswerComposer, history repository.ConversationRepository, maxTopK int) QAService {
	if maxTopK <= 0 {
		maxTopK = 10
	}
	return &qaService{store: store, router: router, composer: composer, history: history, maxTopK: maxTopK}
}

// Ask 对会话中指定类型的活动产物提问。
func (s *qaService) Ask(ctx context.Context, sessionID string, m model.Modality, question string) (*model.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperr.Validation("No question provided", nil)
	}

	answer, err := s.ask(ctx, sessionID, m, question)
	metrics.QuestionsTotal.WithLabelValues(string(m), metrics.Status(err)).Inc()
	if err != nil {
		log.Warnf("[QAService] 问答失败, SessionID: %s, Modality: %s, Error: %v", sessionID, m, err)
		return nil, err
	}
	s.appendHistory(ctx, sessionID, m, question, answer)
	return answer, nil
}

func (s *qaService) ask(ctx context.Context, sessionID string, m model.Modality, question string) (*model.Answer, error) {
	artifact, done, err := s.artifact(sessionID, m)
	if err != nil {
		return nil, err
	}
	// 回答生成完成前产物不会被替换或清除释放
	defer done()
	log.Infof("[QAService] 步骤1: 路由问题, SessionID: %s, Modality: %s", sessionID, m)
	routed, err := s.router.Route(ctx, question, artifact)
	if err != nil {
		return nil, err
	}
	log.Infof("[QAService] 步骤2: 生成回答")
	return s.composer.Compose(ctx, routed)
}

// Search 在文档或字幕的关键词索引上检索。
func (s *qaService) Search(ctx context.Context, sessionID string, m model.Modality, query string, k int) ([]model.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("No search query provided", nil)
	}
	if m == model.ModalityDataset {
		return nil, apperr.Validation("keyword search is not available for datasets", nil)
	}
	if k <= 0 {
		k = 5
	}
	k = min(k, s.maxTopK)

	artifact, done, err := s.artifact(sessionID, m)
	if err != nil {
		return nil, err
	}
	defer done()
	idx, ok := artifact.(*model.IndexedArtifact)
	if !ok {
		return nil, apperr.Validation("unsupported artifact type", nil)
	}
	hits, err := idx.Index.Keyword(query, k)
	if err != nil {
		return nil, apperr.External("keyword search failed", err)
	}
	out := make([]model.SearchHit, 0, len(hits))
	for i, h := range hits {
		out = append(out, model.SearchHit{
			Segment: i + 1,
			Label:   h.Chunk.Label,
			Content: h.Chunk.Text,
			Score:   h.Score,
		})
	}
	return out, nil
}

func (s *qaService) artifact(sessionID string, m model.Modality) (model.Artifact, session.ReleaseFunc, error) {
	artifact, done, err := s.store.Acquire(sessionID, m)
	switch {
	case errors.Is(err, session.ErrIngesting):
		return nil, nil, apperr.Validation("an upload is still being processed, please retry shortly", apperr.ErrBusy)
	case err != nil:
		return nil, nil, apperr.NotFound(missingArtifactMessages[m])
	}
	return artifact, done, nil
}

// appendHistory 追加一问一答，失败只记录日志。
func (s *qaService) appendHistory(ctx context.Context, sessionID string, m model.Modality, question string, answer *model.Answer) {
	if s.history == nil {
		return
	}
	history, err := s.history.GetHistory(ctx, sessionID, m)
	if err != nil {
		log.Warnf("[QAService] 读取问答历史失败, SessionID: %s, Error: %v", sessionID, err)
		return
	}
	now := time.Now()
	history = append(history,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer.Answer, SQLQuery: answer.SQLQuery, Timestamp: now},
	)
	if err := s.history.UpdateHistory(ctx, sessionID, m, history); err != nil {
		log.Warnf("[QAService] 保存问答历史失败, SessionID: %s, Error: %v", sessionID, err)
	}
}
