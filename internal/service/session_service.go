package service

import (
	"context"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/model"
	"insight-qa-go/internal/repository"
	"insight-qa-go/internal/session"
	"insight-qa-go/pkg/log"
)

// SessionCleaner 是持有会话级状态、需要随会话一起清除的存储。
type SessionCleaner interface {
	DeleteSession(ctx context.Context, sessionID string) error
}

// SessionService 定义了会话状态、历史与清除的业务接口。
type SessionService interface {
	Status(sessionID string) model.SessionStatus
	History(ctx context.Context, sessionID string, m model.Modality) ([]model.ChatMessage, error)
	// Clear 清除会话的全部产物与外部状态，总是成功。
	Clear(ctx context.Context, sessionID string)
}

type sessionService struct {
	store    *session.Store
	history  repository.ConversationRepository
	archive  Archiver
	cleaners []SessionCleaner
}

// NewSessionService 创建一个新的 SessionService 实例。
// cleaners 中的每个存储都会在 Clear 时被清理。
func NewSessionService(store *session.Store, history repository.ConversationRepository, archive Archiver, cleaners ...SessionCleaner) SessionService {
	return &sessionService{store: store, history: history, archive: archive, cleaners: cleaners}
}

func (s *sessionService) Status(sessionID string) model.SessionStatus {
	return s.store.Status(sessionID)
}

func (s *sessionService) History(ctx context.Context, sessionID string, m model.Modality) ([]model.ChatMessage, error) {
	if s.history == nil {
		return []model.ChatMessage{}, nil
	}
	messages, err := s.history.GetHistory(ctx, sessionID, m)
	if err != nil {
		return nil, apperr.External("failed to load history", err)
	}
	return messages, nil
}

func (s *sessionService) Clear(ctx context.Context, sessionID string) {
	s.store.Clear(sessionID)
	if s.history != nil {
		if err := s.history.DeleteSession(ctx, sessionID); err != nil {
			log.Warnf("[SessionService] 清除问答历史失败, SessionID: %s, Error: %v", sessionID, err)
		}
	}
	if s.archive != nil {
		if err := s.archive.RemoveSession(ctx, sessionID); err != nil {
			log.Warnf("[SessionService] 清除归档失败, SessionID: %s, Error: %v", sessionID, err)
		}
	}
	for _, c := range s.cleaners {
		if c == nil {
			continue
		}
		if err := c.DeleteSession(ctx, sessionID); err != nil {
			log.Warnf("[SessionService] 清除会话状态失败, SessionID: %s, Error: %v", sessionID, err)
		}
	}
	log.Infof("[SessionService] 会话已清除, SessionID: %s", sessionID)
}
