package service

import (
	"context"

	"insight-qa-go/internal/model"
	"insight-qa-go/internal/repository"
	"insight-qa-go/pkg/tasks"
)

// AuditService 把导入事件持久化为审计记录，作为 Kafka 消费者的处理器。
type AuditService interface {
	Process(ctx context.Context, event tasks.IngestionEvent) error
	ListIngestions(sessionID string) ([]model.IngestionRecord, error)
}

type auditService struct {
	repo repository.IngestionRepository
}

// NewAuditService 创建一个新的 AuditService 实例。
func NewAuditService(repo repository.IngestionRepository) AuditService {
	return &auditService{repo: repo}
}

func (s *auditService) Process(_ context.Context, event tasks.IngestionEvent) error {
	return s.repo.Create(event.Record())
}

func (s *auditService) ListIngestions(sessionID string) ([]model.IngestionRecord, error) {
	return s.repo.FindBySession(sessionID)
}
