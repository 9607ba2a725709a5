package services

import (
	"context"
	"errors"

	"github.com/yoockh/yoointerview/internal/models"
	mongorepo "github.com/yoockh/yoointerview/internal/repositories/mongo"
	pgrepo "github.com/yoockh/yoointerview/internal/repositories/postgres"
	"github.com/yoockh/yoointerview/internal/utils"
)

// HistoryService reads finished interviews back from the export sinks.
type HistoryService interface {
	ListReports(ctx context.Context, ownerID string, limit int) ([]models.ReportRecord, error)
	GetSession(ctx context.Context, ownerID, sessionID string) (*models.SessionDump, error)
}

type historyService struct {
	reports pgrepo.ReportRepository
	dumps   mongorepo.SessionDumpRepository
}

func NewHistoryService(reports pgrepo.ReportRepository, dumps mongorepo.SessionDumpRepository) HistoryService {
	return &historyService{reports: reports, dumps: dumps}
}

func (s *historyService) ListReports(ctx context.Context, ownerID string, limit int) ([]models.ReportRecord, error) {
	const op = "HistoryService.ListReports"

	if s.reports == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "report history is not configured", nil)
	}
	rows, err := s.reports.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to list reports", err)
	}
	if rows == nil {
		rows = []models.ReportRecord{}
	}
	return rows, nil
}

func (s *historyService) GetSession(ctx context.Context, ownerID, sessionID string) (*models.SessionDump, error) {
	const op = "HistoryService.GetSession"

	if s.dumps == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "session history is not configured", nil)
	}
	d, err := s.dumps.GetBySessionID(ctx, sessionID)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
	}
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to load session", err)
	}
	if d.OwnerID != ownerID {
		return nil, utils.E(utils.CodeForbidden, op, "forbidden", nil)
	}
	return d, nil
}
