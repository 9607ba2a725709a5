package postgres

import (
	"context"
	"errors"

	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReportRepository interface {
	Upsert(ctx context.Context, r *models.ReportRecord) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.ReportRecord, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.ReportRecord, error)
	SetArchiveURL(ctx context.Context, sessionID, url string) error
}

type reportRepo struct {
	db *gorm.DB
}

func NewReportRepo(db *gorm.DB) ReportRepository {
	return &reportRepo{db: db}
}

// Migrate creates the reports table and its indexes.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.ReportRecord{})
}

func (r *reportRepo) Upsert(ctx context.Context, rec *models.ReportRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"candidate_name", "overall_score", "recommendation", "integrity_score", "valid_turns", "no_data", "approximate", "skills", "categories", "breakdown"}),
		}).
		Create(rec).Error
}

func (r *reportRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.ReportRecord, error) {
	var rec models.ReportRecord
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &rec, err
}

func (r *reportRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.ReportRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []models.ReportRecord
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *reportRepo) SetArchiveURL(ctx context.Context, sessionID, url string) error {
	res := r.db.WithContext(ctx).
		Model(&models.ReportRecord{}).
		Where("session_id = ?", sessionID).
		Update("archive_url", url)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}
