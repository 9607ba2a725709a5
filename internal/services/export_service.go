package services

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/export"
	"github.com/yoockh/yoointerview/internal/models"
	mongorepo "github.com/yoockh/yoointerview/internal/repositories/mongo"
	pgrepo "github.com/yoockh/yoointerview/internal/repositories/postgres"
	"github.com/yoockh/yoointerview/internal/storage"
	"github.com/yoockh/yoointerview/internal/utils"
)

const persistTimeout = 60 * time.Second

// ExportService copies finished interviews to the optional sinks.
type ExportService interface {
	Persist(ctx context.Context, b export.Bundle) error
}

type exportService struct {
	dumps    mongorepo.SessionDumpRepository // optional
	reports  pgrepo.ReportRepository         // optional
	uploader storage.Uploader                // optional
	log      *logrus.Logger
}

// NewExportService returns nil when no sink is configured.
func NewExportService(dumps mongorepo.SessionDumpRepository, reports pgrepo.ReportRepository, uploader storage.Uploader, log *logrus.Logger) ExportService {
	if dumps == nil && reports == nil && uploader == nil {
		return nil
	}
	if log == nil {
		log = logrus.New()
	}
	return &exportService{dumps: dumps, reports: reports, uploader: uploader, log: log}
}

// Persist writes the report row, the session dump and the archive. Every sink is
// attempted; the first error is returned.
func (s *exportService) Persist(ctx context.Context, b export.Bundle) error {
	const op = "ExportService.Persist"

	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	log := s.log.WithField("session_id", b.SessionID)

	var first error
	keep := func(msg string, err error) {
		if err == nil {
			return
		}
		log.WithError(err).Warn(msg)
		if first == nil {
			first = utils.E(utils.CodeUnavailable, op, msg, err)
		}
	}

	if s.reports != nil {
		rec, err := ReportRecord(b)
		if err == nil {
			err = s.reports.Upsert(ctx, rec)
		}
		keep("failed to store report row", err)
	}

	if s.dumps != nil {
		dump := export.SessionDump(b)
		keep("failed to store session dump", s.dumps.Save(ctx, &dump))
	}

	if s.uploader != nil {
		archive, err := export.Archive(b)
		if err != nil {
			keep("failed to build archive", err)
		} else {
			url, err := s.uploader.Upload(ctx, storage.ArchiveObjectName(b.SessionID), "application/zip", bytes.NewReader(archive))
			keep("failed to upload archive", err)
			if err == nil {
				log.WithField("archive", url).Info("archive uploaded")
				if s.reports != nil {
					keep("failed to record archive url", s.reports.SetArchiveURL(ctx, b.SessionID, url))
				}
			}
		}
	}
	return first
}

// ReportRecord flattens a finished interview into its summary row.
func ReportRecord(b export.Bundle) (*models.ReportRecord, error) {
	r := b.Report
	categories, err := json.Marshal(r.Categories)
	if err != nil {
		return nil, err
	}
	breakdown, err := json.Marshal(r.SkillBreakdown)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	skills := []string{}
	for _, t := range r.Turns {
		for _, sk := range t.Metrics.DemonstratedSkills {
			if !seen[sk] {
				seen[sk] = true
				skills = append(skills, sk)
			}
		}
	}

	created := b.FinishedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return &models.ReportRecord{
		SessionID:      b.SessionID,
		OwnerID:        b.OwnerID,
		CandidateName:  r.CandidateName,
		OverallScore:   r.OverallScore,
		Recommendation: string(r.Recommendation),
		IntegrityScore: r.IntegrityScore,
		ValidTurns:     len(r.Turns),
		NoData:         r.NoData,
		Approximate:    r.Approximate,
		Skills:         skills,
		Categories:     categories,
		Breakdown:      breakdown,
		CreatedAt:      created,
	}, nil
}
