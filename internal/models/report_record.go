package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// ReportRecord is the searchable summary row of a finished interview.
type ReportRecord struct {
	SessionID      string `gorm:"column:session_id;type:text;primaryKey" json:"session_id"`
	OwnerID        string `gorm:"column:owner_id;type:text;index:idx_reports_owner_created,priority:1" json:"owner_id"`
	CandidateName  string `gorm:"column:candidate_name;type:text" json:"candidate_name"`
	OverallScore   int    `gorm:"column:overall_score" json:"overall_score"`
	Recommendation string `gorm:"column:recommendation;type:text" json:"recommendation"`
	IntegrityScore int    `gorm:"column:integrity_score" json:"integrity_score"`
	ValidTurns     int    `gorm:"column:valid_turns" json:"valid_turns"`
	NoData         bool   `gorm:"column:no_data" json:"no_data"`
	Approximate    bool   `gorm:"column:approximate" json:"approximate"`

	Skills pq.StringArray `gorm:"column:skills;type:text[]" json:"skills"`

	Categories datatypes.JSON `gorm:"column:categories;type:jsonb" json:"categories"`
	Breakdown  datatypes.JSON `gorm:"column:breakdown;type:jsonb" json:"breakdown"`

	ArchiveURL string    `gorm:"column:archive_url;type:text" json:"archive_url,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;index:idx_reports_owner_created,priority:2,sort:desc" json:"created_at"`
}

func (ReportRecord) TableName() string { return "interview_reports" }
