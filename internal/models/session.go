package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SessionPhase string

const (
	PhaseIdle           SessionPhase = "idle"
	PhaseAwaitingAnswer SessionPhase = "awaiting_answer"
	PhasePhase1Pending  SessionPhase = "phase1_pending"
	PhaseFinishing      SessionPhase = "finishing"
	PhaseReportFailed   SessionPhase = "report_failed" // history sealed, synthesis may be retried
	PhaseFinished       SessionPhase = "finished"
	PhaseClosed         SessionPhase = "closed" // fatal error, no further turns
)

// SessionDump is the machine-readable export of a finished interview.
type SessionDump struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID string             `bson:"session_id" json:"session_id"`
	OwnerID   string             `bson:"owner_id" json:"owner_id"`

	CandidateName string   `bson:"candidate_name" json:"candidate_name"`
	JobDocument   string   `bson:"job_document" json:"job_document"`
	ResumeName    string   `bson:"resume_document" json:"resume_document"`
	Knowledge     []string `bson:"knowledge_documents,omitempty" json:"knowledge_documents,omitempty"`

	Report Report `bson:"report" json:"report"`
	Turns  []Turn `bson:"turns" json:"turns"`

	StartedAt  time.Time `bson:"started_at" json:"started_at"`
	FinishedAt time.Time `bson:"finished_at" json:"finished_at"`

	DurationSeconds int64 `bson:"duration_seconds" json:"duration_seconds"`
}
