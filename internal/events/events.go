package events

import (
	"context"
	"time"

	"github.com/yoockh/yoointerview/internal/models"
)

type Type string

const (
	TypeQuestion      Type = "question"
	TypePhase         Type = "phase"
	TypeTurnCommitted Type = "turn_committed"
	TypeTurnAnalyzed  Type = "turn_analyzed"
	TypeNoAnswer      Type = "no_answer"
	TypeError         Type = "error"
	TypeReport        Type = "report"
	TypeCaptureState  Type = "capture_state"
)

// Event is one update pushed to the candidate's browser.
type Event struct {
	Type       Type              `json:"type"`
	SessionID  string            `json:"session_id"`
	TurnID     int64             `json:"turn_id,omitempty"`
	Question   string            `json:"question,omitempty"`
	Complexity models.Complexity `json:"complexity,omitempty"`
	Phase      string            `json:"phase,omitempty"`
	State      string            `json:"state,omitempty"`  // capture state
	Source     string            `json:"source,omitempty"` // capture source kind
	Code       string            `json:"code,omitempty"`
	Message    string            `json:"message,omitempty"`
	Turn       *models.Turn      `json:"turn,omitempty"`
	Report     *models.Report    `json:"report,omitempty"`
	At         time.Time         `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Bus interface {
	Publisher
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
	Close() error
}

// Channel is the pub/sub channel carrying events of a session.
func Channel(sessionID string) string { return "session:" + sessionID + ":events" }

func stamp(e Event) Event {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return e
}
