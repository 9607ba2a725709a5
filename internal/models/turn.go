package models

import "time"

type Complexity string

const (
	ComplexityBasic        Complexity = "Basic"
	ComplexityIntermediate Complexity = "Intermediate"
	ComplexityExpert       Complexity = "Expert"
)

var complexityRank = map[Complexity]int{
	ComplexityBasic:        0,
	ComplexityIntermediate: 1,
	ComplexityExpert:       2,
}

var complexityByRank = []Complexity{ComplexityBasic, ComplexityIntermediate, ComplexityExpert}

func (c Complexity) Valid() bool {
	_, ok := complexityRank[c]
	return ok
}

// Rank orders complexities Basic < Intermediate < Expert. Unknown values rank as Basic.
func (c Complexity) Rank() int { return complexityRank[c] }

// Step moves n levels up (n > 0) or down (n < 0), clamped to the valid range.
func (c Complexity) Step(n int) Complexity {
	r := c.Rank() + n
	if r < 0 {
		r = 0
	}
	if r >= len(complexityByRank) {
		r = len(complexityByRank) - 1
	}
	return complexityByRank[r]
}

// Turn is one question/answer exchange.
type Turn struct {
	ID            int64           `json:"id" bson:"id"`
	Question      string          `json:"question" bson:"question"`
	Complexity    Complexity      `json:"complexity" bson:"complexity"`
	AnswerMedia   string          `json:"-" bson:"-"` // base64 transport text
	AnswerMIME    string          `json:"answer_mime,omitempty" bson:"answer_mime,omitempty"`
	Transcript    string          `json:"transcript" bson:"transcript"`
	AnswerQuality Complexity      `json:"answer_quality" bson:"answer_quality"`
	Code          string          `json:"code,omitempty" bson:"code,omitempty"`
	Metrics       AnalysisMetrics `json:"metrics" bson:"metrics"`
	Notes         string          `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at" bson:"created_at"`
}
