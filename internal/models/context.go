package models

import "strings"

// Document is an ingested reference file. Exactly one of Data or Text is set.
type Document struct {
	Name     string `json:"name" bson:"name"`
	MIMEType string `json:"mime_type" bson:"mime_type"`
	Data     []byte `json:"-" bson:"-"`
	Text     string `json:"text,omitempty" bson:"text,omitempty"`
}

func (d Document) IsBinary() bool { return len(d.Data) > 0 }

func (d Document) IsEmpty() bool {
	return len(d.Data) == 0 && strings.TrimSpace(d.Text) == ""
}

// InterviewContext is fixed at session setup and read-only afterwards.
type InterviewContext struct {
	CandidateName  string     `json:"candidate_name" bson:"candidate_name"`
	JobDescription Document   `json:"job_description" bson:"job_description"`
	Resume         Document   `json:"resume" bson:"resume"`
	KnowledgeBase  []Document `json:"knowledge_base,omitempty" bson:"knowledge_base,omitempty"`
}
