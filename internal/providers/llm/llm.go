package llm

import (
	"context"
	"encoding/json"
)

// Part is one ordered element of a request: text, or inline media.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

func Text(s string) Part { return Part{Text: s} }

func Blob(mimeType string, data []byte) Part { return Part{MIMEType: mimeType, Data: data} }

func (p Part) IsBlob() bool { return len(p.Data) > 0 }

type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
)

// Schema is the declared JSON output shape, converted per backend.
type Schema struct {
	Type        SchemaType
	Description string
	Enum        []string
	Properties  map[string]*Schema
	Required    []string
	Items       *Schema
}

// Request is one structured-output call.
type Request struct {
	Op     string // e.g. "next_turn", for logs and error codes
	System string
	Parts  []Part
	Schema *Schema
}

type Provider interface {
	// GenerateJSON returns the model's JSON document for req.
	GenerateJSON(ctx context.Context, req Request) (json.RawMessage, error)
	Name() string
	Close() error
}
