package llm

import (
	"context"
	"encoding/json"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

// VertexGemini serves the same contract through Vertex AI project credentials.
type VertexGemini struct {
	client *vertexgenai.Client
	model  string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string, opts ...option.ClientOption) (*VertexGemini, error) {
	if location == "" {
		location = "us-central1"
	}
	c, err := vertexgenai.NewClient(ctx, projectID, location, opts...)
	if err != nil {
		return nil, classify("vertex", "failed to create Vertex AI client", err)
	}

	if modelName == "" {
		modelName = DefaultModel
	}
	return &VertexGemini{client: c, model: modelName}, nil
}

func (v *VertexGemini) Name() string { return "vertex:" + v.model }

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) GenerateJSON(ctx context.Context, req Request) (json.RawMessage, error) {
	// GenerativeModel carries schema state, so each call gets its own.
	m := v.client.GenerativeModel(v.model)
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = toVertexSchema(req.Schema)
	if req.System != "" {
		m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(req.System)}}
	}

	resp, err := m.GenerateContent(ctx, toVertexParts(req.Parts)...)
	if err != nil {
		return nil, classify("vertex", "failed to generate "+opName(req), err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	return decodeJSONText("vertex", req, sb.String())
}

func toVertexParts(in []Part) []vertexgenai.Part {
	out := make([]vertexgenai.Part, 0, len(in))
	for _, p := range in {
		if p.IsBlob() {
			out = append(out, vertexgenai.Blob{MIMEType: p.MIMEType, Data: p.Data})
			continue
		}
		if p.Text != "" {
			out = append(out, vertexgenai.Text(p.Text))
		}
	}
	return out
}

func toVertexSchema(s *Schema) *vertexgenai.Schema {
	if s == nil {
		return nil
	}
	out := &vertexgenai.Schema{
		Type:        vertexType(s.Type),
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toVertexSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*vertexgenai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toVertexSchema(v)
		}
	}
	return out
}

func vertexType(t SchemaType) vertexgenai.Type {
	switch t {
	case TypeObject:
		return vertexgenai.TypeObject
	case TypeArray:
		return vertexgenai.TypeArray
	case TypeInteger:
		return vertexgenai.TypeInteger
	case TypeNumber:
		return vertexgenai.TypeNumber
	case TypeBoolean:
		return vertexgenai.TypeBoolean
	default:
		return vertexgenai.TypeString
	}
}
