package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

type GeminiConfig struct {
	APIKey string
	Model  string

	// BaseURL and HTTPClient override the public endpoint (tests, proxies).
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiAPI talks to the Gemini Developer API with an API key.
type GeminiAPI struct {
	client *genai.Client
	model  string
}

func NewGeminiAPI(ctx context.Context, cfg GeminiConfig) (*GeminiAPI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ProviderError{Provider: "gemini", Code: ErrCodeAPIKey, Message: "GEMINI_API_KEY is not set"}
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.HTTPClient != nil {
		cc.HTTPClient = cfg.HTTPClient
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL, APIVersion: "v1beta"}
	}

	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Code: ErrCodeAPIKey, Message: "failed to create Gemini client", Err: err}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &GeminiAPI{client: c, model: model}, nil
}

func (g *GeminiAPI) Name() string { return "gemini:" + g.model }

func (g *GeminiAPI) Close() error { return nil }

func (g *GeminiAPI) GenerateJSON(ctx context.Context, req Request) (json.RawMessage, error) {
	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.IsBlob() {
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: p.MIMEType, Data: p.Data}})
			continue
		}
		if p.Text != "" {
			parts = append(parts, &genai.Part{Text: p.Text})
		}
	}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenaiSchema(req.Schema),
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: parts}}, cfg)
	if err != nil {
		return nil, classify("gemini", "failed to generate "+opName(req), err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, invalidResponse("gemini", "no candidates returned for "+opName(req), nil)
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return decodeJSONText("gemini", req, sb.String())
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genaiType(s.Type),
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toGenaiSchema(v)
		}
	}
	return out
}

func genaiType(t SchemaType) genai.Type {
	switch t {
	case TypeObject:
		return genai.TypeObject
	case TypeArray:
		return genai.TypeArray
	case TypeInteger:
		return genai.TypeInteger
	case TypeNumber:
		return genai.TypeNumber
	case TypeBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}
