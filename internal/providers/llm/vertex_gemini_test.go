package llm

import (
	"testing"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToVertexSchema(t *testing.T) {
	s := toVertexSchema(&Schema{
		Type:     TypeObject,
		Required: []string{"pace"},
		Properties: map[string]*Schema{
			"pace":   {Type: TypeString, Enum: []string{"Slow", "Fast"}},
			"skills": {Type: TypeArray, Items: &Schema{Type: TypeString}},
			"score":  {Type: TypeInteger},
		},
	})
	require.NotNil(t, s)
	assert.Equal(t, vertexgenai.TypeObject, s.Type)
	assert.Equal(t, []string{"Slow", "Fast"}, s.Properties["pace"].Enum)
	assert.Equal(t, vertexgenai.TypeString, s.Properties["skills"].Items.Type)
	assert.Equal(t, vertexgenai.TypeInteger, s.Properties["score"].Type)
	assert.Nil(t, toVertexSchema(nil))
}

func TestToVertexPartsKeepsOrder(t *testing.T) {
	parts := toVertexParts([]Part{Text("q"), Blob("image/jpeg", []byte{9}), Text("")})
	require.Len(t, parts, 2)
	assert.Equal(t, vertexgenai.Text("q"), parts[0])
	assert.Equal(t, vertexgenai.Blob{MIMEType: "image/jpeg", Data: []byte{9}}, parts[1])
}
