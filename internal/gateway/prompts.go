package gateway

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.yaml
var promptFS embed.FS

const (
	promptOpening  = "opening_question"
	promptNextTurn = "next_turn"
	promptDeep     = "deep_analysis"
	promptCode     = "code_analysis"
	promptReport   = "report"
)

type promptFile struct {
	System      string `yaml:"system"`
	Instruction string `yaml:"instruction"`
}

type prompt struct {
	system      string
	instruction *template.Template
}

type promptSet map[string]prompt

func loadPrompts() (promptSet, error) {
	entries, err := promptFS.ReadDir("prompts")
	if err != nil {
		return nil, fmt.Errorf("read prompts directory: %w", err)
	}

	set := make(promptSet, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := promptFS.ReadFile("prompts/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", entry.Name(), err)
		}
		var pf promptFile
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		tmpl, err := template.New(name).Option("missingkey=error").Parse(pf.Instruction)
		if err != nil {
			return nil, fmt.Errorf("compile prompt %s: %w", entry.Name(), err)
		}
		set[name] = prompt{system: strings.TrimSpace(pf.System), instruction: tmpl}
	}

	for _, name := range []string{promptOpening, promptNextTurn, promptDeep, promptCode, promptReport} {
		if _, ok := set[name]; !ok {
			return nil, fmt.Errorf("prompt %s is missing", name)
		}
	}
	return set, nil
}

// render returns the system instruction and the rendered user instruction.
func (s promptSet) render(name string, data any) (string, string, error) {
	p, ok := s[name]
	if !ok {
		return "", "", fmt.Errorf("prompt %s not found", name)
	}
	var buf bytes.Buffer
	if err := p.instruction.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return p.system, strings.TrimSpace(buf.String()), nil
}
