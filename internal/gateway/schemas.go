package gateway

import (
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/providers/llm"
)

var complexities = []string{
	string(models.ComplexityBasic), string(models.ComplexityIntermediate), string(models.ComplexityExpert),
}

func str(desc string) *llm.Schema { return &llm.Schema{Type: llm.TypeString, Description: desc} }

func enum(desc string, values []string) *llm.Schema {
	return &llm.Schema{Type: llm.TypeString, Description: desc, Enum: values}
}

func score(desc string) *llm.Schema { return &llm.Schema{Type: llm.TypeInteger, Description: desc} }

func strList(desc string) *llm.Schema {
	return &llm.Schema{Type: llm.TypeArray, Description: desc, Items: &llm.Schema{Type: llm.TypeString}}
}

var openingSchema = &llm.Schema{
	Type: llm.TypeObject,
	Properties: map[string]*llm.Schema{
		"question":   str("the opening interview question"),
		"complexity": enum("complexity of the question", complexities),
	},
	Required: []string{"question", "complexity"},
}

var nextTurnSchema = &llm.Schema{
	Type: llm.TypeObject,
	Properties: map[string]*llm.Schema{
		"transcript":     str("literal transcript of the recorded answer"),
		"answerQuality":  enum("quality of the answer", complexities),
		"nextQuestion":   str("the next question to ask"),
		"nextComplexity": enum("complexity of the next question", complexities),
	},
	Required: []string{"transcript", "answerQuality", "nextQuestion", "nextComplexity"},
}

var deepAnalysisSchema = &llm.Schema{
	Type: llm.TypeObject,
	Properties: map[string]*llm.Schema{
		"technicalAccuracy":    score("0-100"),
		"communicationClarity": score("0-100"),
		"relevance":            score("0-100"),
		"sentiment":            enum("dominant sentiment", models.Sentiments),
		"deceptionProbability": score("0-100"),
		"speechPace":           enum("speech pace", models.Paces),
		"starMethod":           {Type: llm.TypeBoolean, Description: "answer follows the STAR structure"},
		"demonstratedSkills":   strList("skills shown in the answer"),
		"improvementAreas":     strList("areas to improve"),
		"answerQuality":        enum("quality of the answer", complexities),
		"integrity": {
			Type: llm.TypeObject,
			Properties: map[string]*llm.Schema{
				"status": enum("integrity verdict", []string{string(models.IntegrityClean), string(models.IntegritySuspicious)}),
				"reason": str("why the answer is suspicious, when it is"),
			},
			Required: []string{"status"},
		},
	},
	Required: []string{
		"technicalAccuracy", "communicationClarity", "relevance", "sentiment",
		"deceptionProbability", "speechPace", "starMethod", "integrity", "answerQuality",
	},
}

var codeAnalysisSchema = &llm.Schema{
	Type: llm.TypeObject,
	Properties: map[string]*llm.Schema{
		"language":        str("programming language"),
		"timeComplexity":  str("big-O time complexity"),
		"spaceComplexity": str("big-O space complexity"),
		"bugs":            strList("defects found"),
		"suggestions":     strList("improvements"),
		"score":           score("0-100"),
	},
	Required: []string{"language", "timeComplexity", "spaceComplexity", "bugs", "suggestions", "score"},
}

func reportSchema(withCode bool) *llm.Schema {
	categories := map[string]*llm.Schema{
		"technicalKnowledge": score("0-100"),
		"problemSolving":     score("0-100"),
		"communication":      score("0-100"),
		"confidence":         score("0-100"),
		"cultureFit":         score("0-100"),
		"adaptability":       score("0-100"),
	}
	required := []string{"technicalKnowledge", "problemSolving", "communication", "confidence", "cultureFit", "adaptability"}
	if withCode {
		categories["codeQuality"] = score("0-100")
		required = append(required, "codeQuality")
	}
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"overallScore":         score("0-100"),
			"categories":           {Type: llm.TypeObject, Properties: categories, Required: required},
			"summary":              str("narrative assessment"),
			"psychologicalProfile": str("composure and behaviour under pressure"),
			"recommendation":       enum("hiring recommendation", models.Recommendations),
		},
		Required: []string{"overallScore", "categories", "summary", "psychologicalProfile", "recommendation"},
	}
}
