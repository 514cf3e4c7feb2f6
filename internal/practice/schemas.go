package practice

import (
	"encoding/json"
	"fmt"

	"github.com/prepcoach/backend/internal/llm"
	"github.com/prepcoach/backend/internal/types"
)

// generated* mirror the JSON shapes the model is asked to produce, one
// per practice type. decodeItem converts them into PracticeItems with
// typed content payloads.

type generatedMCQ struct {
	Title        string   `json:"title"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

type generatedShort struct {
	Title     string   `json:"title"`
	Question  string   `json:"question"`
	KeyPoints []string `json:"key_points"`
}

type generatedFlashcard struct {
	Title string `json:"title"`
	Front string `json:"front"`
	Back  string `json:"back"`
}

type generatedBehavioral struct {
	Title              string             `json:"title"`
	Question           string             `json:"question"`
	Competency         string             `json:"competency"`
	STAR               types.STARGuidance `json:"star_guidance"`
	EvaluationCriteria []string           `json:"evaluation_criteria"`
}

type generatedSystemDesign struct {
	Title        string                `json:"title"`
	Question     string                `json:"question"`
	Requirements []string              `json:"requirements"`
	Constraints  []string              `json:"constraints"`
	Framework    types.DesignFramework `json:"evaluation_framework"`
}

func stringArray() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

func itemSchema(t types.PracticeType) *llm.Schema {
	switch t {
	case types.PracticeQuizMCQ:
		return &llm.Schema{
			Name: "practice-quiz-mcq",
			Definition: map[string]any{
				"type":     "object",
				"required": []any{"title", "question", "options", "correct_index", "explanation"},
				"properties": map[string]any{
					"title":         map[string]any{"type": "string"},
					"question":      map[string]any{"type": "string"},
					"options":       stringArray(),
					"correct_index": map[string]any{"type": "integer"},
					"explanation":   map[string]any{"type": "string"},
				},
			},
		}
	case types.PracticeQuizShort:
		return &llm.Schema{
			Name: "practice-quiz-short",
			Definition: map[string]any{
				"type":     "object",
				"required": []any{"title", "question", "key_points"},
				"properties": map[string]any{
					"title":      map[string]any{"type": "string"},
					"question":   map[string]any{"type": "string"},
					"key_points": stringArray(),
				},
			},
		}
	case types.PracticeFlashcard:
		return &llm.Schema{
			Name: "practice-flashcard",
			Definition: map[string]any{
				"type":     "object",
				"required": []any{"title", "front", "back"},
				"properties": map[string]any{
					"title": map[string]any{"type": "string"},
					"front": map[string]any{"type": "string"},
					"back":  map[string]any{"type": "string"},
				},
			},
		}
	case types.PracticeBehavioral:
		return &llm.Schema{
			Name: "practice-behavioral",
			Definition: map[string]any{
				"type":     "object",
				"required": []any{"title", "question", "star_guidance"},
				"properties": map[string]any{
					"title":      map[string]any{"type": "string"},
					"question":   map[string]any{"type": "string"},
					"competency": map[string]any{"type": "string"},
					"star_guidance": map[string]any{
						"type":     "object",
						"required": []any{"situation", "task", "action", "result"},
						"properties": map[string]any{
							"situation": map[string]any{"type": "string"},
							"task":      map[string]any{"type": "string"},
							"action":    map[string]any{"type": "string"},
							"result":    map[string]any{"type": "string"},
						},
					},
					"evaluation_criteria": stringArray(),
				},
			},
		}
	default:
		return &llm.Schema{
			Name: "practice-system-design",
			Definition: map[string]any{
				"type":     "object",
				"required": []any{"title", "question", "requirements", "evaluation_framework"},
				"properties": map[string]any{
					"title":        map[string]any{"type": "string"},
					"question":     map[string]any{"type": "string"},
					"requirements": stringArray(),
					"constraints":  stringArray(),
					"evaluation_framework": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"functional":     stringArray(),
							"non_functional": stringArray(),
							"architecture":   stringArray(),
							"trade_offs":     stringArray(),
							"completeness":   stringArray(),
						},
					},
				},
			},
		}
	}
}

// decodeItem parses model output into a PracticeItem, enforcing
// per-type shape rules.
func decodeItem(raw json.RawMessage, t types.PracticeType) (*types.PracticeItem, error) {
	switch t {
	case types.PracticeQuizMCQ:
		var g generatedMCQ
		if err := llm.DecodeInto(raw, &g); err != nil {
			return nil, err
		}
		if len(g.Options) != 4 {
			return nil, fmt.Errorf("mcq needs exactly 4 options, got %d", len(g.Options))
		}
		if g.CorrectIndex < 0 || g.CorrectIndex > 3 {
			return nil, fmt.Errorf("mcq correct_index out of range: %d", g.CorrectIndex)
		}
		content, err := json.Marshal(types.MCQContent{
			Options:      g.Options,
			CorrectIndex: g.CorrectIndex,
			Explanation:  g.Explanation,
		})
		if err != nil {
			return nil, err
		}
		return &types.PracticeItem{
			Type:           t,
			Title:          g.Title,
			Question:       g.Question,
			ExpectedAnswer: g.Options[g.CorrectIndex],
			Content:        content,
		}, nil

	case types.PracticeQuizShort:
		var g generatedShort
		if err := llm.DecodeInto(raw, &g); err != nil {
			return nil, err
		}
		if len(g.KeyPoints) < 3 || len(g.KeyPoints) > 6 {
			return nil, fmt.Errorf("short answer needs 3-6 key points, got %d", len(g.KeyPoints))
		}
		content, err := json.Marshal(types.ShortContent{KeyPoints: g.KeyPoints})
		if err != nil {
			return nil, err
		}
		return &types.PracticeItem{
			Type:     t,
			Title:    g.Title,
			Question: g.Question,
			Content:  content,
		}, nil

	case types.PracticeFlashcard:
		var g generatedFlashcard
		if err := llm.DecodeInto(raw, &g); err != nil {
			return nil, err
		}
		content, err := json.Marshal(types.FlashcardContent{Back: g.Back})
		if err != nil {
			return nil, err
		}
		return &types.PracticeItem{
			Type:           t,
			Title:          g.Title,
			Question:       g.Front,
			ExpectedAnswer: g.Back,
			Content:        content,
		}, nil

	case types.PracticeBehavioral:
		var g generatedBehavioral
		if err := llm.DecodeInto(raw, &g); err != nil {
			return nil, err
		}
		content, err := json.Marshal(types.BehavioralContent{
			Competency:         g.Competency,
			STAR:               g.STAR,
			EvaluationCriteria: g.EvaluationCriteria,
		})
		if err != nil {
			return nil, err
		}
		return &types.PracticeItem{
			Type:     t,
			Title:    g.Title,
			Question: g.Question,
			Content:  content,
		}, nil

	default:
		var g generatedSystemDesign
		if err := llm.DecodeInto(raw, &g); err != nil {
			return nil, err
		}
		content, err := json.Marshal(types.SystemDesignContent{
			Requirements: g.Requirements,
			Constraints:  g.Constraints,
			Framework:    g.Framework,
		})
		if err != nil {
			return nil, err
		}
		return &types.PracticeItem{
			Type:     t,
			Title:    g.Title,
			Question: g.Question,
			Content:  content,
		}, nil
	}
}
