// Package evaluator scores attempts against weighted rubrics. The
// model scores each criterion; the overall score is always recomputed
// here from the weights, never taken from the model.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/apperr"
	"github.com/prepcoach/backend/internal/db"
	"github.com/prepcoach/backend/internal/llm"
	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/repos"
	"github.com/prepcoach/backend/internal/types"
)

const evalMaxTokens = 2048

// fallbackScore is persisted when the model cannot evaluate an attempt.
const fallbackScore = 0.5

const fallbackFeedback = "evaluation unavailable"

type Service interface {
	// Evaluate scores the attempt and persists the evaluation,
	// replacing any previous one and mirroring score and feedback onto
	// the attempt, all in one transaction. Model failures produce a
	// default evaluation instead of an error.
	Evaluate(ctx context.Context, attemptID uuid.UUID) (*types.Evaluation, error)
}

type service struct {
	db       *gorm.DB
	attempts repos.AttemptRepo
	practice repos.PracticeRepo
	evals    repos.EvaluationRepo
	provider llm.Provider
	evalTemp float64
	log      *logger.Logger
}

func New(
	db *gorm.DB,
	attemptRepo repos.AttemptRepo,
	practiceRepo repos.PracticeRepo,
	evalRepo repos.EvaluationRepo,
	provider llm.Provider,
	evalTemp float64,
	baseLog *logger.Logger,
) Service {
	return &service{
		db:       db,
		attempts: attemptRepo,
		practice: practiceRepo,
		evals:    evalRepo,
		provider: provider,
		evalTemp: evalTemp,
		log:      baseLog.With("service", "Evaluator"),
	}
}

// modelEvaluation is the shape the model returns. Its overall score,
// if any, is discarded.
type modelEvaluation struct {
	CriterionScores map[string]float64 `json:"criterion_scores"`
	Strengths       []string           `json:"strengths"`
	Weaknesses      []string           `json:"weaknesses"`
	Feedback        string             `json:"feedback"`
}

var evaluationSchema = &llm.Schema{
	Name:        "attempt-evaluation",
	Description: "Per-criterion scores and feedback for a practice attempt.",
	Definition: map[string]any{
		"type":     "object",
		"required": []any{"criterion_scores", "feedback"},
		"properties": map[string]any{
			"criterion_scores": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "number"},
			},
			"strengths":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"weaknesses": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"feedback":   map[string]any{"type": "string"},
		},
	},
}

func (s *service) Evaluate(ctx context.Context, attemptID uuid.UUID) (*types.Evaluation, error) {
	attempt, err := s.attempts.GetByID(ctx, nil, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, apperr.NotFound("attempt %s not found", attemptID)
	}
	if attempt.PracticeItem == nil {
		return nil, apperr.NotFound("practice item for attempt %s not found", attemptID)
	}
	item := attempt.PracticeItem

	rubric, err := s.practice.GetOrCreateRubric(ctx, nil, item.Type, types.DefaultRubricCriteria(item.Type))
	if err != nil {
		return nil, err
	}
	var criteria []types.RubricCriterion
	if err := json.Unmarshal(rubric.Criteria, &criteria); err != nil {
		return nil, fmt.Errorf("decode rubric criteria: %w", err)
	}

	eval := s.scoreWithModel(ctx, attempt, item, rubric.ID, criteria)

	err = db.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.evals.ReplaceForAttempt(ctx, tx, eval); err != nil {
			return err
		}
		return s.attempts.SetScore(ctx, tx, attempt.ID, eval.OverallScore, eval.Feedback)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Attempt evaluated",
		"attempt_id", attemptID, "score", eval.OverallScore)
	return eval, nil
}

// scoreWithModel produces the evaluation row. Any model or parse
// failure degrades to the default evaluation rather than an error.
func (s *service) scoreWithModel(
	ctx context.Context,
	attempt *types.Attempt,
	item *types.PracticeItem,
	rubricID uuid.UUID,
	criteria []types.RubricCriterion,
) *types.Evaluation {
	ctx = llm.WithPurpose(ctx, "evaluation")

	resp, err := s.provider.Generate(ctx, llm.Request{
		System: "You are a strict but fair interview coach. Score the answer against each rubric " +
			"criterion on a 0 to 1 scale and give concrete feedback.",
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildEvalPrompt(attempt, item, criteria)}},
		Schema:      evaluationSchema,
		MaxTokens:   evalMaxTokens,
		Temperature: s.evalTemp,
	})
	if err != nil {
		s.log.Warn("Evaluation model call failed, using default", "attempt_id", attempt.ID, "error", err)
		return defaultEvaluation(attempt.ID, rubricID, criteria)
	}

	var parsed modelEvaluation
	if err := llm.DecodeInto(resp.Content, &parsed); err != nil {
		s.log.Warn("Evaluation output unparseable, using default", "attempt_id", attempt.ID, "error", err)
		return defaultEvaluation(attempt.ID, rubricID, criteria)
	}

	return buildEvaluation(attempt.ID, rubricID, criteria, parsed)
}

// buildEvaluation clamps the model's per-criterion scores and
// recomputes the weighted overall.
func buildEvaluation(attemptID, rubricID uuid.UUID, criteria []types.RubricCriterion, parsed modelEvaluation) *types.Evaluation {
	scores := make(map[string]float64, len(criteria))
	overall := 0.0
	for _, c := range criteria {
		score := clamp01(parsed.CriterionScores[c.Name])
		scores[c.Name] = score
		overall += score * c.Weight
	}
	overall = clamp01(overall)

	scoresJSON, _ := json.Marshal(scores)
	strengths, _ := json.Marshal(parsed.Strengths)
	weaknesses, _ := json.Marshal(parsed.Weaknesses)

	return &types.Evaluation{
		AttemptID:       attemptID,
		RubricID:        rubricID,
		OverallScore:    overall,
		CriterionScores: scoresJSON,
		Strengths:       strengths,
		Weaknesses:      weaknesses,
		Feedback:        parsed.Feedback,
		CreatedAt:       time.Now().UTC(),
	}
}

func defaultEvaluation(attemptID, rubricID uuid.UUID, criteria []types.RubricCriterion) *types.Evaluation {
	scores := make(map[string]float64, len(criteria))
	for _, c := range criteria {
		scores[c.Name] = fallbackScore
	}
	scoresJSON, _ := json.Marshal(scores)

	return &types.Evaluation{
		AttemptID:       attemptID,
		RubricID:        rubricID,
		OverallScore:    fallbackScore,
		CriterionScores: scoresJSON,
		Feedback:        fallbackFeedback,
		CreatedAt:       time.Now().UTC(),
	}
}

func buildEvalPrompt(attempt *types.Attempt, item *types.PracticeItem, criteria []types.RubricCriterion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Item type: %s\n", item.Type)
	fmt.Fprintf(&b, "Question: %s\n", item.Question)
	if item.ExpectedAnswer != "" {
		fmt.Fprintf(&b, "Expected answer: %s\n", item.ExpectedAnswer)
	}
	if len(item.Content) > 0 {
		fmt.Fprintf(&b, "Item content: %s\n", item.Content)
	}
	b.WriteString("\nRubric:\n")
	for _, c := range criteria {
		fmt.Fprintf(&b, "- %s (weight %.2f): %s\n", c.Name, c.Weight, c.Description)
	}
	fmt.Fprintf(&b, "\nUser's answer:\n%s\n", attempt.Answer)
	b.WriteString("\nScore every rubric criterion by its exact name.")
	return b.String()
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
