package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/llm"
	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/repos"
	"github.com/prepcoach/backend/internal/repos/testutil"
	"github.com/prepcoach/backend/internal/types"
)

type fixture struct {
	conn     *gorm.DB
	attempts repos.AttemptRepo
	practice repos.PracticeRepo
	evals    repos.EvaluationRepo
	attempt  *types.Attempt
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conn := testutil.DB(t)
	log := logger.Nop()
	f := &fixture{
		conn:     conn,
		attempts: repos.NewAttemptRepo(conn, log),
		practice: repos.NewPracticeRepo(conn, log),
		evals:    repos.NewEvaluationRepo(conn, log),
	}

	user := testutil.SeedUser(t, conn)
	ctx := context.Background()

	rubric, err := f.practice.GetOrCreateRubric(ctx, nil, types.PracticeQuizMCQ, types.DefaultRubricCriteria(types.PracticeQuizMCQ))
	if err != nil {
		t.Fatalf("create rubric: %v", err)
	}
	item := &types.PracticeItem{
		Type:           types.PracticeQuizMCQ,
		Title:          "Slices",
		Question:       "What does append return?",
		ExpectedAnswer: "A slice, possibly backed by a new array",
		Difficulty:     types.DifficultyIntermediate,
		RubricID:       rubric.ID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := f.practice.CreateItems(ctx, nil, []*types.PracticeItem{item}); err != nil {
		t.Fatalf("create item: %v", err)
	}

	f.attempt = &types.Attempt{
		UserID:         user.ID,
		PracticeItemID: item.ID,
		Answer:         "A slice, possibly backed by a new array",
		SubmittedAt:    time.Now().UTC(),
	}
	if err := f.attempts.Create(ctx, nil, f.attempt); err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	return f
}

func (f *fixture) service(provider llm.Provider) Service {
	return New(f.conn, f.attempts, f.practice, f.evals, provider, 0.3, logger.Nop())
}

func mockScores(t *testing.T, scores map[string]float64) llm.MockResponse {
	t.Helper()
	content, err := json.Marshal(map[string]any{
		"criterion_scores": scores,
		"strengths":        []string{"picked the right option"},
		"weaknesses":       []string{},
		"feedback":         "solid answer",
	})
	if err != nil {
		t.Fatalf("marshal mock scores: %v", err)
	}
	return llm.MockResponse{Content: content}
}

func TestEvaluateWeightedScore(t *testing.T) {
	f := setup(t)
	provider := llm.NewMockProvider(mockScores(t, map[string]float64{
		"Correctness":   1.0,
		"Understanding": 0.5,
	}))

	eval, err := f.service(provider).Evaluate(context.Background(), f.attempt.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// Correctness 0.7 weight, Understanding 0.3 weight.
	if math.Abs(eval.OverallScore-0.85) > 1e-9 {
		t.Errorf("overall = %v, want 0.85", eval.OverallScore)
	}

	stored, err := f.attempts.GetByID(context.Background(), nil, f.attempt.ID)
	if err != nil {
		t.Fatalf("reload attempt: %v", err)
	}
	if stored.Score == nil || math.Abs(*stored.Score-0.85) > 1e-9 {
		t.Errorf("attempt score not mirrored, got %v", stored.Score)
	}
	if stored.Feedback != "solid answer" {
		t.Errorf("attempt feedback = %q", stored.Feedback)
	}
}

func TestEvaluateClampsOutOfRangeScores(t *testing.T) {
	f := setup(t)
	provider := llm.NewMockProvider(mockScores(t, map[string]float64{
		"Correctness":   1.4,
		"Understanding": -0.2,
	}))

	eval, err := f.service(provider).Evaluate(context.Background(), f.attempt.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if math.Abs(eval.OverallScore-0.7) > 1e-9 {
		t.Errorf("overall = %v, want 0.7 after clamping", eval.OverallScore)
	}
}

func TestEvaluateModelFailureUsesDefault(t *testing.T) {
	f := setup(t)
	provider := llm.NewMockProvider(llm.MockResponse{Err: errors.New("boom")})

	eval, err := f.service(provider).Evaluate(context.Background(), f.attempt.ID)
	if err != nil {
		t.Fatalf("a model failure must not fail the evaluation: %v", err)
	}
	if eval.OverallScore != 0.5 {
		t.Errorf("overall = %v, want the 0.5 default", eval.OverallScore)
	}
	if eval.Feedback != "evaluation unavailable" {
		t.Errorf("feedback = %q", eval.Feedback)
	}
}

func TestReEvaluateReplacesEvaluation(t *testing.T) {
	f := setup(t)
	svc := f.service(llm.NewMockProvider(
		mockScores(t, map[string]float64{"Correctness": 0.5, "Understanding": 0.5}),
		mockScores(t, map[string]float64{"Correctness": 1.0, "Understanding": 1.0}),
	))

	ctx := context.Background()
	if _, err := svc.Evaluate(ctx, f.attempt.ID); err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}
	if _, err := svc.Evaluate(ctx, f.attempt.ID); err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}

	var count int64
	if err := f.conn.Model(&types.Evaluation{}).Where("attempt_id = ?", f.attempt.ID).Count(&count).Error; err != nil {
		t.Fatalf("count evaluations: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one evaluation, got %d", count)
	}

	stored, err := f.evals.GetByAttempt(ctx, nil, f.attempt.ID)
	if err != nil {
		t.Fatalf("load evaluation: %v", err)
	}
	if stored.OverallScore != 1.0 {
		t.Errorf("replacement kept the old score: %v", stored.OverallScore)
	}
}
