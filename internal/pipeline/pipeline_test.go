package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/adaptive"
	"github.com/prepcoach/backend/internal/calendar"
	"github.com/prepcoach/backend/internal/coach"
	"github.com/prepcoach/backend/internal/evaluator"
	"github.com/prepcoach/backend/internal/extractor"
	"github.com/prepcoach/backend/internal/gaps"
	"github.com/prepcoach/backend/internal/llm"
	"github.com/prepcoach/backend/internal/locks"
	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/mastery"
	"github.com/prepcoach/backend/internal/planner"
	"github.com/prepcoach/backend/internal/practice"
	"github.com/prepcoach/backend/internal/repos"
	"github.com/prepcoach/backend/internal/repos/testutil"
	"github.com/prepcoach/backend/internal/types"
	"github.com/prepcoach/backend/internal/vector"
)

func newOrchestrator(conn *gorm.DB, provider llm.Provider) *Orchestrator {
	log := logger.Nop()

	users := repos.NewUserRepo(conn, log)
	documents := repos.NewDocumentRepo(conn, log)
	skills := repos.NewSkillRepo(conn, log)
	evidence := repos.NewEvidenceRepo(conn, log)
	gapRepo := repos.NewGapRepo(conn, log)
	plans := repos.NewPlanRepo(conn, log)
	tasks := repos.NewTaskRepo(conn, log)
	items := repos.NewPracticeRepo(conn, log)
	attempts := repos.NewAttemptRepo(conn, log)
	evals := repos.NewEvaluationRepo(conn, log)
	masteryRepo := repos.NewMasteryRepo(conn, log)
	events := repos.NewCalendarEventRepo(conn, log)

	return New(Deps{
		Users:     users,
		Documents: documents,
		Gaps:      gapRepo,
		Plans:     plans,
		Items:     items,
		Attempts:  attempts,

		Extractor: extractor.New(conn, documents, skills, evidence, provider, vector.Noop{}, 0.8, log),
		GapSvc:    gaps.New(conn, documents, skills, evidence, gapRepo, log),
		Planner:   planner.New(conn, gapRepo, skills, plans, tasks, provider, 0.8, 0.10, log),
		Practice:  practice.New(conn, tasks, skills, masteryRepo, items, provider, 0.8, 1, log),
		Evaluator: evaluator.New(conn, attempts, items, evals, provider, 0.3, log),
		Mastery:   mastery.New(conn, skills, attempts, masteryRepo, log),
		Adaptive:  adaptive.New(conn, plans, tasks, masteryRepo, adaptive.DefaultOptions(), log),
		Coach:     coach.New(conn, tasks, plans, provider, 0.8, log),
		Calendar:  calendar.New(conn, plans, tasks, events, calendar.DefaultStartHour, log),

		Locks: locks.NewKeyedMutex(),
	}, log)
}

func seedPracticeItem(t *testing.T, conn *gorm.DB, skillName string) *types.PracticeItem {
	t.Helper()
	log := logger.Nop()
	practiceRepo := repos.NewPracticeRepo(conn, log)
	ctx := context.Background()

	rubric, err := practiceRepo.GetOrCreateRubric(ctx, nil, types.PracticeQuizMCQ, types.DefaultRubricCriteria(types.PracticeQuizMCQ))
	if err != nil {
		t.Fatalf("create rubric: %v", err)
	}
	refs, _ := json.Marshal([]string{skillName})
	item := &types.PracticeItem{
		Type:           types.PracticeQuizMCQ,
		Title:          "Channels",
		Question:       "What does a nil channel receive do?",
		ExpectedAnswer: "Blocks forever",
		SkillRefs:      refs,
		Difficulty:     types.DifficultyIntermediate,
		RubricID:       rubric.ID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := practiceRepo.CreateItems(ctx, nil, []*types.PracticeItem{item}); err != nil {
		t.Fatalf("create item: %v", err)
	}
	return item
}

func evaluationResponse(t *testing.T, correctness, understanding float64) llm.MockResponse {
	t.Helper()
	content, err := json.Marshal(map[string]any{
		"criterion_scores": map[string]float64{
			"Correctness":   correctness,
			"Understanding": understanding,
		},
		"strengths":  []string{"correct"},
		"weaknesses": []string{},
		"feedback":   "well reasoned",
	})
	if err != nil {
		t.Fatalf("marshal evaluation: %v", err)
	}
	return llm.MockResponse{Content: content}
}

func TestSubmitAttemptRunsTheFullChain(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	testutil.SeedSkill(t, conn, "Go", types.SkillCategoryProgramming)
	item := seedPracticeItem(t, conn, "go")

	o := newOrchestrator(conn, llm.NewMockProvider(evaluationResponse(t, 1.0, 0.5)))
	spent := 90
	result, err := o.SubmitAttempt(context.Background(), user.ID, item.ID, "Blocks forever", &spent)
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}

	if result.Attempt == nil || result.Attempt.ID == uuid.Nil {
		t.Fatal("attempt not persisted")
	}
	if result.Evaluation == nil {
		t.Fatal("evaluation missing")
	}
	if math.Abs(result.Evaluation.OverallScore-0.85) > 1e-9 {
		t.Errorf("overall = %v, want 0.85", result.Evaluation.OverallScore)
	}

	stored, err := repos.NewAttemptRepo(conn, logger.Nop()).GetByID(context.Background(), nil, result.Attempt.ID)
	if err != nil {
		t.Fatalf("reload attempt: %v", err)
	}
	if stored.Score == nil || math.Abs(*stored.Score-0.85) > 1e-9 {
		t.Errorf("attempt score = %v", stored.Score)
	}
	if stored.TimeSpentSeconds == nil || *stored.TimeSpentSeconds != 90 {
		t.Errorf("time spent = %v", stored.TimeSpentSeconds)
	}

	records, err := repos.NewMasteryRepo(conn, logger.Nop()).ListByUser(context.Background(), nil, user.ID)
	if err != nil {
		t.Fatalf("list mastery: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("mastery records = %d, want 1", len(records))
	}
	if math.Abs(records[0].Score-0.85) > 1e-9 {
		t.Errorf("mastery score = %v, want 0.85", records[0].Score)
	}
}

func TestSubmitAttemptSurvivesModelOutage(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	testutil.SeedSkill(t, conn, "Go", types.SkillCategoryProgramming)
	item := seedPracticeItem(t, conn, "go")

	o := newOrchestrator(conn, llm.NewMockProvider(llm.MockResponse{Err: errors.New("outage")}))
	result, err := o.SubmitAttempt(context.Background(), user.ID, item.ID, "Blocks forever", nil)
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}

	// Grading degrades to the neutral default but the submission stands.
	if result.Evaluation == nil {
		t.Fatal("evaluation missing")
	}
	if result.Evaluation.OverallScore != 0.5 {
		t.Errorf("overall = %v, want 0.5", result.Evaluation.OverallScore)
	}
	if result.Evaluation.Feedback != "evaluation unavailable" {
		t.Errorf("feedback = %q", result.Evaluation.Feedback)
	}

	var count int64
	if err := conn.Model(&types.Attempt{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if count != 1 {
		t.Errorf("attempts = %d, want 1", count)
	}
}

func TestSubmitAttemptValidatesInput(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	o := newOrchestrator(conn, llm.NewMockProvider())
	ctx := context.Background()

	if _, err := o.SubmitAttempt(ctx, user.ID, uuid.New(), "", nil); err == nil {
		t.Error("empty answer accepted")
	}
	if _, err := o.SubmitAttempt(ctx, user.ID, uuid.New(), "answer", nil); err == nil {
		t.Error("unknown practice item accepted")
	}
}

func TestUploadDocumentParsesAndStores(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	o := newOrchestrator(conn, llm.NewMockProvider())

	text := "EXPERIENCE\nBuilt Go services.\n\nEDUCATION\nBSc."
	doc, err := o.UploadDocument(context.Background(), user.ID, types.DocumentKindResume, "resume.txt", []byte(text))
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if doc.ID == uuid.Nil {
		t.Fatal("document not persisted")
	}
	var sections []types.DocumentSection
	if err := json.Unmarshal(doc.Sections, &sections); err != nil {
		t.Fatalf("decode sections: %v", err)
	}
	if len(sections) == 0 {
		t.Error("no sections parsed")
	}

	if _, err := o.UploadDocument(context.Background(), user.ID, "cover_letter", "x.txt", []byte("hi")); err == nil {
		t.Error("unknown document kind accepted")
	}
	if _, err := o.UploadDocument(context.Background(), uuid.New(), types.DocumentKindResume, "x.txt", []byte("hi")); err == nil {
		t.Error("unknown user accepted")
	}
}

func TestAnalyzeGapsResolvesLatestDocuments(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	skill := testutil.SeedSkill(t, conn, "Kubernetes", types.SkillCategoryDomain)
	resume := testutil.SeedDocument(t, conn, user.ID, types.DocumentKindResume, "resume text")
	jd := testutil.SeedDocument(t, conn, user.ID, types.DocumentKindJD, "kubernetes required")

	ev := &types.SkillEvidence{
		ID:          uuid.New(),
		DocumentID:  jd.ID,
		SkillID:     skill.ID,
		SnippetText: "kubernetes required",
		SectionName: "requirements",
		Confidence:  0.9,
		CreatedAt:   time.Now().UTC(),
	}
	if err := conn.Create(ev).Error; err != nil {
		t.Fatalf("seed evidence: %v", err)
	}
	_ = resume

	o := newOrchestrator(conn, llm.NewMockProvider())
	report, err := o.AnalyzeGaps(context.Background(), user.ID, uuid.Nil, uuid.Nil)
	if err != nil {
		t.Fatalf("AnalyzeGaps: %v", err)
	}
	if len(report.Gaps) != 1 {
		t.Fatalf("gaps = %d, want 1", len(report.Gaps))
	}
	if report.Gaps[0].Coverage != types.CoverageMissing {
		t.Errorf("coverage = %s", report.Gaps[0].Coverage)
	}

	listed, err := o.ListGaps(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("ListGaps: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("listed gaps = %d, want 1", len(listed))
	}
}
