package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/repos/testutil"
	"github.com/prepcoach/backend/internal/types"
)

func TestSkillRepo_UpsertByCanonicalName_Idempotent(t *testing.T) {
	conn := testutil.DB(t)
	repo := NewSkillRepo(conn, logger.Nop())
	ctx := context.Background()

	first, err := repo.UpsertByCanonicalName(ctx, nil, "Machine  Learning ", types.SkillCategoryDomain)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := repo.UpsertByCanonicalName(ctx, nil, "machine learning", types.SkillCategoryDomain)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one skill row, got %s and %s", first.ID, second.ID)
	}
	if first.CanonicalName != "machine learning" {
		t.Fatalf("unexpected canonical name %q", first.CanonicalName)
	}
}

func TestGapRepo_ReplaceForUser_SwapsWholeSet(t *testing.T) {
	conn := testutil.DB(t)
	repo := NewGapRepo(conn, logger.Nop())
	ctx := context.Background()

	user := testutil.SeedUser(t, conn)
	k8s := testutil.SeedSkill(t, conn, "kubernetes", types.SkillCategoryCloud)
	golang := testutil.SeedSkill(t, conn, "go", types.SkillCategoryProgramming)

	initial := []*types.Gap{{
		UserID:             user.ID,
		SkillID:            k8s.ID,
		RequiredConfidence: 0.9,
		Coverage:           types.CoverageMissing,
		Priority:           types.PriorityCritical,
		EstimatedHours:     30,
		CreatedAt:          time.Now().UTC(),
	}}
	if err := repo.ReplaceForUser(ctx, nil, user.ID, initial); err != nil {
		t.Fatalf("first replace: %v", err)
	}

	replacement := []*types.Gap{{
		UserID:             user.ID,
		SkillID:            golang.ID,
		RequiredConfidence: 0.7,
		Coverage:           types.CoveragePartial,
		Priority:           types.PriorityMedium,
		EstimatedHours:     20,
		CreatedAt:          time.Now().UTC(),
	}}
	if err := repo.ReplaceForUser(ctx, nil, user.ID, replacement); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	got, err := repo.ListByUser(ctx, nil, user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 gap after replace, got %d", len(got))
	}
	if got[0].SkillID != golang.ID {
		t.Fatalf("expected replacement gap to survive, got skill %s", got[0].SkillID)
	}
}

func TestPlanRepo_ActiveForUser_PrefersNewest(t *testing.T) {
	conn := testutil.DB(t)
	repo := NewPlanRepo(conn, logger.Nop())
	ctx := context.Background()

	user := testutil.SeedUser(t, conn)
	old := testutil.SeedPlan(t, conn, user.ID, 4, 10)
	if err := repo.DeactivateForUser(ctx, nil, user.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	current := testutil.SeedPlan(t, conn, user.ID, 6, 8)

	got, err := repo.ActiveForUser(ctx, nil, user.ID)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if got == nil {
		t.Fatalf("expected an active plan")
	}
	if got.ID != current.ID {
		t.Fatalf("expected plan %s, got %s", current.ID, got.ID)
	}
	if got.ID == old.ID {
		t.Fatalf("deactivated plan still reported active")
	}
}

func TestTaskRepo_ListUpcoming_SkipsTodayAndNonPending(t *testing.T) {
	conn := testutil.DB(t)
	repo := NewTaskRepo(conn, logger.Nop())
	ctx := context.Background()

	user := testutil.SeedUser(t, conn)
	plan := testutil.SeedPlan(t, conn, user.ID, 2, 10)
	today := types.DateOnly(time.Now().UTC())
	_, day := testutil.SeedWeekDay(t, conn, plan.ID, 1, today)

	testutil.SeedTask(t, conn, plan, day.ID, today, 30)
	tomorrow := testutil.SeedTask(t, conn, plan, day.ID, today.AddDate(0, 0, 1), 30)
	done := testutil.SeedTask(t, conn, plan, day.ID, today.AddDate(0, 0, 2), 30)
	done.Status = types.TaskStatusCompleted
	if err := repo.Update(ctx, nil, done); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.ListUpcoming(ctx, nil, user.ID, today, 10)
	if err != nil {
		t.Fatalf("list upcoming: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 upcoming task, got %d", len(got))
	}
	if got[0].ID != tomorrow.ID {
		t.Fatalf("expected tomorrow's task, got %s", got[0].ID)
	}
}

func TestTaskRepo_MinutesByDate_ExcludesSkipped(t *testing.T) {
	conn := testutil.DB(t)
	repo := NewTaskRepo(conn, logger.Nop())
	ctx := context.Background()

	user := testutil.SeedUser(t, conn)
	plan := testutil.SeedPlan(t, conn, user.ID, 2, 10)
	today := types.DateOnly(time.Now().UTC())
	_, day := testutil.SeedWeekDay(t, conn, plan.ID, 1, today)

	testutil.SeedTask(t, conn, plan, day.ID, today, 30)
	testutil.SeedTask(t, conn, plan, day.ID, today, 45)
	skipped := testutil.SeedTask(t, conn, plan, day.ID, today, 60)
	skipped.Status = types.TaskStatusSkipped
	if err := repo.Update(ctx, nil, skipped); err != nil {
		t.Fatalf("update: %v", err)
	}

	totals, err := repo.MinutesByDate(ctx, nil, plan.ID)
	if err != nil {
		t.Fatalf("minutes by date: %v", err)
	}
	if totals[today] != 75 {
		t.Fatalf("expected 75 minutes on %s, got %d", today.Format("2006-01-02"), totals[today])
	}
}

func TestEvaluationRepo_ReplaceForAttempt_KeepsOne(t *testing.T) {
	conn := testutil.DB(t)
	attempts := NewAttemptRepo(conn, logger.Nop())
	evals := NewEvaluationRepo(conn, logger.Nop())
	practice := NewPracticeRepo(conn, logger.Nop())
	ctx := context.Background()

	user := testutil.SeedUser(t, conn)
	rubric, err := practice.GetOrCreateRubric(ctx, nil, types.PracticeFlashcard, []types.RubricCriterion{
		{Name: "Recall", Weight: 1.0},
	})
	if err != nil {
		t.Fatalf("rubric: %v", err)
	}
	item := &types.PracticeItem{
		Type:       types.PracticeFlashcard,
		Title:      "card",
		Question:   "front",
		Difficulty: types.DifficultyBeginner,
		RubricID:   rubric.ID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := practice.CreateItems(ctx, nil, []*types.PracticeItem{item}); err != nil {
		t.Fatalf("create item: %v", err)
	}
	attempt := &types.Attempt{
		UserID:         user.ID,
		PracticeItemID: item.ID,
		Answer:         "back",
		SubmittedAt:    time.Now().UTC(),
	}
	if err := attempts.Create(ctx, nil, attempt); err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	for i, score := range []float64{0.4, 0.9} {
		err := evals.ReplaceForAttempt(ctx, nil, &types.Evaluation{
			AttemptID:    attempt.ID,
			RubricID:     rubric.ID,
			OverallScore: score,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("replace %d: %v", i, err)
		}
	}

	got, err := evals.GetByAttempt(ctx, nil, attempt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatalf("expected an evaluation")
	}
	if got.OverallScore != 0.9 {
		t.Fatalf("expected latest evaluation to win, got score %v", got.OverallScore)
	}
}

func TestMasteryRepo_Upsert_UpdatesInPlace(t *testing.T) {
	conn := testutil.DB(t)
	repo := NewMasteryRepo(conn, logger.Nop())
	ctx := context.Background()

	user := testutil.SeedUser(t, conn)
	skill := testutil.SeedSkill(t, conn, "go", types.SkillCategoryProgramming)

	if err := repo.Upsert(ctx, nil, &types.Mastery{
		UserID: user.ID, SkillID: skill.ID, Score: 0.4, PracticeCount: 1, Trend: types.TrendStable,
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := repo.Upsert(ctx, nil, &types.Mastery{
		UserID: user.ID, SkillID: skill.ID, Score: 0.6, PracticeCount: 2, Trend: types.TrendImproving,
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.Get(ctx, nil, user.ID, skill.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatalf("expected a mastery row")
	}
	if got.Score != 0.6 || got.PracticeCount != 2 || got.Trend != types.TrendImproving {
		t.Fatalf("upsert did not update in place: %+v", got)
	}

	rows, err := repo.ListByUser(ctx, nil, user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 mastery row, got %d", len(rows))
	}
}

func TestCalendarEventRepo_ReplaceForPlan(t *testing.T) {
	conn := testutil.DB(t)
	repo := NewCalendarEventRepo(conn, logger.Nop())
	ctx := context.Background()

	user := testutil.SeedUser(t, conn)
	plan := testutil.SeedPlan(t, conn, user.ID, 2, 10)
	today := types.DateOnly(time.Now().UTC())
	_, day := testutil.SeedWeekDay(t, conn, plan.ID, 1, today)
	task := testutil.SeedTask(t, conn, plan, day.ID, today, 30)

	mk := func(epoch int) []*types.CalendarEvent {
		start := today.Add(9 * time.Hour)
		return []*types.CalendarEvent{{
			PlanID:    plan.ID,
			TaskID:    task.ID,
			Epoch:     epoch,
			Start:     start,
			End:       start.Add(30 * time.Minute),
			Title:     task.Title,
			SyncUID:   uuid.NewString(),
			CreatedAt: time.Now().UTC(),
		}}
	}

	if err := repo.ReplaceForPlan(ctx, nil, plan.ID, mk(1)); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if err := repo.ReplaceForPlan(ctx, nil, plan.ID, mk(2)); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	got, err := repo.ListByPlan(ctx, nil, plan.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event after replace, got %d", len(got))
	}
	if got[0].Epoch != 2 {
		t.Fatalf("expected epoch 2, got %d", got[0].Epoch)
	}
}
