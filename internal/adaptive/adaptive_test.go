package adaptive

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/repos"
	"github.com/prepcoach/backend/internal/repos/testutil"
	"github.com/prepcoach/backend/internal/types"
)

func newService(conn *gorm.DB) Service {
	log := logger.Nop()
	return New(conn,
		repos.NewPlanRepo(conn, log),
		repos.NewTaskRepo(conn, log),
		repos.NewMasteryRepo(conn, log),
		DefaultOptions(),
		log)
}

func seedMastery(t *testing.T, conn *gorm.DB, userID, skillID uuid.UUID, score float64, trend types.MasteryTrend, count int) {
	t.Helper()
	now := time.Now().UTC()
	m := &types.Mastery{
		ID:            uuid.New(),
		UserID:        userID,
		SkillID:       skillID,
		Score:         score,
		Trend:         trend,
		PracticeCount: count,
		LastPracticed: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := conn.Create(m).Error; err != nil {
		t.Fatalf("seed mastery: %v", err)
	}
}

// seedDays gives the plan one scheduled day per offset from today.
func seedDays(t *testing.T, conn *gorm.DB, planID uuid.UUID, offsets ...int) []*types.Day {
	t.Helper()
	days := make([]*types.Day, 0, len(offsets))
	for i, off := range offsets {
		_, d := testutil.SeedWeekDay(t, conn, planID, i+1, time.Now().UTC().AddDate(0, 0, off))
		days = append(days, d)
	}
	return days
}

func setSkillRefs(t *testing.T, conn *gorm.DB, task *types.Task, skills ...string) {
	t.Helper()
	refs, err := json.Marshal(skills)
	if err != nil {
		t.Fatalf("marshal refs: %v", err)
	}
	task.SkillRefs = refs
	if err := conn.Save(task).Error; err != nil {
		t.Fatalf("update task refs: %v", err)
	}
}

func TestAdaptAddsSpacedReinforcementForWeakSkill(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	plan := testutil.SeedPlan(t, conn, user.ID, 2, 10)
	seedDays(t, conn, plan.ID, 1, 2, 3, 4, 5)
	skill := testutil.SeedSkill(t, conn, "TensorFlow", types.SkillCategoryFramework)
	seedMastery(t, conn, user.ID, skill.ID, 0.3, types.TrendDeclining, 2)

	result, err := newService(conn).Adapt(context.Background(), user.ID, plan.ID, true)
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	if !result.Applied {
		t.Fatal("expected the changes to be applied")
	}
	if len(result.Analysis.WeakSkills) != 1 {
		t.Fatalf("weak skills = %d, want 1", len(result.Analysis.WeakSkills))
	}
	weak := result.Analysis.WeakSkills[0]
	for _, part := range []string{"below", "declining trend", "attempts"} {
		if !strings.Contains(weak.Reason, part) {
			t.Errorf("reason %q missing %q", weak.Reason, part)
		}
	}
	if len(result.Analysis.Recommendations) != 1 || result.Analysis.Recommendations[0].Priority != "high" {
		t.Errorf("unexpected recommendations: %+v", result.Analysis.Recommendations)
	}
	if result.Summary.ReinforcementTasksAdded != 2 {
		t.Fatalf("reinforcement tasks added = %d, want 2", result.Summary.ReinforcementTasksAdded)
	}

	var tasks []*types.Task
	if err := conn.Where("plan_id = ? AND type = ?", plan.ID, types.TaskTypePractice).Order("date ASC").Find(&tasks).Error; err != nil {
		t.Fatalf("load tasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("practice tasks = %d, want 2", len(tasks))
	}
	for _, task := range tasks {
		if task.Title != "Reinforce tensorflow" {
			t.Errorf("title = %q", task.Title)
		}
		if task.EstimatedMinutes != reinforcementMinutes {
			t.Errorf("estimated minutes = %d, want %d", task.EstimatedMinutes, reinforcementMinutes)
		}
		if task.Status != types.TaskStatusPending {
			t.Errorf("status = %s", task.Status)
		}
	}
	if gap := tasks[1].Date.Sub(tasks[0].Date); gap < 48*time.Hour {
		t.Errorf("tasks only %v apart, want at least two days", gap)
	}

	reloaded, err := repos.NewPlanRepo(conn, logger.Nop()).GetByID(context.Background(), nil, plan.ID)
	if err != nil {
		t.Fatalf("reload plan: %v", err)
	}
	var entries []types.DiffLogEntry
	if err := json.Unmarshal(reloaded.DiffLog, &entries); err != nil {
		t.Fatalf("decode diff log: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("diff log entries = %d, want 1", len(entries))
	}
	if len(entries[0].Changes) != 1 || entries[0].Changes[0].Action != "add" || entries[0].Changes[0].Count != 2 {
		t.Errorf("unexpected diff changes: %+v", entries[0].Changes)
	}
	if reloaded.CalendarEpoch != plan.CalendarEpoch+1 {
		t.Errorf("calendar epoch = %d, want %d", reloaded.CalendarEpoch, plan.CalendarEpoch+1)
	}
}

func TestAdaptAnalyzeOnlyLeavesPlanUntouched(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	plan := testutil.SeedPlan(t, conn, user.ID, 2, 10)
	seedDays(t, conn, plan.ID, 1, 3, 5)
	skill := testutil.SeedSkill(t, conn, "Kafka", types.SkillCategoryTool)
	seedMastery(t, conn, user.ID, skill.ID, 0.2, types.TrendStable, 4)

	result, err := newService(conn).Adapt(context.Background(), user.ID, plan.ID, false)
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	if result.Applied || result.Summary != nil {
		t.Errorf("analyze-only run reported changes: %+v", result)
	}
	if len(result.Analysis.WeakSkills) != 1 {
		t.Errorf("weak skills = %d, want 1", len(result.Analysis.WeakSkills))
	}

	var taskCount int64
	if err := conn.Model(&types.Task{}).Where("plan_id = ?", plan.ID).Count(&taskCount).Error; err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if taskCount != 0 {
		t.Errorf("tasks created during analysis: %d", taskCount)
	}
	reloaded, _ := repos.NewPlanRepo(conn, logger.Nop()).GetByID(context.Background(), nil, plan.ID)
	if len(reloaded.DiffLog) != 0 {
		t.Errorf("diff log written during analysis: %s", reloaded.DiffLog)
	}
}

func TestAdaptMarksSurplusStrongSkillTasksOptional(t *testing.T) {
	conn := testutil.DB(t)
	user := testutil.SeedUser(t, conn)
	plan := testutil.SeedPlan(t, conn, user.ID, 2, 10)
	days := seedDays(t, conn, plan.ID, 1, 2, 3)
	skill := testutil.SeedSkill(t, conn, "Python", types.SkillCategoryProgramming)
	seedMastery(t, conn, user.ID, skill.ID, 0.9, types.TrendImproving, 6)

	var seeded []*types.Task
	for _, d := range days {
		task := testutil.SeedTask(t, conn, plan, d.ID, d.Date, 45)
		setSkillRefs(t, conn, task, "python")
		seeded = append(seeded, task)
	}

	result, err := newService(conn).Adapt(context.Background(), user.ID, plan.ID, true)
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	if len(result.Analysis.StrongSkills) != 1 {
		t.Fatalf("strong skills = %d, want 1", len(result.Analysis.StrongSkills))
	}
	if result.Summary.TasksMarkedOptional != 1 {
		t.Fatalf("tasks marked optional = %d, want 1", result.Summary.TasksMarkedOptional)
	}

	// The two earliest tasks stay required and nothing is deleted.
	var count int64
	if err := conn.Model(&types.Task{}).Where("plan_id = ?", plan.ID).Count(&count).Error; err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if count != 3 {
		t.Fatalf("task count = %d, want 3", count)
	}
	for i, want := range []bool{false, false, true} {
		var task types.Task
		if err := conn.Where("id = ?", seeded[i].ID).First(&task).Error; err != nil {
			t.Fatalf("reload task: %v", err)
		}
		var content types.TaskContent
		if len(task.Content) > 0 {
			if err := json.Unmarshal(task.Content, &content); err != nil {
				t.Fatalf("decode content: %v", err)
			}
		}
		if content.Optional != want {
			t.Errorf("task %d optional = %v, want %v", i, content.Optional, want)
		}
	}
}

func TestAdaptRejectsForeignPlan(t *testing.T) {
	conn := testutil.DB(t)
	owner := testutil.SeedUser(t, conn)
	other := testutil.SeedUser(t, conn)
	plan := testutil.SeedPlan(t, conn, owner.ID, 1, 5)

	if _, err := newService(conn).Adapt(context.Background(), other.ID, plan.ID, false); err == nil {
		t.Fatal("expected an ownership error")
	}
}
