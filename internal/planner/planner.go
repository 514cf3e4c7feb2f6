// Package planner synthesizes a multi-week study plan from the user's
// gap set. The model contributes themes and content scaffolds; every
// numeric constraint (budgets, dates, caps) is enforced here.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
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

const (
	// singleGapCap bounds any one gap's share of the total plan budget.
	singleGapCap = 0.30

	// weekendSkipLeadWeeks is the minimum interview lead, in weeks, at
	// which the plan uses weekdays only.
	weekendSkipLeadWeeks = 6

	// maxFocusSkillsPerWeek bounds a week's themed skill set.
	maxFocusSkillsPerWeek = 5

	planMaxTokens = 4096
)

// Constraints are the user-supplied planning inputs.
type Constraints struct {
	Weeks         int
	HoursPerWeek  float64
	InterviewDate *time.Time
}

type Service interface {
	// Synthesize creates and activates a new study plan for the user,
	// deactivating any previous one. Everything persists in one
	// transaction; a model failure persists nothing.
	Synthesize(ctx context.Context, userID uuid.UUID, c Constraints) (*types.StudyPlan, error)
}

type service struct {
	db        *gorm.DB
	gaps      repos.GapRepo
	skills    repos.SkillRepo
	plans     repos.PlanRepo
	tasks     repos.TaskRepo
	provider  llm.Provider
	genTemp   float64
	tolerance float64
	log       *logger.Logger
}

func New(
	db *gorm.DB,
	gapRepo repos.GapRepo,
	skillRepo repos.SkillRepo,
	planRepo repos.PlanRepo,
	taskRepo repos.TaskRepo,
	provider llm.Provider,
	genTemp float64,
	tolerance float64,
	baseLog *logger.Logger,
) Service {
	return &service{
		db:        db,
		gaps:      gapRepo,
		skills:    skillRepo,
		plans:     planRepo,
		tasks:     taskRepo,
		provider:  provider,
		genTemp:   genTemp,
		tolerance: tolerance,
		log:       baseLog.With("service", "Planner"),
	}
}

// allocation is one gap's share of the plan, in minutes. remaining is
// consumed as tasks are laid out.
type allocation struct {
	gap       *types.Gap
	skill     *types.Skill
	remaining int
}

// themeContent is what the model contributes per week and skill.
type themeContent struct {
	Themes []struct {
		WeekNumber int    `json:"week_number"`
		Theme      string `json:"theme"`
	} `json:"themes"`
	SkillContent []struct {
		Skill          string   `json:"skill"`
		KeyConcepts    []string `json:"key_concepts"`
		Resources      []string `json:"resources"`
		StudyMaterials []string `json:"study_materials"`
	} `json:"skill_content"`
}

var planSchema = &llm.Schema{
	Name:        "study-plan-themes",
	Description: "Weekly themes and per-skill study content for an interview prep plan.",
	Definition: map[string]any{
		"type":     "object",
		"required": []any{"themes", "skill_content"},
		"properties": map[string]any{
			"themes": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"week_number", "theme"},
					"properties": map[string]any{
						"week_number": map[string]any{"type": "integer"},
						"theme":       map[string]any{"type": "string"},
					},
				},
			},
			"skill_content": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"skill"},
					"properties": map[string]any{
						"skill":           map[string]any{"type": "string"},
						"key_concepts":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"resources":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"study_materials": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
				},
			},
		},
	},
}

func (s *service) Synthesize(ctx context.Context, userID uuid.UUID, c Constraints) (*types.StudyPlan, error) {
	if err := validate(c); err != nil {
		return nil, err
	}

	allocations, err := s.allocate(ctx, userID, c)
	if err != nil {
		return nil, err
	}
	if len(allocations) == 0 {
		return nil, apperr.InvalidInput("no gaps to plan for; run gap analysis first")
	}

	content, err := s.proposeContent(ctx, allocations, c)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	plan := &types.StudyPlan{
		ID:            uuid.New(),
		UserID:        userID,
		WeeksCount:    c.Weeks,
		HoursPerWeek:  c.HoursPerWeek,
		InterviewDate: c.InterviewDate,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	focusJSON, err := json.Marshal(focusAreas(allocations))
	if err != nil {
		return nil, err
	}
	plan.FocusAreas = focusJSON

	weeks, days, tasks := layOut(plan, allocations, content, s.tolerance)

	err = db.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.plans.DeactivateForUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.plans.Create(ctx, tx, plan); err != nil {
			return err
		}
		if err := s.plans.CreateWeeks(ctx, tx, weeks); err != nil {
			return err
		}
		if err := s.plans.CreateDays(ctx, tx, days); err != nil {
			return err
		}
		return s.tasks.CreateBatch(ctx, tx, tasks)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Plan synthesized",
		"user_id", userID, "plan_id", plan.ID,
		"weeks", len(weeks), "tasks", len(tasks))
	return plan, nil
}

func validate(c Constraints) error {
	if c.Weeks < 1 {
		return apperr.InvalidInput("weeks must be at least 1, got %d", c.Weeks)
	}
	if c.HoursPerWeek <= 0 {
		return apperr.InvalidInput("hours_per_week must be positive, got %v", c.HoursPerWeek)
	}
	if c.InterviewDate != nil && !c.InterviewDate.After(time.Now().UTC()) {
		return apperr.InvalidInput("interview_date must be in the future")
	}
	return nil
}

// allocate converts the user's gaps into per-skill minute budgets,
// scaled to the plan's total capacity with a per-gap cap.
func (s *service) allocate(ctx context.Context, userID uuid.UUID, c Constraints) ([]*allocation, error) {
	gaps, err := s.gaps.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	var open []*types.Gap
	totalHours := 0.0
	for _, g := range gaps {
		if g.EstimatedHours > 0 {
			open = append(open, g)
			totalHours += g.EstimatedHours
		}
	}
	if len(open) == 0 {
		return nil, nil
	}

	// Highest priority first; ties broken by longer estimated hours.
	sort.Slice(open, func(i, j int) bool {
		ri, rj := types.PriorityRank(open[i].Priority), types.PriorityRank(open[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return open[i].EstimatedHours > open[j].EstimatedHours
	})

	target := float64(c.Weeks) * c.HoursPerWeek
	scale := math.Min(1, target/totalHours)
	capHours := target * singleGapCap

	out := make([]*allocation, 0, len(open))
	for _, g := range open {
		hours := math.Min(g.EstimatedHours*scale, capHours)
		skill, err := s.skills.GetByID(ctx, nil, g.SkillID)
		if err != nil {
			return nil, err
		}
		if skill == nil {
			continue
		}
		out = append(out, &allocation{
			gap:       g,
			skill:     skill,
			remaining: int(math.Round(hours * 60)),
		})
	}
	return out, nil
}

// proposeContent asks the model for themes and study content. A
// provider error aborts synthesis; unparseable output falls back to the
// deterministic scaffold (nil content) so planning still succeeds.
func (s *service) proposeContent(ctx context.Context, allocations []*allocation, c Constraints) (*themeContent, error) {
	ctx = llm.WithPurpose(ctx, "plan-synthesis")

	resp, err := s.provider.Generate(ctx, llm.Request{
		System: "You design interview preparation study plans. " +
			"Given skills to learn, propose one short theme per week and study content per skill.",
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildPlanPrompt(allocations, c)}},
		Schema:      planSchema,
		MaxTokens:   planMaxTokens,
		Temperature: s.genTemp,
	})
	if err != nil {
		return nil, apperr.LLMUnavailable(err, "plan content generation failed")
	}

	var content themeContent
	if err := llm.DecodeInto(resp.Content, &content); err != nil {
		s.log.Warn("Plan content unparseable, using fallback scaffold", "error", err)
		return nil, nil
	}
	return &content, nil
}

func buildPlanPrompt(allocations []*allocation, c Constraints) string {
	type skillLine struct {
		Skill    string  `json:"skill"`
		Priority string  `json:"priority"`
		Hours    float64 `json:"allocated_hours"`
	}
	lines := make([]skillLine, len(allocations))
	for i, a := range allocations {
		lines[i] = skillLine{
			Skill:    a.skill.DisplayName,
			Priority: string(a.gap.Priority),
			Hours:    float64(a.remaining) / 60,
		}
	}
	payload, _ := json.Marshal(map[string]any{
		"weeks":          c.Weeks,
		"hours_per_week": c.HoursPerWeek,
		"skills":         lines,
	})
	return fmt.Sprintf(
		"Plan input:\n%s\n\nReturn a theme for each week 1..%d and key_concepts, resources and study_materials for each skill.",
		payload, c.Weeks)
}

func focusAreas(allocations []*allocation) []string {
	names := make([]string, len(allocations))
	for i, a := range allocations {
		names[i] = a.skill.CanonicalName
	}
	return names
}

// layOut deterministically expands allocations into weeks, days and
// learn/practice/review task triplets under the plan's hard limits.
// tolerance is the allowed overshoot of the weekly minute budget.
func layOut(plan *types.StudyPlan, allocations []*allocation, content *themeContent, tolerance float64) ([]*types.Week, []*types.Day, []*types.Task) {
	if tolerance < 0 {
		tolerance = 0
	}
	start := plan.WindowStart()
	weekBudget := int(plan.HoursPerWeek * 60 * (1 + tolerance))
	skipWeekends := shouldSkipWeekends(start, plan.InterviewDate)

	var weeks []*types.Week
	var days []*types.Day
	var tasks []*types.Task

	hadPriorDay := false
	for weekNum := 1; weekNum <= plan.WeeksCount; weekNum++ {
		focus := currentFocus(allocations)
		week := &types.Week{
			ID:         uuid.New(),
			PlanID:     plan.ID,
			WeekNumber: weekNum,
			Theme:      weekTheme(content, weekNum, focus),
			CreatedAt:  plan.CreatedAt,
		}
		if fs, err := json.Marshal(skillNames(focus)); err == nil {
			week.FocusSkills = fs
		}
		weeks = append(weeks, week)

		dates := weekDates(start, weekNum, skipWeekends, plan.InterviewDate)
		if len(dates) == 0 {
			continue
		}

		weekMinutes := min(weekBudget, totalRemaining(allocations))
		perDay := weekMinutes / len(dates)
		if perDay == 0 && weekMinutes > 0 {
			perDay = weekMinutes
			dates = dates[:1]
		}

		for dayIdx, date := range dates {
			if perDay <= 0 || totalRemaining(allocations) == 0 {
				break
			}
			alloc := nextAllocation(allocations)
			if alloc == nil {
				break
			}
			minutes := min(perDay, alloc.remaining)
			alloc.remaining -= minutes

			day := &types.Day{
				ID:               uuid.New(),
				WeekID:           week.ID,
				DayNumber:        dayIdx + 1,
				Date:             date,
				Theme:            alloc.skill.DisplayName,
				EstimatedMinutes: minutes,
				CreatedAt:        plan.CreatedAt,
			}
			days = append(days, day)

			tasks = append(tasks, dayTasks(plan, day, alloc, content, minutes, hadPriorDay)...)
			hadPriorDay = true
		}
	}

	return weeks, days, tasks
}

// dayTasks splits a day's minutes into the learn/practice/review
// triplet. Review only exists once there is prior material to revisit.
func dayTasks(plan *types.StudyPlan, day *types.Day, alloc *allocation, content *themeContent, minutes int, withReview bool) []*types.Task {
	type split struct {
		taskType types.TaskType
		share    float64
	}
	splits := []split{
		{types.TaskTypeLearn, 0.5},
		{types.TaskTypePractice, 0.3},
		{types.TaskTypeReview, 0.2},
	}
	if !withReview {
		splits = []split{
			{types.TaskTypeLearn, 0.6},
			{types.TaskTypePractice, 0.4},
		}
	}

	skillRefs, _ := json.Marshal([]string{alloc.skill.CanonicalName})
	taskContent, _ := json.Marshal(scaffold(content, alloc.skill))

	var out []*types.Task
	used := 0
	for i, sp := range splits {
		m := int(float64(minutes) * sp.share)
		if i == len(splits)-1 {
			m = minutes - used
		}
		used += m
		if m <= 0 {
			continue
		}
		out = append(out, &types.Task{
			ID:               uuid.New(),
			PlanID:           plan.ID,
			DayID:            day.ID,
			UserID:           plan.UserID,
			Date:             day.Date,
			Type:             sp.taskType,
			Title:            taskTitle(sp.taskType, alloc.skill.DisplayName),
			Description:      taskDescription(sp.taskType, alloc.skill.DisplayName),
			SkillRefs:        skillRefs,
			EstimatedMinutes: m,
			Status:           types.TaskStatusPending,
			Content:          taskContent,
			CreatedAt:        plan.CreatedAt,
			UpdatedAt:        plan.CreatedAt,
		})
	}
	return out
}

func taskTitle(t types.TaskType, skill string) string {
	switch t {
	case types.TaskTypeLearn:
		return fmt.Sprintf("Learn %s", skill)
	case types.TaskTypePractice:
		return fmt.Sprintf("Practice %s", skill)
	default:
		return fmt.Sprintf("Review %s", skill)
	}
}

func taskDescription(t types.TaskType, skill string) string {
	switch t {
	case types.TaskTypeLearn:
		return fmt.Sprintf("Work through the study materials for %s.", skill)
	case types.TaskTypePractice:
		return fmt.Sprintf("Complete practice exercises for %s.", skill)
	default:
		return fmt.Sprintf("Revisit yesterday's %s material and self-test.", skill)
	}
}

// scaffold builds the content payload for a task, preferring the
// model's proposal for the skill.
func scaffold(content *themeContent, skill *types.Skill) types.TaskContent {
	if content != nil {
		for _, sc := range content.SkillContent {
			if types.CanonicalSkillName(sc.Skill) == skill.CanonicalName {
				return types.TaskContent{
					StudyMaterials: sc.StudyMaterials,
					Resources:      sc.Resources,
					KeyConcepts:    sc.KeyConcepts,
				}
			}
		}
	}
	return types.TaskContent{
		KeyConcepts: []string{skill.DisplayName + " fundamentals"},
		Exercises:   []string{"Summarize what you learned about " + skill.DisplayName + " in your own words."},
	}
}

func weekTheme(content *themeContent, weekNum int, focus []*allocation) string {
	if content != nil {
		for _, t := range content.Themes {
			if t.WeekNumber == weekNum && t.Theme != "" {
				return t.Theme
			}
		}
	}
	if len(focus) > 0 {
		return fmt.Sprintf("Week %d: %s", weekNum, focus[0].skill.DisplayName)
	}
	return fmt.Sprintf("Week %d: review and consolidation", weekNum)
}

// weekDates returns the schedulable dates of a plan week, honoring
// weekend skipping and the interview-date cutoff (exclusive).
func weekDates(start time.Time, weekNum int, skipWeekends bool, interview *time.Time) []time.Time {
	var out []time.Time
	weekStart := start.AddDate(0, 0, (weekNum-1)*7)
	for d := 0; d < 7; d++ {
		date := weekStart.AddDate(0, 0, d)
		if skipWeekends && (date.Weekday() == time.Saturday || date.Weekday() == time.Sunday) {
			continue
		}
		if interview != nil && !date.Before(types.DateOnly(*interview)) {
			continue
		}
		out = append(out, date)
	}
	return out
}

func shouldSkipWeekends(start time.Time, interview *time.Time) bool {
	if interview == nil {
		return false
	}
	lead := types.DateOnly(*interview).Sub(start)
	return lead >= weekendSkipLeadWeeks*7*24*time.Hour
}

func currentFocus(allocations []*allocation) []*allocation {
	var focus []*allocation
	for _, a := range allocations {
		if a.remaining > 0 {
			focus = append(focus, a)
			if len(focus) == maxFocusSkillsPerWeek {
				break
			}
		}
	}
	return focus
}

func nextAllocation(allocations []*allocation) *allocation {
	for _, a := range allocations {
		if a.remaining > 0 {
			return a
		}
	}
	return nil
}

func totalRemaining(allocations []*allocation) int {
	total := 0
	for _, a := range allocations {
		total += a.remaining
	}
	return total
}

func skillNames(allocations []*allocation) []string {
	names := make([]string, len(allocations))
	for i, a := range allocations {
		names[i] = a.skill.CanonicalName
	}
	return names
}
