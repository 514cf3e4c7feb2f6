// Package adaptive replans an active study plan from observed mastery:
// weak skills get reinforcement tasks, over-practiced strong skills get
// their surplus tasks marked optional.
package adaptive

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/apperr"
	"github.com/prepcoach/backend/internal/db"
	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/repos"
	"github.com/prepcoach/backend/internal/types"
)

const (
	minPracticeCount      = 3
	strongPracticeCount   = 5
	reinforcementMinutes  = 30
	strongTasksKept       = 2
	highPriorityThreshold = 0.3
)

// Options are the tunable analysis and scheduling knobs.
type Options struct {
	WeakThreshold      float64
	StrongThreshold    float64
	ReinforcementCount int
	MinSpacingDays     int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		WeakThreshold:      0.5,
		StrongThreshold:    0.8,
		ReinforcementCount: 2,
		MinSpacingDays:     2,
	}
}

// SkillSignal is one skill's analysis verdict.
type SkillSignal struct {
	Skill         string             `json:"skill"`
	Score         float64            `json:"score"`
	Trend         types.MasteryTrend `json:"trend"`
	PracticeCount int                `json:"practice_count"`
	Reason        string             `json:"reason"`
}

// Recommendation is one suggested plan change.
type Recommendation struct {
	Skill    string `json:"skill"`
	Action   string `json:"action"`
	Priority string `json:"priority"`
}

// Analysis is the read-only half of an adaptation.
type Analysis struct {
	WeakSkills      []SkillSignal    `json:"weak_skills"`
	StrongSkills    []SkillSignal    `json:"strong_skills"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Summary reports what an applied adaptation changed.
type Summary struct {
	ReinforcementTasksAdded int `json:"reinforcement_tasks_added"`
	TasksMarkedOptional     int `json:"tasks_marked_optional"`
}

// Result pairs the analysis with the applied changes, if any.
type Result struct {
	Analysis *Analysis `json:"analysis"`
	Applied  bool      `json:"applied"`
	Summary  *Summary  `json:"summary,omitempty"`
}

type Service interface {
	// Adapt analyzes the user's mastery against the plan and, when apply
	// is set, mutates the plan in one transaction.
	Adapt(ctx context.Context, userID, planID uuid.UUID, apply bool) (*Result, error)
}

type service struct {
	db      *gorm.DB
	plans   repos.PlanRepo
	tasks   repos.TaskRepo
	mastery repos.MasteryRepo
	opts    Options
	log     *logger.Logger
}

func New(
	db *gorm.DB,
	planRepo repos.PlanRepo,
	taskRepo repos.TaskRepo,
	masteryRepo repos.MasteryRepo,
	opts Options,
	baseLog *logger.Logger,
) Service {
	if opts.ReinforcementCount < 1 {
		opts = DefaultOptions()
	}
	return &service{
		db:      db,
		plans:   planRepo,
		tasks:   taskRepo,
		mastery: masteryRepo,
		opts:    opts,
		log:     baseLog.With("service", "AdaptivePlanner"),
	}
}

func (s *service) Adapt(ctx context.Context, userID, planID uuid.UUID, apply bool) (*Result, error) {
	plan, err := s.plans.GetByID(ctx, nil, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, apperr.NotFound("plan %s not found", planID)
	}
	if plan.UserID != userID {
		return nil, apperr.InvalidInput("plan %s does not belong to user %s", planID, userID)
	}

	records, err := s.mastery.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	upcoming, err := s.tasks.ListUpcoming(ctx, nil, userID, time.Now().UTC(), 0)
	if err != nil {
		return nil, err
	}

	analysis := analyze(s.opts, records, upcoming)
	result := &Result{Analysis: analysis}
	if !apply {
		return result, nil
	}

	summary, err := s.applyChanges(ctx, plan, analysis, upcoming)
	if err != nil {
		return nil, err
	}
	result.Applied = true
	result.Summary = summary

	s.log.Info("Plan adapted",
		"plan_id", planID,
		"reinforcement_tasks", summary.ReinforcementTasksAdded,
		"marked_optional", summary.TasksMarkedOptional)
	return result, nil
}

// analyze classifies each mastered skill and derives recommendations.
func analyze(opts Options, records []*types.Mastery, upcoming []*types.Task) *Analysis {
	upcomingBySkill := countTasksBySkill(upcoming)
	analysis := &Analysis{}

	for _, m := range records {
		if m.Skill == nil {
			continue
		}
		name := m.Skill.CanonicalName
		signal := SkillSignal{
			Skill:         name,
			Score:         m.Score,
			Trend:         m.Trend,
			PracticeCount: m.PracticeCount,
		}

		var reasons []string
		if m.Score < opts.WeakThreshold {
			reasons = append(reasons, fmt.Sprintf("score %.2f below %.1f", m.Score, opts.WeakThreshold))
		}
		if m.Trend == types.TrendDeclining {
			reasons = append(reasons, "declining trend")
		}
		if m.PracticeCount < minPracticeCount {
			reasons = append(reasons, fmt.Sprintf("only %d attempts", m.PracticeCount))
		}
		if len(reasons) > 0 {
			signal.Reason = strings.Join(reasons, "; ")
			analysis.WeakSkills = append(analysis.WeakSkills, signal)

			priority := "medium"
			if m.Score < highPriorityThreshold || m.Trend == types.TrendDeclining {
				priority = "high"
			}
			analysis.Recommendations = append(analysis.Recommendations, Recommendation{
				Skill:    name,
				Action:   fmt.Sprintf("add %d reinforcement tasks", opts.ReinforcementCount),
				Priority: priority,
			})
			continue
		}

		if m.Score >= opts.StrongThreshold && m.Trend == types.TrendImproving && m.PracticeCount >= strongPracticeCount {
			signal.Reason = fmt.Sprintf("score %.2f, improving, %d attempts", m.Score, m.PracticeCount)
			analysis.StrongSkills = append(analysis.StrongSkills, signal)
			if upcomingBySkill[name] > strongTasksKept {
				analysis.Recommendations = append(analysis.Recommendations, Recommendation{
					Skill:    name,
					Action:   "reduce redundant tasks",
					Priority: "low",
				})
			}
		}
	}
	return analysis
}

// applyChanges inserts reinforcement tasks, marks surplus strong-skill
// tasks optional, and appends the diff log entry, all atomically.
func (s *service) applyChanges(
	ctx context.Context,
	plan *types.StudyPlan,
	analysis *Analysis,
	upcoming []*types.Task,
) (*Summary, error) {
	summary := &Summary{}
	var changes []types.DiffChange

	err := db.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		dates, err := s.upcomingPlanDates(ctx, tx, plan)
		if err != nil {
			return err
		}
		counts := countTasksByDate(upcoming)

		for _, weak := range analysis.WeakSkills {
			added, err := s.insertReinforcement(ctx, tx, plan, weak, dates, counts)
			if err != nil {
				return err
			}
			if added > 0 {
				summary.ReinforcementTasksAdded += added
				changes = append(changes, types.DiffChange{
					Action: "add",
					Type:   "task",
					Skill:  weak.Skill,
					Count:  added,
					Reason: weak.Reason,
				})
			}
		}

		for _, strong := range analysis.StrongSkills {
			marked, err := s.markOptional(ctx, tx, strong.Skill, upcoming)
			if err != nil {
				return err
			}
			if marked > 0 {
				summary.TasksMarkedOptional += marked
				changes = append(changes, types.DiffChange{
					Action: "mark_optional",
					Type:   "task",
					Skill:  strong.Skill,
					Count:  marked,
					Reason: strong.Reason,
				})
			}
		}

		return s.appendDiffLog(ctx, tx, plan, changes)
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// insertReinforcement creates the skill's reinforcement tasks on the
// least-loaded upcoming dates, keeping them the configured number of
// days apart.
func (s *service) insertReinforcement(
	ctx context.Context,
	tx *gorm.DB,
	plan *types.StudyPlan,
	weak SkillSignal,
	dates []planDate,
	counts map[time.Time]int,
) (int, error) {
	if len(dates) == 0 {
		return 0, nil
	}

	refs, err := json.Marshal([]string{weak.Skill})
	if err != nil {
		return 0, err
	}
	content, err := json.Marshal(types.TaskContent{
		AdaptiveNote: fmt.Sprintf("Reinforcement for %s: %s", weak.Skill, weak.Reason),
		Difficulty:   string(types.DifficultyForMastery(weak.Score)),
	})
	if err != nil {
		return 0, err
	}

	var tasks []*types.Task
	var placed []time.Time
	for len(tasks) < s.opts.ReinforcementCount {
		date, ok := pickDate(dates, counts, placed, s.opts.MinSpacingDays)
		if !ok {
			break
		}
		tasks = append(tasks, &types.Task{
			PlanID:           plan.ID,
			DayID:            date.dayID,
			UserID:           plan.UserID,
			Date:             date.date,
			Type:             types.TaskTypePractice,
			Title:            fmt.Sprintf("Reinforce %s", weak.Skill),
			Description:      fmt.Sprintf("Extra practice added because: %s.", weak.Reason),
			SkillRefs:        refs,
			EstimatedMinutes: reinforcementMinutes,
			Status:           types.TaskStatusPending,
			Content:          content,
			CreatedAt:        time.Now().UTC(),
			UpdatedAt:        time.Now().UTC(),
		})
		placed = append(placed, date.date)
		counts[date.date]++
	}
	if len(tasks) == 0 {
		return 0, nil
	}
	if err := s.tasks.CreateBatch(ctx, tx, tasks); err != nil {
		return 0, err
	}
	return len(tasks), nil
}

// markOptional flags the skill's surplus upcoming tasks, keeping the
// first strongTasksKept by date. Status is left untouched.
func (s *service) markOptional(ctx context.Context, tx *gorm.DB, skill string, upcoming []*types.Task) (int, error) {
	var matching []*types.Task
	for _, t := range upcoming {
		if taskReferencesSkill(t, skill) {
			matching = append(matching, t)
		}
	}
	if len(matching) <= strongTasksKept {
		return 0, nil
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].Date.Before(matching[j].Date) })

	marked := 0
	for _, t := range matching[strongTasksKept:] {
		var content types.TaskContent
		if len(t.Content) > 0 {
			if err := json.Unmarshal(t.Content, &content); err != nil {
				return marked, fmt.Errorf("decode task content: %w", err)
			}
		}
		if content.Optional {
			continue
		}
		content.Optional = true
		raw, err := json.Marshal(content)
		if err != nil {
			return marked, err
		}
		t.Content = raw
		if err := s.tasks.Update(ctx, tx, t); err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}

func (s *service) appendDiffLog(ctx context.Context, tx *gorm.DB, plan *types.StudyPlan, changes []types.DiffChange) error {
	var entries []types.DiffLogEntry
	if len(plan.DiffLog) > 0 {
		if err := json.Unmarshal(plan.DiffLog, &entries); err != nil {
			return fmt.Errorf("decode plan diff log: %w", err)
		}
	}
	entries = append(entries, types.DiffLogEntry{
		Timestamp: time.Now().UTC(),
		Changes:   changes,
	})
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	plan.DiffLog = raw
	// The plan's schedule changed, so the next calendar projection must
	// not reuse earlier sync uids.
	plan.CalendarEpoch++
	return s.plans.Update(ctx, tx, plan)
}

type planDate struct {
	date  time.Time
	dayID uuid.UUID
}

// upcomingPlanDates lists the plan's remaining scheduled days, today
// excluded, soonest first.
func (s *service) upcomingPlanDates(ctx context.Context, tx *gorm.DB, plan *types.StudyPlan) ([]planDate, error) {
	days, err := s.plans.ListDays(ctx, tx, plan.ID)
	if err != nil {
		return nil, err
	}
	today := types.DateOnly(time.Now().UTC())
	var dates []planDate
	for _, d := range days {
		if !d.Date.After(today) {
			continue
		}
		dates = append(dates, planDate{date: types.DateOnly(d.Date), dayID: d.ID})
	}
	return dates, nil
}

// pickDate chooses the least-loaded upcoming date at least spacingDays
// away from dates already used for this skill.
func pickDate(dates []planDate, counts map[time.Time]int, placed []time.Time, spacingDays int) (planDate, bool) {
	best := planDate{}
	bestCount := -1
	for _, d := range dates {
		if tooClose(d.date, placed, spacingDays) {
			continue
		}
		if c := counts[d.date]; bestCount == -1 || c < bestCount {
			best = d
			bestCount = c
		}
	}
	return best, bestCount >= 0
}

func tooClose(date time.Time, placed []time.Time, spacingDays int) bool {
	for _, p := range placed {
		gap := date.Sub(p)
		if gap < 0 {
			gap = -gap
		}
		if gap < time.Duration(spacingDays)*24*time.Hour {
			return true
		}
	}
	return false
}

func countTasksByDate(tasks []*types.Task) map[time.Time]int {
	counts := make(map[time.Time]int, len(tasks))
	for _, t := range tasks {
		counts[types.DateOnly(t.Date)]++
	}
	return counts
}

func countTasksBySkill(tasks []*types.Task) map[string]int {
	counts := map[string]int{}
	for _, t := range tasks {
		var refs []string
		if len(t.SkillRefs) == 0 || json.Unmarshal(t.SkillRefs, &refs) != nil {
			continue
		}
		for _, ref := range refs {
			counts[types.CanonicalSkillName(ref)]++
		}
	}
	return counts
}

func taskReferencesSkill(t *types.Task, canonical string) bool {
	var refs []string
	if len(t.SkillRefs) == 0 || json.Unmarshal(t.SkillRefs, &refs) != nil {
		return false
	}
	for _, ref := range refs {
		if types.CanonicalSkillName(ref) == canonical {
			return true
		}
	}
	return false
}
