// Package coach drives the day-to-day loop: the daily briefing and the
// task lifecycle operations (complete, status changes, rescheduling and
// carry-over).
package coach

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
	"github.com/prepcoach/backend/internal/llm"
	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/repos"
	"github.com/prepcoach/backend/internal/types"
)

const (
	maxFocusSkills = 8
	// previewDays and previewLimit bound the upcoming-tasks section of
	// the briefing.
	previewDays  = 7
	previewLimit = 10
	// rescheduleSpreadDays is how many upcoming dates overdue tasks are
	// distributed across.
	rescheduleSpreadDays = 3
	// dailyCapSlack lets a day run 10% over the even weekly split.
	dailyCapSlack    = 1.1
	messageMaxTokens = 512
)

// Briefing is the user's view of one study day.
type Briefing struct {
	Date                 time.Time     `json:"date"`
	Tasks                []*types.Task `json:"tasks"`
	OverdueTasks         []*types.Task `json:"overdue_tasks"`
	TotalTasks           int           `json:"total_tasks"`
	CompletedTasks       int           `json:"completed_tasks"`
	PendingTasks         int           `json:"pending_tasks"`
	OverdueCount         int           `json:"overdue_count"`
	CompletionPercentage float64       `json:"completion_percentage"`
	EstimatedMinutes     int           `json:"estimated_minutes"`
	ActualMinutes        int           `json:"actual_minutes"`
	FocusSkills          []string      `json:"focus_skills"`
	Message              string        `json:"message"`
	Upcoming             []*types.Task `json:"upcoming"`
}

type Service interface {
	Briefing(ctx context.Context, userID uuid.UUID, date time.Time) (*Briefing, error)
	Complete(ctx context.Context, taskID uuid.UUID, actualMinutes *int) (*types.Task, error)
	UpdateStatus(ctx context.Context, taskID uuid.UUID, status types.TaskStatus) (*types.Task, error)
	Reschedule(ctx context.Context, taskID uuid.UUID, newDate time.Time, reason string) (*types.Task, error)
	// CarryOver moves every pending or in-progress task from one date to
	// another and returns the moved task ids.
	CarryOver(ctx context.Context, userID uuid.UUID, fromDate, toDate time.Time) ([]uuid.UUID, error)
	// AutoRescheduleOverdue spreads overdue tasks across the next few
	// days, least-loaded first, under the per-day minute cap. Tasks that
	// fit nowhere stay overdue and are reported as remaining.
	AutoRescheduleOverdue(ctx context.Context, userID uuid.UUID) (*RescheduleOutcome, error)
}

// RescheduleOutcome splits the overdue set into tasks that found a new
// date and tasks that stay overdue.
type RescheduleOutcome struct {
	Moved     []uuid.UUID `json:"moved"`
	Remaining []uuid.UUID `json:"remaining"`
}

type service struct {
	db       *gorm.DB
	tasks    repos.TaskRepo
	plans    repos.PlanRepo
	provider llm.Provider
	genTemp  float64
	log      *logger.Logger
}

func New(
	db *gorm.DB,
	taskRepo repos.TaskRepo,
	planRepo repos.PlanRepo,
	provider llm.Provider,
	genTemp float64,
	baseLog *logger.Logger,
) Service {
	return &service{
		db:       db,
		tasks:    taskRepo,
		plans:    planRepo,
		provider: provider,
		genTemp:  genTemp,
		log:      baseLog.With("service", "DailyCoach"),
	}
}

func (s *service) Briefing(ctx context.Context, userID uuid.UUID, date time.Time) (*Briefing, error) {
	day := types.DateOnly(date)
	tasks, err := s.tasks.ListByUserDate(ctx, nil, userID, day)
	if err != nil {
		return nil, err
	}
	overdue, err := s.tasks.ListOverdue(ctx, nil, userID, day)
	if err != nil {
		return nil, err
	}
	upcoming, err := s.tasks.ListUpcoming(ctx, nil, userID, day, 0)
	if err != nil {
		return nil, err
	}

	b := &Briefing{
		Date:         day,
		Tasks:        tasks,
		OverdueTasks: overdue,
		TotalTasks:   len(tasks),
		OverdueCount: len(overdue),
		Upcoming:     previewTasks(upcoming, day),
	}
	for _, t := range tasks {
		b.EstimatedMinutes += t.EstimatedMinutes
		switch t.Status {
		case types.TaskStatusCompleted:
			b.CompletedTasks++
			if t.ActualMinutes != nil {
				b.ActualMinutes += *t.ActualMinutes
			}
		case types.TaskStatusPending, types.TaskStatusInProgress:
			b.PendingTasks++
		}
	}
	if b.TotalTasks > 0 {
		b.CompletionPercentage = float64(b.CompletedTasks) / float64(b.TotalTasks)
	}
	b.FocusSkills = focusSkills(tasks)
	b.Message = s.motivationalMessage(ctx, b)
	return b, nil
}

// previewTasks keeps upcoming tasks within the preview window and cap.
func previewTasks(upcoming []*types.Task, day time.Time) []*types.Task {
	horizon := day.AddDate(0, 0, previewDays)
	var preview []*types.Task
	for _, t := range upcoming {
		if !t.Date.Before(horizon) {
			break
		}
		preview = append(preview, t)
		if len(preview) == previewLimit {
			break
		}
	}
	return preview
}

// focusSkills is the deduplicated union of the day's skill refs, first
// occurrence order, capped at maxFocusSkills.
func focusSkills(tasks []*types.Task) []string {
	seen := map[string]bool{}
	var skills []string
	for _, t := range tasks {
		var refs []string
		if len(t.SkillRefs) == 0 || json.Unmarshal(t.SkillRefs, &refs) != nil {
			continue
		}
		for _, ref := range refs {
			canonical := types.CanonicalSkillName(ref)
			if seen[canonical] {
				continue
			}
			seen[canonical] = true
			skills = append(skills, canonical)
			if len(skills) == maxFocusSkills {
				return skills
			}
		}
	}
	return skills
}

// motivationalMessage asks the model for one paragraph; any failure
// falls back to a template so the briefing never blocks on it.
func (s *service) motivationalMessage(ctx context.Context, b *Briefing) string {
	ctx = llm.WithPurpose(ctx, "daily-briefing")

	prompt := fmt.Sprintf(
		"Today: %d tasks (%d done, %d pending, %d overdue). Focus skills: %s.\n"+
			"Write one short motivational paragraph for this study day. Plain text, no lists.",
		b.TotalTasks, b.CompletedTasks, b.PendingTasks, b.OverdueCount,
		strings.Join(b.FocusSkills, ", "))

	resp, err := s.provider.Generate(ctx, llm.Request{
		System:      "You are an encouraging but honest interview-preparation coach.",
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   messageMaxTokens,
		Temperature: s.genTemp,
	})
	if err != nil {
		s.log.Warn("Briefing message unavailable, using template", "error", err)
		return templateMessage(b)
	}

	var text string
	if json.Unmarshal(resp.Content, &text) != nil {
		text = strings.TrimSpace(string(resp.Content))
	}
	text = strings.Trim(strings.TrimSpace(text), `"`)
	if text == "" {
		return templateMessage(b)
	}
	return text
}

func templateMessage(b *Briefing) string {
	if b.TotalTasks == 0 {
		return "No tasks scheduled today. A good moment to review earlier material or rest up."
	}
	if len(b.FocusSkills) > 0 {
		return fmt.Sprintf("You have %d tasks today focused on %s. Steady progress beats cramming.",
			b.TotalTasks, strings.Join(b.FocusSkills, ", "))
	}
	return fmt.Sprintf("You have %d tasks today. Steady progress beats cramming.", b.TotalTasks)
}

func (s *service) Complete(ctx context.Context, taskID uuid.UUID, actualMinutes *int) (*types.Task, error) {
	task, err := s.tasks.GetByID(ctx, nil, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperr.NotFound("task %s not found", taskID)
	}

	now := time.Now().UTC()
	task.Status = types.TaskStatusCompleted
	task.CompletedAt = &now
	if actualMinutes != nil {
		task.ActualMinutes = actualMinutes
	}
	if err := s.tasks.Update(ctx, nil, task); err != nil {
		return nil, err
	}
	s.log.Info("Task completed", "task_id", taskID)
	return task, nil
}

func (s *service) UpdateStatus(ctx context.Context, taskID uuid.UUID, status types.TaskStatus) (*types.Task, error) {
	task, err := s.tasks.GetByID(ctx, nil, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperr.NotFound("task %s not found", taskID)
	}
	if !types.AllowedTransition(task.Status, status) {
		return nil, apperr.InvalidTransition("task %s cannot move from %s to %s", taskID, task.Status, status)
	}

	task.Status = status
	if status == types.TaskStatusCompleted && task.CompletedAt == nil {
		now := time.Now().UTC()
		task.CompletedAt = &now
	}
	if err := s.tasks.Update(ctx, nil, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *service) Reschedule(ctx context.Context, taskID uuid.UUID, newDate time.Time, reason string) (*types.Task, error) {
	task, err := s.tasks.GetByID(ctx, nil, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperr.NotFound("task %s not found", taskID)
	}
	plan, err := s.plans.GetByID(ctx, nil, task.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, apperr.NotFound("plan %s not found", task.PlanID)
	}

	day := types.DateOnly(newDate)
	if day.Before(plan.WindowStart()) || !day.Before(plan.WindowEnd()) {
		return nil, apperr.InvalidInput("date %s is outside the plan window", day.Format("2006-01-02"))
	}
	if plan.InterviewDate != nil && !day.Before(types.DateOnly(*plan.InterviewDate)) {
		return nil, apperr.InvalidInput("date %s is not before the interview date", day.Format("2006-01-02"))
	}

	task.Date = day
	if err := s.tasks.Update(ctx, nil, task); err != nil {
		return nil, err
	}
	s.log.Info("Task rescheduled", "task_id", taskID, "date", day, "reason", reason)
	return task, nil
}

func (s *service) CarryOver(ctx context.Context, userID uuid.UUID, fromDate, toDate time.Time) ([]uuid.UUID, error) {
	from := types.DateOnly(fromDate)
	to := types.DateOnly(toDate)

	tasks, err := s.tasks.ListByUserDate(ctx, nil, userID, from)
	if err != nil {
		return nil, err
	}

	var moved []uuid.UUID
	err = db.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		for _, t := range tasks {
			if t.Status != types.TaskStatusPending && t.Status != types.TaskStatusInProgress {
				continue
			}
			t.Date = to
			if err := s.tasks.Update(ctx, tx, t); err != nil {
				return err
			}
			moved = append(moved, t.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(moved) > 0 {
		s.log.Info("Tasks carried over", "user_id", userID, "from", from, "to", to, "count", len(moved))
	}
	return moved, nil
}

func (s *service) AutoRescheduleOverdue(ctx context.Context, userID uuid.UUID) (*RescheduleOutcome, error) {
	today := types.DateOnly(time.Now().UTC())
	overdue, err := s.tasks.ListOverdue(ctx, nil, userID, today)
	if err != nil {
		return nil, err
	}
	if len(overdue) == 0 {
		return &RescheduleOutcome{Moved: []uuid.UUID{}, Remaining: []uuid.UUID{}}, nil
	}

	plan, err := s.plans.ActiveForUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, apperr.NotFound("no active plan for user %s", userID)
	}
	dailyCap := int(plan.HoursPerWeek * 60 * dailyCapSlack / 7)

	outcome := &RescheduleOutcome{Moved: []uuid.UUID{}, Remaining: []uuid.UUID{}}
	err = db.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		loads, err := s.tasks.MinutesByDate(ctx, tx, plan.ID)
		if err != nil {
			return err
		}

		// Targets are dealt to round-robin, ordered once by how many
		// tasks they already carry, emptiest first.
		targets := make([]time.Time, 0, rescheduleSpreadDays)
		counts := map[time.Time]int{}
		for i := 1; i <= rescheduleSpreadDays; i++ {
			date := today.AddDate(0, 0, i)
			existing, err := s.tasks.ListByUserDate(ctx, tx, userID, date)
			if err != nil {
				return err
			}
			targets = append(targets, date)
			counts[date] = len(existing)
		}
		sort.SliceStable(targets, func(i, j int) bool {
			return counts[targets[i]] < counts[targets[j]]
		})

		next := 0
		for _, t := range overdue {
			// A task that fits nowhere stays overdue.
			placed := false
			for tried := 0; tried < len(targets); tried++ {
				date := targets[(next+tried)%len(targets)]
				if loads[date]+t.EstimatedMinutes > dailyCap {
					continue
				}
				t.Date = date
				if err := s.tasks.Update(ctx, tx, t); err != nil {
					return err
				}
				loads[date] += t.EstimatedMinutes
				outcome.Moved = append(outcome.Moved, t.ID)
				next = (next + tried + 1) % len(targets)
				placed = true
				break
			}
			if !placed {
				outcome.Remaining = append(outcome.Remaining, t.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Overdue tasks rescheduled", "user_id", userID,
		"overdue", len(overdue), "moved", len(outcome.Moved), "remaining", len(outcome.Remaining))
	return outcome, nil
}
