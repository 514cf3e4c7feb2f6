// Package pipeline coordinates the coaching transforms end to end:
// document intake, extraction, gap analysis, planning, daily coaching,
// practice, evaluation, mastery and adaptation. Each operation takes
// the locks it needs and bounds its model calls with the configured
// deadline.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/prepcoach/backend/internal/adaptive"
	"github.com/prepcoach/backend/internal/apperr"
	"github.com/prepcoach/backend/internal/calendar"
	"github.com/prepcoach/backend/internal/coach"
	"github.com/prepcoach/backend/internal/evaluator"
	"github.com/prepcoach/backend/internal/extractor"
	"github.com/prepcoach/backend/internal/gaps"
	"github.com/prepcoach/backend/internal/locks"
	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/mastery"
	"github.com/prepcoach/backend/internal/observability"
	"github.com/prepcoach/backend/internal/parsing"
	"github.com/prepcoach/backend/internal/planner"
	"github.com/prepcoach/backend/internal/practice"
	"github.com/prepcoach/backend/internal/repos"
	"github.com/prepcoach/backend/internal/types"
)

// Orchestrator is the single entry point callers use; it owns the
// cross-service sequencing the individual services stay ignorant of.
type Orchestrator struct {
	users     repos.UserRepo
	documents repos.DocumentRepo
	gapRepo   repos.GapRepo
	planRepo  repos.PlanRepo
	items     repos.PracticeRepo
	attempts  repos.AttemptRepo

	extractor extractor.Service
	gaps      gaps.Service
	planner   planner.Service
	practice  practice.Service
	evaluator evaluator.Service
	mastery   mastery.Service
	adaptive  adaptive.Service
	coach     coach.Service
	calendar  calendar.Service

	parse      parsing.Parse
	locks      locks.Manager
	llmTimeout time.Duration
	log        *logger.Logger
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Users     repos.UserRepo
	Documents repos.DocumentRepo
	Gaps      repos.GapRepo
	Plans     repos.PlanRepo
	Items     repos.PracticeRepo
	Attempts  repos.AttemptRepo

	Extractor extractor.Service
	GapSvc    gaps.Service
	Planner   planner.Service
	Practice  practice.Service
	Evaluator evaluator.Service
	Mastery   mastery.Service
	Adaptive  adaptive.Service
	Coach     coach.Service
	Calendar  calendar.Service

	Parse      parsing.Parse
	Locks      locks.Manager
	LLMTimeout time.Duration
}

func New(d Deps, baseLog *logger.Logger) *Orchestrator {
	if d.LLMTimeout <= 0 {
		d.LLMTimeout = 30 * time.Second
	}
	if d.Parse == nil {
		d.Parse = parsing.PlainText
	}
	return &Orchestrator{
		users:      d.Users,
		documents:  d.Documents,
		gapRepo:    d.Gaps,
		planRepo:   d.Plans,
		items:      d.Items,
		attempts:   d.Attempts,
		extractor:  d.Extractor,
		gaps:       d.GapSvc,
		planner:    d.Planner,
		practice:   d.Practice,
		evaluator:  d.Evaluator,
		mastery:    d.Mastery,
		adaptive:   d.Adaptive,
		coach:      d.Coach,
		calendar:   d.Calendar,
		parse:      d.Parse,
		locks:      d.Locks,
		llmTimeout: d.LLMTimeout,
		log:        baseLog.With("service", "Orchestrator"),
	}
}

func (o *Orchestrator) span(ctx context.Context, name string) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, name)
}

func userLockKey(id uuid.UUID) string { return "user:" + id.String() }
func planLockKey(id uuid.UUID) string { return "plan:" + id.String() }

// UploadDocument parses and stores a resume or job description.
func (o *Orchestrator) UploadDocument(ctx context.Context, userID uuid.UUID, kind types.DocumentKind, fileName string, data []byte) (*types.Document, error) {
	ctx, span := o.span(ctx, "pipeline.upload_document")
	defer span.End()

	if kind != types.DocumentKindResume && kind != types.DocumentKindJD {
		return nil, apperr.InvalidInput("unknown document kind %q", kind)
	}
	user, err := o.users.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("user %s not found", userID)
	}

	parsed, err := o.parse(data)
	if err != nil {
		return nil, apperr.ParseFailure(err, "document %s could not be parsed", fileName)
	}
	sections, err := json.Marshal(parsed.Sections)
	if err != nil {
		return nil, err
	}
	chunks, err := json.Marshal(parsed.Chunks)
	if err != nil {
		return nil, err
	}

	doc := &types.Document{
		UserID:    userID,
		Kind:      kind,
		FileName:  fileName,
		Content:   string(data),
		Sections:  sections,
		Chunks:    chunks,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.documents.Create(ctx, nil, doc); err != nil {
		return nil, err
	}
	o.log.Info("Document uploaded", "document_id", doc.ID, "kind", kind, "sections", len(parsed.Sections))
	return doc, nil
}

// ExtractSkills runs evidence-verified skill extraction over a document.
func (o *Orchestrator) ExtractSkills(ctx context.Context, documentID uuid.UUID) ([]*types.SkillEvidence, error) {
	ctx, span := o.span(ctx, "pipeline.extract_skills")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	defer cancel()
	return o.extractor.Extract(ctx, documentID)
}

// AnalyzeGaps recomputes the user's gap set. Zero document ids mean
// "the user's latest" of that kind.
func (o *Orchestrator) AnalyzeGaps(ctx context.Context, userID, resumeDocID, jdDocID uuid.UUID) (*gaps.Report, error) {
	ctx, span := o.span(ctx, "pipeline.analyze_gaps")
	defer span.End()

	release, err := o.locks.Acquire(ctx, userLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()

	if resumeDocID == uuid.Nil {
		if resumeDocID, err = o.latestDocumentID(ctx, userID, types.DocumentKindResume); err != nil {
			return nil, err
		}
	}
	if jdDocID == uuid.Nil {
		if jdDocID, err = o.latestDocumentID(ctx, userID, types.DocumentKindJD); err != nil {
			return nil, err
		}
	}
	return o.gaps.Analyze(ctx, userID, resumeDocID, jdDocID)
}

func (o *Orchestrator) latestDocumentID(ctx context.Context, userID uuid.UUID, kind types.DocumentKind) (uuid.UUID, error) {
	doc, err := o.documents.LatestForUser(ctx, nil, userID, kind)
	if err != nil {
		return uuid.Nil, err
	}
	if doc == nil {
		return uuid.Nil, apperr.NotFound("no %s document for user %s", kind, userID)
	}
	return doc.ID, nil
}

// GeneratePlan synthesizes and activates a new study plan.
func (o *Orchestrator) GeneratePlan(ctx context.Context, userID uuid.UUID, c planner.Constraints) (*types.StudyPlan, error) {
	ctx, span := o.span(ctx, "pipeline.generate_plan")
	defer span.End()

	release, err := o.locks.Acquire(ctx, userLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	defer cancel()
	return o.planner.Synthesize(ctx, userID, c)
}

// GetBriefing builds the user's daily briefing.
func (o *Orchestrator) GetBriefing(ctx context.Context, userID uuid.UUID, date time.Time) (*coach.Briefing, error) {
	ctx, span := o.span(ctx, "pipeline.get_briefing")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	defer cancel()
	return o.coach.Briefing(ctx, userID, date)
}

// CompleteTask marks a task completed.
func (o *Orchestrator) CompleteTask(ctx context.Context, taskID uuid.UUID, actualMinutes *int) (*types.Task, error) {
	ctx, span := o.span(ctx, "pipeline.complete_task")
	defer span.End()
	return o.coach.Complete(ctx, taskID, actualMinutes)
}

// UpdateTaskStatus applies an allowed status transition.
func (o *Orchestrator) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status types.TaskStatus) (*types.Task, error) {
	ctx, span := o.span(ctx, "pipeline.update_task")
	defer span.End()
	return o.coach.UpdateStatus(ctx, taskID, status)
}

// RescheduleTask moves a task to a new date inside the plan window.
func (o *Orchestrator) RescheduleTask(ctx context.Context, taskID uuid.UUID, newDate time.Time, reason string) (*types.Task, error) {
	ctx, span := o.span(ctx, "pipeline.reschedule_task")
	defer span.End()
	return o.coach.Reschedule(ctx, taskID, newDate, reason)
}

// CarryOver moves a day's unfinished tasks to another date.
func (o *Orchestrator) CarryOver(ctx context.Context, userID uuid.UUID, fromDate, toDate time.Time) ([]uuid.UUID, error) {
	ctx, span := o.span(ctx, "pipeline.carry_over")
	defer span.End()

	release, err := o.locks.Acquire(ctx, userLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()
	return o.coach.CarryOver(ctx, userID, fromDate, toDate)
}

// AutoRescheduleOverdue spreads overdue tasks over the coming days and
// reports which tasks found a slot and which stay overdue.
func (o *Orchestrator) AutoRescheduleOverdue(ctx context.Context, userID uuid.UUID) (*coach.RescheduleOutcome, error) {
	ctx, span := o.span(ctx, "pipeline.auto_reschedule_overdue")
	defer span.End()

	release, err := o.locks.Acquire(ctx, userLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()
	return o.coach.AutoRescheduleOverdue(ctx, userID)
}

// GeneratePractice creates practice items for a task.
func (o *Orchestrator) GeneratePractice(ctx context.Context, taskID uuid.UUID, practiceType types.PracticeType, count int) ([]*types.PracticeItem, error) {
	ctx, span := o.span(ctx, "pipeline.generate_practice")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	defer cancel()
	return o.practice.Generate(ctx, taskID, practiceType, count)
}

// SubmitResult is what a submission returns. Evaluation may carry the
// degraded default when grading was unavailable.
type SubmitResult struct {
	Attempt    *types.Attempt    `json:"attempt"`
	Evaluation *types.Evaluation `json:"evaluation,omitempty"`
}

// SubmitAttempt persists the answer, then runs grading, mastery update
// and adaptive analysis. Once the attempt row exists, downstream
// failures are logged and the submission still succeeds.
func (o *Orchestrator) SubmitAttempt(ctx context.Context, userID, practiceItemID uuid.UUID, answer string, timeSpentSeconds *int) (*SubmitResult, error) {
	ctx, span := o.span(ctx, "pipeline.submit_attempt")
	defer span.End()

	if answer == "" {
		return nil, apperr.InvalidInput("answer must not be empty")
	}
	item, err := o.items.GetItem(ctx, nil, practiceItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("practice item %s not found", practiceItemID)
	}

	attempt := &types.Attempt{
		UserID:           userID,
		PracticeItemID:   item.ID,
		TaskID:           item.TaskID,
		Answer:           answer,
		TimeSpentSeconds: timeSpentSeconds,
		SubmittedAt:      time.Now().UTC(),
	}
	if err := o.attempts.Create(ctx, nil, attempt); err != nil {
		return nil, err
	}
	result := &SubmitResult{Attempt: attempt}

	release, err := o.locks.Acquire(ctx, userLockKey(userID))
	if err != nil {
		o.log.Warn("User lock unavailable, evaluation skipped after attempt persisted",
			"attempt_id", attempt.ID, "error", err)
		return result, nil
	}
	defer release()

	evalCtx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	eval, err := o.evaluator.Evaluate(evalCtx, attempt.ID)
	cancel()
	if err != nil {
		o.log.Error("Evaluation failed after attempt persisted", "attempt_id", attempt.ID, "error", err)
		return result, nil
	}
	result.Evaluation = eval

	refs, err := itemSkillRefs(item)
	if err != nil {
		o.log.Error("Skill refs undecodable, mastery not updated", "attempt_id", attempt.ID, "error", err)
		return result, nil
	}
	if err := o.mastery.Update(ctx, userID, attempt.ID, refs, eval.OverallScore); err != nil {
		o.log.Error("Mastery update failed", "attempt_id", attempt.ID, "error", err)
		return result, nil
	}

	o.analyzeAfterAttempt(ctx, userID)
	return result, nil
}

// analyzeAfterAttempt runs a read-only adaptation pass so the analysis
// stays warm; failures only log.
func (o *Orchestrator) analyzeAfterAttempt(ctx context.Context, userID uuid.UUID) {
	plan, err := o.planRepo.ActiveForUser(ctx, nil, userID)
	if err != nil || plan == nil {
		if err != nil {
			o.log.Error("Active plan lookup failed", "user_id", userID, "error", err)
		}
		return
	}
	if _, err := o.adaptive.Adapt(ctx, userID, plan.ID, false); err != nil {
		o.log.Error("Post-attempt adaptation analysis failed", "plan_id", plan.ID, "error", err)
	}
}

// GetMasteryStats summarizes the user's mastery records.
func (o *Orchestrator) GetMasteryStats(ctx context.Context, userID uuid.UUID) (*mastery.Stats, error) {
	ctx, span := o.span(ctx, "pipeline.get_mastery_stats")
	defer span.End()
	return o.mastery.Stats(ctx, userID)
}

// Adapt analyzes the plan and optionally applies the changes.
func (o *Orchestrator) Adapt(ctx context.Context, userID, planID uuid.UUID, apply bool) (*adaptive.Result, error) {
	ctx, span := o.span(ctx, "pipeline.adapt_plan")
	defer span.End()

	release, err := o.locks.Acquire(ctx, planLockKey(planID))
	if err != nil {
		return nil, err
	}
	defer release()
	return o.adaptive.Adapt(ctx, userID, planID, apply)
}

// ProjectCalendar rebuilds the plan's calendar events.
func (o *Orchestrator) ProjectCalendar(ctx context.Context, planID uuid.UUID) ([]*types.CalendarEvent, error) {
	ctx, span := o.span(ctx, "pipeline.project_calendar")
	defer span.End()

	release, err := o.locks.Acquire(ctx, planLockKey(planID))
	if err != nil {
		return nil, err
	}
	defer release()
	return o.calendar.Project(ctx, planID)
}

// ListGaps returns the user's current gap set, highest priority first.
func (o *Orchestrator) ListGaps(ctx context.Context, userID uuid.UUID) ([]*types.Gap, error) {
	return o.gapRepo.ListByUser(ctx, nil, userID)
}

func itemSkillRefs(item *types.PracticeItem) ([]string, error) {
	if len(item.SkillRefs) == 0 {
		return nil, nil
	}
	var refs []string
	if err := json.Unmarshal(item.SkillRefs, &refs); err != nil {
		return nil, fmt.Errorf("decode item skill refs: %w", err)
	}
	return refs, nil
}
