package app

import (
	"context"

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
	"github.com/prepcoach/backend/internal/pipeline"
	"github.com/prepcoach/backend/internal/planner"
	"github.com/prepcoach/backend/internal/practice"
	"github.com/prepcoach/backend/internal/vector"
)

type Services struct {
	Provider  llm.Provider
	Locks     locks.Manager
	Vectors   vector.Store
	Extractor extractor.Service
	Gaps      gaps.Service
	Planner   planner.Service
	Practice  practice.Service
	Evaluator evaluator.Service
	Mastery   mastery.Service
	Adaptive  adaptive.Service
	Coach     coach.Service
	Calendar  calendar.Service
}

func wireServices(ctx context.Context, db *gorm.DB, cfg Config, r Repos, log *logger.Logger) (Services, error) {
	log.Info("Wiring services...")

	provider, err := llm.NewProvider(ctx, cfg.LLM, log)
	if err != nil {
		return Services{}, err
	}

	var lockMgr locks.Manager
	if cfg.RedisAddr != "" {
		lockMgr = locks.NewRedisManager(cfg.RedisAddr, log)
	} else {
		lockMgr = locks.NewKeyedMutex()
	}

	// Chunk embeddings are produced by an external indexer; the no-op
	// store keeps the boundary wired until one is attached.
	var vectors vector.Store = vector.Noop{}

	return Services{
		Provider:  provider,
		Locks:     lockMgr,
		Vectors:   vectors,
		Extractor: extractor.New(db, r.Document, r.Skill, r.Evidence, provider, vectors, cfg.LLM.GenTemperature, log),
		Gaps:      gaps.New(db, r.Document, r.Skill, r.Evidence, r.Gap, log),
		Planner:   planner.New(db, r.Gap, r.Skill, r.Plan, r.Task, provider, cfg.LLM.GenTemperature, cfg.PlannerTolerance, log),
		Practice:  practice.New(db, r.Task, r.Skill, r.Mastery, r.Practice, provider, cfg.LLM.GenTemperature, cfg.PracticeMaxParallel, log),
		Evaluator: evaluator.New(db, r.Attempt, r.Practice, r.Evaluation, provider, cfg.LLM.EvalTemperature, log),
		Mastery:   mastery.New(db, r.Skill, r.Attempt, r.Mastery, log),
		Adaptive:  adaptive.New(db, r.Plan, r.Task, r.Mastery, cfg.Adaptive, log),
		Coach:     coach.New(db, r.Task, r.Plan, provider, cfg.LLM.GenTemperature, log),
		Calendar:  calendar.New(db, r.Plan, r.Task, r.CalendarEvent, cfg.CoachStartHour, log),
	}, nil
}

func wireOrchestrator(cfg Config, r Repos, s Services, log *logger.Logger) *pipeline.Orchestrator {
	return pipeline.New(pipeline.Deps{
		Users:     r.User,
		Documents: r.Document,
		Gaps:      r.Gap,
		Plans:     r.Plan,
		Items:     r.Practice,
		Attempts:  r.Attempt,

		Extractor: s.Extractor,
		GapSvc:    s.Gaps,
		Planner:   s.Planner,
		Practice:  s.Practice,
		Evaluator: s.Evaluator,
		Mastery:   s.Mastery,
		Adaptive:  s.Adaptive,
		Coach:     s.Coach,
		Calendar:  s.Calendar,

		Locks:      s.Locks,
		LLMTimeout: cfg.LLM.Timeout,
	}, log)
}
