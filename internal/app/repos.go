package app

import (
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/repos"
)

type Repos struct {
	User          repos.UserRepo
	Document      repos.DocumentRepo
	Skill         repos.SkillRepo
	Evidence      repos.EvidenceRepo
	Gap           repos.GapRepo
	Plan          repos.PlanRepo
	Task          repos.TaskRepo
	Practice      repos.PracticeRepo
	Attempt       repos.AttemptRepo
	Evaluation    repos.EvaluationRepo
	Mastery       repos.MasteryRepo
	CalendarEvent repos.CalendarEventRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:          repos.NewUserRepo(db, log),
		Document:      repos.NewDocumentRepo(db, log),
		Skill:         repos.NewSkillRepo(db, log),
		Evidence:      repos.NewEvidenceRepo(db, log),
		Gap:           repos.NewGapRepo(db, log),
		Plan:          repos.NewPlanRepo(db, log),
		Task:          repos.NewTaskRepo(db, log),
		Practice:      repos.NewPracticeRepo(db, log),
		Attempt:       repos.NewAttemptRepo(db, log),
		Evaluation:    repos.NewEvaluationRepo(db, log),
		Mastery:       repos.NewMasteryRepo(db, log),
		CalendarEvent: repos.NewCalendarEventRepo(db, log),
	}
}
