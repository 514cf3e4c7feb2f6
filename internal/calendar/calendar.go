// Package calendar projects a study plan's tasks into calendar events.
// Serializing the events into a concrete calendar format is left to an
// external consumer.
package calendar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/apperr"
	"github.com/prepcoach/backend/internal/db"
	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/repos"
	"github.com/prepcoach/backend/internal/types"
)

// DefaultStartHour is the local hour tasks are slotted at.
const DefaultStartHour = 9

type Service interface {
	// Project rebuilds the plan's calendar events under the plan's
	// current epoch, so projecting an unchanged plan twice reproduces
	// the same sync uids. Skipped tasks are left out.
	Project(ctx context.Context, planID uuid.UUID) ([]*types.CalendarEvent, error)
	ListForPlan(ctx context.Context, planID uuid.UUID) ([]*types.CalendarEvent, error)
}

type service struct {
	db        *gorm.DB
	plans     repos.PlanRepo
	tasks     repos.TaskRepo
	events    repos.CalendarEventRepo
	startHour int
	log       *logger.Logger
}

func New(
	db *gorm.DB,
	planRepo repos.PlanRepo,
	taskRepo repos.TaskRepo,
	eventRepo repos.CalendarEventRepo,
	startHour int,
	baseLog *logger.Logger,
) Service {
	if startHour < 0 || startHour > 23 {
		startHour = DefaultStartHour
	}
	return &service{
		db:        db,
		plans:     planRepo,
		tasks:     taskRepo,
		events:    eventRepo,
		startHour: startHour,
		log:       baseLog.With("service", "CalendarProjector"),
	}
}

func (s *service) Project(ctx context.Context, planID uuid.UUID) ([]*types.CalendarEvent, error) {
	plan, err := s.plans.GetByID(ctx, nil, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, apperr.NotFound("plan %s not found", planID)
	}
	tasks, err := s.tasks.ListByPlan(ctx, nil, planID)
	if err != nil {
		return nil, err
	}

	epoch := plan.CalendarEpoch
	now := time.Now().UTC()
	var events []*types.CalendarEvent
	for _, t := range tasks {
		if t.Status == types.TaskStatusSkipped {
			continue
		}
		start := time.Date(t.Date.Year(), t.Date.Month(), t.Date.Day(),
			s.startHour, 0, 0, 0, t.Date.Location())
		events = append(events, &types.CalendarEvent{
			PlanID:      planID,
			TaskID:      t.ID,
			Epoch:       epoch,
			Start:       start,
			End:         start.Add(time.Duration(t.EstimatedMinutes) * time.Minute),
			Title:       t.Title,
			Description: t.Description,
			SyncUID:     SyncUID(t.ID, epoch),
			CreatedAt:   now,
		})
	}

	err = db.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		return s.events.ReplaceForPlan(ctx, tx, planID, events)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Calendar projected", "plan_id", planID, "epoch", epoch, "events", len(events))
	return events, nil
}

func (s *service) ListForPlan(ctx context.Context, planID uuid.UUID) ([]*types.CalendarEvent, error) {
	return s.events.ListByPlan(ctx, nil, planID)
}

// SyncUID derives a stable identifier for a task within one projection
// epoch, so re-projections under the same epoch reproduce it exactly.
func SyncUID(taskID uuid.UUID, epoch int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", taskID, epoch)))
	return hex.EncodeToString(sum[:16])
}
