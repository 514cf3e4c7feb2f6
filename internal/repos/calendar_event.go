package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/types"
)

type CalendarEventRepo interface {
	// ReplaceForPlan drops every event for the plan and writes the new
	// projection in one pass.
	ReplaceForPlan(ctx context.Context, tx *gorm.DB, planID uuid.UUID, events []*types.CalendarEvent) error
	ListByPlan(ctx context.Context, tx *gorm.DB, planID uuid.UUID) ([]*types.CalendarEvent, error)
}

type calendarEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCalendarEventRepo(db *gorm.DB, baseLog *logger.Logger) CalendarEventRepo {
	return &calendarEventRepo{db: db, log: baseLog.With("repo", "CalendarEventRepo")}
}

func (r *calendarEventRepo) ReplaceForPlan(ctx context.Context, tx *gorm.DB, planID uuid.UUID, events []*types.CalendarEvent) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Where("plan_id = ?", planID).Delete(&types.CalendarEvent{}).Error; err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	for _, ev := range events {
		if ev.ID == uuid.Nil {
			ev.ID = uuid.New()
		}
	}
	return transaction.WithContext(ctx).Create(&events).Error
}

func (r *calendarEventRepo) ListByPlan(ctx context.Context, tx *gorm.DB, planID uuid.UUID) ([]*types.CalendarEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.CalendarEvent
	err := transaction.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("start ASC").
		Find(&rows).Error
	return rows, err
}
