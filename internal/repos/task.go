package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/types"
)

type TaskRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, tasks []*types.Task) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Task, error)
	ListByUserDate(ctx context.Context, tx *gorm.DB, userID uuid.UUID, date time.Time) ([]*types.Task, error)
	ListByPlan(ctx context.Context, tx *gorm.DB, planID uuid.UUID) ([]*types.Task, error)
	ListByPlanStatus(ctx context.Context, tx *gorm.DB, planID uuid.UUID, statuses []types.TaskStatus) ([]*types.Task, error)
	// ListUpcoming returns pending tasks for the user dated strictly after
	// the given day, soonest first.
	ListUpcoming(ctx context.Context, tx *gorm.DB, userID uuid.UUID, after time.Time, limit int) ([]*types.Task, error)
	// ListOverdue returns pending or in-progress tasks dated strictly
	// before the given day, oldest first.
	ListOverdue(ctx context.Context, tx *gorm.DB, userID uuid.UUID, before time.Time) ([]*types.Task, error)
	Update(ctx context.Context, tx *gorm.DB, task *types.Task) error
	// MinutesByDate sums estimated minutes of non-skipped tasks per day for
	// the plan, used when rescheduling against the daily cap.
	MinutesByDate(ctx context.Context, tx *gorm.DB, planID uuid.UUID) (map[time.Time]int, error)
}

type taskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return &taskRepo{db: db, log: baseLog.With("repo", "TaskRepo")}
}

func (r *taskRepo) CreateBatch(ctx context.Context, tx *gorm.DB, tasks []*types.Task) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(tasks) == 0 {
		return nil
	}
	for _, t := range tasks {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
	}
	return transaction.WithContext(ctx).Create(&tasks).Error
}

func (r *taskRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Task
	err := transaction.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *taskRepo) ListByUserDate(ctx context.Context, tx *gorm.DB, userID uuid.UUID, date time.Time) ([]*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Task
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, types.DateOnly(date)).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *taskRepo) ListByPlan(ctx context.Context, tx *gorm.DB, planID uuid.UUID) ([]*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Task
	err := transaction.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("date ASC, created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *taskRepo) ListByPlanStatus(ctx context.Context, tx *gorm.DB, planID uuid.UUID, statuses []types.TaskStatus) ([]*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Task
	err := transaction.WithContext(ctx).
		Where("plan_id = ? AND status IN ?", planID, statuses).
		Order("date ASC, created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *taskRepo) ListUpcoming(ctx context.Context, tx *gorm.DB, userID uuid.UUID, after time.Time, limit int) ([]*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Task
	q := transaction.WithContext(ctx).
		Where("user_id = ? AND date > ? AND status = ?", userID, types.DateOnly(after), types.TaskStatusPending).
		Order("date ASC, created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

func (r *taskRepo) ListOverdue(ctx context.Context, tx *gorm.DB, userID uuid.UUID, before time.Time) ([]*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Task
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND date < ? AND status IN ?",
			userID, types.DateOnly(before),
			[]types.TaskStatus{types.TaskStatusPending, types.TaskStatusInProgress}).
		Order("date ASC, created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *taskRepo) Update(ctx context.Context, tx *gorm.DB, task *types.Task) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	task.UpdatedAt = time.Now().UTC()
	return transaction.WithContext(ctx).Save(task).Error
}

func (r *taskRepo) MinutesByDate(ctx context.Context, tx *gorm.DB, planID uuid.UUID) (map[time.Time]int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Task
	err := transaction.WithContext(ctx).
		Select("date", "estimated_minutes", "status").
		Where("plan_id = ? AND status <> ?", planID, types.TaskStatusSkipped).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	totals := make(map[time.Time]int, len(rows))
	for _, t := range rows {
		totals[types.DateOnly(t.Date)] += t.EstimatedMinutes
	}
	return totals, nil
}
