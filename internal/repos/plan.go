package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/types"
)

type PlanRepo interface {
	Create(ctx context.Context, tx *gorm.DB, plan *types.StudyPlan) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.StudyPlan, error)
	ActiveForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.StudyPlan, error)
	// DeactivateForUser clears the active flag on all of the user's
	// plans; called before creating a replacement.
	DeactivateForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
	Update(ctx context.Context, tx *gorm.DB, plan *types.StudyPlan) error
	CreateWeeks(ctx context.Context, tx *gorm.DB, weeks []*types.Week) error
	CreateDays(ctx context.Context, tx *gorm.DB, days []*types.Day) error
	ListWeeks(ctx context.Context, tx *gorm.DB, planID uuid.UUID) ([]*types.Week, error)
	ListDays(ctx context.Context, tx *gorm.DB, planID uuid.UUID) ([]*types.Day, error)
	FindDayByDate(ctx context.Context, tx *gorm.DB, planID uuid.UUID, date time.Time) (*types.Day, error)
}

type planRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlanRepo(db *gorm.DB, baseLog *logger.Logger) PlanRepo {
	return &planRepo{db: db, log: baseLog.With("repo", "PlanRepo")}
}

func (r *planRepo) Create(ctx context.Context, tx *gorm.DB, plan *types.StudyPlan) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	return transaction.WithContext(ctx).Create(plan).Error
}

func (r *planRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.StudyPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.StudyPlan
	err := transaction.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *planRepo) ActiveForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.StudyPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.StudyPlan
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Order("created_at DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *planRepo) DeactivateForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.StudyPlan{}).
		Where("user_id = ? AND active = ?", userID, true).
		Update("active", false).Error
}

func (r *planRepo) Update(ctx context.Context, tx *gorm.DB, plan *types.StudyPlan) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	plan.UpdatedAt = time.Now().UTC()
	return transaction.WithContext(ctx).Save(plan).Error
}

func (r *planRepo) CreateWeeks(ctx context.Context, tx *gorm.DB, weeks []*types.Week) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(weeks) == 0 {
		return nil
	}
	for _, w := range weeks {
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
	}
	return transaction.WithContext(ctx).Create(&weeks).Error
}

func (r *planRepo) CreateDays(ctx context.Context, tx *gorm.DB, days []*types.Day) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(days) == 0 {
		return nil
	}
	for _, d := range days {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
	}
	return transaction.WithContext(ctx).Create(&days).Error
}

func (r *planRepo) ListWeeks(ctx context.Context, tx *gorm.DB, planID uuid.UUID) ([]*types.Week, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Week
	err := transaction.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("week_number ASC").
		Find(&rows).Error
	return rows, err
}

func (r *planRepo) ListDays(ctx context.Context, tx *gorm.DB, planID uuid.UUID) ([]*types.Day, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Day
	err := transaction.WithContext(ctx).
		Joins("JOIN weeks ON weeks.id = days.week_id").
		Where("weeks.plan_id = ?", planID).
		Order("days.date ASC").
		Find(&rows).Error
	return rows, err
}

func (r *planRepo) FindDayByDate(ctx context.Context, tx *gorm.DB, planID uuid.UUID, date time.Time) (*types.Day, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Day
	err := transaction.WithContext(ctx).
		Joins("JOIN weeks ON weeks.id = days.week_id").
		Where("weeks.plan_id = ? AND days.date = ?", planID, types.DateOnly(date)).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}
