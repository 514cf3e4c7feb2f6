package repos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/types"
)

type PracticeRepo interface {
	CreateItems(ctx context.Context, tx *gorm.DB, items []*types.PracticeItem) error
	GetItem(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.PracticeItem, error)
	ListItemsByTask(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) ([]*types.PracticeItem, error)
	// GetOrCreateRubric resolves the single rubric for a practice type,
	// seeding it from the supplied criteria on first use.
	GetOrCreateRubric(ctx context.Context, tx *gorm.DB, practiceType types.PracticeType, criteria []types.RubricCriterion) (*types.Rubric, error)
	GetRubric(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Rubric, error)
}

type practiceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPracticeRepo(db *gorm.DB, baseLog *logger.Logger) PracticeRepo {
	return &practiceRepo{db: db, log: baseLog.With("repo", "PracticeRepo")}
}

func (r *practiceRepo) CreateItems(ctx context.Context, tx *gorm.DB, items []*types.PracticeItem) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(items) == 0 {
		return nil
	}
	for _, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
	}
	return transaction.WithContext(ctx).Create(&items).Error
}

func (r *practiceRepo) GetItem(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.PracticeItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.PracticeItem
	err := transaction.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *practiceRepo) ListItemsByTask(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) ([]*types.PracticeItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.PracticeItem
	err := transaction.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *practiceRepo) GetOrCreateRubric(ctx context.Context, tx *gorm.DB, practiceType types.PracticeType, criteria []types.RubricCriterion) (*types.Rubric, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	raw, err := json.Marshal(criteria)
	if err != nil {
		return nil, err
	}
	row := &types.Rubric{
		ID:           uuid.New(),
		PracticeType: practiceType,
		Criteria:     raw,
		CreatedAt:    time.Now().UTC(),
	}
	err = transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "practice_type"}},
			DoNothing: true,
		}).
		Create(row).Error
	if err != nil {
		return nil, err
	}

	var stored types.Rubric
	err = transaction.WithContext(ctx).Where("practice_type = ?", practiceType).Limit(1).Find(&stored).Error
	if err != nil {
		return nil, err
	}
	if stored.ID == uuid.Nil {
		return nil, nil
	}
	return &stored, nil
}

func (r *practiceRepo) GetRubric(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Rubric, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Rubric
	err := transaction.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}
