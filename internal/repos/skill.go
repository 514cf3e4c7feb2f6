package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/types"
)

type SkillRepo interface {
	// UpsertByCanonicalName creates the skill if absent and returns the
	// stored row either way. Safe under concurrent callers.
	UpsertByCanonicalName(ctx context.Context, tx *gorm.DB, displayName string, category types.SkillCategory) (*types.Skill, error)
	GetByCanonicalName(ctx context.Context, tx *gorm.DB, canonical string) (*types.Skill, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Skill, error)
	ListByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Skill, error)
}

type skillRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSkillRepo(db *gorm.DB, baseLog *logger.Logger) SkillRepo {
	return &skillRepo{db: db, log: baseLog.With("repo", "SkillRepo")}
}

func (r *skillRepo) UpsertByCanonicalName(ctx context.Context, tx *gorm.DB, displayName string, category types.SkillCategory) (*types.Skill, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	canonical := types.CanonicalSkillName(displayName)
	now := time.Now().UTC()
	row := &types.Skill{
		ID:            uuid.New(),
		CanonicalName: canonical,
		DisplayName:   displayName,
		Category:      category,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	// DoNothing keeps the first writer's row; the follow-up read returns
	// whichever row won the race.
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "canonical_name"}},
			DoNothing: true,
		}).
		Create(row).Error
	if err != nil {
		return nil, err
	}
	return r.GetByCanonicalName(ctx, transaction, canonical)
}

func (r *skillRepo) GetByCanonicalName(ctx context.Context, tx *gorm.DB, canonical string) (*types.Skill, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Skill
	err := transaction.WithContext(ctx).Where("canonical_name = ?", canonical).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *skillRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Skill, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Skill
	err := transaction.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *skillRepo) ListByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Skill, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []*types.Skill
	err := transaction.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}
