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

type MasteryRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, record *types.Mastery) error
	Get(ctx context.Context, tx *gorm.DB, userID, skillID uuid.UUID) (*types.Mastery, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Mastery, error)
}

type masteryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMasteryRepo(db *gorm.DB, baseLog *logger.Logger) MasteryRepo {
	return &masteryRepo{db: db, log: baseLog.With("repo", "MasteryRepo")}
}

func (r *masteryRepo) Upsert(ctx context.Context, tx *gorm.DB, record *types.Mastery) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "skill_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"score", "last_practiced", "practice_count", "trend", "updated_at",
			}),
		}).
		Create(record).Error
}

func (r *masteryRepo) Get(ctx context.Context, tx *gorm.DB, userID, skillID uuid.UUID) (*types.Mastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Mastery
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND skill_id = ?", userID, skillID).
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

func (r *masteryRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Mastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Mastery
	err := transaction.WithContext(ctx).
		Preload("Skill").
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&rows).Error
	return rows, err
}
