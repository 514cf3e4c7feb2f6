package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/types"
)

type GapRepo interface {
	// ReplaceForUser swaps the user's whole gap set. Caller supplies the
	// surrounding transaction so re-analysis stays atomic.
	ReplaceForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, gaps []*types.Gap) error
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Gap, error)
}

type gapRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGapRepo(db *gorm.DB, baseLog *logger.Logger) GapRepo {
	return &gapRepo{db: db, log: baseLog.With("repo", "GapRepo")}
}

func (r *gapRepo) ReplaceForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, gaps []*types.Gap) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Where("user_id = ?", userID).Delete(&types.Gap{}).Error; err != nil {
		return err
	}
	if len(gaps) == 0 {
		return nil
	}
	for _, g := range gaps {
		if g.ID == uuid.Nil {
			g.ID = uuid.New()
		}
	}
	return transaction.WithContext(ctx).Create(&gaps).Error
}

func (r *gapRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Gap, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Gap
	err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
