package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/types"
)

type EvaluationRepo interface {
	// ReplaceForAttempt keeps at most one evaluation per attempt; a
	// re-evaluation overwrites the previous row.
	ReplaceForAttempt(ctx context.Context, tx *gorm.DB, eval *types.Evaluation) error
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) (*types.Evaluation, error)
}

type evaluationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEvaluationRepo(db *gorm.DB, baseLog *logger.Logger) EvaluationRepo {
	return &evaluationRepo{db: db, log: baseLog.With("repo", "EvaluationRepo")}
}

func (r *evaluationRepo) ReplaceForAttempt(ctx context.Context, tx *gorm.DB, eval *types.Evaluation) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if eval.ID == uuid.Nil {
		eval.ID = uuid.New()
	}
	err := transaction.WithContext(ctx).
		Where("attempt_id = ?", eval.AttemptID).
		Delete(&types.Evaluation{}).Error
	if err != nil {
		return err
	}
	return transaction.WithContext(ctx).Create(eval).Error
}

func (r *evaluationRepo) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) (*types.Evaluation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Evaluation
	err := transaction.WithContext(ctx).Where("attempt_id = ?", attemptID).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}
