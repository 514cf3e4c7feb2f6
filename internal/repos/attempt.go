package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/types"
)

type AttemptRepo interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *types.Attempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Attempt, error)
	// SetScore mirrors the evaluation result onto the attempt row.
	SetScore(ctx context.Context, tx *gorm.DB, id uuid.UUID, score float64, feedback string) error
	// ListRecentForUser returns the user's attempts newest first, practice
	// item preloaded so callers can filter by skill without extra reads.
	ListRecentForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.Attempt, error)
	CountByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
	CountSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error)
}

type attemptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttemptRepo(db *gorm.DB, baseLog *logger.Logger) AttemptRepo {
	return &attemptRepo{db: db, log: baseLog.With("repo", "AttemptRepo")}
}

func (r *attemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *types.Attempt) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	return transaction.WithContext(ctx).Create(attempt).Error
}

func (r *attemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Attempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Attempt
	err := transaction.WithContext(ctx).
		Preload("PracticeItem").
		Where("id = ?", id).
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

func (r *attemptRepo) SetScore(ctx context.Context, tx *gorm.DB, id uuid.UUID, score float64, feedback string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Attempt{}).
		Where("id = ?", id).
		Updates(map[string]any{"score": score, "feedback": feedback}).Error
}

func (r *attemptRepo) ListRecentForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.Attempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Attempt
	q := transaction.WithContext(ctx).
		Preload("PracticeItem").
		Where("user_id = ?", userID).
		Order("submitted_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

func (r *attemptRepo) CountSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&types.Attempt{}).
		Where("user_id = ? AND submitted_at >= ?", userID, since).
		Count(&n).Error
	return n, err
}

func (r *attemptRepo) CountByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&types.Attempt{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}
