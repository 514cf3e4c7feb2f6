package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/types"
)

type EvidenceRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, evidence []*types.SkillEvidence) error
	ListByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.SkillEvidence, error)
	ListByDocumentSkill(ctx context.Context, tx *gorm.DB, documentID, skillID uuid.UUID) ([]*types.SkillEvidence, error)
	DeleteByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error
}

type evidenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEvidenceRepo(db *gorm.DB, baseLog *logger.Logger) EvidenceRepo {
	return &evidenceRepo{db: db, log: baseLog.With("repo", "EvidenceRepo")}
}

func (r *evidenceRepo) CreateBatch(ctx context.Context, tx *gorm.DB, evidence []*types.SkillEvidence) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(evidence) == 0 {
		return nil
	}
	for _, ev := range evidence {
		if ev.ID == uuid.Nil {
			ev.ID = uuid.New()
		}
	}
	return transaction.WithContext(ctx).Create(&evidence).Error
}

func (r *evidenceRepo) ListByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.SkillEvidence, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.SkillEvidence
	err := transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *evidenceRepo) ListByDocumentSkill(ctx context.Context, tx *gorm.DB, documentID, skillID uuid.UUID) ([]*types.SkillEvidence, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.SkillEvidence
	err := transaction.WithContext(ctx).
		Where("document_id = ? AND skill_id = ?", documentID, skillID).
		Find(&rows).Error
	return rows, err
}

func (r *evidenceRepo) DeleteByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&types.SkillEvidence{}).Error
}
