package types

import (
	"time"

	"github.com/google/uuid"
)

// SkillEvidence links a skill claim to a verbatim snippet of the source
// document. Immutable after creation.
type SkillEvidence struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID  uuid.UUID `gorm:"type:uuid;not null;index:idx_evidence_doc_skill,priority:1" json:"document_id"`
	Document    *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`
	SkillID     uuid.UUID `gorm:"type:uuid;not null;index:idx_evidence_doc_skill,priority:2" json:"skill_id"`
	Skill       *Skill    `gorm:"foreignKey:SkillID;references:ID" json:"skill,omitempty"`
	SnippetText string    `gorm:"column:snippet_text;type:text;not null" json:"snippet_text"`
	SectionName string    `gorm:"column:section_name" json:"section_name"`
	Confidence  float64   `gorm:"column:confidence;not null" json:"confidence"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (SkillEvidence) TableName() string { return "skill_evidence" }
