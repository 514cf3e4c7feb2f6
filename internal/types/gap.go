package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type CoverageStatus string

const (
	CoverageCovered CoverageStatus = "covered"
	CoveragePartial CoverageStatus = "partial"
	CoverageMissing CoverageStatus = "missing"
)

type GapPriority string

const (
	PriorityCritical GapPriority = "critical"
	PriorityHigh     GapPriority = "high"
	PriorityMedium   GapPriority = "medium"
	PriorityLow      GapPriority = "low"
)

// PriorityRank orders priorities for sorting, critical first.
func PriorityRank(p GapPriority) int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

type Gap struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	SkillID            uuid.UUID      `gorm:"type:uuid;not null;index" json:"skill_id"`
	Skill              *Skill         `gorm:"foreignKey:SkillID;references:ID" json:"skill,omitempty"`
	RequiredConfidence float64        `gorm:"column:required_confidence;not null" json:"required_confidence"`
	Coverage           CoverageStatus `gorm:"column:coverage;not null" json:"coverage"`
	Priority           GapPriority    `gorm:"column:priority;not null" json:"priority"`
	Reason             string         `gorm:"column:reason;type:text" json:"reason"`
	EstimatedHours     float64        `gorm:"column:estimated_hours;not null" json:"estimated_hours"`
	// EvidenceRefs holds SkillEvidence IDs supporting this gap.
	EvidenceRefs datatypes.JSON `gorm:"column:evidence_refs" json:"evidence_refs,omitempty"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
}

func (Gap) TableName() string { return "gaps" }
