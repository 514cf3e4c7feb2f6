package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SkillCategory string

const (
	SkillCategoryProgramming SkillCategory = "programming"
	SkillCategoryFramework   SkillCategory = "framework"
	SkillCategoryDatabase    SkillCategory = "database"
	SkillCategoryCloud       SkillCategory = "cloud"
	SkillCategoryTool        SkillCategory = "tool"
	SkillCategorySoftSkill   SkillCategory = "soft_skill"
	SkillCategoryDomain      SkillCategory = "domain"
	SkillCategoryOther       SkillCategory = "other"
)

// ParseSkillCategory maps free-form LLM category strings onto the
// closed set, falling back to "other".
func ParseSkillCategory(s string) SkillCategory {
	switch SkillCategory(strings.ToLower(strings.TrimSpace(s))) {
	case SkillCategoryProgramming, SkillCategoryFramework, SkillCategoryDatabase,
		SkillCategoryCloud, SkillCategoryTool, SkillCategorySoftSkill, SkillCategoryDomain:
		return SkillCategory(strings.ToLower(strings.TrimSpace(s)))
	default:
		return SkillCategoryOther
	}
}

// CanonicalSkillName lowercases, trims and collapses internal whitespace
// so that "Machine  Learning " and "machine learning" share one row.
func CanonicalSkillName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

type Skill struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	CanonicalName string        `gorm:"column:canonical_name;uniqueIndex;not null" json:"canonical_name"`
	DisplayName   string        `gorm:"column:display_name" json:"display_name"`
	Category      SkillCategory `gorm:"column:category;not null" json:"category"`
	ParentSkillID *uuid.UUID    `gorm:"type:uuid;column:parent_skill_id" json:"parent_skill_id,omitempty"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null" json:"updated_at"`
}

func (Skill) TableName() string { return "skills" }
