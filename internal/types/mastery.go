package types

import (
	"time"

	"github.com/google/uuid"
)

type MasteryTrend string

const (
	TrendImproving MasteryTrend = "improving"
	TrendStable    MasteryTrend = "stable"
	TrendDeclining MasteryTrend = "declining"
)

type Mastery struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID    `gorm:"type:uuid;not null;index:idx_mastery_user_skill,unique,priority:1" json:"user_id"`
	SkillID       uuid.UUID    `gorm:"type:uuid;not null;index:idx_mastery_user_skill,unique,priority:2" json:"skill_id"`
	Skill         *Skill       `gorm:"foreignKey:SkillID;references:ID" json:"skill,omitempty"`
	Score         float64      `gorm:"column:score;not null;default:0" json:"score"`
	LastPracticed *time.Time   `gorm:"column:last_practiced" json:"last_practiced,omitempty"`
	PracticeCount int          `gorm:"column:practice_count;not null;default:0" json:"practice_count"`
	Trend         MasteryTrend `gorm:"column:trend;not null;default:stable" json:"trend"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (Mastery) TableName() string { return "mastery" }
