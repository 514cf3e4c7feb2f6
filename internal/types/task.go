package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type TaskType string

const (
	TaskTypeLearn    TaskType = "learn"
	TaskTypePractice TaskType = "practice"
	TaskTypeReview   TaskType = "review"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusSkipped    TaskStatus = "skipped"
)

// AllowedTransition reports whether a task may move from one status to
// another: pending<->in_progress, any->completed, any->skipped.
func AllowedTransition(from, to TaskStatus) bool {
	if to == TaskStatusCompleted || to == TaskStatusSkipped {
		return true
	}
	switch {
	case from == TaskStatusPending && to == TaskStatusInProgress:
		return true
	case from == TaskStatusInProgress && to == TaskStatusPending:
		return true
	}
	return false
}

type Task struct {
	ID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID uuid.UUID  `gorm:"type:uuid;not null;index:idx_task_plan_status,priority:1" json:"plan_id"`
	Plan   *StudyPlan `gorm:"constraint:OnDelete:CASCADE;foreignKey:PlanID;references:ID" json:"plan,omitempty"`
	DayID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"day_id"`
	UserID uuid.UUID  `gorm:"type:uuid;not null;index:idx_task_user_date,priority:1" json:"user_id"`
	Date   time.Time  `gorm:"column:date;not null;index:idx_task_user_date,priority:2" json:"date"`
	Type   TaskType   `gorm:"column:type;not null" json:"type"`
	Title  string     `gorm:"column:title;not null" json:"title"`

	Description string `gorm:"column:description;type:text" json:"description"`
	// SkillRefs holds canonical skill names ([]string).
	SkillRefs        datatypes.JSON `gorm:"column:skill_refs" json:"skill_refs,omitempty"`
	EstimatedMinutes int            `gorm:"column:estimated_minutes;not null" json:"estimated_minutes"`
	Status           TaskStatus     `gorm:"column:status;not null;default:pending;index:idx_task_plan_status,priority:2" json:"status"`
	// Content is a TaskContent JSON document.
	Content       datatypes.JSON `gorm:"column:content" json:"content,omitempty"`
	CompletedAt   *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ActualMinutes *int           `gorm:"column:actual_minutes" json:"actual_minutes,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }
