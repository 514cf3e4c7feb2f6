package types

import (
	"time"

	"github.com/google/uuid"
)

// CalendarEvent is one projected task occurrence. Events are regenerated
// wholesale per plan; SyncUID stays stable for a (task, epoch) pair.
type CalendarEvent struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID      uuid.UUID `gorm:"type:uuid;not null;index" json:"plan_id"`
	TaskID      uuid.UUID `gorm:"type:uuid;not null;index:idx_event_task_epoch,unique,priority:1" json:"task_id"`
	Epoch       int       `gorm:"column:epoch;not null;index:idx_event_task_epoch,unique,priority:2" json:"epoch"`
	Start       time.Time `gorm:"column:start;not null" json:"start"`
	End         time.Time `gorm:"column:end;not null" json:"end"`
	Title       string    `gorm:"column:title;not null" json:"title"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	SyncUID     string    `gorm:"column:sync_uid;not null" json:"sync_uid"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (CalendarEvent) TableName() string { return "calendar_events" }
