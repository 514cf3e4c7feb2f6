package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type StudyPlan struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User          *User      `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	WeeksCount    int        `gorm:"column:weeks_count;not null" json:"weeks_count"`
	HoursPerWeek  float64    `gorm:"column:hours_per_week;not null" json:"hours_per_week"`
	InterviewDate *time.Time `gorm:"column:interview_date" json:"interview_date,omitempty"`
	// FocusAreas is the ordered list of top-priority skill names.
	FocusAreas datatypes.JSON `gorm:"column:focus_areas" json:"focus_areas,omitempty"`
	// DiffLog is the append-only adaptation history ([]DiffLogEntry).
	DiffLog datatypes.JSON `gorm:"column:diff_log" json:"diff_log,omitempty"`
	// CalendarEpoch increments when the plan's tasks change (adaptive
	// apply); projection reuses the current epoch so an unchanged plan
	// keeps its sync uids.
	CalendarEpoch int       `gorm:"column:calendar_epoch;not null;default:0" json:"calendar_epoch"`
	Active        bool      `gorm:"column:active;not null;default:true;index" json:"active"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (StudyPlan) TableName() string { return "study_plans" }

// WindowStart is the first date tasks may be scheduled on.
func (p *StudyPlan) WindowStart() time.Time {
	return DateOnly(p.CreatedAt)
}

// WindowEnd is the first date past the plan window (exclusive bound).
func (p *StudyPlan) WindowEnd() time.Time {
	return p.WindowStart().AddDate(0, 0, p.WeeksCount*7)
}

// DateOnly truncates t to a UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Week struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID     uuid.UUID `gorm:"type:uuid;not null;index:idx_week_plan_number,unique,priority:1" json:"plan_id"`
	Plan       *StudyPlan `gorm:"constraint:OnDelete:CASCADE;foreignKey:PlanID;references:ID" json:"plan,omitempty"`
	WeekNumber int       `gorm:"column:week_number;not null;index:idx_week_plan_number,unique,priority:2" json:"week_number"`
	Theme      string    `gorm:"column:theme" json:"theme"`
	// FocusSkills is the week's 2-5 themed skill names.
	FocusSkills datatypes.JSON `gorm:"column:focus_skills" json:"focus_skills,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

func (Week) TableName() string { return "weeks" }

type Day struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	WeekID           uuid.UUID `gorm:"type:uuid;not null;index" json:"week_id"`
	Week             *Week     `gorm:"constraint:OnDelete:CASCADE;foreignKey:WeekID;references:ID" json:"week,omitempty"`
	DayNumber        int       `gorm:"column:day_number;not null" json:"day_number"`
	Date             time.Time `gorm:"column:date;not null;index" json:"date"`
	Theme            string    `gorm:"column:theme" json:"theme"`
	EstimatedMinutes int       `gorm:"column:estimated_minutes;not null;default:0" json:"estimated_minutes"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
}

func (Day) TableName() string { return "days" }
