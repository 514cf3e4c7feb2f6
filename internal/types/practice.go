package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PracticeType string

const (
	PracticeQuizMCQ      PracticeType = "quiz_mcq"
	PracticeQuizShort    PracticeType = "quiz_short"
	PracticeFlashcard    PracticeType = "flashcard"
	PracticeBehavioral   PracticeType = "behavioral"
	PracticeSystemDesign PracticeType = "system_design"
)

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
	DifficultyExpert       Difficulty = "expert"
)

// DifficultyForMastery buckets a mastery score into a difficulty level.
func DifficultyForMastery(score float64) Difficulty {
	switch {
	case score < 0.3:
		return DifficultyBeginner
	case score < 0.6:
		return DifficultyIntermediate
	case score < 0.8:
		return DifficultyAdvanced
	default:
		return DifficultyExpert
	}
}

// DefaultRubricCriteria returns the built-in weighted criteria for a
// practice type. Weights sum to 1.
func DefaultRubricCriteria(t PracticeType) []RubricCriterion {
	switch t {
	case PracticeQuizMCQ:
		return []RubricCriterion{
			{Name: "Correctness", Weight: 0.7, Description: "The selected option is the correct one."},
			{Name: "Understanding", Weight: 0.3, Description: "The reasoning shows understanding of why the option is correct."},
		}
	case PracticeQuizShort:
		return []RubricCriterion{
			{Name: "Coverage", Weight: 0.6, Description: "The answer covers the expected key points."},
			{Name: "Accuracy", Weight: 0.4, Description: "The stated facts are correct."},
		}
	case PracticeFlashcard:
		return []RubricCriterion{
			{Name: "Recall Accuracy", Weight: 1.0, Description: "The answer matches the card's back."},
		}
	case PracticeBehavioral:
		return []RubricCriterion{
			{Name: "STAR Structure", Weight: 0.3, Description: "The answer follows Situation, Task, Action, Result."},
			{Name: "Relevance", Weight: 0.2, Description: "The story addresses the question asked."},
			{Name: "Specificity", Weight: 0.2, Description: "The answer gives concrete details, not generalities."},
			{Name: "Impact", Weight: 0.3, Description: "The result shows measurable or meaningful impact."},
		}
	default:
		return []RubricCriterion{
			{Name: "Requirements", Weight: 0.2, Description: "Functional and non-functional requirements are identified."},
			{Name: "Architecture", Weight: 0.3, Description: "The proposed architecture is sound and justified."},
			{Name: "Scalability", Weight: 0.2, Description: "The design addresses scale and growth."},
			{Name: "Trade-offs", Weight: 0.2, Description: "Alternatives and their trade-offs are discussed."},
			{Name: "Completeness", Weight: 0.1, Description: "The major components of the problem are covered."},
		}
	}
}

type PracticeItem struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	TaskID         *uuid.UUID   `gorm:"type:uuid;index" json:"task_id,omitempty"`
	Type           PracticeType `gorm:"column:type;not null" json:"type"`
	Title          string       `gorm:"column:title;not null" json:"title"`
	Question       string       `gorm:"column:question;type:text;not null" json:"question"`
	ExpectedAnswer string       `gorm:"column:expected_answer;type:text" json:"expected_answer,omitempty"`
	// SkillRefs holds canonical skill names ([]string).
	SkillRefs  datatypes.JSON `gorm:"column:skill_refs" json:"skill_refs,omitempty"`
	Difficulty Difficulty     `gorm:"column:difficulty;not null" json:"difficulty"`
	// Content is one of the typed payloads in content.go, keyed by Type.
	Content   datatypes.JSON `gorm:"column:content" json:"content,omitempty"`
	RubricID  uuid.UUID      `gorm:"type:uuid;not null" json:"rubric_id"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (PracticeItem) TableName() string { return "practice_items" }

type Rubric struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	PracticeType PracticeType `gorm:"column:practice_type;uniqueIndex;not null" json:"practice_type"`
	// Criteria is an ordered []RubricCriterion whose weights sum to 1.
	Criteria  datatypes.JSON `gorm:"column:criteria;not null" json:"criteria"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (Rubric) TableName() string { return "rubrics" }

type Attempt struct {
	ID               uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	PracticeItemID   uuid.UUID     `gorm:"type:uuid;not null;index" json:"practice_item_id"`
	PracticeItem     *PracticeItem `gorm:"foreignKey:PracticeItemID;references:ID" json:"practice_item,omitempty"`
	TaskID           *uuid.UUID    `gorm:"type:uuid" json:"task_id,omitempty"`
	Answer           string        `gorm:"column:answer;type:text;not null" json:"answer"`
	TimeSpentSeconds *int          `gorm:"column:time_spent_seconds" json:"time_spent_seconds,omitempty"`
	// Score and Feedback mirror the latest Evaluation for quick reads.
	Score       *float64  `gorm:"column:score" json:"score,omitempty"`
	Feedback    string    `gorm:"column:feedback;type:text" json:"feedback,omitempty"`
	SubmittedAt time.Time `gorm:"column:submitted_at;not null;index" json:"submitted_at"`
}

func (Attempt) TableName() string { return "attempts" }

type Evaluation struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AttemptID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"attempt_id"`
	Attempt      *Attempt  `gorm:"constraint:OnDelete:CASCADE;foreignKey:AttemptID;references:ID" json:"attempt,omitempty"`
	RubricID     uuid.UUID `gorm:"type:uuid;not null" json:"rubric_id"`
	OverallScore float64   `gorm:"column:overall_score;not null" json:"overall_score"`
	// CriterionScores maps criterion name to [0,1].
	CriterionScores datatypes.JSON `gorm:"column:criterion_scores" json:"criterion_scores,omitempty"`
	Strengths       datatypes.JSON `gorm:"column:strengths" json:"strengths,omitempty"`
	Weaknesses      datatypes.JSON `gorm:"column:weaknesses" json:"weaknesses,omitempty"`
	Feedback        string         `gorm:"column:feedback;type:text" json:"feedback"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
}

func (Evaluation) TableName() string { return "evaluations" }
