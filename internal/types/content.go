package types

import "time"

// TaskContent is the structured payload attached to every Task. The
// source system stored this as a free-shape attribute bag; here each
// field is explicit so serialization stays schema-checked.
type TaskContent struct {
	StudyMaterials []string `json:"study_materials,omitempty"`
	Resources      []string `json:"resources,omitempty"`
	KeyConcepts    []string `json:"key_concepts,omitempty"`
	Exercises      []string `json:"exercises,omitempty"`
	// AdaptiveNote explains why the adaptive planner touched this task.
	AdaptiveNote string `json:"adaptive_note,omitempty"`
	Difficulty   string `json:"difficulty,omitempty"`
	Optional     bool   `json:"optional,omitempty"`
}

// MCQContent is the PracticeItem payload for quiz_mcq items.
type MCQContent struct {
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

// ShortContent is the payload for quiz_short items; KeyPoints double as
// the scoring rubric bullets.
type ShortContent struct {
	KeyPoints []string `json:"key_points"`
}

// FlashcardContent is the payload for flashcard items. Back is at most
// three short sentences.
type FlashcardContent struct {
	Back string   `json:"back"`
	Tags []string `json:"tags,omitempty"`
}

// STARGuidance structures the expected behavioral answer.
type STARGuidance struct {
	Situation string `json:"situation"`
	Task      string `json:"task"`
	Action    string `json:"action"`
	Result    string `json:"result"`
}

// BehavioralContent is the payload for behavioral items.
type BehavioralContent struct {
	Competency         string       `json:"competency,omitempty"`
	STAR               STARGuidance `json:"star_guidance"`
	EvaluationCriteria []string     `json:"evaluation_criteria,omitempty"`
}

// DesignFramework names the evaluation axes of a system design prompt.
type DesignFramework struct {
	Functional    []string `json:"functional,omitempty"`
	NonFunctional []string `json:"non_functional,omitempty"`
	Architecture  []string `json:"architecture,omitempty"`
	TradeOffs     []string `json:"trade_offs,omitempty"`
	Completeness  []string `json:"completeness,omitempty"`
}

// SystemDesignContent is the payload for system_design items.
type SystemDesignContent struct {
	Requirements []string        `json:"requirements"`
	Constraints  []string        `json:"constraints,omitempty"`
	Framework    DesignFramework `json:"evaluation_framework"`
}

// DiffChange is one adaptive modification inside a DiffLogEntry.
type DiffChange struct {
	Action string `json:"action"` // add | mark_optional
	Type   string `json:"type"`   // task
	Skill  string `json:"skill"`
	Count  int    `json:"count"`
	Reason string `json:"reason"`
}

// DiffLogEntry is one atomic adaptation appended to StudyPlan.DiffLog.
type DiffLogEntry struct {
	Timestamp time.Time    `json:"timestamp"`
	Changes   []DiffChange `json:"changes"`
}

// RubricCriterion is one weighted axis of a Rubric. Weights across a
// rubric sum to 1.
type RubricCriterion struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}
