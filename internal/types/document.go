package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DocumentKind discriminates the two document roles the coach consumes.
type DocumentKind string

const (
	DocumentKindResume DocumentKind = "resume"
	DocumentKindJD     DocumentKind = "jd"
)

// DocumentSection is one ordered section of a parsed document.
type DocumentSection struct {
	Name   string `json:"name"`
	Text   string `json:"text"`
	Offset int    `json:"offset"`
}

type Document struct {
	ID       uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID    `gorm:"type:uuid;not null;index" json:"user_id"`
	User     *User        `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Kind     DocumentKind `gorm:"column:kind;not null;index" json:"kind"`
	FileName string       `gorm:"column:file_name" json:"file_name"`
	Content  string       `gorm:"column:content;type:text" json:"content"`
	// Sections and Chunks are produced by the external parser and
	// immutable after creation.
	Sections  datatypes.JSON `gorm:"column:sections" json:"sections,omitempty"`
	Chunks    datatypes.JSON `gorm:"column:chunks" json:"chunks,omitempty"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (Document) TableName() string { return "documents" }
