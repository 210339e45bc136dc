package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Report is the scored evaluation produced from one chat session's
// transcript. Reports are never mutated after creation; regenerating appends
// a new row and retrieval returns the most recent one. A report with no
// ChatID is a legacy interview-level report.
type Report struct {
	ID          string  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string  `gorm:"type:uuid;not null;index" json:"user_id"`
	InterviewID string  `gorm:"type:uuid;not null;index" json:"interview_id"`
	ChatID      *string `gorm:"type:uuid;index" json:"chat_id,omitempty"`

	// Scores are integers in [0, 100].
	OverallScore int `gorm:"not null" json:"overallScore"`
	Expression   int `gorm:"not null" json:"expression"`
	Content      int `gorm:"not null" json:"content"`
	Structure    int `gorm:"not null" json:"structure"`
	Language     int `gorm:"not null" json:"language"`

	Strengths       datatypes.JSONSlice[string] `json:"strengths"`
	Improvements    datatypes.JSONSlice[string] `json:"improvements"`
	Recommendations datatypes.JSONSlice[string] `json:"recommendations"`

	CreatedAt time.Time `json:"createdAt"`
}

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
