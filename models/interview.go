package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Interview status values. Transitions only move forward:
// scheduled -> in-progress -> completed, and completed is terminal.
const (
	InterviewStatusScheduled  = "scheduled"
	InterviewStatusInProgress = "in-progress"
	InterviewStatusCompleted  = "completed"
)

// Interview is a practice track a user creates, optionally scheduled to a
// date/time, containing one or more chat sessions (re-attempts).
type Interview struct {
	ID            string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Title         string         `gorm:"size:255;not null" json:"title"`
	Type          string         `gorm:"size:100;not null" json:"type"`
	ScheduledDate *string        `gorm:"size:10" json:"date,omitempty"`  // YYYY-MM-DD
	ScheduledTime *string        `gorm:"size:5" json:"time,omitempty"`   // HH:mm
	Status        string         `gorm:"not null;default:'scheduled';check:status IN ('scheduled', 'in-progress', 'completed')" json:"status"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User  User          `gorm:"foreignKey:UserID" json:"-"`
	Chats []ChatSession `gorm:"foreignKey:InterviewID" json:"chats"`
}

func (i *Interview) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// ChatSession is one conversation attempt within an interview. Whether a
// session is "finished" is computed from its interviewer message count, not
// stored, so the flag can never drift from the actual transcript.
type ChatSession struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	InterviewID string         `gorm:"type:uuid;not null;index" json:"interview_id"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Interview Interview `gorm:"foreignKey:InterviewID" json:"-"`
	Messages  []Message `gorm:"foreignKey:ChatID" json:"messages"`
}

func (c *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// InterviewerMessageCount returns how many messages in the session were
// authored by the interviewer.
func (c *ChatSession) InterviewerMessageCount() int {
	count := 0
	for _, m := range c.Messages {
		if m.Role == MessageRoleInterviewer {
			count++
		}
	}
	return count
}
