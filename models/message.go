package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message roles. The interviewer is the AI side of the conversation.
const (
	MessageRoleInterviewer = "interviewer"
	MessageRoleUser        = "user"
)

// Message is a single turn in a chat session. Messages are immutable once
// created and strictly append-only within their session; Turn records the
// insertion order.
type Message struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	ChatID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_messages_chat_turn" json:"chat_id"`
	Turn      int       `gorm:"not null;uniqueIndex:idx_messages_chat_turn" json:"turn"`
	Role      string    `gorm:"size:20;not null;check:role IN ('interviewer', 'user')" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`

	// Relationships
	Chat ChatSession `gorm:"foreignKey:ChatID" json:"-"`
}

// TableName returns the table name for the Message model
func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}
