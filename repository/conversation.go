package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/careersim/backend/models"
	"gorm.io/gorm"
)

// Chat session and message operations. Messages are append-only: there is no
// update or delete path, and Turn is assigned from the current count inside
// the same transaction as the insert so insertion order equals arrival order.

func (r *GORMRepository) CreateChatSession(ctx context.Context, chat *models.ChatSession) error {
	if err := r.db.WithContext(ctx).Create(chat).Error; err != nil {
		slog.Error("Failed to create chat session", "error", err, "interview_id", chat.InterviewID)
		return fmt.Errorf("failed to create chat session: %w", err)
	}
	slog.Info("Chat session created", "chat_id", chat.ID, "interview_id", chat.InterviewID, "title", chat.Title)
	return nil
}

func (r *GORMRepository) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	if err := r.db.WithContext(ctx).
		Model(&models.ChatSession{}).
		Where("id = ?", chatID).
		Update("title", title).Error; err != nil {
		slog.Error("Failed to update chat title", "error", err, "chat_id", chatID)
		return fmt.Errorf("failed to update chat title: %w", err)
	}
	return nil
}

// AppendMessage inserts the message and touches the chat session's updated_at
// in one transaction. This is the single atomic append primitive every write
// path goes through; two concurrent appends cannot lose a message the way a
// read-modify-write of a nested document could. The updated_at touch comes
// first: it takes the chat's row lock, so under read committed a concurrent
// append blocks until this one commits and cannot read a stale count. The
// unique (chat_id, turn) index backs the same invariant in the schema.
func (r *GORMRepository) AppendMessage(ctx context.Context, message *models.Message) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ChatSession{}).
			Where("id = ?", message.ChatID).
			Update("updated_at", message.Timestamp).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.Message{}).Where("chat_id = ?", message.ChatID).Count(&count).Error; err != nil {
			return err
		}
		message.Turn = int(count) + 1

		return tx.Create(message).Error
	})
	if err != nil {
		slog.Error("Failed to append message", "error", err, "chat_id", message.ChatID)
		return fmt.Errorf("failed to append message: %w", err)
	}

	slog.Info("Message appended", "message_id", message.ID, "chat_id", message.ChatID, "role", message.Role, "turn", message.Turn)
	return nil
}

// GetMessagesByChat retrieves all messages for a chat session in turn order.
func (r *GORMRepository) GetMessagesByChat(ctx context.Context, chatID string) ([]models.Message, error) {
	var messages []models.Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("turn ASC").
		Find(&messages).Error; err != nil {
		slog.Error("Failed to get messages by chat", "error", err, "chat_id", chatID)
		return nil, fmt.Errorf("failed to get messages by chat: %w", err)
	}
	return messages, nil
}

// CountInterviewerMessages returns how many interviewer-authored messages the
// chat session holds. The session's finished state is derived from this.
func (r *GORMRepository) CountInterviewerMessages(ctx context.Context, chatID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("chat_id = ? AND role = ?", chatID, models.MessageRoleInterviewer).
		Count(&count).Error; err != nil {
		slog.Error("Failed to count interviewer messages", "error", err, "chat_id", chatID)
		return 0, fmt.Errorf("failed to count interviewer messages: %w", err)
	}
	return int(count), nil
}

// GetChatSessionsForUser returns all of a user's chat sessions, newest first,
// optionally limited to one interview. Used by the daily stats endpoint.
func (r *GORMRepository) GetChatSessionsForUser(ctx context.Context, userID, interviewID string) ([]models.ChatSession, error) {
	query := r.db.WithContext(ctx).
		Joins("JOIN interviews ON interviews.id = chat_sessions.interview_id").
		Where("interviews.user_id = ?", userID)
	if interviewID != "" {
		query = query.Where("chat_sessions.interview_id = ?", interviewID)
	}

	var chats []models.ChatSession
	if err := query.Order("chat_sessions.created_at DESC").Preload("Interview").Find(&chats).Error; err != nil {
		slog.Error("Failed to get chat sessions for user", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to get chat sessions for user: %w", err)
	}
	return chats, nil
}
