package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/careersim/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *GORMRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the in-memory database alive for the test.
	sqlDB.SetMaxOpenConns(1)

	repo := NewGORMRepository(db)
	require.NoError(t, repo.AutoMigrate())
	return repo
}

func seedUserAndInterview(t *testing.T, repo *GORMRepository) (*models.User, *models.Interview) {
	t.Helper()
	ctx := context.Background()

	user := &models.User{Email: "candidate@example.com", Name: "Candidate"}
	require.NoError(t, repo.CreateUser(ctx, user))

	interview := &models.Interview{
		UserID: user.ID,
		Title:  "Backend Practice",
		Type:   "technical",
		Status: models.InterviewStatusInProgress,
	}
	require.NoError(t, repo.CreateInterview(ctx, interview))
	return user, interview
}

func TestAppendMessageAssignsSequentialTurns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, interview := seedUserAndInterview(t, repo)

	chat := &models.ChatSession{InterviewID: interview.ID, Title: "New Session 1"}
	require.NoError(t, repo.CreateChatSession(ctx, chat))

	contents := []string{"hello", "hi there", "tell me more"}
	roles := []string{models.MessageRoleInterviewer, models.MessageRoleUser, models.MessageRoleInterviewer}
	for i := range contents {
		msg := &models.Message{
			ChatID:    chat.ID,
			Role:      roles[i],
			Content:   contents[i],
			Timestamp: time.Now(),
		}
		require.NoError(t, repo.AppendMessage(ctx, msg))
		assert.Equal(t, i+1, msg.Turn)
	}

	messages, err := repo.GetMessagesByChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	for i, msg := range messages {
		assert.Equal(t, i+1, msg.Turn)
		assert.Equal(t, contents[i], msg.Content)
	}
}

func TestAppendMessageConcurrentAppendsGetDistinctTurns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, interview := seedUserAndInterview(t, repo)

	chat := &models.ChatSession{InterviewID: interview.ID, Title: "New Session 1"}
	require.NoError(t, repo.CreateChatSession(ctx, chat))

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- repo.AppendMessage(ctx, &models.Message{
				ChatID:    chat.ID,
				Role:      models.MessageRoleUser,
				Content:   fmt.Sprintf("concurrent %d", n),
				Timestamp: time.Now(),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	messages, err := repo.GetMessagesByChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, writers)

	seen := make(map[int]bool)
	for _, msg := range messages {
		assert.False(t, seen[msg.Turn], "turn %d assigned twice", msg.Turn)
		seen[msg.Turn] = true
		assert.True(t, msg.Turn >= 1 && msg.Turn <= writers)
	}
}

func TestAppendMessageTouchesChatUpdatedAt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, interview := seedUserAndInterview(t, repo)

	chat := &models.ChatSession{InterviewID: interview.ID, Title: "New Session 1"}
	require.NoError(t, repo.CreateChatSession(ctx, chat))

	stamp := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, repo.AppendMessage(ctx, &models.Message{
		ChatID:    chat.ID,
		Role:      models.MessageRoleInterviewer,
		Content:   "hello",
		Timestamp: stamp,
	}))

	interviewAfter, err := repo.GetInterview(ctx, interview.UserID, interview.ID)
	require.NoError(t, err)
	require.Len(t, interviewAfter.Chats, 1)
	assert.WithinDuration(t, stamp, interviewAfter.Chats[0].UpdatedAt, time.Second)
}

func TestCountInterviewerMessages(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, interview := seedUserAndInterview(t, repo)

	chat := &models.ChatSession{InterviewID: interview.ID, Title: "New Session 1"}
	require.NoError(t, repo.CreateChatSession(ctx, chat))

	roles := []string{
		models.MessageRoleInterviewer,
		models.MessageRoleUser,
		models.MessageRoleInterviewer,
		models.MessageRoleUser,
	}
	for _, role := range roles {
		require.NoError(t, repo.AppendMessage(ctx, &models.Message{
			ChatID:    chat.ID,
			Role:      role,
			Content:   "m",
			Timestamp: time.Now(),
		}))
	}

	count, err := repo.CountInterviewerMessages(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGetInterviewScopedToOwner(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, interview := seedUserAndInterview(t, repo)

	other := &models.User{Email: "other@example.com", Name: "Other"}
	require.NoError(t, repo.CreateUser(ctx, other))

	found, err := repo.GetInterview(ctx, other.ID, interview.ID)
	require.NoError(t, err)
	assert.Nil(t, found, "another user's interview must read as missing")

	found, err = repo.GetInterview(ctx, interview.UserID, interview.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, interview.ID, found.ID)
}

func TestGetLatestReportFiltersByChatID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, interview := seedUserAndInterview(t, repo)

	chat := &models.ChatSession{InterviewID: interview.ID, Title: "New Session 1"}
	require.NoError(t, repo.CreateChatSession(ctx, chat))

	// Interview-level report with no chat reference.
	require.NoError(t, repo.CreateReport(ctx, &models.Report{
		UserID:       user.ID,
		InterviewID:  interview.ID,
		OverallScore: 60,
	}))
	// Session-scoped report.
	require.NoError(t, repo.CreateReport(ctx, &models.Report{
		UserID:       user.ID,
		InterviewID:  interview.ID,
		ChatID:       &chat.ID,
		OverallScore: 90,
	}))

	report, err := repo.GetLatestReport(ctx, user.ID, interview.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Nil(t, report.ChatID)
	assert.Equal(t, 60, report.OverallScore)

	report, err = repo.GetLatestReport(ctx, user.ID, interview.ID, &chat.ID)
	require.NoError(t, err)
	require.NotNil(t, report)
	require.NotNil(t, report.ChatID)
	assert.Equal(t, 90, report.OverallScore)
}

func TestGetReportsForInterviewNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, interview := seedUserAndInterview(t, repo)

	for i, score := range []int{50, 70, 90} {
		report := &models.Report{
			UserID:       user.ID,
			InterviewID:  interview.ID,
			OverallScore: score,
			CreatedAt:    time.Now().Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.CreateReport(ctx, report))
	}

	reports, err := repo.GetReportsForInterview(ctx, user.ID, interview.ID)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, 90, reports[0].OverallScore)
	assert.Equal(t, 50, reports[2].OverallScore)
}
