package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/careersim/backend/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRouter mounts the interview routes behind a stub auth middleware
// that injects the given user, mirroring how the real middleware populates
// the request context.
func newTestRouter(svc *InterviewService, user *models.User) *chi.Mux {
	endpoints := NewInterviewEndpoints(svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), "user", user)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	endpoints.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestInterviewLifecycleOverHTTP(t *testing.T) {
	turns := 0
	fake := &fakeCompletion{
		opening: "Welcome. Tell me about yourself.",
		nextReply: func(history []models.Message) (string, error) {
			turns++
			return fmt.Sprintf("Follow-up question %d?", turns), nil
		},
		evaluation: goodEvaluation,
	}
	svc, repo := newTestService(t, fake)
	user := seedUser(t, repo, "api@example.com")
	router := newTestRouter(svc, user)

	// Create an unscheduled interview: it starts in-progress.
	rec := doJSON(t, router, http.MethodPost, "/interviews", map[string]string{
		"title": "Backend Practice",
		"type":  "technical",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var interview struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &interview))
	assert.Equal(t, models.InterviewStatusInProgress, interview.Status)

	// Create a chat session with the default title.
	rec = doJSON(t, router, http.MethodPost, "/interviews/"+interview.ID+"/chats", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var chat struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Finished bool   `json:"finished"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))
	assert.Equal(t, "New Session 1", chat.Title)
	assert.False(t, chat.Finished)

	// Start it and receive the opening question.
	rec = doJSON(t, router, http.MethodPost, "/interviews/"+interview.ID+"/chats/"+chat.ID+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var started struct {
		Message models.Message `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, "Welcome. Tell me about yourself.", started.Message.Content)

	// Answer until the question threshold is reached. The opener counts as
	// the first interviewer message.
	var turn struct {
		Finished    bool `json:"finished"`
		ReportReady bool `json:"reportReady"`
	}
	for i := 0; i < QuestionThreshold-1; i++ {
		rec = doJSON(t, router, http.MethodPost, "/interviews/"+interview.ID+"/chats/"+chat.ID+"/messages", map[string]string{
			"content": fmt.Sprintf("answer %d", i),
		})
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turn))
	}
	assert.True(t, turn.Finished)

	// The interview is now completed with a completion timestamp.
	rec = doJSON(t, router, http.MethodGet, "/interviews/"+interview.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Status      string  `json:"status"`
		CompletedAt *string `json:"completed_at"`
		Chats       []struct {
			Finished bool             `json:"finished"`
			Messages []models.Message `json:"messages"`
		} `json:"chats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, models.InterviewStatusCompleted, detail.Status)
	assert.NotNil(t, detail.CompletedAt)
	require.Len(t, detail.Chats, 1)
	assert.True(t, detail.Chats[0].Finished)
	assert.Len(t, detail.Chats[0].Messages, 2*QuestionThreshold-1)

	// Generate and fetch the session report.
	rec = doJSON(t, router, http.MethodPost, "/interviews/"+interview.ID+"/report", map[string]string{
		"chatId": chat.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/interviews/"+interview.ID+"/report?chatId="+chat.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report models.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 88, report.OverallScore)
	require.NotNil(t, report.ChatID)
	assert.Equal(t, chat.ID, *report.ChatID)
}

func TestReportEndpointsErrorMapping(t *testing.T) {
	svc, repo := newTestService(t, &fakeCompletion{evaluation: goodEvaluation})
	user := seedUser(t, repo, "api@example.com")
	router := newTestRouter(svc, user)

	// Unknown interview.
	rec := doJSON(t, router, http.MethodGet, "/interviews/missing/report", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ctx := context.Background()
	interview, err := svc.CreateInterview(ctx, user.ID, "Practice", "technical", nil, nil)
	require.NoError(t, err)
	chat, err := svc.CreateChat(ctx, user.ID, interview.ID, "")
	require.NoError(t, err)

	// No report yet.
	rec = doJSON(t, router, http.MethodGet, "/interviews/"+interview.ID+"/report", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Too little conversation to generate one.
	_, err = svc.AddMessage(ctx, user.ID, interview.ID, chat.ID, models.MessageRoleInterviewer, "hello")
	require.NoError(t, err)
	rec = doJSON(t, router, http.MethodPost, "/interviews/"+interview.ID+"/report", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndpointsCrossUserIsolation(t *testing.T) {
	svc, repo := newTestService(t, &fakeCompletion{})
	owner := seedUser(t, repo, "owner@example.com")
	intruder := seedUser(t, repo, "intruder@example.com")

	interview, err := svc.CreateInterview(context.Background(), owner.ID, "Private", "technical", nil, nil)
	require.NoError(t, err)

	router := newTestRouter(svc, intruder)

	// Another user's interview reads as missing, never as forbidden.
	rec := doJSON(t, router, http.MethodGet, "/interviews/"+interview.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/interviews/"+interview.ID, map[string]string{"title": "hijacked"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/interviews/"+interview.ID+"/chats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDailyStatsEndpoint(t *testing.T) {
	svc, repo := newTestService(t, &fakeCompletion{})
	user := seedUser(t, repo, "api@example.com")
	router := newTestRouter(svc, user)

	ctx := context.Background()
	interview, err := svc.CreateInterview(ctx, user.ID, "Practice", "technical", nil, nil)
	require.NoError(t, err)
	chat, err := svc.CreateChat(ctx, user.ID, interview.ID, "")
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, user.ID, interview.ID, chat.ID, models.MessageRoleInterviewer, "hello")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/stats/daily", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "month is required")

	month := chat.CreatedAt.Format("2006-01")
	rec = doJSON(t, router, http.MethodGet, "/stats/daily?month="+month, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Month string      `json:"month"`
		Days  []DailyStat `json:"days"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, month, payload.Month)
	require.Len(t, payload.Days, 1)
	assert.Equal(t, 1, payload.Days[0].Sessions)
}

func TestCreateInterviewValidation(t *testing.T) {
	svc, repo := newTestService(t, &fakeCompletion{})
	user := seedUser(t, repo, "api@example.com")
	router := newTestRouter(svc, user)

	rec := doJSON(t, router, http.MethodPost, "/interviews", map[string]string{"title": "No type"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/interviews", map[string]string{
		"title": "Bad date",
		"type":  "technical",
		"date":  "15/09/2026",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
