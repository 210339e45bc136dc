package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/careersim/backend/models"
	"github.com/go-chi/chi/v5"
)

type InterviewEndpoints struct {
	interviews *InterviewService
}

func NewInterviewEndpoints(interviews *InterviewService) *InterviewEndpoints {
	return &InterviewEndpoints{
		interviews: interviews,
	}
}

func (e *InterviewEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/interviews", func(r chi.Router) {
		r.Post("/", e.CreateInterviewHandler)
		r.Get("/", e.GetInterviewsHandler)
		r.Get("/{id}", e.GetInterviewHandler)
		r.Put("/{id}", e.UpdateInterviewHandler)

		r.Post("/{id}/chats", e.CreateChatHandler)
		r.Post("/{id}/chats/{chatId}/start", e.StartChatHandler)
		r.Post("/{id}/chats/{chatId}/messages", e.SendMessageHandler)
		r.Put("/{id}/chats/{chatId}/title", e.UpdateChatTitleHandler)

		r.Post("/{id}/report", e.GenerateReportHandler)
		r.Get("/{id}/report", e.GetReportHandler)
		r.Get("/{id}/reports", e.GetReportsHandler)
	})

	r.Get("/stats/daily", e.DailyStatsHandler)
}

// writeServiceError maps the service error taxonomy onto HTTP statuses in one
// place so handlers stay uniform.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidState):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInsufficientData):
		http.Error(w, "Not enough conversation to generate a report", http.StatusBadRequest)
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrParse):
		http.Error(w, "Interview engine unavailable", http.StatusBadGateway)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func userFromContext(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return nil, false
	}
	return user, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// chatView decorates a session with its derived finished flag.
type chatView struct {
	models.ChatSession
	Finished bool `json:"finished"`
}

type interviewView struct {
	models.Interview
	Chats []chatView `json:"chats"`
}

func toChatView(chat models.ChatSession) chatView {
	return chatView{ChatSession: chat, Finished: ChatFinished(&chat)}
}

func toInterviewView(interview models.Interview) interviewView {
	chats := make([]chatView, 0, len(interview.Chats))
	for _, chat := range interview.Chats {
		chats = append(chats, toChatView(chat))
	}
	return interviewView{Interview: interview, Chats: chats}
}

type CreateInterviewRequest struct {
	Title string  `json:"title" validate:"required"`
	Type  string  `json:"type" validate:"required"`
	Date  *string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Time  *string `json:"time,omitempty" validate:"omitempty,datetime=15:04"`
}

func (e *InterviewEndpoints) CreateInterviewHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(w, r)
	if !ok {
		return
	}

	var req CreateInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Title and type are required; date must be YYYY-MM-DD and time HH:mm", http.StatusBadRequest)
		return
	}

	interview, err := e.interviews.CreateInterview(r.Context(), user.ID, req.Title, req.Type, req.Date, req.Time)
	if err != nil {
		slog.Error("Failed to create interview", "error", err, "user_id", user.ID)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toInterviewView(*interview))
	slog.Info("Interview created via API", "interview_id", interview.ID, "user_id", user.ID)
}

func (e *InterviewEndpoints) GetInterviewsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(w, r)
	if !ok {
		return
	}

	interviews, err := e.interviews.GetInterviews(r.Context(), user.ID)
	if err != nil {
		slog.Error("Failed to get interviews", "error", err, "user_id", user.ID)
		writeServiceError(w, err)
		return
	}

	views := make([]interviewView, 0, len(interviews))
	for _, interview := range interviews {
		views = append(views, toInterviewView(interview))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"interviews": views,
		"count":      len(views),
	})
}

func (e *InterviewEndpoints) GetInterviewHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(w, r)
	if !ok {
		return
	}

	interview, err := e.interviews.GetInterview(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toInterviewView(*interview))
}

type UpdateInterviewRequest struct {
	Title  *string `json:"title,omitempty"`
	Type   *string `json:"type,omitempty"`
	Date   *string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Time   *string `json:"time,omitempty" validate:"omitempty,datetime=15:04"`
	Status *string `json:"status,omitempty"`
}

func (e *InterviewEndpoints) UpdateInterviewHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(w, r)
	if !ok {
		return
	}

	var req UpdateInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Date must be YYYY-MM-DD and time HH:mm", http.StatusBadRequest)
		return
	}

	interview, err := e.interviews.UpdateInterview(r.Context(), user.ID, chi.URLParam(r, "id"), InterviewUpdate{
		Title:         req.Title,
		Type:          req.Type,
		ScheduledDate: req.Date,
		ScheduledTime: req.Time,
		Status:        req.Status,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toInterviewView(*interview))
	slog.Info("Interview updated via API", "interview_id", interview.ID, "user_id", user.ID)
}

type CreateChatRequest struct {
	Title string `json:"title,omitempty"`
}

func (e *InterviewEndpoints) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(w, r)
	if !ok {
		return
	}

	var req CreateChatRequest
	if r.Body != nil {
		// An empty body means "use the default title".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	chat, err := e.interviews.CreateChat(r.Context(), user.ID, chi.URLParam(r, "id"), req.Title)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toChatView(*chat))
	slog.Info("Chat session created via API", "chat_id", chat.ID, "user_id", user.ID)
}

type StartChatRequest struct {
	Personality string `json:"personality,omitempty"`
}

func (e *InterviewEndpoints) StartChatHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(w, r)
	if !ok {
		return
	}

	var req StartChatRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	message, err := e.interviews.StartChat(r.Context(), user.ID, chi.URLParam(r, "id"), chi.URLParam(r, "chatId"), NormalizePersonality(req.Personality))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": message,
	})
}

type SendMessageRequest struct {
	Content     string `json:"content" validate:"required"`
	Personality string `json:"personality,omitempty"`
}

func (e *InterviewEndpoints) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Message content is required", http.StatusBadRequest)
		return
	}

	result, err := e.interviews.SendUserMessage(r.Context(), user.ID, chi.URLParam(r, "id"), chi.URLParam(r, "chatId"), NormalizePersonality(req.Personality), req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := map[string]interface{}{
		"finished":    result.Finished,
		"reportReady": result.ReportReady,
	}
	if result.Reply != nil {
		response["reply"] = result.Reply
	}
	if result.Report != nil {
		response["report"] = result.Report
	}

	writeJSON(w, http.StatusOK, response)
}

type UpdateChatTitleRequest struct {
	Title string `json:"title" validate:"required"`
}

func (e *InterviewEndpoints) UpdateChatTitleHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(w, r)
	if !ok {
		return
	}

	var req UpdateChatTitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}

	if err := e.interviews.UpdateChatTitle(r.Context(), user.ID, chi.URLParam(r, "id"), chi.URLParam(r, "chatId"), req.Title); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Title updated",
	})
}

type GenerateReportRequest struct {
	ChatID *string `json:"chatId,omitempty"`
}

func (e *InterviewEndpoints) GenerateReportHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(w, r)
	if !ok {
		return
	}

	var req GenerateReportRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	report, err := e.interviews.GenerateReport(r.Context(), user.ID, chi.URLParam(r, "id"), req.ChatID)
	if err != nil {
		slog.Error("Failed to generate report", "error", err, "interview_id", chi.URLParam(r, "id"), "user_id", user.ID)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, report)
}

func (e *InterviewEndpoints) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(w, r)
	if !ok {
		return
	}

	var chatID *string
	if v := r.URL.Query().Get("chatId"); v != "" {
		chatID = &v
	}

	report, err := e.interviews.GetReport(r.Context(), user.ID, chi.URLParam(r, "id"), chatID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (e *InterviewEndpoints) GetReportsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(w, r)
	if !ok {
		return
	}

	reports, err := e.interviews.GetReportsForInterview(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

func (e *InterviewEndpoints) DailyStatsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(w, r)
	if !ok {
		return
	}

	month := r.URL.Query().Get("month")
	if month == "" {
		http.Error(w, "month query parameter is required (YYYY-MM)", http.StatusBadRequest)
		return
	}

	stats, err := e.interviews.DailyStats(r.Context(), user.ID, month, r.URL.Query().Get("interviewId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"month": month,
		"days":  stats,
	})
}
