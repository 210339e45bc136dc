package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/careersim/backend/models"
	"github.com/careersim/backend/repository"
)

// QuestionThreshold is the number of interviewer messages after which a chat
// session counts as finished and carries enough material for a report.
const QuestionThreshold = 5

// InterviewService owns the interview lifecycle: creating and listing
// interviews, running chat sessions against the language model, and handing
// finished conversations to the report generator.
type InterviewService struct {
	repo       *repository.GORMRepository
	completion CompletionClient
	reports    *ReportGenerator
	log        *slog.Logger
}

func NewInterviewService(repo *repository.GORMRepository, completion CompletionClient, reports *ReportGenerator, log *slog.Logger) *InterviewService {
	return &InterviewService{repo: repo, completion: completion, reports: reports, log: log}
}

// statusRank orders the lifecycle so transitions can be checked as
// monotonically non-decreasing.
func statusRank(status string) int {
	switch status {
	case models.InterviewStatusScheduled:
		return 0
	case models.InterviewStatusInProgress:
		return 1
	case models.InterviewStatusCompleted:
		return 2
	default:
		return -1
	}
}

// ChatFinished reports whether a session has reached the question threshold.
// The flag is always derived from the message rows, never stored.
func ChatFinished(chat *models.ChatSession) bool {
	return chat.InterviewerMessageCount() >= QuestionThreshold
}

// CreateInterview persists a new interview for the user. An interview with a
// scheduled date starts out scheduled; one without starts in-progress, ready
// for an immediate session.
func (s *InterviewService) CreateInterview(ctx context.Context, userID, title, interviewType string, date, timeOfDay *string) (*models.Interview, error) {
	status := models.InterviewStatusInProgress
	if date != nil && *date != "" {
		status = models.InterviewStatusScheduled
	}
	interview := &models.Interview{
		UserID:        userID,
		Title:         title,
		Type:          interviewType,
		ScheduledDate: date,
		ScheduledTime: timeOfDay,
		Status:        status,
	}
	if err := s.repo.CreateInterview(ctx, interview); err != nil {
		return nil, err
	}
	return interview, nil
}

func (s *InterviewService) GetInterviews(ctx context.Context, userID string) ([]models.Interview, error) {
	return s.repo.GetInterviews(ctx, userID)
}

func (s *InterviewService) GetInterview(ctx context.Context, userID, interviewID string) (*models.Interview, error) {
	interview, err := s.repo.GetInterview(ctx, userID, interviewID)
	if err != nil {
		return nil, err
	}
	if interview == nil {
		return nil, fmt.Errorf("interview %s: %w", interviewID, ErrNotFound)
	}
	return interview, nil
}

// InterviewUpdate carries the mutable interview fields. Nil means leave the
// field unchanged.
type InterviewUpdate struct {
	Title         *string
	Type          *string
	ScheduledDate *string
	ScheduledTime *string
	Status        *string
}

// UpdateInterview applies the update, enforcing that status only moves
// forward. Re-asserting the current status is a no-op; moving backwards, or
// touching a completed interview's status, is rejected.
func (s *InterviewService) UpdateInterview(ctx context.Context, userID, interviewID string, update InterviewUpdate) (*models.Interview, error) {
	interview, err := s.GetInterview(ctx, userID, interviewID)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		interview.Title = *update.Title
	}
	if update.Type != nil {
		interview.Type = *update.Type
	}
	if update.ScheduledDate != nil {
		interview.ScheduledDate = update.ScheduledDate
	}
	if update.ScheduledTime != nil {
		interview.ScheduledTime = update.ScheduledTime
	}
	if update.Status != nil {
		next := *update.Status
		nextRank := statusRank(next)
		if nextRank < 0 {
			return nil, fmt.Errorf("unknown status %q: %w", next, ErrInvalidState)
		}
		if nextRank < statusRank(interview.Status) {
			return nil, fmt.Errorf("cannot move interview from %s back to %s: %w", interview.Status, next, ErrInvalidState)
		}
		if next == models.InterviewStatusCompleted && interview.Status != models.InterviewStatusCompleted {
			now := time.Now()
			interview.CompletedAt = &now
		}
		interview.Status = next
	}

	if err := s.repo.UpdateInterview(ctx, interview); err != nil {
		return nil, err
	}
	return interview, nil
}

// CreateChat adds a new session to the interview. Default titles number only
// the sessions that were actually used: an untouched "New Session 1" left
// behind does not bump the counter for the next one.
func (s *InterviewService) CreateChat(ctx context.Context, userID, interviewID string, title string) (*models.ChatSession, error) {
	interview, err := s.GetInterview(ctx, userID, interviewID)
	if err != nil {
		return nil, err
	}

	if title == "" {
		used := 0
		for i := range interview.Chats {
			if len(interview.Chats[i].Messages) > 0 {
				used++
			}
		}
		title = fmt.Sprintf("New Session %d", used+1)
	}

	chat := &models.ChatSession{
		InterviewID: interview.ID,
		Title:       title,
	}
	if err := s.repo.CreateChatSession(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *InterviewService) UpdateChatTitle(ctx context.Context, userID, interviewID, chatID, title string) error {
	if _, err := s.findChat(ctx, userID, interviewID, chatID); err != nil {
		return err
	}
	return s.repo.UpdateChatTitle(ctx, chatID, title)
}

// AddMessage appends a message with the given role to the chat. Turn numbers
// are assigned by the repository inside the append transaction.
func (s *InterviewService) AddMessage(ctx context.Context, userID, interviewID, chatID, role, content string) (*models.Message, error) {
	if role != models.MessageRoleInterviewer && role != models.MessageRoleUser {
		return nil, fmt.Errorf("unknown message role %q: %w", role, ErrInvalidState)
	}
	if _, err := s.findChat(ctx, userID, interviewID, chatID); err != nil {
		return nil, err
	}

	message := &models.Message{
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	if err := s.repo.AppendMessage(ctx, message); err != nil {
		return nil, err
	}
	return message, nil
}

// StartChat opens a session: the interview moves to in-progress if it was
// still scheduled, and the model produces the opening question. If the
// session already has messages the existing opener is returned unchanged so
// reconnects do not duplicate it.
func (s *InterviewService) StartChat(ctx context.Context, userID, interviewID, chatID string, personality Personality) (*models.Message, error) {
	interview, chat, err := s.findInterviewChat(ctx, userID, interviewID, chatID)
	if err != nil {
		return nil, err
	}

	if interview.Status == models.InterviewStatusScheduled {
		interview.Status = models.InterviewStatusInProgress
		if err := s.repo.UpdateInterview(ctx, interview); err != nil {
			return nil, err
		}
	}

	if len(chat.Messages) > 0 {
		first := chat.Messages[0]
		return &first, nil
	}

	opening, err := s.completion.OpeningQuestion(ctx, personality, interview.Type)
	if err != nil || opening == "" {
		if err != nil {
			s.log.Warn("opening question failed, using default", "error", err, "chat_id", chatID)
		}
		opening = DefaultOpeningQuestion
	}

	message := &models.Message{
		ChatID:    chatID,
		Role:      models.MessageRoleInterviewer,
		Content:   opening,
		Timestamp: time.Now(),
	}
	if err := s.repo.AppendMessage(ctx, message); err != nil {
		return nil, err
	}
	return message, nil
}

// TurnResult is the outcome of one user turn.
type TurnResult struct {
	// Reply is the interviewer's message, nil when the model signalled the
	// conversation is over instead of replying.
	Reply *models.Message
	// ReportReady is true when the model emitted its end-of-interview signal.
	ReportReady bool
	// Report is the generated report, when one was produced this turn.
	Report *models.Report
	// Finished reports whether the session has reached the question threshold.
	Finished bool
}

// SendUserMessage appends the candidate's message and obtains the
// interviewer's response. The user's words are durably stored before the
// model is consulted, so an upstream failure never loses what the candidate
// said; the failure surfaces as an apologetic interviewer message instead of
// an error. When the model signals it is done, or the session reaches the
// question threshold, the interview is completed and a report generated.
func (s *InterviewService) SendUserMessage(ctx context.Context, userID, interviewID, chatID string, personality Personality, content string) (*TurnResult, error) {
	interview, _, err := s.findInterviewChat(ctx, userID, interviewID, chatID)
	if err != nil {
		return nil, err
	}

	// Sending a message is itself the start of the interview when the client
	// skipped the explicit start call.
	if interview.Status == models.InterviewStatusScheduled {
		interview.Status = models.InterviewStatusInProgress
		if err := s.repo.UpdateInterview(ctx, interview); err != nil {
			return nil, err
		}
	}

	userMessage := &models.Message{
		ChatID:    chatID,
		Role:      models.MessageRoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
	if err := s.repo.AppendMessage(ctx, userMessage); err != nil {
		return nil, err
	}

	history, err := s.repo.GetMessagesByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	reply, err := s.completion.NextTurn(ctx, personality, interview.Type, history)
	if err != nil {
		s.log.Warn("interviewer turn failed", "error", err, "chat_id", chatID)
		reply = TurnFailureMessage
	}

	if strings.TrimSpace(reply) == SentinelReportReady {
		return s.finishSession(ctx, interview, chatID)
	}

	interviewerMessage := &models.Message{
		ChatID:    chatID,
		Role:      models.MessageRoleInterviewer,
		Content:   reply,
		Timestamp: time.Now(),
	}
	if err := s.repo.AppendMessage(ctx, interviewerMessage); err != nil {
		return nil, err
	}

	count, err := s.repo.CountInterviewerMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	result := &TurnResult{Reply: interviewerMessage, Finished: count >= QuestionThreshold}
	if result.Finished {
		if err := s.completeInterview(ctx, interview); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// finishSession handles the model's end-of-interview signal: the interview is
// completed and a report generated from the session transcript. A report
// failure is logged but does not fail the turn; the candidate still gets a
// finished session.
func (s *InterviewService) finishSession(ctx context.Context, interview *models.Interview, chatID string) (*TurnResult, error) {
	if err := s.completeInterview(ctx, interview); err != nil {
		return nil, err
	}

	result := &TurnResult{ReportReady: true, Finished: true}
	report, err := s.reports.Generate(ctx, interview.UserID, interview.ID, &chatID)
	if err != nil {
		s.log.Warn("report generation after session end failed", "error", err, "interview_id", interview.ID, "chat_id", chatID)
		return result, nil
	}
	result.Report = report
	return result, nil
}

func (s *InterviewService) completeInterview(ctx context.Context, interview *models.Interview) error {
	if interview.Status == models.InterviewStatusCompleted {
		return nil
	}
	now := time.Now()
	interview.Status = models.InterviewStatusCompleted
	interview.CompletedAt = &now
	return s.repo.UpdateInterview(ctx, interview)
}

// GenerateReport scores the conversation and persists a new report.
func (s *InterviewService) GenerateReport(ctx context.Context, userID, interviewID string, chatID *string) (*models.Report, error) {
	return s.reports.Generate(ctx, userID, interviewID, chatID)
}

// GetReport returns the most recent report for the (interview, chat) pair,
// or ErrNotFound when none has been generated yet.
func (s *InterviewService) GetReport(ctx context.Context, userID, interviewID string, chatID *string) (*models.Report, error) {
	report, err := s.repo.GetLatestReport(ctx, userID, interviewID, chatID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("no report for interview %s: %w", interviewID, ErrNotFound)
	}
	return report, nil
}

func (s *InterviewService) GetReportsForInterview(ctx context.Context, userID, interviewID string) ([]models.Report, error) {
	if _, err := s.GetInterview(ctx, userID, interviewID); err != nil {
		return nil, err
	}
	return s.repo.GetReportsForInterview(ctx, userID, interviewID)
}

// DailyStat is one day's practice activity.
type DailyStat struct {
	Date     string         `json:"date"`
	Sessions int            `json:"sessions"`
	ByType   map[string]int `json:"byType"`
}

// DailyStats aggregates the user's chat sessions for one month (YYYY-MM)
// into per-day counts broken down by interview type, optionally limited to a
// single interview. Sessions without any messages are skipped.
func (s *InterviewService) DailyStats(ctx context.Context, userID, month, interviewID string) ([]DailyStat, error) {
	if _, err := time.Parse("2006-01", month); err != nil {
		return nil, fmt.Errorf("month must be YYYY-MM: %w", ErrInvalidState)
	}

	chats, err := s.repo.GetChatSessionsForUser(ctx, userID, interviewID)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*DailyStat)
	for i := range chats {
		chat := &chats[i]
		count, err := s.repo.CountInterviewerMessages(ctx, chat.ID)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			continue
		}
		day := chat.CreatedAt.Format("2006-01-02")
		if !strings.HasPrefix(day, month) {
			continue
		}
		stat, ok := byDay[day]
		if !ok {
			stat = &DailyStat{Date: day, ByType: make(map[string]int)}
			byDay[day] = stat
		}
		stat.Sessions++
		stat.ByType[chat.Interview.Type]++
	}

	stats := make([]DailyStat, 0, len(byDay))
	for _, stat := range byDay {
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Date < stats[j].Date })
	return stats, nil
}

func (s *InterviewService) findChat(ctx context.Context, userID, interviewID, chatID string) (*models.ChatSession, error) {
	_, chat, err := s.findInterviewChat(ctx, userID, interviewID, chatID)
	return chat, err
}

func (s *InterviewService) findInterviewChat(ctx context.Context, userID, interviewID, chatID string) (*models.Interview, *models.ChatSession, error) {
	interview, err := s.GetInterview(ctx, userID, interviewID)
	if err != nil {
		return nil, nil, err
	}
	for i := range interview.Chats {
		if interview.Chats[i].ID == chatID {
			return interview, &interview.Chats[i], nil
		}
	}
	return nil, nil, fmt.Errorf("chat %s: %w", chatID, ErrNotFound)
}
