package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/careersim/backend/models"
	"github.com/careersim/backend/repository"
	"gorm.io/datatypes"
)

// ReportGenerator turns a finished interview conversation into a persisted
// scored report.
type ReportGenerator struct {
	repo       *repository.GORMRepository
	completion CompletionClient
	log        *slog.Logger
}

func NewReportGenerator(repo *repository.GORMRepository, completion CompletionClient, log *slog.Logger) *ReportGenerator {
	return &ReportGenerator{repo: repo, completion: completion, log: log}
}

// Generate scores the chat identified by chatID within the given interview
// and persists a new report row. When chatID is nil the first chat of the
// interview that contains at least one message supplies the transcript, but
// the stored report keeps a NULL chat reference so it reads as an
// interview-level report.
func (g *ReportGenerator) Generate(ctx context.Context, userID, interviewID string, chatID *string) (*models.Report, error) {
	interview, err := g.repo.GetInterview(ctx, userID, interviewID)
	if err != nil {
		return nil, err
	}
	if interview == nil {
		return nil, fmt.Errorf("interview %s: %w", interviewID, ErrNotFound)
	}

	chat, err := g.selectChat(interview, chatID)
	if err != nil {
		return nil, err
	}

	messages, err := g.repo.GetMessagesByChat(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	interviewerTurns := 0
	for _, m := range messages {
		if m.Role == models.MessageRoleInterviewer {
			interviewerTurns++
		}
	}
	if interviewerTurns < QuestionThreshold {
		return nil, fmt.Errorf("%d of %d interviewer turns: %w", interviewerTurns, QuestionThreshold, ErrInsufficientData)
	}

	body := g.score(ctx, interview.Type, buildTranscript(messages))
	report := &models.Report{
		UserID:          userID,
		InterviewID:     interviewID,
		ChatID:          chatID,
		OverallScore:    body.Overall,
		Expression:      body.Expression,
		Content:         body.Content,
		Structure:       body.Structure,
		Language:        body.Language,
		Strengths:       datatypes.NewJSONSlice(body.Strengths),
		Improvements:    datatypes.NewJSONSlice(body.Improvements),
		Recommendations: datatypes.NewJSONSlice(body.Recommendations),
	}
	if err := g.repo.CreateReport(ctx, report); err != nil {
		return nil, err
	}

	g.log.Info("report generated",
		"user_id", userID,
		"interview_id", interviewID,
		"overall", report.OverallScore)
	return report, nil
}

func (g *ReportGenerator) selectChat(interview *models.Interview, chatID *string) (*models.ChatSession, error) {
	if chatID != nil {
		for i := range interview.Chats {
			if interview.Chats[i].ID == *chatID {
				return &interview.Chats[i], nil
			}
		}
		return nil, fmt.Errorf("chat %s: %w", *chatID, ErrNotFound)
	}
	for i := range interview.Chats {
		if len(interview.Chats[i].Messages) > 0 {
			return &interview.Chats[i], nil
		}
	}
	return nil, fmt.Errorf("interview has no conversation: %w", ErrInsufficientData)
}

// reportBody is the decoded, clamped evaluation. Scores land in [0,100] and
// each list carries at least three entries.
type reportBody struct {
	Overall         int
	Expression      int
	Content         int
	Structure       int
	Language        int
	Strengths       []string
	Improvements    []string
	Recommendations []string
}

// score runs the evaluation call and parses the result. Any failure along
// the way degrades to the canned fallback body rather than surfacing an
// error; a report is always produced once the threshold is met.
func (g *ReportGenerator) score(ctx context.Context, interviewType, transcript string) reportBody {
	raw, err := g.completion.Evaluate(ctx, interviewType, transcript)
	if err != nil {
		g.log.Warn("evaluation call failed, using fallback report", "error", err)
		return fallbackReportBody()
	}
	body, err := parseEvaluation(raw)
	if err != nil {
		g.log.Warn("evaluation response unparseable, using fallback report", "error", err)
		return fallbackReportBody()
	}
	return body
}

func fallbackReportBody() reportBody {
	return reportBody{
		Overall:         fallbackScore,
		Expression:      fallbackScore,
		Content:         fallbackScore,
		Structure:       fallbackScore,
		Language:        fallbackScore,
		Strengths:       fallbackStrengths,
		Improvements:    fallbackImprovements,
		Recommendations: fallbackRecommendations,
	}
}

// parseEvaluation extracts the JSON object from the model's reply and decodes
// it field by field. Individual list fields that are missing or malformed
// fall back to their canned substitutes; a reply with no decodable object at
// all is an error.
func parseEvaluation(raw string) (reportBody, error) {
	obj := extractJSONObject(stripCodeFences(raw))
	if obj == "" {
		return reportBody{}, fmt.Errorf("%w: no JSON object in evaluation response", ErrParse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return reportBody{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	return reportBody{
		Overall:         decodeScore(fields["overallScore"]),
		Expression:      decodeScore(fields["expression"]),
		Content:         decodeScore(fields["content"]),
		Structure:       decodeScore(fields["structure"]),
		Language:        decodeScore(fields["language"]),
		Strengths:       decodeList(fields["strengths"], fallbackStrengths),
		Improvements:    decodeList(fields["improvements"], fallbackImprovements),
		Recommendations: decodeList(fields["recommendations"], fallbackRecommendations),
	}, nil
}

func decodeScore(raw json.RawMessage) int {
	if raw == nil {
		return fallbackScore
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return fallbackScore
	}
	return clampScore(f)
}

func decodeList(raw json.RawMessage, fallback []string) []string {
	if raw == nil {
		return fallback
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil || len(items) < 3 {
		return fallback
	}
	return items
}

func clampScore(f float64) int {
	n := int(math.Round(f))
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// stripCodeFences removes a surrounding markdown code fence, with or without
// a language tag, if present.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractJSONObject returns the first balanced top-level JSON object in s,
// tolerating prose before and after it. Brace counting skips string
// literals and escape sequences.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
