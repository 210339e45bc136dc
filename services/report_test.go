package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/careersim/backend/models"
	"github.com/careersim/backend/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T, completion CompletionClient) (*ReportGenerator, *InterviewService, *repository.GORMRepository) {
	t.Helper()
	svc, repo := newTestService(t, completion)
	return NewReportGenerator(repo, completion, testLogger()), svc, repo
}

// fillChat appends alternating interviewer/user messages until the chat holds
// the given number of interviewer turns.
func fillChat(t *testing.T, repo *repository.GORMRepository, chatID string, interviewerTurns int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < interviewerTurns; i++ {
		require.NoError(t, repo.AppendMessage(ctx, &models.Message{
			ChatID:    chatID,
			Role:      models.MessageRoleInterviewer,
			Content:   fmt.Sprintf("Question %d?", i+1),
			Timestamp: time.Now(),
		}))
		require.NoError(t, repo.AppendMessage(ctx, &models.Message{
			ChatID:    chatID,
			Role:      models.MessageRoleUser,
			Content:   fmt.Sprintf("Answer %d.", i+1),
			Timestamp: time.Now(),
		}))
	}
}

const goodEvaluation = `{
	"overallScore": 88, "expression": 84, "content": 90, "structure": 86, "language": 82,
	"strengths": ["s1", "s2", "s3"],
	"improvements": ["i1", "i2", "i3"],
	"recommendations": ["r1", "r2", "r3"]
}`

func TestGenerateBelowThresholdIsInsufficientData(t *testing.T) {
	gen, svc, repo := newTestGenerator(t, &fakeCompletion{evaluation: goodEvaluation})
	ctx := context.Background()
	user := seedUser(t, repo, "a@example.com")

	interview, err := svc.CreateInterview(ctx, user.ID, "Practice", "technical", nil, nil)
	require.NoError(t, err)
	chat, err := svc.CreateChat(ctx, user.ID, interview.ID, "")
	require.NoError(t, err)
	fillChat(t, repo, chat.ID, QuestionThreshold-1)

	_, err = gen.Generate(ctx, user.ID, interview.ID, &chat.ID)
	assert.ErrorIs(t, err, ErrInsufficientData)

	fillChat(t, repo, chat.ID, 1)
	report, err := gen.Generate(ctx, user.ID, interview.ID, &chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 88, report.OverallScore)
	assert.Equal(t, []string{"s1", "s2", "s3"}, []string(report.Strengths))
}

func TestGenerateUnknownInterviewIsNotFound(t *testing.T) {
	gen, _, repo := newTestGenerator(t, &fakeCompletion{})
	user := seedUser(t, repo, "a@example.com")

	_, err := gen.Generate(context.Background(), user.ID, "no-such-interview", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateWithoutChatIDPicksFirstUsedChat(t *testing.T) {
	gen, svc, repo := newTestGenerator(t, &fakeCompletion{evaluation: goodEvaluation})
	ctx := context.Background()
	user := seedUser(t, repo, "a@example.com")

	interview, err := svc.CreateInterview(ctx, user.ID, "Practice", "technical", nil, nil)
	require.NoError(t, err)

	// First chat stays empty; the second carries the conversation.
	_, err = svc.CreateChat(ctx, user.ID, interview.ID, "")
	require.NoError(t, err)
	used, err := svc.CreateChat(ctx, user.ID, interview.ID, "")
	require.NoError(t, err)
	fillChat(t, repo, used.ID, QuestionThreshold)

	report, err := gen.Generate(ctx, user.ID, interview.ID, nil)
	require.NoError(t, err)
	// The transcript comes from the used chat, but the stored report keeps
	// its interview-level (NULL chat) identity.
	assert.Nil(t, report.ChatID)

	stored, err := repo.GetLatestReport(ctx, user.ID, interview.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, report.ID, stored.ID)
}

func TestGenerateWithoutAnyConversation(t *testing.T) {
	gen, svc, repo := newTestGenerator(t, &fakeCompletion{})
	ctx := context.Background()
	user := seedUser(t, repo, "a@example.com")

	interview, err := svc.CreateInterview(ctx, user.ID, "Practice", "technical", nil, nil)
	require.NoError(t, err)
	_, err = svc.CreateChat(ctx, user.ID, interview.ID, "")
	require.NoError(t, err)

	_, err = gen.Generate(ctx, user.ID, interview.ID, nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestGenerateUpstreamFailureFallsBackToCannedReport(t *testing.T) {
	gen, svc, repo := newTestGenerator(t, &fakeCompletion{evaluateErr: errors.New("upstream down")})
	ctx := context.Background()
	user := seedUser(t, repo, "a@example.com")

	interview, err := svc.CreateInterview(ctx, user.ID, "Practice", "technical", nil, nil)
	require.NoError(t, err)
	chat, err := svc.CreateChat(ctx, user.ID, interview.ID, "")
	require.NoError(t, err)
	fillChat(t, repo, chat.ID, QuestionThreshold)

	report, err := gen.Generate(ctx, user.ID, interview.ID, &chat.ID)
	require.NoError(t, err, "a failed evaluation still yields a report")
	assert.Equal(t, 75, report.OverallScore)
	assert.Equal(t, 75, report.Expression)
	assert.Equal(t, 75, report.Content)
	assert.Equal(t, 75, report.Structure)
	assert.Equal(t, 75, report.Language)
	assert.Len(t, []string(report.Strengths), 3)
	assert.Len(t, []string(report.Improvements), 3)
	assert.Len(t, []string(report.Recommendations), 3)
}

func TestGenerateUnparseableResponseFallsBack(t *testing.T) {
	gen, svc, repo := newTestGenerator(t, &fakeCompletion{evaluation: "The candidate did quite well overall."})
	ctx := context.Background()
	user := seedUser(t, repo, "a@example.com")

	interview, err := svc.CreateInterview(ctx, user.ID, "Practice", "technical", nil, nil)
	require.NoError(t, err)
	chat, err := svc.CreateChat(ctx, user.ID, interview.ID, "")
	require.NoError(t, err)
	fillChat(t, repo, chat.ID, QuestionThreshold)

	report, err := gen.Generate(ctx, user.ID, interview.ID, &chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 75, report.OverallScore)
}

func TestGenerateAppendsAndReturnsMostRecent(t *testing.T) {
	gen, svc, repo := newTestGenerator(t, &fakeCompletion{evaluation: goodEvaluation})
	ctx := context.Background()
	user := seedUser(t, repo, "a@example.com")

	interview, err := svc.CreateInterview(ctx, user.ID, "Practice", "technical", nil, nil)
	require.NoError(t, err)
	chat, err := svc.CreateChat(ctx, user.ID, interview.ID, "")
	require.NoError(t, err)
	fillChat(t, repo, chat.ID, QuestionThreshold)

	first, err := gen.Generate(ctx, user.ID, interview.ID, &chat.ID)
	require.NoError(t, err)
	second, err := gen.Generate(ctx, user.ID, interview.ID, &chat.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "regeneration appends, never overwrites")

	reports, err := repo.GetReportsForInterview(ctx, user.ID, interview.ID)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}

func TestParseEvaluationClampsScores(t *testing.T) {
	body, err := parseEvaluation(`{
		"overallScore": 150, "expression": -10, "content": 79.6, "structure": 0, "language": 100,
		"strengths": ["a", "b", "c"], "improvements": ["d", "e", "f"], "recommendations": ["g", "h", "i"]
	}`)
	require.NoError(t, err)
	assert.Equal(t, 100, body.Overall)
	assert.Equal(t, 0, body.Expression)
	assert.Equal(t, 80, body.Content)
	assert.Equal(t, 0, body.Structure)
	assert.Equal(t, 100, body.Language)
}

func TestParseEvaluationFieldLevelFallbacks(t *testing.T) {
	// Missing score, short list, and non-array list each fall back
	// individually without discarding the rest of the response.
	body, err := parseEvaluation(`{
		"overallScore": 91, "expression": 88, "content": 90, "language": 85,
		"strengths": ["only one", "and two"],
		"improvements": "not a list",
		"recommendations": ["r1", "r2", "r3", "r4"]
	}`)
	require.NoError(t, err)
	assert.Equal(t, 91, body.Overall)
	assert.Equal(t, 75, body.Structure)
	assert.Equal(t, fallbackStrengths, body.Strengths)
	assert.Equal(t, fallbackImprovements, body.Improvements)
	assert.Equal(t, []string{"r1", "r2", "r3", "r4"}, body.Recommendations)
}

func TestParseEvaluationStripsCodeFences(t *testing.T) {
	fenced := "```json\n" + goodEvaluation + "\n```"
	body, err := parseEvaluation(fenced)
	require.NoError(t, err)
	assert.Equal(t, 88, body.Overall)
}

func TestParseEvaluationExtractsObjectFromProse(t *testing.T) {
	wrapped := "Here is my assessment:\n" + goodEvaluation + "\nHope this helps!"
	body, err := parseEvaluation(wrapped)
	require.NoError(t, err)
	assert.Equal(t, 88, body.Overall)
	assert.Equal(t, []string{"i1", "i2", "i3"}, body.Improvements)
}

func TestParseEvaluationNoObjectIsParseError(t *testing.T) {
	_, err := parseEvaluation("no json here at all")
	assert.ErrorIs(t, err, ErrParse)

	_, err = parseEvaluation("truncated { \"overallScore\": 80")
	assert.ErrorIs(t, err, ErrParse)
}

func TestExtractJSONObjectRespectsStrings(t *testing.T) {
	s := `{"note": "braces } inside \" strings {", "n": 1}`
	assert.Equal(t, s, extractJSONObject("prefix "+s+" suffix"))
}

func TestBuildTranscriptLabelsSpeakers(t *testing.T) {
	transcript := buildTranscript([]models.Message{
		{Role: models.MessageRoleInterviewer, Content: "Tell me about yourself."},
		{Role: models.MessageRoleUser, Content: "I am a backend engineer."},
	})
	assert.Equal(t, "Interviewer: Tell me about yourself.\nCandidate: I am a backend engineer.\n", transcript)
}
