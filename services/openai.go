package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/careersim/backend/models"
)

// CompletionClient is the surface the interview and report services need
// from the language model. Tests substitute a fake.
type CompletionClient interface {
	// OpeningQuestion produces the interviewer's first message.
	OpeningQuestion(ctx context.Context, personality Personality, interviewType string) (string, error)
	// NextTurn produces the interviewer's reply to the conversation so far.
	// The returned string may be exactly SentinelReportReady.
	NextTurn(ctx context.Context, personality Personality, interviewType string, history []models.Message) (string, error)
	// Evaluate scores a finished conversation and returns the model's raw
	// response text, which the report generator parses.
	Evaluate(ctx context.Context, interviewType, transcript string) (string, error)
}

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "gpt-4o-mini"

	turnTemperature       = 0.7
	stressTemperature     = 0.8
	evaluationTemperature = 0.2

	openingMaxTokens    = 200
	turnMaxTokens       = 500
	evaluationMaxTokens = 1000
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func NewOpenAIClient(apiKey, model, baseURL string, log *slog.Logger) *OpenAIClient {
	if model == "" {
		model = defaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
}

func (c *OpenAIClient) OpeningQuestion(ctx context.Context, personality Personality, interviewType string) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: buildSystemPrompt(personality, interviewType)},
		{Role: "user", Content: openingQuestionInstruction},
	}
	return c.complete(ctx, messages, turnTemperatureFor(personality), openingMaxTokens)
}

func (c *OpenAIClient) NextTurn(ctx context.Context, personality Personality, interviewType string, history []models.Message) (string, error) {
	messages := make([]chatMessage, 0, len(history)+1)
	messages = append(messages, chatMessage{Role: "system", Content: buildSystemPrompt(personality, interviewType)})
	for _, m := range history {
		role := "user"
		if m.Role == models.MessageRoleInterviewer {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: m.Content})
	}
	return c.complete(ctx, messages, turnTemperatureFor(personality), turnMaxTokens)
}

func (c *OpenAIClient) Evaluate(ctx context.Context, interviewType, transcript string) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: evaluationSystemPrompt},
		{Role: "user", Content: buildEvaluationPrompt(interviewType, transcript)},
	}
	return c.complete(ctx, messages, evaluationTemperature, evaluationMaxTokens)
}

func turnTemperatureFor(personality Personality) float64 {
	if personality == PersonalityStressTest {
		return stressTemperature
	}
	return turnTemperature
}

func (c *OpenAIClient) complete(ctx context.Context, messages []chatMessage, temperature float64, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding request: %v", ErrUpstreamUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: building request: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("completion request failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Error("completion request rejected", "status", resp.StatusCode, "body", truncate(string(raw), 512))
		return "", fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrUpstreamUnavailable, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: response contained no choices", ErrUpstreamUnavailable)
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
