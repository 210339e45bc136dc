package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	ws "github.com/careersim/backend/websocket"
)

// safeSend tries to send a message to the client channel, recovers if closed
func safeSend(ch chan<- []byte, msg []byte) {
	defer func() {
		if r := recover(); r != nil {
			// Channel is closed, ignore
		}
	}()
	select {
	case ch <- msg:
		// sent
	default:
		// channel full or closed
	}
}

// WebSocketHandler routes interview-room messages from connected clients into
// the interview service and writes the replies back over the socket.
type WebSocketHandler struct {
	interviews *InterviewService
}

func NewWebSocketHandler(interviews *InterviewService) *WebSocketHandler {
	return &WebSocketHandler{
		interviews: interviews,
	}
}

// HandleWebSocketConnection opens the session for a freshly connected client:
// the interview moves to in-progress and the opening question is sent down
// the socket.
func (h *WebSocketHandler) HandleWebSocketConnection(client *ws.Client) {
	slog.Info("WebSocket connection handled", "user_id", client.UserID, "chat_id", client.ChatID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opening, err := h.interviews.StartChat(ctx, client.UserID, client.InterviewID, client.ChatID, NormalizePersonality(client.Personality))
	if err != nil {
		slog.Error("Failed to start chat over WebSocket", "error", err, "chat_id", client.ChatID)
		h.sendError(client, "Failed to start the interview")
		return
	}

	h.send(client, ws.Message{
		Type:    "interviewer_message",
		Content: opening.Content,
		ChatID:  client.ChatID,
	})
}

// HandleWebSocketMessage processes one incoming envelope.
func (h *WebSocketHandler) HandleWebSocketMessage(client *ws.Client, messageBytes []byte) {
	var msg ws.Message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		slog.Error("Failed to unmarshal WebSocket message", "error", err)
		return
	}

	slog.Info("WebSocket message received", "type", msg.Type, "user_id", client.UserID, "chat_id", client.ChatID)

	switch msg.Type {
	case "start":
		h.HandleWebSocketConnection(client)
	case "user_message":
		h.handleUserMessage(client, msg.Content)
	default:
		slog.Warn("Unknown message type", "type", msg.Type, "chat_id", client.ChatID)
	}
}

func (h *WebSocketHandler) handleUserMessage(client *ws.Client, content string) {
	if content == "" {
		h.sendError(client, "Message content is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := h.interviews.SendUserMessage(ctx, client.UserID, client.InterviewID, client.ChatID, NormalizePersonality(client.Personality), content)
	if err != nil {
		slog.Error("Failed to process user message", "error", err, "chat_id", client.ChatID)
		h.sendError(client, "Failed to process your message")
		return
	}

	if result.Reply != nil {
		h.send(client, ws.Message{
			Type:     "interviewer_message",
			Content:  result.Reply.Content,
			ChatID:   client.ChatID,
			Finished: result.Finished,
		})
	}

	if result.Report != nil {
		payload, err := json.Marshal(result.Report)
		if err != nil {
			slog.Error("Failed to marshal report for WebSocket", "error", err, "chat_id", client.ChatID)
		} else {
			h.send(client, ws.Message{
				Type:        "report",
				ChatID:      client.ChatID,
				ReportReady: true,
				Report:      payload,
			})
		}
	}

	if result.Finished {
		h.send(client, ws.Message{
			Type:        "finished",
			ChatID:      client.ChatID,
			Finished:    true,
			ReportReady: result.ReportReady,
		})
	}
}

func (h *WebSocketHandler) send(client *ws.Client, msg ws.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal WebSocket message", "error", err)
		return
	}
	safeSend(client.Send, payload)
}

func (h *WebSocketHandler) sendError(client *ws.Client, message string) {
	h.send(client, ws.Message{Type: "error", Content: message})
}
