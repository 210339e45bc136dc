package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// All models are automatically exported from their respective files:
// - User, RefreshToken, PermanentToken from user.go
// - Interview, ChatSession from interview.go
// - Message from message.go
// - Report from report.go

// Database schema overview:
// 1. users - Managed by cookie-based authentication
// 2. interviews - An interview track a user creates, optionally scheduled to a date/time
// 3. chat_sessions - One conversation attempt within an interview
// 4. messages - The ordered, turn-by-turn text of a chat session
// 5. reports - AI-scored evaluations generated from one chat session's transcript
