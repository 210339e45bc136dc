package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/careersim/backend/models"
	"github.com/careersim/backend/repository"
	"golang.org/x/crypto/bcrypt"
)

// DatabaseSeeder handles database seeding operations
type DatabaseSeeder struct {
	repo *repository.GORMRepository
}

// NewDatabaseSeeder creates a new database seeder
func NewDatabaseSeeder(repo *repository.GORMRepository) *DatabaseSeeder {
	return &DatabaseSeeder{repo: repo}
}

// SeedDatabase seeds the database with initial data (idempotent)
func (s *DatabaseSeeder) SeedDatabase() error {
	ctx := context.Background()

	// Hash default password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	// Create test users (no admin users for security)
	users := []models.User{
		{
			Email:    "test@example.com",
			Password: string(hashedPassword),
			Name:     "Test User",
		},
		{
			Email:    "demo@example.com",
			Password: string(hashedPassword),
			Name:     "Demo User",
		},
	}

	// Seed users (idempotent)
	for _, user := range users {
		if err := s.seedUser(ctx, user); err != nil {
			slog.Error("Failed to seed user", "email", user.Email, "error", err)
		}
	}

	// Give the test user a sample interview so a fresh environment has
	// something to open.
	testUser, err := s.repo.GetUserByEmail(ctx, "test@example.com")
	if err != nil {
		return fmt.Errorf("failed to get test user: %w", err)
	}
	if testUser == nil {
		return fmt.Errorf("test user not found")
	}

	if err := s.seedSampleInterview(ctx, testUser.ID); err != nil {
		slog.Error("Failed to seed sample interview", "error", err)
	}

	slog.Info("Database seeding completed successfully")
	return nil
}

// seedUser seeds a single user (idempotent)
func (s *DatabaseSeeder) seedUser(ctx context.Context, user models.User) error {
	// Check if user already exists
	existingUser, err := s.repo.GetUserByEmail(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("error checking user %s: %w", user.Email, err)
	}

	if existingUser != nil {
		slog.Info("User already exists, skipping", "email", user.Email)
		return nil
	}

	// User doesn't exist, create it
	if err := s.repo.CreateUser(ctx, &user); err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Email, err)
	}

	slog.Info("Created user", "email", user.Email)
	return nil
}

// seedSampleInterview creates one in-progress interview with an empty
// session, skipping when the user already has interviews.
func (s *DatabaseSeeder) seedSampleInterview(ctx context.Context, userID string) error {
	existing, err := s.repo.GetInterviews(ctx, userID)
	if err != nil {
		return fmt.Errorf("error checking interviews: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("Sample interview already exists, skipping", "user_id", userID)
		return nil
	}

	interview := &models.Interview{
		UserID: userID,
		Title:  "Backend Engineer Practice",
		Type:   "technical",
		Status: models.InterviewStatusInProgress,
	}
	if err := s.repo.CreateInterview(ctx, interview); err != nil {
		return fmt.Errorf("failed to create sample interview: %w", err)
	}

	chat := &models.ChatSession{
		InterviewID: interview.ID,
		Title:       "New Session 1",
	}
	if err := s.repo.CreateChatSession(ctx, chat); err != nil {
		return fmt.Errorf("failed to create sample chat session: %w", err)
	}

	slog.Info("Created sample interview", "interview_id", interview.ID, "user_id", userID)
	return nil
}
