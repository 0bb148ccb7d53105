// Package dashboard serves aggregate usage statistics to administrators.
package dashboard

import (
	"context"
	"log/slog"

	"github.com/transportuni/chatbot-api/users"
)

// topQuestions is how many frequent questions the dashboard lists.
const topQuestions = 5

// FrequentQuestion is a user message and how often it was asked.
type FrequentQuestion struct {
	Question string `json:"question" example:"When does the library open?"`
	Count    int64  `json:"count" example:"14"`
}

// Stats is the dashboard payload.
type Stats struct {
	TotalUsers        int64              `json:"total_users" example:"120"`
	TotalQuestions    int64              `json:"total_questions" example:"3400"`
	FrequentQuestions []FrequentQuestion `json:"frequent_questions"`
}

// StatsStore computes the aggregates.
type StatsStore interface {
	CountAccounts(ctx context.Context) (int64, error)
	// CountQuestions counts messages with the user role.
	CountQuestions(ctx context.Context) (int64, error)
	// FrequentQuestions returns the n most asked user messages, most frequent first.
	FrequentQuestions(ctx context.Context, n int) ([]FrequentQuestion, error)
}

// Service builds the dashboard for admin callers.
type Service struct {
	stats  StatsStore
	logger *slog.Logger
}

// NewService creates a dashboard service.
func NewService(stats StatsStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{stats: stats, logger: logger}
}

// Stats returns the aggregates if the request account is an administrator.
// The account was resolved from the store for this request, so its flags are current.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	if _, err := users.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	accounts, err := s.stats.CountAccounts(ctx)
	if err != nil {
		return nil, err
	}
	questions, err := s.stats.CountQuestions(ctx)
	if err != nil {
		return nil, err
	}
	frequent, err := s.stats.FrequentQuestions(ctx, topQuestions)
	if err != nil {
		return nil, err
	}
	if frequent == nil {
		frequent = []FrequentQuestion{}
	}
	s.logger.DebugContext(ctx, "dashboard stats computed", "accounts", accounts, "questions", questions)
	return &Stats{TotalUsers: accounts, TotalQuestions: questions, FrequentQuestions: frequent}, nil
}
