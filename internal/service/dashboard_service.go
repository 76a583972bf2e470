package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edulens/edulens-api/internal/dto"
	"github.com/edulens/edulens-api/internal/models"
	"github.com/edulens/edulens-api/internal/repository"
	"github.com/edulens/edulens-api/internal/timeutil"
)

// DashboardService aggregates a student's standing across rubric sets. The
// aggregate is cached in redis when a client is configured; Invalidate is
// called after each successful grade.
type DashboardService interface {
	GetDashboard(ctx context.Context, studentID string) (dto.DashboardResponse, error)
	Invalidate(ctx context.Context, studentID string)
}

type dashboardService struct {
	rubrics     repository.RubricSetRepository
	submissions repository.SubmissionRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewDashboardService builds the dashboard aggregator.
func NewDashboardService(rubrics repository.RubricSetRepository, submissions repository.SubmissionRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) DashboardService {
	return &dashboardService{
		rubrics:     rubrics,
		submissions: submissions,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "dashboard_service").Logger(),
		now:         time.Now,
	}
}

func (s *dashboardService) GetDashboard(ctx context.Context, studentID string) (dto.DashboardResponse, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return dto.DashboardResponse{}, fmt.Errorf("%w: student id is required", ErrInvalidInput)
	}

	cacheKey := dashboardCacheKey(studentID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.DashboardResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Str("student_id", studentID).Msg("dashboard cache hit")
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read dashboard cache")
		}
	}

	sets, err := s.rubrics.List(ctx)
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	submissions, err := s.submissions.ListByStudent(ctx, studentID)
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	response := s.buildResponse(studentID, sets, submissions)

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store dashboard cache")
			}
		}
	}

	return response, nil
}

// Invalidate drops the cached dashboard for a student. Safe to call with no
// cache configured.
func (s *dashboardService) Invalidate(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Del(ctx, dashboardCacheKey(studentID)).Err(); err != nil {
		s.logger.Warn().Err(err).Str("student_id", studentID).Msg("failed to invalidate dashboard cache")
	}
}

func (s *dashboardService) buildResponse(studentID string, sets []models.RubricSet, submissions []models.Submission) dto.DashboardResponse {
	now := s.now().UTC()

	submissionBySet := make(map[string]models.Submission, len(submissions))
	for _, submission := range submissions {
		submissionBySet[submission.RubricSetID] = submission
	}

	entries := make([]dto.DashboardEntry, 0, len(sets))
	for _, set := range sets {
		entry := dto.DashboardEntry{
			RubricSetID:    set.ID,
			Title:          set.Title,
			Deadline:       set.Deadline,
			DeadlinePassed: set.IsPastDeadline(now),
			MaxAttempts:    set.MaxAttempts,
		}
		if set.Deadline != nil {
			entry.DeadlineDisplay = timeutil.FormatIST(*set.Deadline)
		}

		if submission, ok := submissionBySet[set.ID]; ok {
			entry.AttemptsUsed = submission.AttemptNumber
			submittedAt := submission.SubmittedAt
			entry.SubmittedAt = &submittedAt

			var result struct {
				TotalScore float64 `json:"total_score"`
				MaxScore   float64 `json:"max_score"`
			}
			if err := json.Unmarshal(submission.Result, &result); err == nil {
				entry.TotalScore = &result.TotalScore
				entry.MaxScore = &result.MaxScore
			}
		}

		entry.AttemptsRemaining = attemptsRemaining(set.MaxAttempts, entry.AttemptsUsed)
		entries = append(entries, entry)
	}

	return dto.DashboardResponse{
		StudentID:   studentID,
		Entries:     entries,
		GeneratedAt: now,
	}
}

func dashboardCacheKey(studentID string) string {
	return fmt.Sprintf("dashboard:student:%s", studentID)
}
