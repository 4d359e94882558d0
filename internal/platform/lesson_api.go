package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coursebox/progression/internal/domain"
	"github.com/coursebox/progression/internal/infrastructure/driver"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// LessonAPI lesson repository backed by the platform HTTP API
type LessonAPI struct {
	client   *Client
	cache    driver.KeyValueDB
	cacheTTL time.Duration
	logger   *zap.Logger
}

var _ domain.LessonRepository = &LessonAPI{}

// NewLessonAPI create a lesson repository. cache may be nil to disable
// lesson list caching
func NewLessonAPI(client *Client, cache driver.KeyValueDB, cacheTTL time.Duration, logger *zap.Logger) *LessonAPI {
	return &LessonAPI{
		client:   client,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

func (api *LessonAPI) GetLesson(ctx context.Context, id string) (*domain.LessonModel, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "LessonAPI.GetLesson", "external.http")
	defer apmSpan.End()

	lesson := new(domain.LessonModel)
	if err := api.client.Get(ctx, fmt.Sprintf("lessons/%s", id), lesson); err != nil {
		return nil, err
	}
	return lesson, nil
}

// ListLessons course lesson lists change rarely, so they are served from the
// kv store when possible. Cache trouble never fails the call.
// The cache key is shared across learners while the upstream response is
// learner-specific, so per-learner progress is stripped from the list before
// it is returned or cached. GetLesson is the source of truth for progress
func (api *LessonAPI) ListLessons(ctx context.Context, courseID string) ([]*domain.LessonModel, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "LessonAPI.ListLessons", "external.http")
	defer apmSpan.End()

	cacheKey := "course_lessons:" + courseID
	if api.cache != nil {
		if cached, err := api.cache.Get(cacheKey); err == nil && cached != "" {
			var lessons []*domain.LessonModel
			if err := json.Unmarshal([]byte(cached), &lessons); err == nil {
				return lessons, nil
			}
		}
	}

	var lessons []*domain.LessonModel
	if err := api.client.Get(ctx, fmt.Sprintf("courses/%s/lessons", courseID), &lessons); err != nil {
		return nil, err
	}
	for _, lesson := range lessons {
		lesson.Progress = nil
	}
	if api.cache != nil {
		if encoded, err := json.Marshal(lessons); err == nil {
			if err := api.cache.SetEX(cacheKey, string(encoded), api.cacheTTL); err != nil {
				api.logger.Debug("Failed to cache lesson list", zap.String("course.id", courseID), zap.Error(err))
			}
		}
	}
	return lessons, nil
}

func (api *LessonAPI) MarkLessonCompleted(ctx context.Context, id string) (*domain.LessonProgress, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "LessonAPI.MarkLessonCompleted", "external.http")
	defer apmSpan.End()

	progress := new(domain.LessonProgress)
	if err := api.client.Post(ctx, fmt.Sprintf("lessons/%s/complete", id), nil, progress); err != nil {
		return nil, err
	}
	progress.Completed = true
	if progress.CompletedAt == nil {
		now := time.Now()
		progress.CompletedAt = &now
	}
	return progress, nil
}
