package platform

import (
	"context"
	"fmt"

	"github.com/coursebox/progression/internal/domain"
	"go.elastic.co/apm"
)

// QuizAPI quiz repository backed by the platform HTTP API
type QuizAPI struct {
	client *Client
}

var _ domain.QuizRepository = &QuizAPI{}

// NewQuizAPI create a quiz repository
func NewQuizAPI(client *Client) *QuizAPI {
	return &QuizAPI{client: client}
}

// GetQuizForLesson returns the raw payload, the endpoint is not consistent
// about its shape and normalization happens in the quiz package
func (api *QuizAPI) GetQuizForLesson(ctx context.Context, lessonID string) ([]byte, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "QuizAPI.GetQuizForLesson", "external.http")
	defer apmSpan.End()

	return api.client.GetRaw(ctx, fmt.Sprintf("lessons/%s/quiz", lessonID))
}

func (api *QuizAPI) SubmitQuizAttempt(ctx context.Context, quizID string, answers []*domain.QuizAnswer) (*domain.QuizResult, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "QuizAPI.SubmitQuizAttempt", "external.http")
	defer apmSpan.End()

	payload := struct {
		Answers []*domain.QuizAnswer `json:"answers"`
	}{Answers: answers}

	result := new(domain.QuizResult)
	if err := api.client.Post(ctx, fmt.Sprintf("quizzes/%s/attempts", quizID), payload, result); err != nil {
		return nil, err
	}
	return result, nil
}
