package domain

import (
	"context"
	"time"
)

type QuizChoice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type QuizQuestion struct {
	ID      string        `json:"id"`
	Prompt  string        `json:"prompt"`
	Choices []*QuizChoice `json:"choices"`
}

// HasChoices reports whether the question can actually be answered
func (q *QuizQuestion) HasChoices() bool {
	return len(q.Choices) > 0
}

type QuizModel struct {
	ID           string          `json:"id"`
	LessonID     string          `json:"lesson_id"`
	PassingScore float64         `json:"passing_score"` // percentage, 0-100
	Questions    []*QuizQuestion `json:"questions"`
}

// QuizResult outcome of a submitted attempt. Passed is derived from the
// passing score threshold, not trusted from the wire
type QuizResult struct {
	Score          float64    `json:"score"`
	CorrectAnswers int        `json:"correct_answers"`
	TotalQuestions int        `json:"total_questions"`
	Passed         bool       `json:"passed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// QuizAnswer one selected choice for one question
type QuizAnswer struct {
	QuestionID string `json:"question_id" validate:"required"`
	ChoiceID   string `json:"choice_id" validate:"required"`
}

// QuizRepository lookup responses are returned raw because the platform is
// not consistent about the payload shape, see the quiz package for the
// normalization rules
type QuizRepository interface {
	GetQuizForLesson(ctx context.Context, lessonID string) ([]byte, error)
	SubmitQuizAttempt(ctx context.Context, quizID string, answers []*QuizAnswer) (*QuizResult, error)
}
