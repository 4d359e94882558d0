package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQuizKey(t *testing.T) {
	lookup := Normalize([]byte(`{"quiz": null, "debug": {"ab_test": "control"}}`))
	assert.Equal(t, LookupNoQuiz, lookup.State)

	lookup = Normalize([]byte(`{
		"quiz": {
			"id": "q1",
			"lesson_id": "l1",
			"passing_score": 70,
			"questions": [
				{"id": "qq1", "prompt": "2+2?", "choices": [{"id": "c1", "text": "4"}, {"id": "c2", "text": "5"}]}
			]
		}
	}`))
	require.Equal(t, LookupAvailable, lookup.State)
	assert.Equal(t, "q1", lookup.Quiz.ID)
	assert.Equal(t, "l1", lookup.Quiz.LessonID)
	assert.Equal(t, float64(70), lookup.Quiz.PassingScore)
	require.Len(t, lookup.Quiz.Questions, 1)
	assert.Len(t, lookup.Quiz.Questions[0].Choices, 2)
}

func TestNormalizeBareArray(t *testing.T) {
	lookup := Normalize([]byte(`[]`))
	assert.Equal(t, LookupNoQuiz, lookup.State)

	lookup = Normalize([]byte(`[
		{"id": "q7", "lesson": {"id": "l7"}, "questions": [{"id": "qq1", "prompt": "?", "choices": [{"id": "c1", "text": "a"}]}]},
		{"id": "q8"}
	]`))
	require.Equal(t, LookupAvailable, lookup.State)
	assert.Equal(t, "q7", lookup.Quiz.ID)
	assert.Equal(t, "l7", lookup.Quiz.LessonID)
}

func TestNormalizeResultsEnvelope(t *testing.T) {
	lookup := Normalize([]byte(`{"results": []}`))
	assert.Equal(t, LookupNoQuiz, lookup.State)

	lookup = Normalize([]byte(`{"results": [
		{"id": "q2", "lesson": "l2", "questions": [{"id": "qq1", "prompt": "?", "choices": [{"id": "c1", "text": "a"}]}]}
	]}`))
	require.Equal(t, LookupAvailable, lookup.State)
	assert.Equal(t, "l2", lookup.Quiz.LessonID)
}

func TestNormalizeBareQuizObject(t *testing.T) {
	// a payload is only treated as a quiz when it references a lesson
	lookup := Normalize([]byte(`{"id": "not-a-quiz", "detail": "something else"}`))
	assert.Equal(t, LookupNoQuiz, lookup.State)

	lookup = Normalize([]byte(`{
		"id": "q3", "lesson_id": "l3", "passing_score": 80,
		"questions": [{"id": "qq1", "prompt": "?", "choices": [{"id": "c1", "text": "a"}]}]
	}`))
	assert.Equal(t, LookupAvailable, lookup.State)
}

func TestNormalizeZeroQuestionsIsUnusable(t *testing.T) {
	lookup := Normalize([]byte(`{"quiz": {"id": "q4", "lesson_id": "l4", "questions": []}}`))
	require.Equal(t, LookupUnusable, lookup.State)
	require.NotNil(t, lookup.Quiz)
	assert.Empty(t, lookup.Quiz.Questions)
}

func TestNormalizeNestedQuestionShape(t *testing.T) {
	lookup := Normalize([]byte(`{
		"quiz": {
			"id": "q5", "lesson_id": "l5",
			"questions": [
				{"question": {"id": "qq1", "prompt": "nested?", "choices": [{"id": "c1", "text": "yes"}]}},
				{"id": "qq2", "text": "flat?", "choices": [{"id": "c2", "text": "also yes"}]}
			]
		}
	}`))
	require.Equal(t, LookupAvailable, lookup.State)
	require.Len(t, lookup.Quiz.Questions, 2)

	nested := lookup.Quiz.Questions[0]
	assert.Equal(t, "qq1", nested.ID)
	assert.Equal(t, "nested?", nested.Prompt)
	require.Len(t, nested.Choices, 1)
	assert.Equal(t, "yes", nested.Choices[0].Text)

	flat := lookup.Quiz.Questions[1]
	assert.Equal(t, "qq2", flat.ID)
	assert.Equal(t, "flat?", flat.Prompt)
	require.Len(t, flat.Choices, 1)
}

func TestNormalizeQuestionWithoutChoices(t *testing.T) {
	lookup := Normalize([]byte(`{
		"quiz": {"id": "q6", "lesson_id": "l6", "questions": [{"id": "qq1", "prompt": "?"}]}
	}`))
	require.Equal(t, LookupAvailable, lookup.State)
	question := lookup.Quiz.Questions[0]
	assert.NotNil(t, question.Choices)
	assert.False(t, question.HasChoices())
}

func TestNormalizePreviousResult(t *testing.T) {
	lookup := Normalize([]byte(`{
		"quiz": {
			"id": "q9", "lesson_id": "l9", "passing_score": 70,
			"questions": [{"id": "qq1", "prompt": "?", "choices": [{"id": "c1", "text": "a"}]}],
			"result": {"score": 85.5, "correct_answers": 17, "total_questions": 20, "passed": true, "completed_at": "2024-03-01T10:00:00Z"}
		}
	}`))
	require.Equal(t, LookupAvailable, lookup.State)
	require.NotNil(t, lookup.Previous)
	assert.Equal(t, 85.5, lookup.Previous.Score)
	assert.Equal(t, 17, lookup.Previous.CorrectAnswers)
	assert.Equal(t, 20, lookup.Previous.TotalQuestions)
	assert.True(t, lookup.Previous.Passed)
	require.NotNil(t, lookup.Previous.CompletedAt)
}

func TestNormalizeNumericIDs(t *testing.T) {
	lookup := Normalize([]byte(`{
		"quiz": {
			"id": 42, "lesson_id": 7,
			"questions": [{"id": 1, "prompt": "?", "choices": [{"id": 10, "text": "a"}]}]
		}
	}`))
	require.Equal(t, LookupAvailable, lookup.State)
	assert.Equal(t, "42", lookup.Quiz.ID)
	assert.Equal(t, "7", lookup.Quiz.LessonID)
	assert.Equal(t, "1", lookup.Quiz.Questions[0].ID)
	assert.Equal(t, "10", lookup.Quiz.Questions[0].Choices[0].ID)
}

func TestNormalizeGarbage(t *testing.T) {
	assert.Equal(t, LookupNoQuiz, Normalize([]byte(`not json at all`)).State)
	assert.Equal(t, LookupNoQuiz, Normalize([]byte(`"just a string"`)).State)
	assert.Equal(t, LookupNoQuiz, Normalize([]byte(`{"quiz": "unexpected scalar"}`)).State)
}
