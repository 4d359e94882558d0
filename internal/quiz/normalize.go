package quiz

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/coursebox/progression/internal/domain"
)

// LookupState tag for the collapsed quiz lookup result
type LookupState int

const (
	// LookupNoQuiz the lesson is not quiz-gated
	LookupNoQuiz LookupState = iota
	// LookupAvailable a usable quiz exists, Previous carries the last attempt if any
	LookupAvailable
	// LookupUnusable a quiz record exists but has no questions. Kept distinct
	// from LookupNoQuiz so completion is never silently granted for a
	// misconfigured quiz
	LookupUnusable
)

func (s LookupState) String() string {
	switch s {
	case LookupAvailable:
		return "available"
	case LookupUnusable:
		return "unusable"
	}
	return "no_quiz"
}

// Lookup canonical result of a "quiz for lesson" call
type Lookup struct {
	State    LookupState
	Quiz     *domain.QuizModel
	Previous *domain.QuizResult
}

// Normalize collapses the platform's heterogeneous quiz lookup payloads into
// a Lookup. Accepted shapes, tried in order:
//
//   {"quiz": null|{...}}  -> the quiz key wins, null means no quiz
//   [ {...}, ... ]        -> first element
//   {"results": [ ... ]}  -> first element
//   {...}                 -> the payload itself, if it has an id and a lesson reference
//
// Anything else, including malformed JSON, yields LookupNoQuiz
func Normalize(raw []byte) Lookup {
	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Lookup{State: LookupNoQuiz}
	}

	candidate := resolveCandidate(payload)
	if candidate == nil {
		return Lookup{State: LookupNoQuiz}
	}
	quiz := buildQuiz(candidate)
	if quiz == nil {
		return Lookup{State: LookupNoQuiz}
	}

	previous := buildResult(candidate)
	if len(quiz.Questions) == 0 {
		return Lookup{State: LookupUnusable, Quiz: quiz, Previous: previous}
	}
	return Lookup{State: LookupAvailable, Quiz: quiz, Previous: previous}
}

func resolveCandidate(payload interface{}) map[string]interface{} {
	switch v := payload.(type) {
	case map[string]interface{}:
		if quizVal, ok := v["quiz"]; ok {
			return asObject(quizVal)
		}
		if results, ok := v["results"]; ok {
			return firstObject(asArray(results))
		}
		if looksLikeQuiz(v) {
			return v
		}
	case []interface{}:
		return firstObject(v)
	}
	return nil
}

func looksLikeQuiz(v map[string]interface{}) bool {
	if stringField(v, "id") == "" {
		return false
	}
	if _, ok := v["lesson"]; ok {
		return true
	}
	return stringField(v, "lesson_id") != ""
}

func buildQuiz(m map[string]interface{}) *domain.QuizModel {
	id := stringField(m, "id")
	if id == "" {
		return nil
	}
	quiz := &domain.QuizModel{
		ID:           id,
		LessonID:     lessonRef(m),
		PassingScore: numberField(m, "passing_score"),
	}
	for _, entry := range asArray(m["questions"]) {
		if obj := asObject(entry); obj != nil {
			quiz.Questions = append(quiz.Questions, buildQuestion(obj))
		}
	}
	return quiz
}

// buildQuestion resolves a question regardless of nesting depth. Some
// payloads wrap the real question under a "question" key with the choices
// inside, others keep everything flat
func buildQuestion(m map[string]interface{}) *domain.QuizQuestion {
	source := m
	if inner := asObject(m["question"]); inner != nil {
		source = inner
	}

	id := stringField(source, "id")
	if id == "" {
		id = stringField(m, "id")
	}
	prompt := stringField(source, "prompt")
	if prompt == "" {
		prompt = stringField(source, "text")
	}

	question := &domain.QuizQuestion{
		ID:      id,
		Prompt:  prompt,
		Choices: []*domain.QuizChoice{},
	}
	choices := asArray(source["choices"])
	if choices == nil {
		choices = asArray(m["choices"])
	}
	for _, entry := range choices {
		if obj := asObject(entry); obj != nil {
			text := stringField(obj, "text")
			if text == "" {
				text = stringField(obj, "title")
			}
			question.Choices = append(question.Choices, &domain.QuizChoice{
				ID:   stringField(obj, "id"),
				Text: text,
			})
		}
	}
	return question
}

func buildResult(m map[string]interface{}) *domain.QuizResult {
	obj := asObject(m["result"])
	if obj == nil {
		obj = asObject(m["previous_result"])
	}
	if obj == nil {
		return nil
	}
	result := &domain.QuizResult{
		Score:          numberField(obj, "score"),
		CorrectAnswers: int(numberField(obj, "correct_answers")),
		TotalQuestions: int(numberField(obj, "total_questions")),
	}
	if passed, ok := obj["passed"].(bool); ok {
		result.Passed = passed
	}
	if ts := stringField(obj, "completed_at"); ts != "" {
		if at, err := time.Parse(time.RFC3339, ts); err == nil {
			result.CompletedAt = &at
		}
	}
	return result
}

func lessonRef(m map[string]interface{}) string {
	if lesson := asObject(m["lesson"]); lesson != nil {
		return stringField(lesson, "id")
	}
	if ref := stringField(m, "lesson"); ref != "" {
		return ref
	}
	return stringField(m, "lesson_id")
}

func asObject(v interface{}) map[string]interface{} {
	obj, _ := v.(map[string]interface{})
	return obj
}

func asArray(v interface{}) []interface{} {
	arr, _ := v.([]interface{})
	return arr
}

func firstObject(arr []interface{}) map[string]interface{} {
	if len(arr) == 0 {
		return nil
	}
	return asObject(arr[0])
}

// stringField also accepts numeric ids, some platform endpoints serialize
// them as numbers
func stringField(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func numberField(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0
}
