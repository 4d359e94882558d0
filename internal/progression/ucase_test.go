package progression

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coursebox/progression/internal/domain"
	"github.com/coursebox/progression/internal/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testDelay = 10 * time.Millisecond

type lessonRepoFake struct {
	mu        sync.Mutex
	lessons   map[string]*domain.LessonModel
	course    []*domain.LessonModel
	getCalls  int
	listCalls int
	markCalls int
	markErr   error
	listErr   error
}

func (r *lessonRepoFake) GetLesson(ctx context.Context, id string) (*domain.LessonModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	if lesson, ok := r.lessons[id]; ok {
		return lesson, nil
	}
	return nil, domain.ErrNotFound
}

func (r *lessonRepoFake) ListLessons(ctx context.Context, courseID string) ([]*domain.LessonModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.course, nil
}

func (r *lessonRepoFake) MarkLessonCompleted(ctx context.Context, id string) (*domain.LessonProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markCalls++
	if r.markErr != nil {
		return nil, r.markErr
	}
	now := time.Now()
	return &domain.LessonProgress{Completed: true, CompletedAt: &now}, nil
}

func (r *lessonRepoFake) marks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markCalls
}

type quizRepoFake struct {
	mu          sync.Mutex
	payload     []byte
	lookupErr   error
	lookupCalls int
	result      *domain.QuizResult
	submitErr   error
	submitCalls int
	lastQuizID  string
	lastAnswers []*domain.QuizAnswer
}

func (r *quizRepoFake) GetQuizForLesson(ctx context.Context, lessonID string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookupCalls++
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	return r.payload, nil
}

func (r *quizRepoFake) SubmitQuizAttempt(ctx context.Context, quizID string, answers []*domain.QuizAnswer) (*domain.QuizResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitCalls++
	r.lastQuizID = quizID
	r.lastAnswers = answers
	if r.submitErr != nil {
		return nil, r.submitErr
	}
	return r.result, nil
}

type idGenFake struct {
	mu sync.Mutex
	n  int
}

func (g *idGenFake) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("flow-%d", g.n), nil
}

func twoLessonCourse() *lessonRepoFake {
	l1 := &domain.LessonModel{ID: "l1", CourseID: "c1", Order: 1}
	l2 := &domain.LessonModel{ID: "l2", CourseID: "c1", Order: 2}
	return &lessonRepoFake{
		lessons: map[string]*domain.LessonModel{"l1": l1, "l2": l2},
		course:  []*domain.LessonModel{l2, l1},
	}
}

func newEngine(lessons *lessonRepoFake, quizzes *quizRepoFake) *ProgressionUseCaseImpl {
	logger := zap.NewNop()
	return NewProgressionUseCase(
		lessons, quizzes,
		sequence.NewSequencer(lessons, logger),
		&idGenFake{},
		testDelay,
		logger,
	)
}

const gatedQuizPayload = `{
	"quiz": {
		"id": "quiz-1", "lesson_id": "l1", "passing_score": 70,
		"questions": [
			{"id": "qq1", "prompt": "first?", "choices": [{"id": "c1", "text": "a"}, {"id": "c2", "text": "b"}]},
			{"id": "qq2", "prompt": "second?", "choices": [{"id": "c3", "text": "a"}, {"id": "c4", "text": "b"}]}
		]
	}
}`

func TestNoQuizCompletesDirectly(t *testing.T) {
	lessons := twoLessonCourse()
	quizzes := &quizRepoFake{payload: []byte(`{"quiz": null}`)}
	engine := newEngine(lessons, quizzes)

	snap, err := engine.RequestCompletion(context.Background(), "l1")
	require.NoError(t, err)

	assert.Equal(t, StateSequencing, snap.State)
	assert.Nil(t, snap.Quiz)
	assert.Equal(t, 1, lessons.marks())
	assert.Equal(t, 0, quizzes.submitCalls)
	require.NotNil(t, snap.Next)
	assert.Equal(t, "l2", snap.Next.NextLessonID)
	assert.True(t, lessons.lessons["l1"].IsCompleted())

	// the delayed transition retires the flow
	assert.Eventually(t, func() bool {
		_, err := engine.Snapshot(snap.FlowID)
		return errors.Is(err, domain.ErrFlowNotFound)
	}, time.Second, time.Millisecond)
}

func TestAlreadyCompletedIsNoOp(t *testing.T) {
	lessons := twoLessonCourse()
	now := time.Now()
	lessons.lessons["l1"].Progress = &domain.LessonProgress{Completed: true, CompletedAt: &now}
	quizzes := &quizRepoFake{payload: []byte(gatedQuizPayload)}
	engine := newEngine(lessons, quizzes)

	snap, err := engine.RequestCompletion(context.Background(), "l1")
	require.NoError(t, err)

	assert.Equal(t, StateDone, snap.State)
	assert.Empty(t, snap.FlowID)
	assert.Equal(t, 0, quizzes.lookupCalls)
	assert.Equal(t, 0, lessons.marks())
}

func TestSecondRequestConflicts(t *testing.T) {
	lessons := twoLessonCourse()
	quizzes := &quizRepoFake{payload: []byte(gatedQuizPayload)}
	engine := newEngine(lessons, quizzes)

	snap, err := engine.RequestCompletion(context.Background(), "l1")
	require.NoError(t, err)
	require.Equal(t, StateTakingQuiz, snap.State)

	_, err = engine.RequestCompletion(context.Background(), "l1")
	assert.True(t, errors.Is(err, domain.ErrFlowConflict))
}

func TestFailedAttemptKeepsLessonIncomplete(t *testing.T) {
	lessons := twoLessonCourse()
	quizzes := &quizRepoFake{
		payload: []byte(gatedQuizPayload),
		result:  &domain.QuizResult{Score: 55, CorrectAnswers: 1, TotalQuestions: 2},
	}
	engine := newEngine(lessons, quizzes)

	snap, err := engine.RequestCompletion(context.Background(), "l1")
	require.NoError(t, err)
	require.Equal(t, StateTakingQuiz, snap.State)
	require.NotNil(t, snap.Quiz)

	_, err = engine.SelectAnswer(snap.FlowID, "qq1", "c1")
	require.NoError(t, err)
	_, err = engine.SelectAnswer(snap.FlowID, "qq2", "c3")
	require.NoError(t, err)

	snap, err = engine.Submit(context.Background(), snap.FlowID)
	require.NoError(t, err)

	assert.Equal(t, StateTakingQuiz, snap.State)
	require.NotNil(t, snap.LastResult)
	assert.Equal(t, float64(55), snap.LastResult.Score)
	assert.False(t, snap.LastResult.Passed)
	assert.Equal(t, 0, lessons.marks())
	assert.False(t, lessons.lessons["l1"].IsCompleted())

	// failed attempts are clearable and retryable without limit
	snap, err = engine.ClearAnswers(snap.FlowID)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Answered)
}

func TestPassingAttemptCompletesAndSequences(t *testing.T) {
	lessons := twoLessonCourse()
	quizzes := &quizRepoFake{
		payload: []byte(gatedQuizPayload),
		result:  &domain.QuizResult{Score: 85, CorrectAnswers: 2, TotalQuestions: 2},
	}
	engine := newEngine(lessons, quizzes)

	snap, err := engine.RequestCompletion(context.Background(), "l1")
	require.NoError(t, err)
	_, err = engine.SelectAnswer(snap.FlowID, "qq2", "c4")
	require.NoError(t, err)
	_, err = engine.SelectAnswer(snap.FlowID, "qq1", "c1")
	require.NoError(t, err)

	snap, err = engine.Submit(context.Background(), snap.FlowID)
	require.NoError(t, err)

	assert.Equal(t, StateSequencing, snap.State)
	assert.Equal(t, 1, lessons.marks())
	assert.True(t, lessons.lessons["l1"].IsCompleted())
	require.NotNil(t, snap.LastResult)
	assert.True(t, snap.LastResult.Passed)
	require.NotNil(t, snap.Next)
	assert.Equal(t, "l2", snap.Next.NextLessonID)

	// answers go on the wire in question order regardless of selection order
	assert.Equal(t, "quiz-1", quizzes.lastQuizID)
	require.Len(t, quizzes.lastAnswers, 2)
	assert.Equal(t, "qq1", quizzes.lastAnswers[0].QuestionID)
	assert.Equal(t, "c1", quizzes.lastAnswers[0].ChoiceID)
	assert.Equal(t, "qq2", quizzes.lastAnswers[1].QuestionID)
}

func TestSubmitRequiresFullAnswerMap(t *testing.T) {
	lessons := twoLessonCourse()
	quizzes := &quizRepoFake{payload: []byte(gatedQuizPayload)}
	engine := newEngine(lessons, quizzes)

	snap, err := engine.RequestCompletion(context.Background(), "l1")
	require.NoError(t, err)
	_, err = engine.SelectAnswer(snap.FlowID, "qq1", "c1")
	require.NoError(t, err)

	_, err = engine.Submit(context.Background(), snap.FlowID)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, 0, quizzes.submitCalls)
}

func TestSelectAnswerValidatesIDs(t *testing.T) {
	lessons := twoLessonCourse()
	quizzes := &quizRepoFake{payload: []byte(gatedQuizPayload)}
	engine := newEngine(lessons, quizzes)

	snap, err := engine.RequestCompletion(context.Background(), "l1")
	require.NoError(t, err)

	_, err = engine.SelectAnswer(snap.FlowID, "ghost", "c1")
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = engine.SelectAnswer(snap.FlowID, "qq1", "ghost")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

const retakeQuizPayload = `{
	"quiz": {
		"id": "quiz-1", "lesson_id": "l1", "passing_score": 70,
		"questions": [
			{"id": "qq1", "prompt": "first?", "choices": [{"id": "c1", "text": "a"}]}
		],
		"result": {"score": 90, "correct_answers": 1, "total_questions": 1, "passed": true}
	}
}`

func TestPreviousResultAsksForRetakeDecision(t *testing.T) {
	lessons := twoLessonCourse()
	quizzes := &quizRepoFake{payload: []byte(retakeQuizPayload)}
	engine := newEngine(lessons, quizzes)

	snap, err := engine.RequestCompletion(context.Background(), "l1")
	require.NoError(t, err)
	require.Equal(t, StateAwaitingRetake, snap.State)
	require.NotNil(t, snap.Previous)
	assert.Equal(t, float64(90), snap.Previous.Score)

	// cancelling leaves the lesson untouched and releases the guard
	snap, err = engine.Cancel(snap.FlowID)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, snap.State)
	assert.Equal(t, 0, lessons.marks())
	assert.False(t, lessons.lessons["l1"].IsCompleted())

	snap, err = engine.RequestCompletion(context.Background(), "l1")
	require.NoError(t, err)
	require.Equal(t, StateAwaitingRetake, snap.State)

	// retaking drops the previous result display and starts empty
	snap, err = engine.Retake(snap.FlowID)
	require.NoError(t, err)
	assert.Equal(t, StateTakingQuiz, snap.State)
	assert.Nil(t, snap.Previous)
	assert.Equal(t, 0, snap.Answered)
}

func TestUnusableQuizNeverCompletes(t *testing.T) {
	lessons := twoLessonCourse()
	quizzes := &quizRepoFake{payload: []byte(`{"quiz": {"id": "quiz-1", "lesson_id": "l1", "questions": []}}`)}
	engine := newEngine(lessons, quizzes)

	snap, err := engine.RequestCompletion(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, StateQuizUnusable, snap.State)
	require.NotNil(t, snap.Quiz)

	_, err = engine.Submit(context.Background(), snap.FlowID)
	assert.True(t, errors.Is(err, domain.ErrFlowState))
	assert.Equal(t, 0, lessons.marks())

	_, err = engine.Cancel(snap.FlowID)
	require.NoError(t, err)
}

func TestQuizLookupFailsOpen(t *testing.T) {
	for name, lookupErr := range map[string]error{
		"unavailable": fmt.Errorf("%w: connection refused", domain.ErrUnavailable),
		"not found":   fmt.Errorf("%w: no quiz for lesson", domain.ErrNotFound),
	} {
		t.Run(name, func(t *testing.T) {
			lessons := twoLessonCourse()
			quizzes := &quizRepoFake{lookupErr: lookupErr}
			engine := newEngine(lessons, quizzes)

			snap, err := engine.RequestCompletion(context.Background(), "l1")
			require.NoError(t, err)
			assert.Equal(t, StateSequencing, snap.State)
			assert.Equal(t, 1, lessons.marks())
		})
	}
}

func TestQuizLookupHardErrorBlocks(t *testing.T) {
	lessons := twoLessonCourse()
	quizzes := &quizRepoFake{lookupErr: fmt.Errorf("%w: not enrolled", domain.ErrForbidden)}
	engine := newEngine(lessons, quizzes)

	_, err := engine.RequestCompletion(context.Background(), "l1")
	require.Error(t, err)
	assert.Equal(t, 0, lessons.marks())

	// the guard must not leak on the error path
	quizzes.lookupErr = nil
	quizzes.payload = []byte(`{"quiz": null}`)
	_, err = engine.RequestCompletion(context.Background(), "l1")
	assert.NoError(t, err)
}

func TestCompletionFailureHaltsFlow(t *testing.T) {
	lessons := twoLessonCourse()
	lessons.markErr = fmt.Errorf("%w: payment required", domain.ErrForbidden)
	quizzes := &quizRepoFake{payload: []byte(`{"quiz": null}`)}
	engine := newEngine(lessons, quizzes)

	snap, err := engine.RequestCompletion(context.Background(), "l1")
	require.Error(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, StateNoQuizCompleting, snap.State)
	assert.NotEmpty(t, snap.Error)
	assert.Equal(t, 0, lessons.listCalls) // sequencing never ran
	assert.False(t, lessons.lessons["l1"].IsCompleted())

	// the flow is parked, a retry picks it back up
	lessons.mu.Lock()
	lessons.markErr = nil
	lessons.mu.Unlock()
	snap, err = engine.RetryCompletion(context.Background(), snap.FlowID)
	require.NoError(t, err)
	assert.Equal(t, StateSequencing, snap.State)
	assert.True(t, lessons.lessons["l1"].IsCompleted())
}

func TestSequencingFailureIsSoft(t *testing.T) {
	lessons := twoLessonCourse()
	lessons.listErr = domain.ErrUnavailable
	quizzes := &quizRepoFake{payload: []byte(`{"quiz": null}`)}
	engine := newEngine(lessons, quizzes)

	snap, err := engine.RequestCompletion(context.Background(), "l1")
	require.NoError(t, err)

	assert.Equal(t, StateDone, snap.State)
	assert.Nil(t, snap.Next)
	assert.Equal(t, 1, lessons.marks())
	assert.True(t, lessons.lessons["l1"].IsCompleted())
}

func TestLastLessonFinishesCourse(t *testing.T) {
	lessons := twoLessonCourse()
	quizzes := &quizRepoFake{payload: []byte(`{"quiz": null}`)}
	engine := newEngine(lessons, quizzes)

	snap, err := engine.RequestCompletion(context.Background(), "l2")
	require.NoError(t, err)

	require.NotNil(t, snap.Next)
	assert.True(t, snap.Next.CourseFinished)
	assert.Empty(t, snap.Next.NextLessonID)
}

func TestSubscribeObservesTransitions(t *testing.T) {
	lessons := twoLessonCourse()
	quizzes := &quizRepoFake{payload: []byte(gatedQuizPayload)}
	engine := newEngine(lessons, quizzes)

	snap, err := engine.RequestCompletion(context.Background(), "l1")
	require.NoError(t, err)

	updates, cancel, err := engine.Subscribe(snap.FlowID)
	require.NoError(t, err)
	defer cancel()

	_, err = engine.Cancel(snap.FlowID)
	require.NoError(t, err)

	var last Snapshot
	for snap := range updates {
		last = snap
	}
	assert.Equal(t, StateCancelled, last.State)
	assert.True(t, last.State.Terminal())
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateTakingQuiz.Terminal())
	assert.False(t, StateSequencing.Terminal())
}
