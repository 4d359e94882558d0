package progression

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coursebox/progression/internal/domain"
	"github.com/coursebox/progression/internal/infrastructure/uuid"
	"github.com/coursebox/progression/internal/quiz"
	"github.com/coursebox/progression/internal/sequence"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// ProgressionUseCase drives the completion flow for a lesson: quiz gating,
// retakes, scoring against the pass threshold, marking the lesson complete
// and sequencing the learner into the next lesson
type ProgressionUseCase interface {
	RequestCompletion(ctx context.Context, lessonID string) (*Snapshot, error)
	Snapshot(flowID string) (*Snapshot, error)
	SelectAnswer(flowID, questionID, choiceID string) (*Snapshot, error)
	ClearAnswers(flowID string) (*Snapshot, error)
	Submit(ctx context.Context, flowID string) (*Snapshot, error)
	Retake(flowID string) (*Snapshot, error)
	RetryCompletion(ctx context.Context, flowID string) (*Snapshot, error)
	Cancel(flowID string) (*Snapshot, error)
	Subscribe(flowID string) (<-chan Snapshot, func(), error)
}

// ProgressionUseCaseImpl ...
type ProgressionUseCaseImpl struct {
	lessons   domain.LessonRepository
	quizzes   domain.QuizRepository
	sequencer *sequence.Sequencer
	idGen     uuid.Generator
	delay     time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	flows    map[string]*Flow
	byLesson map[string]string
}

var _ ProgressionUseCase = &ProgressionUseCaseImpl{}

// NewProgressionUseCase create the engine. delay is how long the learner gets
// to read the completion acknowledgment before the next-lesson transition fires
func NewProgressionUseCase(
	lessons domain.LessonRepository,
	quizzes domain.QuizRepository,
	sequencer *sequence.Sequencer,
	idGen uuid.Generator,
	delay time.Duration,
	logger *zap.Logger,
) *ProgressionUseCaseImpl {
	return &ProgressionUseCaseImpl{
		lessons:   lessons,
		quizzes:   quizzes,
		sequencer: sequencer,
		idGen:     idGen,
		delay:     delay,
		logger:    logger,
		flows:     make(map[string]*Flow),
		byLesson:  make(map[string]string),
	}
}

// RequestCompletion entry point of the machine. Re-requesting an already
// completed lesson is a no-op that touches neither the quiz nor the
// completion endpoint
func (pu *ProgressionUseCaseImpl) RequestCompletion(ctx context.Context, lessonID string) (*Snapshot, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressionUseCaseImpl.RequestCompletion", "service")
	defer apmSpan.End()

	lesson, err := pu.lessons.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.IsCompleted() {
		return &Snapshot{LessonID: lesson.ID, State: StateDone}, nil
	}

	flow, err := pu.register(lesson)
	if err != nil {
		return nil, err
	}

	flow.setState(StateCheckingQuiz)
	lookup, err := pu.lookupQuiz(ctx, lesson.ID)
	if err != nil {
		pu.unregister(flow)
		flow.close(StateIdle)
		return nil, err
	}

	switch lookup.State {
	case quiz.LookupNoQuiz:
		return pu.complete(ctx, flow, StateNoQuizCompleting)
	case quiz.LookupUnusable:
		pu.logger.Warn("Quiz has no questions configured, lesson stays gated",
			zap.String("lesson.id", lesson.ID),
			zap.String("quiz.id", lookup.Quiz.ID),
		)
		flow.setQuiz(lookup.Quiz, lookup.Previous, StateQuizUnusable)
	default:
		if lookup.Previous != nil {
			flow.setQuiz(lookup.Quiz, lookup.Previous, StateAwaitingRetake)
		} else {
			flow.setQuiz(lookup.Quiz, nil, StateTakingQuiz)
		}
	}
	snap := flow.Snapshot()
	return &snap, nil
}

// lookupQuiz fails open: lookup trouble or a missing quiz record never block
// course progress, only a definitive denial does
func (pu *ProgressionUseCaseImpl) lookupQuiz(ctx context.Context, lessonID string) (quiz.Lookup, error) {
	raw, err := pu.quizzes.GetQuizForLesson(ctx, lessonID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnavailable) {
			pu.logger.Warn("Quiz lookup failed, treating lesson as ungated",
				zap.String("lesson.id", lessonID),
				zap.Error(err),
			)
			return quiz.Lookup{State: quiz.LookupNoQuiz}, nil
		}
		return quiz.Lookup{}, err
	}
	return quiz.Normalize(raw), nil
}

// Snapshot observable state of an active flow
func (pu *ProgressionUseCaseImpl) Snapshot(flowID string) (*Snapshot, error) {
	flow, err := pu.flow(flowID)
	if err != nil {
		return nil, err
	}
	snap := flow.Snapshot()
	return &snap, nil
}

// SelectAnswer record the learner's choice for a question, a re-selection
// overwrites the previous one
func (pu *ProgressionUseCaseImpl) SelectAnswer(flowID, questionID, choiceID string) (*Snapshot, error) {
	flow, err := pu.flow(flowID)
	if err != nil {
		return nil, err
	}

	flow.mu.Lock()
	if flow.state != StateTakingQuiz {
		flow.mu.Unlock()
		return nil, domain.ErrFlowState
	}
	question := findQuestion(flow.quiz, questionID)
	if question == nil {
		flow.mu.Unlock()
		return nil, fmt.Errorf("%w: unknown question %s", domain.ErrValidation, questionID)
	}
	if !hasChoice(question, choiceID) {
		flow.mu.Unlock()
		return nil, fmt.Errorf("%w: question %s has no choice %s", domain.ErrValidation, questionID, choiceID)
	}
	flow.answers[questionID] = choiceID
	flow.publishLocked()
	snap := flow.snapshotLocked()
	flow.mu.Unlock()
	return &snap, nil
}

// ClearAnswers reset the answer map, typically after a failed attempt
func (pu *ProgressionUseCaseImpl) ClearAnswers(flowID string) (*Snapshot, error) {
	flow, err := pu.flow(flowID)
	if err != nil {
		return nil, err
	}

	flow.mu.Lock()
	if flow.state != StateTakingQuiz {
		flow.mu.Unlock()
		return nil, domain.ErrFlowState
	}
	flow.answers = make(map[string]string)
	flow.publishLocked()
	snap := flow.snapshotLocked()
	flow.mu.Unlock()
	return &snap, nil
}

// Submit score the answer map against the quiz. A passing score completes the
// lesson, a failing one returns to question answering with the result
// attached. There is no attempt cap
func (pu *ProgressionUseCaseImpl) Submit(ctx context.Context, flowID string) (*Snapshot, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressionUseCaseImpl.Submit", "service")
	defer apmSpan.End()

	flow, err := pu.flow(flowID)
	if err != nil {
		return nil, err
	}

	flow.mu.Lock()
	if flow.state != StateTakingQuiz {
		flow.mu.Unlock()
		return nil, domain.ErrFlowState
	}
	// every question must be answered before anything goes on the wire
	if len(flow.answers) != len(flow.quiz.Questions) {
		flow.mu.Unlock()
		return nil, fmt.Errorf("%w: %d of %d questions answered",
			domain.ErrValidation, len(flow.answers), len(flow.quiz.Questions))
	}
	quizID := flow.quiz.ID
	passing := flow.quiz.PassingScore
	answers := make([]*domain.QuizAnswer, 0, len(flow.quiz.Questions))
	for _, q := range flow.quiz.Questions {
		answers = append(answers, &domain.QuizAnswer{QuestionID: q.ID, ChoiceID: flow.answers[q.ID]})
	}
	flow.state = StateSubmitting
	flow.lastErr = nil
	flow.publishLocked()
	flow.mu.Unlock()

	result, err := pu.quizzes.SubmitQuizAttempt(ctx, quizID, answers)
	if err != nil {
		flow.fail(StateTakingQuiz, err)
		snap := flow.Snapshot()
		return &snap, err
	}
	result.Passed = result.Score >= passing

	flow.mu.Lock()
	flow.lastResult = result
	flow.mu.Unlock()

	if result.Passed {
		return pu.complete(ctx, flow, StateCompleting)
	}
	pu.logger.Info("Quiz attempt below passing score",
		zap.String("quiz.id", quizID),
		zap.Float64("quiz.score", result.Score),
		zap.Float64("quiz.passing_score", passing),
	)
	flow.setState(StateTakingQuiz)
	snap := flow.Snapshot()
	return &snap, nil
}

// Retake discard the previous result display and start a fresh attempt with
// an empty answer map
func (pu *ProgressionUseCaseImpl) Retake(flowID string) (*Snapshot, error) {
	flow, err := pu.flow(flowID)
	if err != nil {
		return nil, err
	}

	flow.mu.Lock()
	if flow.state != StateAwaitingRetake {
		flow.mu.Unlock()
		return nil, domain.ErrFlowState
	}
	flow.previous = nil
	flow.answers = make(map[string]string)
	flow.state = StateTakingQuiz
	flow.publishLocked()
	snap := flow.snapshotLocked()
	flow.mu.Unlock()
	return &snap, nil
}

// RetryCompletion re-issue the completion call after it failed. Only legal
// while the flow is parked at a failed completing state
func (pu *ProgressionUseCaseImpl) RetryCompletion(ctx context.Context, flowID string) (*Snapshot, error) {
	flow, err := pu.flow(flowID)
	if err != nil {
		return nil, err
	}

	flow.mu.Lock()
	via := flow.state
	if (via != StateCompleting && via != StateNoQuizCompleting) || flow.lastErr == nil {
		flow.mu.Unlock()
		return nil, domain.ErrFlowState
	}
	flow.lastErr = nil
	flow.mu.Unlock()
	return pu.complete(ctx, flow, via)
}

// Cancel abort the flow. Legal while the learner still has a decision to
// make, or during the post-completion delay where it only drops the pending
// navigation, never the recorded completion
func (pu *ProgressionUseCaseImpl) Cancel(flowID string) (*Snapshot, error) {
	flow, err := pu.flow(flowID)
	if err != nil {
		return nil, err
	}

	flow.mu.Lock()
	state := flow.state
	failed := flow.lastErr != nil
	flow.mu.Unlock()

	switch {
	case state == StateAwaitingRetake || state == StateTakingQuiz || state == StateQuizUnusable:
		pu.unregister(flow)
		flow.close(StateCancelled)
	case state == StateSequencing:
		pu.unregister(flow)
		flow.close(StateDone)
	case (state == StateCompleting || state == StateNoQuizCompleting) && failed:
		pu.unregister(flow)
		flow.close(StateCancelled)
	default:
		return nil, domain.ErrFlowState
	}
	snap := flow.Snapshot()
	return &snap, nil
}

// Subscribe receive a snapshot on every transition, starting with the current
// one. The returned func detaches the listener
func (pu *ProgressionUseCaseImpl) Subscribe(flowID string) (<-chan Snapshot, func(), error) {
	flow, err := pu.flow(flowID)
	if err != nil {
		return nil, nil, err
	}
	return flow.subscribe()
}

// complete call the completion endpoint exactly once per success path, then
// hand over to the sequencer. On failure the flow stays put for a retry and
// sequencing never happens
func (pu *ProgressionUseCaseImpl) complete(ctx context.Context, flow *Flow, via State) (*Snapshot, error) {
	flow.setState(via)
	progress, err := pu.lessons.MarkLessonCompleted(ctx, flow.lesson.ID)
	if err != nil {
		pu.logger.Error("Failed to mark lesson completed",
			zap.String("lesson.id", flow.lesson.ID),
			zap.Error(err),
		)
		flow.fail(via, err)
		snap := flow.Snapshot()
		return &snap, err
	}

	flow.mu.Lock()
	flow.lesson.Progress = progress
	flow.state = StateCompleted
	flow.publishLocked()
	flow.mu.Unlock()
	pu.logger.Info("Lesson completed", zap.String("lesson.id", flow.lesson.ID))

	pu.sequenceNext(ctx, flow)
	snap := flow.Snapshot()
	return &snap, nil
}

// sequenceNext best effort: the completion is already recorded, so any
// trouble here is swallowed and the flow simply ends without a target
func (pu *ProgressionUseCaseImpl) sequenceNext(ctx context.Context, flow *Flow) {
	flow.setState(StateSequencing)
	target, err := pu.sequencer.Next(ctx, flow.lesson)
	if err != nil {
		pu.logger.Warn("Skipping next-lesson sequencing",
			zap.String("lesson.id", flow.lesson.ID),
			zap.Error(err),
		)
		pu.finish(flow)
		return
	}

	flow.mu.Lock()
	flow.target = target
	flow.handle = sequence.Schedule(pu.delay, func() {
		pu.finish(flow)
	})
	flow.publishLocked()
	flow.mu.Unlock()
}

func (pu *ProgressionUseCaseImpl) finish(flow *Flow) {
	pu.unregister(flow)
	flow.close(StateDone)
}

func (pu *ProgressionUseCaseImpl) register(lesson *domain.LessonModel) (*Flow, error) {
	pu.mu.Lock()
	defer pu.mu.Unlock()
	if _, active := pu.byLesson[lesson.ID]; active {
		return nil, domain.ErrFlowConflict
	}
	id, err := pu.idGen.Generate()
	if err != nil {
		return nil, err
	}
	flow := newFlow(id, lesson)
	pu.flows[id] = flow
	pu.byLesson[lesson.ID] = id
	return flow, nil
}

func (pu *ProgressionUseCaseImpl) unregister(flow *Flow) {
	pu.mu.Lock()
	defer pu.mu.Unlock()
	delete(pu.flows, flow.id)
	delete(pu.byLesson, flow.lesson.ID)
}

func (pu *ProgressionUseCaseImpl) flow(flowID string) (*Flow, error) {
	pu.mu.Lock()
	defer pu.mu.Unlock()
	flow, ok := pu.flows[flowID]
	if !ok {
		return nil, domain.ErrFlowNotFound
	}
	return flow, nil
}

func findQuestion(quiz *domain.QuizModel, questionID string) *domain.QuizQuestion {
	for _, q := range quiz.Questions {
		if q.ID == questionID {
			return q
		}
	}
	return nil
}

func hasChoice(question *domain.QuizQuestion, choiceID string) bool {
	for _, c := range question.Choices {
		if c.ID == choiceID {
			return true
		}
	}
	return false
}
