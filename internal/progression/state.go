package progression

import (
	"github.com/coursebox/progression/internal/domain"
	"github.com/coursebox/progression/internal/sequence"
)

// State completion flow machine state
type State string

const (
	StateIdle             State = "idle"
	StateCheckingQuiz     State = "checking_quiz"
	StateNoQuizCompleting State = "no_quiz_completing"
	StateAwaitingRetake   State = "awaiting_retake_decision"
	StateTakingQuiz       State = "taking_quiz"
	StateSubmitting       State = "submitting"
	StateCompleting       State = "completing"
	StateCompleted        State = "completed"
	StateSequencing       State = "sequencing"
	StateDone             State = "done"
	StateCancelled        State = "cancelled"

	// StateQuizUnusable a quiz record exists but carries no questions. The
	// lesson stays gated and the learner is told to contact support, this is
	// not the same as having no quiz
	StateQuizUnusable State = "quiz_unavailable"
)

// Terminal reports whether the flow is finished
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled
}

// Snapshot one observable view of a flow, pushed to subscribers on every
// transition so the UI renders without re-deriving engine logic
type Snapshot struct {
	FlowID     string             `json:"flow_id,omitempty"`
	LessonID   string             `json:"lesson_id"`
	State      State              `json:"state"`
	Quiz       *domain.QuizModel  `json:"quiz,omitempty"`
	Previous   *domain.QuizResult `json:"previous_result,omitempty"`
	LastResult *domain.QuizResult `json:"last_result,omitempty"`
	Answered   int                `json:"answered"`
	Next       *sequence.Target   `json:"next,omitempty"`
	Error      string             `json:"error,omitempty"`
}
