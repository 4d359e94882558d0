package progression

import (
	"sync"

	"github.com/coursebox/progression/internal/domain"
	"github.com/coursebox/progression/internal/sequence"
)

// Flow one in-flight completion attempt for one lesson. All fields behind mu,
// repository calls are never made while holding it
type Flow struct {
	id     string
	lesson *domain.LessonModel

	mu         sync.Mutex
	state      State
	quiz       *domain.QuizModel
	previous   *domain.QuizResult
	lastResult *domain.QuizResult
	answers    map[string]string // question id -> choice id
	target     *sequence.Target
	handle     *sequence.Handle
	lastErr    error
	closed     bool
	observers  []chan Snapshot
}

func newFlow(id string, lesson *domain.LessonModel) *Flow {
	return &Flow{
		id:      id,
		lesson:  lesson,
		state:   StateIdle,
		answers: make(map[string]string),
	}
}

// ID flow identifier
func (f *Flow) ID() string {
	return f.id
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.publishLocked()
	f.mu.Unlock()
}

func (f *Flow) setQuiz(quiz *domain.QuizModel, previous *domain.QuizResult, s State) {
	f.mu.Lock()
	f.quiz = quiz
	f.previous = previous
	f.state = s
	f.publishLocked()
	f.mu.Unlock()
}

func (f *Flow) fail(s State, err error) {
	f.mu.Lock()
	f.state = s
	f.lastErr = err
	f.publishLocked()
	f.mu.Unlock()
}

func (f *Flow) snapshotLocked() Snapshot {
	snap := Snapshot{
		FlowID:     f.id,
		LessonID:   f.lesson.ID,
		State:      f.state,
		Quiz:       f.quiz,
		Previous:   f.previous,
		LastResult: f.lastResult,
		Answered:   len(f.answers),
		Next:       f.target,
	}
	if f.lastErr != nil {
		snap.Error = f.lastErr.Error()
	}
	return snap
}

// Snapshot current observable state
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Flow) publishLocked() {
	snap := f.snapshotLocked()
	for _, ch := range f.observers {
		// slow listeners miss intermediate snapshots instead of stalling the flow
		select {
		case ch <- snap:
		default:
		}
	}
}

func (f *Flow) subscribe() (<-chan Snapshot, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, nil, domain.ErrFlowNotFound
	}
	ch := make(chan Snapshot, 8)
	ch <- f.snapshotLocked()
	f.observers = append(f.observers, ch)

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, o := range f.observers {
			if o == ch {
				f.observers = append(f.observers[:i], f.observers[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel, nil
}

// close ends the flow in the given terminal state and releases subscribers
func (f *Flow) close(final State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.state = final
	if f.handle != nil {
		f.handle.Stop()
	}
	f.publishLocked()
	for _, ch := range f.observers {
		close(ch)
	}
	f.observers = nil
}
