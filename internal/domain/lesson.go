package domain

import (
	"context"
	"time"
)

// LessonProgress per learner-lesson completion state. It is owned by the
// platform backend and only mirrored here after a successful completion call,
// the engine never flips it on its own.
type LessonProgress struct {
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
}

type LessonModel struct {
	ID       string          `json:"id"`
	CourseID string          `json:"course_id"`
	Title    string          `json:"title"`
	Order    int             `json:"order"`
	IsFree   bool            `json:"is_free"`
	VideoURL string          `json:"video_url,omitempty"`
	Duration int             `json:"duration,omitempty"` // seconds
	Progress *LessonProgress `json:"progress"`
}

// IsCompleted reports whether the learner already finished this lesson
func (l *LessonModel) IsCompleted() bool {
	return l.Progress != nil && l.Progress.Completed
}

// Before reports whether l precedes other in course order.
// Order is primary, ID breaks ties
func (l *LessonModel) Before(other *LessonModel) bool {
	if l.Order != other.Order {
		return l.Order < other.Order
	}
	return l.ID < other.ID
}

type LessonRepository interface {
	GetLesson(ctx context.Context, id string) (*LessonModel, error)
	ListLessons(ctx context.Context, courseID string) ([]*LessonModel, error)
	MarkLessonCompleted(ctx context.Context, id string) (*LessonProgress, error)
}
