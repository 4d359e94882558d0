package sequence

import (
	"context"
	"errors"
	"sort"

	"github.com/coursebox/progression/internal/domain"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// ErrLessonNotInCourse the completed lesson is missing from its own course
// list, a data inconsistency upstream
var ErrLessonNotInCourse = errors.New("lesson not found in course sequence")

// Target where the learner goes after completing a lesson
type Target struct {
	CourseID       string `json:"course_id"`
	NextLessonID   string `json:"next_lesson_id,omitempty"`
	CourseFinished bool   `json:"course_finished"`
}

// Sequencer computes the next lesson in canonical course order
type Sequencer struct {
	lessons domain.LessonRepository
	logger  *zap.Logger
}

// NewSequencer ...
func NewSequencer(lessons domain.LessonRepository, logger *zap.Logger) *Sequencer {
	return &Sequencer{
		lessons: lessons,
		logger:  logger,
	}
}

// Next fetches the course lesson list and returns the lesson strictly after
// the given one in (order, id) sequence, or a course-finished target when it
// was the last. The fetch order of the list carries no meaning
func (s *Sequencer) Next(ctx context.Context, lesson *domain.LessonModel) (*Target, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "Sequencer.Next", "service")
	defer apmSpan.End()

	lessons, err := s.lessons.ListLessons(ctx, lesson.CourseID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(lessons, func(i, j int) bool {
		return lessons[i].Before(lessons[j])
	})

	index := -1
	for i, l := range lessons {
		if l.ID == lesson.ID {
			index = i
			break
		}
	}
	if index < 0 {
		s.logger.Warn("Completed lesson missing from course list",
			zap.String("lesson.id", lesson.ID),
			zap.String("course.id", lesson.CourseID),
		)
		return nil, ErrLessonNotInCourse
	}

	if index+1 < len(lessons) {
		return &Target{
			CourseID:     lesson.CourseID,
			NextLessonID: lessons[index+1].ID,
		}, nil
	}
	return &Target{
		CourseID:       lesson.CourseID,
		CourseFinished: true,
	}, nil
}
