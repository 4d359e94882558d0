package http

import (
	"net/http"
	"sort"

	"github.com/coursebox/progression/internal/domain"
	"github.com/labstack/echo/v4"
)

type LessonHandler struct {
	lessons domain.LessonRepository
}

func NewLessonHandler(lessons domain.LessonRepository) *LessonHandler {
	return &LessonHandler{lessons}
}

func (lh *LessonHandler) HandleGetLesson(c echo.Context) error {
	lesson, err := lh.lessons.GetLesson(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(statusFromError(err), NewRESTStandardError(statusFromError(err), err.Error()))
	}
	return c.JSON(http.StatusOK, lesson)
}

// HandleListCourseLessons lessons are returned in canonical course order,
// whatever order the platform sent them in
func (lh *LessonHandler) HandleListCourseLessons(c echo.Context) error {
	lessons, err := lh.lessons.ListLessons(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(statusFromError(err), NewRESTStandardError(statusFromError(err), err.Error()))
	}
	sort.SliceStable(lessons, func(i, j int) bool {
		return lessons[i].Before(lessons[j])
	})
	return c.JSON(http.StatusOK, lessons)
}
