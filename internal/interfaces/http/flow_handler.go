package http

import (
	"encoding/json"
	"net/http"

	"github.com/coursebox/progression/internal/infrastructure/validate"
	"github.com/coursebox/progression/internal/progression"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// FlowHandler exposes the completion flow machine to UI clients
type FlowHandler struct {
	progression progression.ProgressionUseCase
	validator   validate.Validator
}

func NewFlowHandler(ProgressionUseCase progression.ProgressionUseCase, Validator validate.Validator) *FlowHandler {
	return &FlowHandler{ProgressionUseCase, Validator}
}

// HandleRequestCompletion start a completion flow for a lesson. An already
// completed lesson answers with a done snapshot and no flow id
func (fh *FlowHandler) HandleRequestCompletion(c echo.Context) error {
	snap, err := fh.progression.RequestCompletion(c.Request().Context(), c.Param("id"))
	if err != nil {
		if snap != nil {
			// completion call failed but the flow survives for a retry
			return c.JSON(statusFromError(err), snap)
		}
		return c.JSON(statusFromError(err), NewRESTStandardError(statusFromError(err), err.Error()))
	}
	return c.JSON(http.StatusOK, snap)
}

func (fh *FlowHandler) HandleGetFlow(c echo.Context) error {
	snap, err := fh.progression.Snapshot(c.Param("id"))
	if err != nil {
		return c.JSON(statusFromError(err), NewRESTStandardError(statusFromError(err), err.Error()))
	}
	return c.JSON(http.StatusOK, snap)
}

type selectAnswerRequest struct {
	QuestionID string `json:"question_id" validate:"required"`
	ChoiceID   string `json:"choice_id" validate:"required"`
}

func (fh *FlowHandler) HandleSelectAnswer(c echo.Context) error {
	post := new(selectAnswerRequest)
	if err := c.Bind(post); err != nil {
		internal := err.(*echo.HTTPError).Internal
		return c.JSON(http.StatusUnprocessableEntity,
			NewRESTStandardError(http.StatusUnprocessableEntity, internal.Error()))
	}
	if err := fh.validator.Struct(post); err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "Failed to validate answer", err))
	}

	snap, err := fh.progression.SelectAnswer(c.Param("id"), post.QuestionID, post.ChoiceID)
	if err != nil {
		return c.JSON(statusFromError(err), NewRESTStandardError(statusFromError(err), err.Error()))
	}
	return c.JSON(http.StatusOK, snap)
}

func (fh *FlowHandler) HandleClearAnswers(c echo.Context) error {
	snap, err := fh.progression.ClearAnswers(c.Param("id"))
	if err != nil {
		return c.JSON(statusFromError(err), NewRESTStandardError(statusFromError(err), err.Error()))
	}
	return c.JSON(http.StatusOK, snap)
}

func (fh *FlowHandler) HandleSubmit(c echo.Context) error {
	snap, err := fh.progression.Submit(c.Request().Context(), c.Param("id"))
	if err != nil {
		if snap != nil {
			return c.JSON(statusFromError(err), snap)
		}
		return c.JSON(statusFromError(err), NewRESTStandardError(statusFromError(err), err.Error()))
	}
	return c.JSON(http.StatusOK, snap)
}

func (fh *FlowHandler) HandleRetake(c echo.Context) error {
	snap, err := fh.progression.Retake(c.Param("id"))
	if err != nil {
		return c.JSON(statusFromError(err), NewRESTStandardError(statusFromError(err), err.Error()))
	}
	return c.JSON(http.StatusOK, snap)
}

func (fh *FlowHandler) HandleRetryCompletion(c echo.Context) error {
	snap, err := fh.progression.RetryCompletion(c.Request().Context(), c.Param("id"))
	if err != nil {
		if snap != nil {
			return c.JSON(statusFromError(err), snap)
		}
		return c.JSON(statusFromError(err), NewRESTStandardError(statusFromError(err), err.Error()))
	}
	return c.JSON(http.StatusOK, snap)
}

func (fh *FlowHandler) HandleCancel(c echo.Context) error {
	snap, err := fh.progression.Cancel(c.Param("id"))
	if err != nil {
		return c.JSON(statusFromError(err), NewRESTStandardError(statusFromError(err), err.Error()))
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleFlowStream push a snapshot on every flow transition until the flow
// ends or the client goes away. Closing the socket detaches the listener, so
// an unmounted view never keeps a subscription alive
func (fh *FlowHandler) HandleFlowStream(c echo.Context, conn *websocket.Conn) error {
	updates, cancel, err := fh.progression.Subscribe(c.Param("id"))
	if err != nil {
		payload, _ := json.Marshal(NewRESTStandardError(statusFromError(err), err.Error()))
		conn.WriteMessage(websocket.TextMessage, payload)
		return err
	}
	defer cancel()

	for snap := range updates {
		payload, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return err
		}
		// a terminal snapshot is the last one the flow will ever publish
		if snap.State.Terminal() {
			break
		}
	}
	return nil
}
