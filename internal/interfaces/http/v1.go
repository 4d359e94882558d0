package http

import (
	infra "github.com/coursebox/progression/internal/infrastructure"
	"github.com/labstack/echo/v4"
)

func v1Endpoint(
	websocket *infra.Websocket,
	LessonHandler *LessonHandler,
	FlowHandler *FlowHandler,
	jwtMiddleware echo.MiddlewareFunc,
	refreshMiddleware echo.MiddlewareFunc,
	requestIDMiddleware echo.MiddlewareFunc,
	traceLoggerMiddleware echo.MiddlewareFunc,
) *endpoint {
	return &endpoint{
		apiVersion:  "api/v1",
		middlewares: []echo.MiddlewareFunc{requestIDMiddleware, traceLoggerMiddleware},
		groups: []*apiGroup{
			{
				prefix:      "/lesson",
				middlewares: []echo.MiddlewareFunc{jwtMiddleware, refreshMiddleware},
				routes: []*route{
					{"GET", "/:id", LessonHandler.HandleGetLesson, nil},
					{"POST", "/:id/completion", FlowHandler.HandleRequestCompletion, nil},
				},
			},
			{
				prefix:      "/course",
				middlewares: []echo.MiddlewareFunc{jwtMiddleware, refreshMiddleware},
				routes: []*route{
					{"GET", "/:id/lessons", LessonHandler.HandleListCourseLessons, nil},
				},
			},
			{
				prefix:      "/flow",
				middlewares: []echo.MiddlewareFunc{jwtMiddleware, refreshMiddleware},
				routes: []*route{
					{"GET", "/:id", FlowHandler.HandleGetFlow, nil},
					{"PUT", "/:id/answers", FlowHandler.HandleSelectAnswer, nil},
					{"DELETE", "/:id/answers", FlowHandler.HandleClearAnswers, nil},
					{"POST", "/:id/submission", FlowHandler.HandleSubmit, nil},
					{"POST", "/:id/retake", FlowHandler.HandleRetake, nil},
					{"POST", "/:id/completion", FlowHandler.HandleRetryCompletion, nil},
					{"DELETE", "/:id", FlowHandler.HandleCancel, nil},
				},
			},
			{
				prefix:      "/ws",
				middlewares: []echo.MiddlewareFunc{jwtMiddleware},
				routes: []*route{
					{"GET", "/flow/:id", websocket.WithHeartbeat(FlowHandler.HandleFlowStream), nil},
				},
			},
		},
	}
}
