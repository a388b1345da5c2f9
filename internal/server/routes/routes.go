// Package routes holds one handler file per markup verb. Handlers bind
// and validate inline request structs, call the engine, and publish a
// markup event for every successful mutation.
package routes

import (
	"errors"
	"net/http"

	"github.com/nlp-tlp/quickgraph-sub001/internal/queue"
	"github.com/nlp-tlp/quickgraph-sub001/internal/server/middleware"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/engine"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/logger"
)

// statusForError maps engine sentinel errors to HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// publishEvent sends a markup event to the audit queue. Event delivery
// is best effort; a publish failure never fails the request.
func publishEvent(app *middleware.App, event queue.MarkupEvent) {
	if app.Queue == nil {
		return
	}
	if err := queue.PublishMarkupEvent(app.Queue, event); err != nil {
		logger.Warn("[Routes] Failed to publish markup event", "action", event.Action, "err", err)
	}
}
