package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/nlp-tlp/quickgraph-sub001/internal/queue"
	"github.com/nlp-tlp/quickgraph-sub001/internal/server/middleware"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/engine"
)

// AcceptMarkupHandler confirms a suggested markup record, or every
// matching record project-wide when accept_all is set.
func AcceptMarkupHandler(c echo.Context) error {
	type acceptMarkupData struct {
		MarkupID  string `param:"id" validate:"required"`
		AcceptAll bool   `json:"accept_all"`
	}

	type acceptMarkupResponse struct {
		Message string               `json:"message"`
		Result  *engine.AcceptResult `json:"result,omitempty"`
	}

	data := new(acceptMarkupData)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, acceptMarkupResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, acceptMarkupResponse{
			Message: "Invalid request params",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, acceptMarkupResponse{
			Message: "Unauthorized",
		})
	}

	app := c.(*middleware.AppContext).App
	result, err := app.Engine.AcceptMarkup(c.Request().Context(), data.MarkupID, data.AcceptAll)
	if err != nil {
		return c.JSON(statusForError(err), acceptMarkupResponse{
			Message: err.Error(),
		})
	}

	publishEvent(app, queue.MarkupEvent{
		Action:         "accept",
		Classification: result.Classification,
		ProjectID:      result.ProjectID,
		Creator:        result.Creator,
		Count:          result.Count,
		EntityIDs:      result.EntityIDs,
		RelationIDs:    result.RelationIDs,
	})

	return c.JSON(http.StatusOK, acceptMarkupResponse{
		Message: "Markup accepted successfully",
		Result:  result,
	})
}

// RelabelMarkupHandler changes a markup record's ontology label in
// place, rejecting the change when the resulting signature collides
// with an existing record.
func RelabelMarkupHandler(c echo.Context) error {
	type relabelMarkupData struct {
		MarkupID       string `param:"id" validate:"required"`
		OntologyItemID string `json:"ontology_item_id" validate:"required"`
	}

	type relabelMarkupResponse struct {
		Message string                `json:"message"`
		Result  *engine.RelabelResult `json:"result,omitempty"`
	}

	data := new(relabelMarkupData)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, relabelMarkupResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, relabelMarkupResponse{
			Message: "Invalid request body",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, relabelMarkupResponse{
			Message: "Unauthorized",
		})
	}

	app := c.(*middleware.AppContext).App
	result, err := app.Engine.RelabelMarkup(c.Request().Context(), data.MarkupID, data.OntologyItemID)
	if err != nil {
		return c.JSON(statusForError(err), relabelMarkupResponse{
			Message: err.Error(),
		})
	}

	publishEvent(app, queue.MarkupEvent{
		Action:         "relabel",
		Classification: result.Classification,
		ProjectID:      result.ProjectID,
		Creator:        result.Creator,
		Count:          1,
	})

	return c.JSON(http.StatusOK, relabelMarkupResponse{
		Message: "Markup relabeled successfully",
		Result:  result,
	})
}
