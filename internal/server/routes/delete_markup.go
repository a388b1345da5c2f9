package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/nlp-tlp/quickgraph-sub001/internal/queue"
	"github.com/nlp-tlp/quickgraph-sub001/internal/server/middleware"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/engine"
)

// DeleteMarkupHandler removes a markup record, or every matching record
// project-wide when delete_all is set. Entity deletion cascades to
// relations referencing the removed entities.
func DeleteMarkupHandler(c echo.Context) error {
	type deleteMarkupData struct {
		MarkupID  string `param:"id" validate:"required"`
		DeleteAll bool   `query:"delete_all"`
	}

	type deleteMarkupResponse struct {
		Message string               `json:"message"`
		Result  *engine.DeleteResult `json:"result,omitempty"`
	}

	data := new(deleteMarkupData)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, deleteMarkupResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, deleteMarkupResponse{
			Message: "Invalid request params",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, deleteMarkupResponse{
			Message: "Unauthorized",
		})
	}

	app := c.(*middleware.AppContext).App
	result, err := app.Engine.DeleteMarkup(c.Request().Context(), data.MarkupID, data.DeleteAll)
	if err != nil {
		return c.JSON(statusForError(err), deleteMarkupResponse{
			Message: err.Error(),
		})
	}

	publishEvent(app, queue.MarkupEvent{
		Action:         "delete",
		Classification: result.Classification,
		ProjectID:      result.ProjectID,
		Creator:        result.Creator,
		Count:          result.Count,
		EntityIDs:      result.EntityIDs,
		RelationIDs:    result.RelationIDs,
	})

	return c.JSON(http.StatusOK, deleteMarkupResponse{
		Message: "Markup deleted successfully",
		Result:  result,
	})
}
