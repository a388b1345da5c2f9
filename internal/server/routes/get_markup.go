package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/nlp-tlp/quickgraph-sub001/internal/server/middleware"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/engine"
)

// GetItemMarkupHandler lists the markup the acting annotator holds on
// one dataset item.
func GetItemMarkupHandler(c echo.Context) error {
	type getItemMarkupData struct {
		ItemID string `param:"item_id" validate:"required"`
	}

	type getItemMarkupResponse struct {
		Message string             `json:"message"`
		Markup  *engine.ItemMarkup `json:"markup,omitempty"`
	}

	data := new(getItemMarkupData)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, getItemMarkupResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, getItemMarkupResponse{
			Message: "Invalid request params",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, getItemMarkupResponse{
			Message: "Unauthorized",
		})
	}

	app := c.(*middleware.AppContext).App
	markup, err := app.Engine.GetItemMarkup(c.Request().Context(), data.ItemID, user.Username)
	if err != nil {
		return c.JSON(statusForError(err), getItemMarkupResponse{
			Message: err.Error(),
		})
	}

	return c.JSON(http.StatusOK, getItemMarkupResponse{
		Message: "OK",
		Markup:  markup,
	})
}
