package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/nlp-tlp/quickgraph-sub001/internal/queue"
	"github.com/nlp-tlp/quickgraph-sub001/internal/server/middleware"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/common"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/engine"
)

// ApplyMarkupHandler applies entity or relation markup, once or
// propagated across the dataset.
func ApplyMarkupHandler(c echo.Context) error {
	type applyMarkupContent struct {
		OntologyItemID string `json:"ontology_item_id" validate:"required"`
		Start          int    `json:"start"`
		End            int    `json:"end"`
		SourceID       string `json:"source_id"`
		TargetID       string `json:"target_id"`
	}

	type applyMarkupBody struct {
		ProjectID      string             `json:"project_id" validate:"required"`
		DatasetItemID  string             `json:"dataset_item_id" validate:"required"`
		AnnotationType string             `json:"annotation_type" validate:"required,oneof=entity relation"`
		Suggested      bool               `json:"suggested"`
		ApplyAll       bool               `json:"apply_all"`
		Content        applyMarkupContent `json:"content" validate:"required"`
	}

	type applyMarkupResponse struct {
		Message string              `json:"message"`
		Result  *engine.ApplyResult `json:"result,omitempty"`
	}

	data := new(applyMarkupBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, applyMarkupResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, applyMarkupResponse{
			Message: "Invalid request body",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, applyMarkupResponse{
			Message: "Unauthorized",
		})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	result, err := app.Engine.ApplyMarkup(ctx, engine.ApplyParams{
		ProjectID:      data.ProjectID,
		ItemID:         data.DatasetItemID,
		Creator:        user.Username,
		Classification: common.Classification(data.AnnotationType),
		OntologyItemID: data.Content.OntologyItemID,
		Suggested:      data.Suggested,
		ApplyAll:       data.ApplyAll,
		Start:          data.Content.Start,
		End:            data.Content.End,
		SourceID:       data.Content.SourceID,
		TargetID:       data.Content.TargetID,
	})
	if err != nil {
		return c.JSON(statusForError(err), applyMarkupResponse{
			Message: err.Error(),
		})
	}

	entityIDs := make([]string, 0, len(result.Entities))
	for _, m := range result.Entities {
		entityIDs = append(entityIDs, m.ID)
	}
	relationIDs := make([]string, 0, len(result.Relations))
	for _, m := range result.Relations {
		relationIDs = append(relationIDs, m.ID)
	}
	publishEvent(app, queue.MarkupEvent{
		Action:         "apply",
		Classification: common.Classification(data.AnnotationType),
		ProjectID:      data.ProjectID,
		Creator:        user.Username,
		Count:          result.Count,
		EntityIDs:      entityIDs,
		RelationIDs:    relationIDs,
	})

	return c.JSON(http.StatusOK, applyMarkupResponse{
		Message: "Markup applied successfully",
		Result:  result,
	})
}
