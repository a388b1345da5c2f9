// Package engine implements the annotation propagation and consistency
// engine: applying, accepting, relabeling, and deleting entity/relation
// markup, single or propagated across every matching occurrence in a
// dataset. All state lives in the store; the engine itself is stateless
// and safe for concurrent use.
package engine

import (
	"context"
	"fmt"

	"github.com/nlp-tlp/quickgraph-sub001/pkg/common"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/store"
)

// Engine coordinates the entity and relation engines against the
// collaborator interfaces. Collaborators are passed in explicitly; there
// are no package-level connections.
type Engine struct {
	entities  store.EntityStore
	relations store.RelationStore
	dataset   store.DatasetService
	ontology  store.OntologyService
	cascade   cascader

	maxParallel int
}

// Params configures a new Engine.
type Params struct {
	Markup   store.MarkupStore
	Dataset  store.DatasetService
	Ontology store.OntologyService

	// MaxParallel bounds concurrent candidate-item scans during
	// propagation. Defaults to 8.
	MaxParallel int
}

// New creates an Engine from its collaborators.
func New(params Params) *Engine {
	maxParallel := params.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 8
	}
	return &Engine{
		entities:  params.Markup,
		relations: params.Markup,
		dataset:   params.Dataset,
		ontology:  params.Ontology,
		cascade: cascader{
			entities:  params.Markup,
			relations: params.Markup,
		},
		maxParallel: maxParallel,
	}
}

// ApplyParams is the payload of an apply operation. Entity applies use
// Start/End; relation applies use SourceID/TargetID.
type ApplyParams struct {
	ProjectID      string
	ItemID         string
	Creator        string
	Classification common.Classification
	OntologyItemID string
	Suggested      bool
	ApplyAll       bool

	Start int
	End   int

	SourceID string
	TargetID string
}

// ApplyResult enumerates the markup created or already matching after an
// apply. Count is the number of newly created records.
type ApplyResult struct {
	Count     int                     `json:"count"`
	LabelName string                  `json:"label_name"`
	Entities  []common.EntityMarkup   `json:"entities"`
	Relations []common.RelationMarkup `json:"relations"`
}

// AcceptResult enumerates the records confirmed by an accept.
type AcceptResult struct {
	Count          int                   `json:"count"`
	Classification common.Classification `json:"classification"`
	ProjectID      string                `json:"project_id"`
	Creator        string                `json:"creator"`
	EntityIDs      []string              `json:"entity_ids"`
	RelationIDs    []string              `json:"relation_ids"`
}

// DeleteResult enumerates the records removed by a delete, including
// cascaded relations.
type DeleteResult struct {
	Count          int                   `json:"count"`
	Classification common.Classification `json:"classification"`
	ProjectID      string                `json:"project_id"`
	Creator        string                `json:"creator"`
	EntityIDs      []string              `json:"entity_ids"`
	RelationIDs    []string              `json:"relation_ids"`
}

// RelabelResult summarizes a successful relabel.
type RelabelResult struct {
	ID             string                `json:"id"`
	Classification common.Classification `json:"classification"`
	ProjectID      string                `json:"project_id"`
	Creator        string                `json:"creator"`
	OntologyItemID string                `json:"ontology_item_id"`
	LabelName      string                `json:"label_name"`
}

// ItemMarkup is the markup present on one dataset item for one annotator.
type ItemMarkup struct {
	Entities  []common.EntityMarkup   `json:"entities"`
	Relations []common.RelationMarkup `json:"relations"`
}

// ApplyMarkup applies markup once or propagated across the dataset,
// dispatching on the classification. Validation happens before any
// mutation: the label must resolve, the dataset item must exist, and the
// content must be in range.
func (e *Engine) ApplyMarkup(ctx context.Context, p ApplyParams) (*ApplyResult, error) {
	if !p.Classification.Valid() {
		return nil, fmt.Errorf("classification %q: %w", p.Classification, ErrInvalidRequest)
	}

	node, err := e.ontology.ResolveLabel(ctx, p.ProjectID, p.Classification, p.OntologyItemID)
	if err != nil {
		return nil, fmt.Errorf("resolve label: %w", err)
	}
	if node == nil {
		return nil, fmt.Errorf("ontology item %s: %w", p.OntologyItemID, ErrNotFound)
	}

	item, err := e.dataset.GetItem(ctx, p.ItemID)
	if err != nil {
		return nil, fmt.Errorf("get dataset item: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("dataset item %s: %w", p.ItemID, ErrNotFound)
	}

	switch p.Classification {
	case common.ClassificationEntity:
		return e.applyEntity(ctx, p, node, item)
	case common.ClassificationRelation:
		return e.applyRelation(ctx, p, node, item)
	default:
		return nil, fmt.Errorf("classification %q: %w", p.Classification, ErrInvalidRequest)
	}
}

// AcceptMarkup confirms a markup record, or every matching record
// project-wide when all is set. The record may be an entity or a
// relation; relation acceptance promotes both endpoint entities.
func (e *Engine) AcceptMarkup(ctx context.Context, markupID string, all bool) (*AcceptResult, error) {
	ent, rel, err := e.findMarkup(ctx, markupID)
	if err != nil {
		return nil, err
	}

	switch {
	case ent != nil && all:
		return e.acceptEntityAll(ctx, ent)
	case ent != nil:
		return e.acceptEntitySingle(ctx, ent)
	case all:
		return e.acceptRelationAll(ctx, rel)
	default:
		return e.acceptRelationSingle(ctx, rel)
	}
}

// DeleteMarkup removes a markup record, or every matching record when all
// is set. Entity deletion cascades to referencing relations; relation
// deletion never cascades upward to entities.
func (e *Engine) DeleteMarkup(ctx context.Context, markupID string, all bool) (*DeleteResult, error) {
	ent, rel, err := e.findMarkup(ctx, markupID)
	if err != nil {
		return nil, err
	}

	switch {
	case ent != nil && all:
		return e.deleteEntityAll(ctx, ent)
	case ent != nil:
		return e.deleteEntitySingle(ctx, ent)
	case all:
		return e.deleteRelationAll(ctx, rel)
	default:
		return e.deleteRelationSingle(ctx, rel)
	}
}

// RelabelMarkup changes a record's ontology label in place. It fails with
// ErrConflict when a record with the resulting signature already exists,
// and with ErrNotFound when the new label does not resolve.
func (e *Engine) RelabelMarkup(ctx context.Context, markupID string, newOntologyItemID string) (*RelabelResult, error) {
	ent, rel, err := e.findMarkup(ctx, markupID)
	if err != nil {
		return nil, err
	}
	if ent != nil {
		return e.relabelEntity(ctx, ent, newOntologyItemID)
	}
	return e.relabelRelation(ctx, rel, newOntologyItemID)
}

// GetItemMarkup lists the markup one annotator holds on one dataset item.
func (e *Engine) GetItemMarkup(ctx context.Context, itemID string, creator string) (*ItemMarkup, error) {
	item, err := e.dataset.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get dataset item: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("dataset item %s: %w", itemID, ErrNotFound)
	}

	entities, err := e.entities.FindEntities(ctx, store.EntityFilter{ItemID: itemID, Creator: creator})
	if err != nil {
		return nil, fmt.Errorf("find entities: %w", err)
	}
	relations, err := e.relations.FindRelations(ctx, store.RelationFilter{ItemID: itemID, Creator: creator})
	if err != nil {
		return nil, fmt.Errorf("find relations: %w", err)
	}
	return &ItemMarkup{Entities: entities, Relations: relations}, nil
}

// findMarkup resolves a markup id against both tables. Exactly one of the
// returned records is non-nil on success.
func (e *Engine) findMarkup(ctx context.Context, markupID string) (*common.EntityMarkup, *common.RelationMarkup, error) {
	ent, err := e.entities.FindEntity(ctx, store.EntityFilter{ID: markupID})
	if err != nil {
		return nil, nil, fmt.Errorf("find entity markup: %w", err)
	}
	if ent != nil {
		return ent, nil, nil
	}

	rel, err := e.relations.FindRelation(ctx, store.RelationFilter{ID: markupID})
	if err != nil {
		return nil, nil, fmt.Errorf("find relation markup: %w", err)
	}
	if rel == nil {
		return nil, nil, fmt.Errorf("markup %s: %w", markupID, ErrNotFound)
	}
	return nil, rel, nil
}

// skipLocked reports whether a propagated operation must skip the item:
// it is locked for the acting creator and is not the originating item.
func (e *Engine) skipLocked(ctx context.Context, itemID string, originItemID string, creator string) (bool, error) {
	if itemID == originItemID {
		return false, nil
	}
	locked, err := e.dataset.IsLocked(ctx, itemID, creator)
	if err != nil {
		return false, fmt.Errorf("check save state: %w", err)
	}
	return locked, nil
}
