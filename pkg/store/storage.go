// Package store declares the persistence and collaborator interfaces the
// annotation engine consumes. Backends live in subpackages: pgx for
// PostgreSQL, memory for tests and local development.
package store

import (
	"context"

	"github.com/nlp-tlp/quickgraph-sub001/pkg/common"
)

// EntitySignature uniquely identifies one entity markup record. Upserting
// with an existing signature updates the record instead of duplicating it.
type EntitySignature struct {
	ProjectID      string
	ItemID         string
	Creator        string
	OntologyItemID string
	Start          int
	End            int
}

// EntityBody carries the mutable fields written by an entity upsert.
type EntityBody struct {
	SurfaceForm string
	Suggested   bool
}

// EntityFilter selects entity markup records. Zero-valued fields are not
// applied; pointer fields distinguish "unset" from zero.
type EntityFilter struct {
	ID             string
	IDs            []string
	ProjectID      string
	ItemID         string
	Creator        string
	OntologyItemID string
	SurfaceForm    string
	Start          *int
	End            *int
	Suggested      *bool
}

// EntityPatch carries the fields an entity bulk update may change.
type EntityPatch struct {
	Suggested      *bool
	OntologyItemID *string
}

// RelationSignature uniquely identifies one relation markup record.
type RelationSignature struct {
	ProjectID      string
	ItemID         string
	Creator        string
	OntologyItemID string
	SourceID       string
	TargetID       string
}

// RelationBody carries the mutable fields written by a relation upsert.
type RelationBody struct {
	Suggested bool
}

// RelationFilter selects relation markup records. EndpointID matches
// records referencing the given entity id as source or target;
// EndpointIDs is the bulk form.
type RelationFilter struct {
	ID             string
	IDs            []string
	ProjectID      string
	ItemID         string
	Creator        string
	OntologyItemID string
	SourceID       string
	TargetID       string
	EndpointID     string
	EndpointIDs    []string
	Suggested      *bool
}

// RelationPatch carries the fields a relation bulk update may change.
type RelationPatch struct {
	Suggested      *bool
	OntologyItemID *string
}

// EntityStore persists entity markup. Upsert is the engine's only create
// path and must be atomic with respect to the signature: two concurrent
// identical upserts yield one record, the loser observing created=false.
type EntityStore interface {
	UpsertEntity(ctx context.Context, sig EntitySignature, body EntityBody) (bool, common.EntityMarkup, error)
	FindEntity(ctx context.Context, f EntityFilter) (*common.EntityMarkup, error)
	FindEntities(ctx context.Context, f EntityFilter) ([]common.EntityMarkup, error)
	UpdateEntities(ctx context.Context, f EntityFilter, p EntityPatch) ([]common.EntityMarkup, error)
	DeleteEntities(ctx context.Context, f EntityFilter) ([]string, error)
}

// RelationStore persists relation markup with the same contract as
// EntityStore.
type RelationStore interface {
	UpsertRelation(ctx context.Context, sig RelationSignature, body RelationBody) (bool, common.RelationMarkup, error)
	FindRelation(ctx context.Context, f RelationFilter) (*common.RelationMarkup, error)
	FindRelations(ctx context.Context, f RelationFilter) ([]common.RelationMarkup, error)
	UpdateRelations(ctx context.Context, f RelationFilter, p RelationPatch) ([]common.RelationMarkup, error)
	DeleteRelations(ctx context.Context, f RelationFilter) ([]string, error)
}

// MarkupStore combines both markup tables behind one handle.
type MarkupStore interface {
	EntityStore
	RelationStore
}

// DatasetService is the read-only boundary to dataset items. The engine
// never writes items; it reads tokens, searches item text, and checks
// save-state locks.
type DatasetService interface {
	GetItem(ctx context.Context, itemID string) (*common.DatasetItem, error)
	// FindItemsContainingText returns the dataset's items whose full text
	// contains pattern as a whole-word match.
	FindItemsContainingText(ctx context.Context, datasetID string, pattern string) ([]common.DatasetItem, error)
	IsLocked(ctx context.Context, itemID string, creator string) (bool, error)
}

// OntologyService resolves a label id to its node within a project's
// label tree for the given classification. A nil node means the label
// does not exist.
type OntologyService interface {
	ResolveLabel(ctx context.Context, projectID string, classification common.Classification, labelID string) (*common.OntologyNode, error)
}
