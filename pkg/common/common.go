package common

import (
	"strings"
	"time"
)

// Classification distinguishes the two markup variants the engine knows
// about. It is a closed set; every dispatch on it must handle the default
// case as an invalid request.
type Classification string

const (
	ClassificationEntity   Classification = "entity"
	ClassificationRelation Classification = "relation"
)

// Valid reports whether c is one of the known classifications.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationEntity, ClassificationRelation:
		return true
	}
	return false
}

// Span is an inclusive (start, end) token index pair locating a surface
// form inside a tokenized dataset item.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SaveState marks a dataset item as finalized by one annotator. An item
// carrying a save state for annotator U is locked with respect to U:
// propagated operations must not touch U's markup on it.
type SaveState struct {
	Creator   string    `json:"creator"`
	CreatedAt time.Time `json:"created_at"`
}

// DatasetItem is an ordered token sequence owned by a dataset. Items are
// created by dataset ingestion and are read-only to the engine apart from
// lock checks.
type DatasetItem struct {
	ID         string      `json:"id"`
	DatasetID  string      `json:"dataset_id"`
	Tokens     []string    `json:"tokens"`
	SaveStates []SaveState `json:"save_states,omitempty"`
}

// Text returns the item's full text, tokens joined by single spaces.
func (d *DatasetItem) Text() string {
	return strings.Join(d.Tokens, " ")
}

// LockedFor reports whether the item carries a save state for creator.
func (d *DatasetItem) LockedFor(creator string) bool {
	for _, s := range d.SaveStates {
		if s.Creator == creator {
			return true
		}
	}
	return false
}

// OntologyNode is one node of a project's hierarchical label tree. The
// tree itself is owned by the ontology service; the engine only resolves
// label ids to display metadata.
type OntologyNode struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	FullName string         `json:"fullname"`
	Color    string         `json:"color"`
	Children []OntologyNode `json:"children,omitempty"`
}

// EntityMarkup is a labeled token span placed by one annotator on one
// dataset item. Suggested markup is weak (propagation-proposed); accepted
// markup is confirmed.
type EntityMarkup struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	ItemID         string    `json:"dataset_item_id"`
	Creator        string    `json:"creator"`
	OntologyItemID string    `json:"ontology_item_id"`
	Start          int       `json:"start"`
	End            int       `json:"end"`
	SurfaceForm    string    `json:"surface_form"`
	Suggested      bool      `json:"suggested"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Span returns the markup's token span.
func (m *EntityMarkup) Span() Span {
	return Span{Start: m.Start, End: m.End}
}

// RelationMarkup is a labeled, directed link between two entity markup
// records on the same dataset item. Source and target are references by
// id, never embedded copies, which keeps the entity/relation graph in two
// independently addressable tables.
type RelationMarkup struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	ItemID         string    `json:"dataset_item_id"`
	Creator        string    `json:"creator"`
	OntologyItemID string    `json:"ontology_item_id"`
	SourceID       string    `json:"source_id"`
	TargetID       string    `json:"target_id"`
	Suggested      bool      `json:"suggested"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
