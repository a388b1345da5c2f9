// Package pgx implements the store interfaces on PostgreSQL via a
// pgxpool connection. Filters are compiled to dynamic WHERE clauses;
// signature upserts use INSERT ... ON CONFLICT with an xmax-based
// created flag so two concurrent identical upserts yield one row.
package pgx

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nlp-tlp/quickgraph-sub001/pkg/store"
)

// MarkupStore is a PostgreSQL store.MarkupStore.
type MarkupStore struct {
	conn *pgxpool.Pool
}

// NewMarkupStore creates a markup store on an existing pool.
func NewMarkupStore(conn *pgxpool.Pool) *MarkupStore {
	return &MarkupStore{conn: conn}
}

// offsetBuilder accumulates filter conditions with positional args
// starting after n already-bound parameters, so SET clauses can claim
// the leading positions in UPDATEs.
type offsetBuilder struct {
	n     int
	conds []string
	args  []any
}

func (b *offsetBuilder) add(format string, v any) {
	b.args = append(b.args, v)
	b.conds = append(b.conds, fmt.Sprintf(format, len(b.args)+b.n))
}

func (b *offsetBuilder) clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

func entityWhere(f store.EntityFilter, argOffset int) (string, []any) {
	b := &offsetBuilder{n: argOffset}
	if f.ID != "" {
		b.add("id = $%d", f.ID)
	}
	if len(f.IDs) > 0 {
		b.add("id = ANY($%d)", f.IDs)
	}
	if f.ProjectID != "" {
		b.add("project_id = $%d", f.ProjectID)
	}
	if f.ItemID != "" {
		b.add("item_id = $%d", f.ItemID)
	}
	if f.Creator != "" {
		b.add("creator = $%d", f.Creator)
	}
	if f.OntologyItemID != "" {
		b.add("ontology_item_id = $%d", f.OntologyItemID)
	}
	if f.SurfaceForm != "" {
		b.add("surface_form = $%d", f.SurfaceForm)
	}
	if f.Start != nil {
		b.add("start_idx = $%d", *f.Start)
	}
	if f.End != nil {
		b.add("end_idx = $%d", *f.End)
	}
	if f.Suggested != nil {
		b.add("suggested = $%d", *f.Suggested)
	}
	return b.clause(), b.args
}

func relationWhere(f store.RelationFilter, argOffset int) (string, []any) {
	b := &offsetBuilder{n: argOffset}
	if f.ID != "" {
		b.add("id = $%d", f.ID)
	}
	if len(f.IDs) > 0 {
		b.add("id = ANY($%d)", f.IDs)
	}
	if f.ProjectID != "" {
		b.add("project_id = $%d", f.ProjectID)
	}
	if f.ItemID != "" {
		b.add("item_id = $%d", f.ItemID)
	}
	if f.Creator != "" {
		b.add("creator = $%d", f.Creator)
	}
	if f.OntologyItemID != "" {
		b.add("ontology_item_id = $%d", f.OntologyItemID)
	}
	if f.SourceID != "" {
		b.add("source_id = $%d", f.SourceID)
	}
	if f.TargetID != "" {
		b.add("target_id = $%d", f.TargetID)
	}
	if f.EndpointID != "" {
		b.add("(source_id = $%[1]d OR target_id = $%[1]d)", f.EndpointID)
	}
	if len(f.EndpointIDs) > 0 {
		b.add("(source_id = ANY($%[1]d) OR target_id = ANY($%[1]d))", f.EndpointIDs)
	}
	if f.Suggested != nil {
		b.add("suggested = $%d", *f.Suggested)
	}
	return b.clause(), b.args
}
