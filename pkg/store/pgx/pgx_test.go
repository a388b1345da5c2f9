package pgx

import (
	"reflect"
	"testing"

	"github.com/nlp-tlp/quickgraph-sub001/pkg/store"
)

func TestEntityWhere(t *testing.T) {
	start, end := 2, 4
	suggested := true

	tests := []struct {
		name       string
		filter     store.EntityFilter
		argOffset  int
		wantClause string
		wantArgs   []any
	}{
		{
			name:       "empty filter",
			filter:     store.EntityFilter{},
			wantClause: "",
			wantArgs:   nil,
		},
		{
			name:       "by id",
			filter:     store.EntityFilter{ID: "m1"},
			wantClause: " WHERE id = $1",
			wantArgs:   []any{"m1"},
		},
		{
			name: "signature fields",
			filter: store.EntityFilter{
				ProjectID:      "p1",
				ItemID:         "i1",
				Creator:        "ann1",
				OntologyItemID: "lbl1",
				Start:          &start,
				End:            &end,
			},
			wantClause: " WHERE project_id = $1 AND item_id = $2 AND creator = $3 AND ontology_item_id = $4 AND start_idx = $5 AND end_idx = $6",
			wantArgs:   []any{"p1", "i1", "ann1", "lbl1", 2, 4},
		},
		{
			name:       "offset shifts positions",
			filter:     store.EntityFilter{Creator: "ann1", Suggested: &suggested},
			argOffset:  2,
			wantClause: " WHERE creator = $3 AND suggested = $4",
			wantArgs:   []any{"ann1", true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args := entityWhere(tt.filter, tt.argOffset)
			if clause != tt.wantClause {
				t.Fatalf("clause: got %q, want %q", clause, tt.wantClause)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Fatalf("args: got %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestRelationWhereEndpoints(t *testing.T) {
	clause, args := relationWhere(store.RelationFilter{EndpointID: "e1"}, 0)
	want := " WHERE (source_id = $1 OR target_id = $1)"
	if clause != want {
		t.Fatalf("clause: got %q, want %q", clause, want)
	}
	if len(args) != 1 || args[0] != "e1" {
		t.Fatalf("args: got %v, want [e1]", args)
	}

	clause, args = relationWhere(store.RelationFilter{Creator: "ann1", EndpointIDs: []string{"e1", "e2"}}, 0)
	want = " WHERE creator = $1 AND (source_id = ANY($2) OR target_id = ANY($2))"
	if clause != want {
		t.Fatalf("clause: got %q, want %q", clause, want)
	}
	if len(args) != 2 {
		t.Fatalf("args: got %v, want 2 entries", args)
	}
}
