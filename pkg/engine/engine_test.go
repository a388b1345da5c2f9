package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/nlp-tlp/quickgraph-sub001/pkg/common"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/store"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/store/memory"
)

type fixture struct {
	engine  *Engine
	markup  *memory.MarkupStore
	dataset *memory.DatasetService
}

// Items i1-i4 belong to dataset d1; i5 belongs to d2 and must never be
// touched by propagation originating in d1.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	dataset := memory.NewDatasetService(
		common.DatasetItem{ID: "i1", DatasetID: "d1", Tokens: []string{"the", "pump", "is", "broken"}},
		common.DatasetItem{ID: "i2", DatasetID: "d1", Tokens: []string{"replace", "the", "pump", "now"}},
		common.DatasetItem{ID: "i3", DatasetID: "d1", Tokens: []string{"pump", "was", "broken"}},
		common.DatasetItem{ID: "i4", DatasetID: "d1", Tokens: []string{"the", "pump", "is", "very", "badly", "broken"}},
		common.DatasetItem{ID: "i5", DatasetID: "d2", Tokens: []string{"another", "pump"}},
	)

	ontology := memory.NewOntologyService()
	ontology.AddNode("p1", common.ClassificationEntity, common.OntologyNode{ID: "lbl-item", Name: "Item"}, "")
	ontology.AddNode("p1", common.ClassificationEntity, common.OntologyNode{ID: "lbl-pump", Name: "Pump"}, "lbl-item")
	ontology.AddNode("p1", common.ClassificationEntity, common.OntologyNode{ID: "lbl-state", Name: "State"}, "")
	ontology.AddNode("p1", common.ClassificationRelation, common.OntologyNode{ID: "rel-has", Name: "hasState"}, "")
	ontology.AddNode("p1", common.ClassificationRelation, common.OntologyNode{ID: "rel-alt", Name: "affects"}, "")

	markup := memory.NewMarkupStore()
	eng := New(Params{Markup: markup, Dataset: dataset, Ontology: ontology})
	return &fixture{engine: eng, markup: markup, dataset: dataset}
}

func entityParams(itemID string, label string, start, end int, suggested, applyAll bool) ApplyParams {
	return ApplyParams{
		ProjectID:      "p1",
		ItemID:         itemID,
		Creator:        "ann1",
		Classification: common.ClassificationEntity,
		OntologyItemID: label,
		Suggested:      suggested,
		ApplyAll:       applyAll,
		Start:          start,
		End:            end,
	}
}

func TestApplyEntitySingle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.ApplyMarkup(ctx, entityParams("i1", "lbl-pump", 1, 1, false, false))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Count != 1 {
		t.Fatalf("count: got %d, want 1", res.Count)
	}
	if res.LabelName != "Pump" {
		t.Fatalf("label name: got %q, want %q", res.LabelName, "Pump")
	}
	if len(res.Entities) != 1 {
		t.Fatalf("entities: got %d, want 1", len(res.Entities))
	}
	m := res.Entities[0]
	if m.SurfaceForm != "pump" || m.Suggested {
		t.Fatalf("markup: got surface %q suggested %v, want %q confirmed", m.SurfaceForm, m.Suggested, "pump")
	}

	// Re-applying the identical signature is a no-op update, and a
	// confirmed record never reverts to suggested.
	res2, err := f.engine.ApplyMarkup(ctx, entityParams("i1", "lbl-pump", 1, 1, true, false))
	if err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if res2.Count != 0 {
		t.Fatalf("re-apply count: got %d, want 0", res2.Count)
	}
	if res2.Entities[0].ID != m.ID {
		t.Fatalf("re-apply id: got %q, want %q", res2.Entities[0].ID, m.ID)
	}
	if res2.Entities[0].Suggested {
		t.Fatal("re-apply reverted a confirmed record to suggested")
	}
}

func TestApplyEntityAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.ApplyMarkup(ctx, entityParams("i1", "lbl-pump", 1, 1, false, true))
	if err != nil {
		t.Fatalf("apply all: %v", err)
	}
	if res.Count != 4 {
		t.Fatalf("count: got %d, want 4", res.Count)
	}
	if len(res.Entities) != 4 {
		t.Fatalf("entities: got %d, want 4", len(res.Entities))
	}
	for _, m := range res.Entities {
		wantSuggested := m.ItemID != "i1"
		if m.Suggested != wantSuggested {
			t.Fatalf("item %s: got suggested %v, want %v", m.ItemID, m.Suggested, wantSuggested)
		}
		if m.SurfaceForm != "pump" {
			t.Fatalf("item %s: got surface %q, want %q", m.ItemID, m.SurfaceForm, "pump")
		}
	}

	// Other datasets stay untouched.
	other, err := f.markup.FindEntities(ctx, store.EntityFilter{ItemID: "i5"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("markup leaked into another dataset: %d records", len(other))
	}

	// Propagation is idempotent.
	res2, err := f.engine.ApplyMarkup(ctx, entityParams("i1", "lbl-pump", 1, 1, false, true))
	if err != nil {
		t.Fatalf("re-apply all: %v", err)
	}
	if res2.Count != 0 {
		t.Fatalf("re-apply count: got %d, want 0", res2.Count)
	}
	if len(res2.Entities) != 4 {
		t.Fatalf("re-apply entities: got %d, want 4", len(res2.Entities))
	}
}

func TestApplyEntityAllSkipsLockedItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.dataset.Lock("i2", "ann1")
	// The originating item is exempt from its own lock.
	f.dataset.Lock("i1", "ann1")

	res, err := f.engine.ApplyMarkup(ctx, entityParams("i1", "lbl-pump", 1, 1, false, true))
	if err != nil {
		t.Fatalf("apply all: %v", err)
	}
	if res.Count != 3 {
		t.Fatalf("count: got %d, want 3", res.Count)
	}
	for _, m := range res.Entities {
		if m.ItemID == "i2" {
			t.Fatal("propagation touched a locked item")
		}
	}
	hasOrigin := false
	for _, m := range res.Entities {
		if m.ItemID == "i1" {
			hasOrigin = true
		}
	}
	if !hasOrigin {
		t.Fatal("origin item skipped despite exemption")
	}
}

func TestApplyMarkupValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		params  ApplyParams
		wantErr error
	}{
		{
			name: "invalid classification",
			params: ApplyParams{
				ProjectID:      "p1",
				ItemID:         "i1",
				Creator:        "ann1",
				Classification: "document",
				OntologyItemID: "lbl-pump",
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "unknown label",
			params:  entityParams("i1", "lbl-missing", 1, 1, false, false),
			wantErr: ErrNotFound,
		},
		{
			name:    "relation label on entity apply",
			params:  entityParams("i1", "rel-has", 1, 1, false, false),
			wantErr: ErrNotFound,
		},
		{
			name:    "unknown item",
			params:  entityParams("i9", "lbl-pump", 1, 1, false, false),
			wantErr: ErrNotFound,
		},
		{
			name:    "span end out of range",
			params:  entityParams("i1", "lbl-pump", 1, 4, false, false),
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "span inverted",
			params:  entityParams("i1", "lbl-pump", 2, 1, false, false),
			wantErr: ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.ApplyMarkup(ctx, tt.params)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAcceptEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.ApplyMarkup(ctx, entityParams("i1", "lbl-pump", 1, 1, false, true))
	if err != nil {
		t.Fatalf("apply all: %v", err)
	}

	var suggestedIDs []string
	for _, m := range res.Entities {
		if m.Suggested {
			suggestedIDs = append(suggestedIDs, m.ID)
		}
	}
	if len(suggestedIDs) != 3 {
		t.Fatalf("suggested records: got %d, want 3", len(suggestedIDs))
	}

	accept, err := f.engine.AcceptMarkup(ctx, suggestedIDs[0], false)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accept.Count != 1 {
		t.Fatalf("accept count: got %d, want 1", accept.Count)
	}
	if accept.Classification != common.ClassificationEntity {
		t.Fatalf("classification: got %q, want %q", accept.Classification, common.ClassificationEntity)
	}
	got, err := f.markup.FindEntity(ctx, store.EntityFilter{ID: suggestedIDs[0]})
	if err != nil || got == nil {
		t.Fatalf("find accepted: %v", err)
	}
	if got.Suggested {
		t.Fatal("accepted record still suggested")
	}

	// accept_all confirms the remaining suggested records in one step.
	acceptAll, err := f.engine.AcceptMarkup(ctx, suggestedIDs[1], true)
	if err != nil {
		t.Fatalf("accept all: %v", err)
	}
	if acceptAll.Count != 2 {
		t.Fatalf("accept all count: got %d, want 2", acceptAll.Count)
	}

	suggested := true
	remaining, err := f.markup.FindEntities(ctx, store.EntityFilter{ProjectID: "p1", Suggested: &suggested})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("suggested records left after accept all: %d", len(remaining))
	}
}

func TestAcceptUnknownMarkup(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.AcceptMarkup(context.Background(), "nope", false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want %v", err, ErrNotFound)
	}
}

func TestDeleteEntityCascadesToRelations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pump, err := f.engine.ApplyMarkup(ctx, entityParams("i1", "lbl-pump", 1, 1, false, false))
	if err != nil {
		t.Fatalf("apply pump: %v", err)
	}
	broken, err := f.engine.ApplyMarkup(ctx, entityParams("i1", "lbl-state", 3, 3, false, false))
	if err != nil {
		t.Fatalf("apply broken: %v", err)
	}

	rel, err := f.engine.ApplyMarkup(ctx, ApplyParams{
		ProjectID:      "p1",
		ItemID:         "i1",
		Creator:        "ann1",
		Classification: common.ClassificationRelation,
		OntologyItemID: "rel-has",
		SourceID:       pump.Entities[0].ID,
		TargetID:       broken.Entities[0].ID,
	})
	if err != nil {
		t.Fatalf("apply relation: %v", err)
	}

	del, err := f.engine.DeleteMarkup(ctx, pump.Entities[0].ID, false)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if del.Count != 1 {
		t.Fatalf("delete count: got %d, want 1", del.Count)
	}
	if len(del.RelationIDs) != 1 || del.RelationIDs[0] != rel.Relations[0].ID {
		t.Fatalf("cascaded relations: got %v, want [%s]", del.RelationIDs, rel.Relations[0].ID)
	}

	gone, err := f.markup.FindRelation(ctx, store.RelationFilter{ID: rel.Relations[0].ID})
	if err != nil {
		t.Fatalf("find relation: %v", err)
	}
	if gone != nil {
		t.Fatal("relation survived entity delete")
	}
	kept, err := f.markup.FindEntity(ctx, store.EntityFilter{ID: broken.Entities[0].ID})
	if err != nil || kept == nil {
		t.Fatalf("other endpoint deleted: %v", err)
	}
}

func TestDeleteEntityAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.ApplyMarkup(ctx, entityParams("i1", "lbl-pump", 1, 1, false, true))
	if err != nil {
		t.Fatalf("apply all: %v", err)
	}

	// A relation hanging off one of the propagated entities must go
	// with it.
	broken, err := f.engine.ApplyMarkup(ctx, entityParams("i4", "lbl-state", 5, 5, false, false))
	if err != nil {
		t.Fatalf("apply broken: %v", err)
	}
	var i4Pump common.EntityMarkup
	for _, m := range res.Entities {
		if m.ItemID == "i4" {
			i4Pump = m
		}
	}
	rel, err := f.engine.ApplyMarkup(ctx, ApplyParams{
		ProjectID:      "p1",
		ItemID:         "i4",
		Creator:        "ann1",
		Classification: common.ClassificationRelation,
		OntologyItemID: "rel-has",
		SourceID:       i4Pump.ID,
		TargetID:       broken.Entities[0].ID,
	})
	if err != nil {
		t.Fatalf("apply relation: %v", err)
	}

	f.dataset.Lock("i3", "ann1")

	del, err := f.engine.DeleteMarkup(ctx, res.Entities[0].ID, true)
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if del.Count != 3 {
		t.Fatalf("delete count: got %d, want 3", del.Count)
	}
	if len(del.RelationIDs) != 1 || del.RelationIDs[0] != rel.Relations[0].ID {
		t.Fatalf("cascaded relations: got %v, want [%s]", del.RelationIDs, rel.Relations[0].ID)
	}

	// The locked item keeps its markup; suggestion state is no shield
	// elsewhere.
	left, err := f.markup.FindEntities(ctx, store.EntityFilter{ProjectID: "p1", OntologyItemID: "lbl-pump"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(left) != 1 || left[0].ItemID != "i3" {
		t.Fatalf("remaining pump markup: got %v, want only i3", left)
	}
}

func TestRelabelEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pump, err := f.engine.ApplyMarkup(ctx, entityParams("i1", "lbl-pump", 1, 1, false, false))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	res, err := f.engine.RelabelMarkup(ctx, pump.Entities[0].ID, "lbl-state")
	if err != nil {
		t.Fatalf("relabel: %v", err)
	}
	if res.OntologyItemID != "lbl-state" || res.LabelName != "State" {
		t.Fatalf("relabel result: got %q/%q, want lbl-state/State", res.OntologyItemID, res.LabelName)
	}
	if res.ProjectID != "p1" || res.Creator != "ann1" {
		t.Fatalf("relabel result: got project %q creator %q, want p1/ann1", res.ProjectID, res.Creator)
	}

	// A second record on the same span under a different label cannot
	// be relabeled onto the first one's signature.
	item, err := f.engine.ApplyMarkup(ctx, entityParams("i1", "lbl-item", 1, 1, false, false))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := f.engine.RelabelMarkup(ctx, item.Entities[0].ID, "lbl-state"); !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want %v", err, ErrConflict)
	}

	if _, err := f.engine.RelabelMarkup(ctx, item.Entities[0].ID, "lbl-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want %v", err, ErrNotFound)
	}
}

func TestGetItemMarkup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pump, err := f.engine.ApplyMarkup(ctx, entityParams("i1", "lbl-pump", 1, 1, false, false))
	if err != nil {
		t.Fatalf("apply pump: %v", err)
	}
	broken, err := f.engine.ApplyMarkup(ctx, entityParams("i1", "lbl-state", 3, 3, false, false))
	if err != nil {
		t.Fatalf("apply broken: %v", err)
	}
	if _, err := f.engine.ApplyMarkup(ctx, ApplyParams{
		ProjectID:      "p1",
		ItemID:         "i1",
		Creator:        "ann1",
		Classification: common.ClassificationRelation,
		OntologyItemID: "rel-has",
		SourceID:       pump.Entities[0].ID,
		TargetID:       broken.Entities[0].ID,
	}); err != nil {
		t.Fatalf("apply relation: %v", err)
	}

	got, err := f.engine.GetItemMarkup(ctx, "i1", "ann1")
	if err != nil {
		t.Fatalf("get item markup: %v", err)
	}
	if len(got.Entities) != 2 || len(got.Relations) != 1 {
		t.Fatalf("markup: got %d entities %d relations, want 2/1", len(got.Entities), len(got.Relations))
	}

	other, err := f.engine.GetItemMarkup(ctx, "i1", "ann2")
	if err != nil {
		t.Fatalf("get item markup: %v", err)
	}
	if len(other.Entities) != 0 || len(other.Relations) != 0 {
		t.Fatal("markup visible to the wrong annotator")
	}

	if _, err := f.engine.GetItemMarkup(ctx, "i9", "ann1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want %v", err, ErrNotFound)
	}
}
