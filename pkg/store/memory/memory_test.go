package memory

import (
	"context"
	"testing"

	"github.com/nlp-tlp/quickgraph-sub001/pkg/common"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/store"
)

func TestUpsertEntitySuggestedMonotonic(t *testing.T) {
	s := NewMarkupStore()
	ctx := context.Background()

	sig := store.EntitySignature{
		ProjectID:      "p1",
		ItemID:         "i1",
		Creator:        "ann1",
		OntologyItemID: "lbl1",
		Start:          1,
		End:            1,
	}

	created, m, err := s.UpsertEntity(ctx, sig, store.EntityBody{SurfaceForm: "pump", Suggested: true})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !created || !m.Suggested {
		t.Fatalf("first upsert: got created %v suggested %v, want true/true", created, m.Suggested)
	}

	// Confirming via upsert sticks.
	created, m, err = s.UpsertEntity(ctx, sig, store.EntityBody{SurfaceForm: "pump", Suggested: false})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if created || m.Suggested {
		t.Fatalf("second upsert: got created %v suggested %v, want false/false", created, m.Suggested)
	}

	// A later suggested upsert cannot revert it.
	_, m, err = s.UpsertEntity(ctx, sig, store.EntityBody{SurfaceForm: "pump", Suggested: true})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if m.Suggested {
		t.Fatal("confirmed record reverted to suggested")
	}
}

func TestFindItemsContainingTextWholeWord(t *testing.T) {
	ds := NewDatasetService(
		common.DatasetItem{ID: "i1", DatasetID: "d1", Tokens: []string{"the", "pump", "is", "broken"}},
		common.DatasetItem{ID: "i2", DatasetID: "d1", Tokens: []string{"pumps", "are", "fine"}},
		common.DatasetItem{ID: "i3", DatasetID: "d2", Tokens: []string{"a", "pump"}},
	)

	items, err := ds.FindItemsContainingText(context.Background(), "d1", "pump")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(items) != 1 || items[0].ID != "i1" {
		t.Fatalf("items: got %v, want only i1", items)
	}
}

func TestResolveLabelFullName(t *testing.T) {
	os := NewOntologyService()
	os.AddNode("p1", common.ClassificationEntity, common.OntologyNode{ID: "a", Name: "Item"}, "")
	os.AddNode("p1", common.ClassificationEntity, common.OntologyNode{ID: "b", Name: "Pump"}, "a")
	os.AddNode("p1", common.ClassificationEntity, common.OntologyNode{ID: "c", Name: "Seal"}, "b")

	node, err := os.ResolveLabel(context.Background(), "p1", common.ClassificationEntity, "c")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if node == nil {
		t.Fatal("resolve: got nil node")
	}
	if node.FullName != "Item/Pump/Seal" {
		t.Fatalf("fullname: got %q, want %q", node.FullName, "Item/Pump/Seal")
	}

	// Wrong classification resolves to nothing.
	node, err = os.ResolveLabel(context.Background(), "p1", common.ClassificationRelation, "c")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if node != nil {
		t.Fatalf("resolve across classifications: got %v, want nil", node)
	}
}
