package engine

import (
	"context"
	"fmt"

	"github.com/nlp-tlp/quickgraph-sub001/pkg/common"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/logger"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/store"
)

// cascader enforces the cross-record invariants between the two markup
// tables: deleting an entity removes every relation referencing it, and
// confirming a relation confirms both endpoint entities. It is stateless;
// both engines share one instance.
type cascader struct {
	entities  store.EntityStore
	relations store.RelationStore
}

// deleteEntity removes the entity and every relation of the same creator
// and project referencing it as source or target. Returns the cascaded
// relation ids. The lookup and the deletes are separate store calls; a
// crash in between is covered by the schema-level FK cascade, which
// removes the relations without reporting their ids.
func (c *cascader) deleteEntity(ctx context.Context, m common.EntityMarkup) ([]string, error) {
	rels, err := c.relations.FindRelations(ctx, store.RelationFilter{
		ProjectID:  m.ProjectID,
		Creator:    m.Creator,
		EndpointID: m.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("find dependent relations: %w", err)
	}

	relationIDs := make([]string, 0, len(rels))
	for _, r := range rels {
		relationIDs = append(relationIDs, r.ID)
	}
	if len(relationIDs) > 0 {
		if _, err := c.relations.DeleteRelations(ctx, store.RelationFilter{IDs: relationIDs}); err != nil {
			return nil, fmt.Errorf("cascade relation delete: %w", err)
		}
	}

	if _, err := c.entities.DeleteEntities(ctx, store.EntityFilter{ID: m.ID}); err != nil {
		return nil, fmt.Errorf("delete entity: %w", err)
	}

	if len(relationIDs) > 0 {
		logger.Debug("[Engine] Cascaded entity delete", "entity", m.ID, "relations", len(relationIDs))
	}
	return relationIDs, nil
}

// promoteRelation flips both endpoint entities of a confirmed relation to
// confirmed. Entities are never left suggested while their relation is
// confirmed. Returns the endpoint entity ids that were updated.
func (c *cascader) promoteRelation(ctx context.Context, m common.RelationMarkup) ([]string, error) {
	ids := store.DedupeStrings([]string{m.SourceID, m.TargetID})
	confirmed := false
	updated, err := c.entities.UpdateEntities(ctx, store.EntityFilter{IDs: ids}, store.EntityPatch{
		Suggested: &confirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("promote relation endpoints: %w", err)
	}

	entityIDs := make([]string, 0, len(updated))
	for _, e := range updated {
		entityIDs = append(entityIDs, e.ID)
	}
	return entityIDs, nil
}
