package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nlp-tlp/quickgraph-sub001/pkg/common"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/logger"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/matcher"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/store"
)

// spanOffset is the token gap between a relation's source and target
// spans. It is the invariant preserved by every propagated pair.
func spanOffset(source common.Span, target common.Span) int {
	gap := target.Start - source.End
	if gap < 0 {
		gap = -gap
	}
	return gap - 1
}

func (e *Engine) applyRelation(ctx context.Context, p ApplyParams, node *common.OntologyNode, item *common.DatasetItem) (*ApplyResult, error) {
	if p.SourceID == p.TargetID {
		return nil, fmt.Errorf("relation source and target are the same entity: %w", ErrInvalidRequest)
	}

	source, err := e.resolveEndpoint(ctx, p.SourceID, p.ProjectID, p.ItemID)
	if err != nil {
		return nil, err
	}
	target, err := e.resolveEndpoint(ctx, p.TargetID, p.ProjectID, p.ItemID)
	if err != nil {
		return nil, err
	}

	if !p.ApplyAll {
		return e.applyRelationSingle(ctx, p, node, source, target)
	}
	return e.applyRelationAll(ctx, p, node, item, source, target)
}

// resolveEndpoint loads a relation endpoint entity and checks it belongs
// to the same dataset item and project as the relation being applied.
func (e *Engine) resolveEndpoint(ctx context.Context, entityID string, projectID string, itemID string) (*common.EntityMarkup, error) {
	m, err := e.entities.FindEntity(ctx, store.EntityFilter{ID: entityID})
	if err != nil {
		return nil, fmt.Errorf("find endpoint entity: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("entity markup %s: %w", entityID, ErrNotFound)
	}
	if m.ProjectID != projectID || m.ItemID != itemID {
		return nil, fmt.Errorf("entity %s belongs to a different item or project: %w", entityID, ErrInvalidRequest)
	}
	return m, nil
}

func (e *Engine) applyRelationSingle(
	ctx context.Context,
	p ApplyParams,
	node *common.OntologyNode,
	source *common.EntityMarkup,
	target *common.EntityMarkup,
) (*ApplyResult, error) {
	created, rel, err := e.upsertRelation(ctx, p.ProjectID, p.ItemID, p.Creator, p.OntologyItemID, source.ID, target.ID, p.Suggested)
	if err != nil {
		return nil, err
	}

	entities := []common.EntityMarkup{*source, *target}
	if !rel.Suggested {
		if _, err := e.cascade.promoteRelation(ctx, rel); err != nil {
			return nil, err
		}
		for i := range entities {
			entities[i].Suggested = false
		}
	}

	count := 0
	if created {
		count = 1
	}
	return &ApplyResult{
		Count:     count,
		LabelName: node.Name,
		Entities:  entities,
		Relations: []common.RelationMarkup{rel},
	}, nil
}

// upsertRelation is the atomic create-or-update keyed by the relation
// signature.
func (e *Engine) upsertRelation(
	ctx context.Context,
	projectID, itemID, creator, ontologyItemID, sourceID, targetID string,
	suggested bool,
) (bool, common.RelationMarkup, error) {
	created, m, err := e.relations.UpsertRelation(ctx, store.RelationSignature{
		ProjectID:      projectID,
		ItemID:         itemID,
		Creator:        creator,
		OntologyItemID: ontologyItemID,
		SourceID:       sourceID,
		TargetID:       targetID,
	}, store.RelationBody{
		Suggested: suggested,
	})
	if err != nil {
		return false, common.RelationMarkup{}, fmt.Errorf("upsert relation markup: %w", err)
	}
	return created, m, nil
}

// applyRelationAll propagates a relation across the dataset: every item
// containing both endpoint surface forms is scanned for span pairs whose
// token gap equals the originating pair's, endpoint entities are created
// as needed, and relations linked between them. Only the originating pair
// is confirmed.
func (e *Engine) applyRelationAll(
	ctx context.Context,
	p ApplyParams,
	node *common.OntologyNode,
	origin *common.DatasetItem,
	source *common.EntityMarkup,
	target *common.EntityMarkup,
) (*ApplyResult, error) {
	offset := spanOffset(source.Span(), target.Span())

	sourceItems, err := e.dataset.FindItemsContainingText(ctx, origin.DatasetID, source.SurfaceForm)
	if err != nil {
		return nil, fmt.Errorf("find candidate items: %w", err)
	}
	targetItems, err := e.dataset.FindItemsContainingText(ctx, origin.DatasetID, target.SurfaceForm)
	if err != nil {
		return nil, fmt.Errorf("find candidate items: %w", err)
	}
	hasTarget := make(map[string]bool, len(targetItems))
	for _, it := range targetItems {
		hasTarget[it.ID] = true
	}
	candidates := make([]common.DatasetItem, 0, len(sourceItems))
	for _, it := range sourceItems {
		if hasTarget[it.ID] {
			candidates = append(candidates, it)
		}
	}

	sourceTokens := matcher.Tokenize(source.SurfaceForm)
	targetTokens := matcher.Tokenize(target.SurfaceForm)

	var (
		mu          sync.Mutex
		entityByID  = make(map[string]common.EntityMarkup)
		entityOrder []string
		relations   []common.RelationMarkup
		created     int
	)

	collectEntity := func(m common.EntityMarkup) {
		if _, ok := entityByID[m.ID]; !ok {
			entityOrder = append(entityOrder, m.ID)
		}
		entityByID[m.ID] = m
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.maxParallel)

	for _, candidate := range candidates {
		it := candidate
		eg.Go(func() error {
			skip, err := e.skipLocked(gctx, it.ID, origin.ID, p.Creator)
			if err != nil {
				return err
			}
			if skip {
				return nil
			}

			sourceSpans := matcher.Matches(sourceTokens, it.Tokens)
			targetSpans := matcher.Matches(targetTokens, it.Tokens)

			for _, s := range sourceSpans {
				for _, t := range targetSpans {
					if s == t {
						continue
					}
					if spanOffset(s, t) != offset {
						continue
					}

					isOrigin := it.ID == origin.ID && s == source.Span() && t == target.Span()
					suggested := !isOrigin

					_, sourceMarkup, err := e.applyEntitySingle(gctx, ApplyParams{
						ProjectID:      p.ProjectID,
						Creator:        p.Creator,
						OntologyItemID: source.OntologyItemID,
					}, it.ID, s, source.SurfaceForm, suggested)
					if err != nil {
						return err
					}
					_, targetMarkup, err := e.applyEntitySingle(gctx, ApplyParams{
						ProjectID:      p.ProjectID,
						Creator:        p.Creator,
						OntologyItemID: target.OntologyItemID,
					}, it.ID, t, target.SurfaceForm, suggested)
					if err != nil {
						return err
					}
					if sourceMarkup.ID == targetMarkup.ID {
						continue
					}

					if !isOrigin {
						existing, err := e.relations.FindRelation(gctx, store.RelationFilter{
							ProjectID:      p.ProjectID,
							ItemID:         it.ID,
							Creator:        p.Creator,
							OntologyItemID: p.OntologyItemID,
							SourceID:       sourceMarkup.ID,
							TargetID:       targetMarkup.ID,
						})
						if err != nil {
							return fmt.Errorf("find existing relation: %w", err)
						}
						if existing != nil {
							mu.Lock()
							collectEntity(sourceMarkup)
							collectEntity(targetMarkup)
							mu.Unlock()
							continue
						}
					}

					isNew, rel, err := e.upsertRelation(gctx, p.ProjectID, it.ID, p.Creator, p.OntologyItemID, sourceMarkup.ID, targetMarkup.ID, suggested)
					if err != nil {
						return err
					}

					if !rel.Suggested {
						if _, err := e.cascade.promoteRelation(gctx, rel); err != nil {
							return err
						}
						sourceMarkup.Suggested = false
						targetMarkup.Suggested = false
					}

					mu.Lock()
					collectEntity(sourceMarkup)
					collectEntity(targetMarkup)
					relations = append(relations, rel)
					if isNew {
						created++
					}
					mu.Unlock()
				}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	entities := make([]common.EntityMarkup, 0, len(entityOrder))
	for _, id := range entityOrder {
		entities = append(entities, entityByID[id])
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].ItemID != entities[j].ItemID {
			return entities[i].ItemID < entities[j].ItemID
		}
		return entities[i].Start < entities[j].Start
	})
	sort.Slice(relations, func(i, j int) bool {
		if relations[i].ItemID != relations[j].ItemID {
			return relations[i].ItemID < relations[j].ItemID
		}
		return relations[i].ID < relations[j].ID
	})

	logger.Debug(
		"[Engine] Propagated relation apply",
		"creator", p.Creator,
		"offset", offset,
		"candidates", len(candidates),
		"created", created,
	)
	return &ApplyResult{
		Count:     created,
		LabelName: node.Name,
		Entities:  entities,
		Relations: relations,
	}, nil
}

// acceptRelationSingle confirms one relation and promotes both endpoint
// entities with it.
func (e *Engine) acceptRelationSingle(ctx context.Context, m *common.RelationMarkup) (*AcceptResult, error) {
	confirmed := false
	updated, err := e.relations.UpdateRelations(ctx, store.RelationFilter{ID: m.ID}, store.RelationPatch{
		Suggested: &confirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("accept relation markup: %w", err)
	}

	entityIDs, err := e.cascade.promoteRelation(ctx, *m)
	if err != nil {
		return nil, err
	}
	return &AcceptResult{
		Count:          len(updated),
		Classification: common.ClassificationRelation,
		ProjectID:      m.ProjectID,
		Creator:        m.Creator,
		EntityIDs:      entityIDs,
		RelationIDs:    relationIDs(updated),
	}, nil
}

// acceptRelationAll confirms every suggested relation of the same
// creator, project, and label project-wide, promoting all endpoint
// entities in one bulk update.
func (e *Engine) acceptRelationAll(ctx context.Context, m *common.RelationMarkup) (*AcceptResult, error) {
	suggested := true
	matches, err := e.relations.FindRelations(ctx, store.RelationFilter{
		ProjectID:      m.ProjectID,
		Creator:        m.Creator,
		OntologyItemID: m.OntologyItemID,
		Suggested:      &suggested,
	})
	if err != nil {
		return nil, fmt.Errorf("find matching relations: %w", err)
	}

	relIDs := make([]string, 0, len(matches)+1)
	endpointIDs := make([]string, 0, len(matches)*2+2)
	for _, r := range matches {
		relIDs = append(relIDs, r.ID)
		endpointIDs = append(endpointIDs, r.SourceID, r.TargetID)
	}
	// The origin is part of the update set even when it was already
	// confirmed, so its endpoints end up confirmed too.
	relIDs = store.DedupeStrings(append(relIDs, m.ID))
	endpointIDs = store.DedupeStrings(append(endpointIDs, m.SourceID, m.TargetID))

	confirmed := false
	updated, err := e.relations.UpdateRelations(ctx, store.RelationFilter{IDs: relIDs}, store.RelationPatch{
		Suggested: &confirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("accept relation markup: %w", err)
	}

	updatedEntities, err := e.entities.UpdateEntities(ctx, store.EntityFilter{IDs: endpointIDs}, store.EntityPatch{
		Suggested: &confirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("promote relation endpoints: %w", err)
	}

	return &AcceptResult{
		Count:          len(updated),
		Classification: common.ClassificationRelation,
		ProjectID:      m.ProjectID,
		Creator:        m.Creator,
		EntityIDs:      entityIDs(updatedEntities),
		RelationIDs:    relationIDs(updated),
	}, nil
}

// deleteRelationSingle removes one relation. No cascade upward: the
// endpoint entities stay.
func (e *Engine) deleteRelationSingle(ctx context.Context, m *common.RelationMarkup) (*DeleteResult, error) {
	ids, err := e.relations.DeleteRelations(ctx, store.RelationFilter{ID: m.ID})
	if err != nil {
		return nil, fmt.Errorf("delete relation markup: %w", err)
	}
	return &DeleteResult{
		Count:          len(ids),
		Classification: common.ClassificationRelation,
		ProjectID:      m.ProjectID,
		Creator:        m.Creator,
		EntityIDs:      []string{},
		RelationIDs:    ids,
	}, nil
}

// deleteRelationAll removes every relation in the project matching the
// origin's label, endpoint surface forms, endpoint labels, and offset,
// excluding items locked for the creator.
func (e *Engine) deleteRelationAll(ctx context.Context, m *common.RelationMarkup) (*DeleteResult, error) {
	source, err := e.entities.FindEntity(ctx, store.EntityFilter{ID: m.SourceID})
	if err != nil {
		return nil, fmt.Errorf("find endpoint entity: %w", err)
	}
	target, err := e.entities.FindEntity(ctx, store.EntityFilter{ID: m.TargetID})
	if err != nil {
		return nil, fmt.Errorf("find endpoint entity: %w", err)
	}
	if source == nil || target == nil {
		return nil, fmt.Errorf("relation %s endpoints: %w", m.ID, ErrNotFound)
	}
	offset := spanOffset(source.Span(), target.Span())

	candidates, err := e.relations.FindRelations(ctx, store.RelationFilter{
		ProjectID:      m.ProjectID,
		Creator:        m.Creator,
		OntologyItemID: m.OntologyItemID,
	})
	if err != nil {
		return nil, fmt.Errorf("find matching relations: %w", err)
	}

	endpointIDs := make([]string, 0, len(candidates)*2)
	for _, r := range candidates {
		endpointIDs = append(endpointIDs, r.SourceID, r.TargetID)
	}
	endpoints, err := e.entities.FindEntities(ctx, store.EntityFilter{IDs: store.DedupeStrings(endpointIDs)})
	if err != nil {
		return nil, fmt.Errorf("find endpoint entities: %w", err)
	}
	endpointByID := make(map[string]common.EntityMarkup, len(endpoints))
	for _, ent := range endpoints {
		endpointByID[ent.ID] = ent
	}

	lockedByItem := make(map[string]bool)
	deleteIDs := make([]string, 0, len(candidates))
	for _, r := range candidates {
		s, ok := endpointByID[r.SourceID]
		if !ok {
			continue
		}
		t, ok := endpointByID[r.TargetID]
		if !ok {
			continue
		}
		if s.SurfaceForm != source.SurfaceForm || s.OntologyItemID != source.OntologyItemID {
			continue
		}
		if t.SurfaceForm != target.SurfaceForm || t.OntologyItemID != target.OntologyItemID {
			continue
		}
		if spanOffset(s.Span(), t.Span()) != offset {
			continue
		}

		skip, ok := lockedByItem[r.ItemID]
		if !ok {
			skip, err = e.skipLocked(ctx, r.ItemID, m.ItemID, m.Creator)
			if err != nil {
				return nil, err
			}
			lockedByItem[r.ItemID] = skip
		}
		if skip {
			continue
		}
		deleteIDs = append(deleteIDs, r.ID)
	}

	if len(deleteIDs) > 0 {
		if _, err := e.relations.DeleteRelations(ctx, store.RelationFilter{IDs: deleteIDs}); err != nil {
			return nil, fmt.Errorf("delete relations: %w", err)
		}
	}

	logger.Debug(
		"[Engine] Propagated relation delete",
		"creator", m.Creator,
		"offset", offset,
		"relations", len(deleteIDs),
	)
	return &DeleteResult{
		Count:          len(deleteIDs),
		Classification: common.ClassificationRelation,
		ProjectID:      m.ProjectID,
		Creator:        m.Creator,
		EntityIDs:      []string{},
		RelationIDs:    deleteIDs,
	}, nil
}

// relabelRelation changes a relation's label after checking that no
// record already holds the resulting signature.
func (e *Engine) relabelRelation(ctx context.Context, m *common.RelationMarkup, newOntologyItemID string) (*RelabelResult, error) {
	node, err := e.ontology.ResolveLabel(ctx, m.ProjectID, common.ClassificationRelation, newOntologyItemID)
	if err != nil {
		return nil, fmt.Errorf("resolve label: %w", err)
	}
	if node == nil {
		return nil, fmt.Errorf("ontology item %s: %w", newOntologyItemID, ErrNotFound)
	}

	existing, err := e.relations.FindRelation(ctx, store.RelationFilter{
		ProjectID:      m.ProjectID,
		ItemID:         m.ItemID,
		Creator:        m.Creator,
		OntologyItemID: newOntologyItemID,
		SourceID:       m.SourceID,
		TargetID:       m.TargetID,
	})
	if err != nil {
		return nil, fmt.Errorf("check signature collision: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("relation with label %s already exists between %s and %s: %w",
			newOntologyItemID, m.SourceID, m.TargetID, ErrConflict)
	}

	if _, err := e.relations.UpdateRelations(ctx, store.RelationFilter{ID: m.ID}, store.RelationPatch{
		OntologyItemID: &newOntologyItemID,
	}); err != nil {
		return nil, fmt.Errorf("relabel relation markup: %w", err)
	}

	return &RelabelResult{
		ID:             m.ID,
		Classification: common.ClassificationRelation,
		ProjectID:      m.ProjectID,
		Creator:        m.Creator,
		OntologyItemID: newOntologyItemID,
		LabelName:      node.Name,
	}, nil
}

func relationIDs(in []common.RelationMarkup) []string {
	ids := make([]string, 0, len(in))
	for _, m := range in {
		ids = append(ids, m.ID)
	}
	return ids
}
