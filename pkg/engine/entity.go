package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nlp-tlp/quickgraph-sub001/pkg/common"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/logger"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/matcher"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/store"
)

func (e *Engine) applyEntity(ctx context.Context, p ApplyParams, node *common.OntologyNode, item *common.DatasetItem) (*ApplyResult, error) {
	if p.Start < 0 || p.End < p.Start || p.End >= len(item.Tokens) {
		return nil, fmt.Errorf("span (%d,%d) out of range for %d tokens: %w", p.Start, p.End, len(item.Tokens), ErrInvalidRequest)
	}
	surface := strings.Join(item.Tokens[p.Start:p.End+1], " ")

	if !p.ApplyAll {
		created, m, err := e.applyEntitySingle(ctx, p, item.ID, common.Span{Start: p.Start, End: p.End}, surface, p.Suggested)
		if err != nil {
			return nil, err
		}
		count := 0
		if created {
			count = 1
		}
		return &ApplyResult{
			Count:     count,
			LabelName: node.Name,
			Entities:  []common.EntityMarkup{m},
			Relations: []common.RelationMarkup{},
		}, nil
	}

	entities, created, err := e.applyEntityAll(ctx, p, item, surface)
	if err != nil {
		return nil, err
	}
	return &ApplyResult{
		Count:     created,
		LabelName: node.Name,
		Entities:  entities,
		Relations: []common.RelationMarkup{},
	}, nil
}

// applyEntitySingle is the atomic create-or-update keyed by the entity
// signature. The returned flag reports whether a new record was created;
// re-applying an identical signature refreshes the existing record.
func (e *Engine) applyEntitySingle(
	ctx context.Context,
	p ApplyParams,
	itemID string,
	span common.Span,
	surface string,
	suggested bool,
) (bool, common.EntityMarkup, error) {
	created, m, err := e.entities.UpsertEntity(ctx, store.EntitySignature{
		ProjectID:      p.ProjectID,
		ItemID:         itemID,
		Creator:        p.Creator,
		OntologyItemID: p.OntologyItemID,
		Start:          span.Start,
		End:            span.End,
	}, store.EntityBody{
		SurfaceForm: surface,
		Suggested:   suggested,
	})
	if err != nil {
		return false, common.EntityMarkup{}, fmt.Errorf("upsert entity markup: %w", err)
	}
	return created, m, nil
}

// applyEntityAll propagates an entity apply to every matching, unlocked
// occurrence of the surface form across the dataset. The originating span
// is confirmed; every other occurrence is created as suggested.
func (e *Engine) applyEntityAll(ctx context.Context, p ApplyParams, origin *common.DatasetItem, surface string) ([]common.EntityMarkup, int, error) {
	candidates, err := e.dataset.FindItemsContainingText(ctx, origin.DatasetID, surface)
	if err != nil {
		return nil, 0, fmt.Errorf("find candidate items: %w", err)
	}

	targetTokens := matcher.Tokenize(surface)

	var (
		mu      sync.Mutex
		results []common.EntityMarkup
		created int
	)

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

			spans := matcher.Matches(targetTokens, it.Tokens)
			if len(spans) == 0 {
				return nil
			}

			existing, err := e.entities.FindEntities(gctx, store.EntityFilter{
				ProjectID:      p.ProjectID,
				ItemID:         it.ID,
				Creator:        p.Creator,
				OntologyItemID: p.OntologyItemID,
			})
			if err != nil {
				return fmt.Errorf("find existing markup: %w", err)
			}
			taken := make(map[common.Span]common.EntityMarkup, len(existing))
			for _, m := range existing {
				taken[m.Span()] = m
			}

			for _, span := range spans {
				if m, ok := taken[span]; ok {
					mu.Lock()
					results = append(results, m)
					mu.Unlock()
					continue
				}

				isOrigin := it.ID == origin.ID && span.Start == p.Start && span.End == p.End
				isNew, m, err := e.applyEntitySingle(gctx, p, it.ID, span, surface, !isOrigin)
				if err != nil {
					return err
				}

				mu.Lock()
				results = append(results, m)
				if isNew {
					created++
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].ItemID != results[j].ItemID {
			return results[i].ItemID < results[j].ItemID
		}
		return results[i].Start < results[j].Start
	})

	logger.Debug(
		"[Engine] Propagated entity apply",
		"creator", p.Creator,
		"surface", surface,
		"candidates", len(candidates),
		"created", created,
	)
	return results, created, nil
}

// acceptEntitySingle flips one entity to confirmed. Accepting an already
// confirmed record is a no-op update; it never reverts.
func (e *Engine) acceptEntitySingle(ctx context.Context, m *common.EntityMarkup) (*AcceptResult, error) {
	confirmed := false
	updated, err := e.entities.UpdateEntities(ctx, store.EntityFilter{ID: m.ID}, store.EntityPatch{
		Suggested: &confirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("accept entity markup: %w", err)
	}

	ids := entityIDs(updated)
	return &AcceptResult{
		Count:          len(ids),
		Classification: common.ClassificationEntity,
		ProjectID:      m.ProjectID,
		Creator:        m.Creator,
		EntityIDs:      ids,
		RelationIDs:    []string{},
	}, nil
}

// acceptEntityAll confirms every entity of the same creator, project,
// label, surface form, and current suggestion state, project-wide, in one
// bulk update.
func (e *Engine) acceptEntityAll(ctx context.Context, m *common.EntityMarkup) (*AcceptResult, error) {
	confirmed := false
	suggested := m.Suggested
	updated, err := e.entities.UpdateEntities(ctx, store.EntityFilter{
		ProjectID:      m.ProjectID,
		Creator:        m.Creator,
		OntologyItemID: m.OntologyItemID,
		SurfaceForm:    m.SurfaceForm,
		Suggested:      &suggested,
	}, store.EntityPatch{
		Suggested: &confirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("accept entity markup: %w", err)
	}

	ids := entityIDs(updated)
	return &AcceptResult{
		Count:          len(ids),
		Classification: common.ClassificationEntity,
		ProjectID:      m.ProjectID,
		Creator:        m.Creator,
		EntityIDs:      ids,
		RelationIDs:    []string{},
	}, nil
}

// deleteEntitySingle removes one entity and cascades to every relation
// referencing it.
func (e *Engine) deleteEntitySingle(ctx context.Context, m *common.EntityMarkup) (*DeleteResult, error) {
	relationIDs, err := e.cascade.deleteEntity(ctx, *m)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{
		Count:          1,
		Classification: common.ClassificationEntity,
		ProjectID:      m.ProjectID,
		Creator:        m.Creator,
		EntityIDs:      []string{m.ID},
		RelationIDs:    relationIDs,
	}, nil
}

// deleteEntityAll removes every entity of the same creator, project,
// label, and surface form, excluding items locked for the creator, and
// cascades relation deletion for the whole batch. Suggestion state is
// ignored: a propagated delete acts on the signature, confirmed or not.
func (e *Engine) deleteEntityAll(ctx context.Context, m *common.EntityMarkup) (*DeleteResult, error) {
	matches, err := e.entities.FindEntities(ctx, store.EntityFilter{
		ProjectID:      m.ProjectID,
		Creator:        m.Creator,
		OntologyItemID: m.OntologyItemID,
		SurfaceForm:    m.SurfaceForm,
	})
	if err != nil {
		return nil, fmt.Errorf("find matching entities: %w", err)
	}

	lockedByItem := make(map[string]bool)
	entityIDs := make([]string, 0, len(matches))
	for _, match := range matches {
		skip, ok := lockedByItem[match.ItemID]
		if !ok {
			skip, err = e.skipLocked(ctx, match.ItemID, m.ItemID, m.Creator)
			if err != nil {
				return nil, err
			}
			lockedByItem[match.ItemID] = skip
		}
		if skip {
			continue
		}
		entityIDs = append(entityIDs, match.ID)
	}

	var relationIDs []string
	if len(entityIDs) > 0 {
		rels, err := e.relations.FindRelations(ctx, store.RelationFilter{
			ProjectID:   m.ProjectID,
			Creator:     m.Creator,
			EndpointIDs: entityIDs,
		})
		if err != nil {
			return nil, fmt.Errorf("find dependent relations: %w", err)
		}
		for _, r := range rels {
			relationIDs = append(relationIDs, r.ID)
		}
		if len(relationIDs) > 0 {
			if _, err := e.relations.DeleteRelations(ctx, store.RelationFilter{IDs: relationIDs}); err != nil {
				return nil, fmt.Errorf("cascade relation delete: %w", err)
			}
		}
		if _, err := e.entities.DeleteEntities(ctx, store.EntityFilter{IDs: entityIDs}); err != nil {
			return nil, fmt.Errorf("delete entities: %w", err)
		}
	}

	logger.Debug(
		"[Engine] Propagated entity delete",
		"creator", m.Creator,
		"surface", m.SurfaceForm,
		"entities", len(entityIDs),
		"relations", len(relationIDs),
	)
	if relationIDs == nil {
		relationIDs = []string{}
	}
	return &DeleteResult{
		Count:          len(entityIDs),
		Classification: common.ClassificationEntity,
		ProjectID:      m.ProjectID,
		Creator:        m.Creator,
		EntityIDs:      entityIDs,
		RelationIDs:    relationIDs,
	}, nil
}

// relabelEntity changes an entity's label after checking that no record
// already holds the resulting signature.
func (e *Engine) relabelEntity(ctx context.Context, m *common.EntityMarkup, newOntologyItemID string) (*RelabelResult, error) {
	node, err := e.ontology.ResolveLabel(ctx, m.ProjectID, common.ClassificationEntity, newOntologyItemID)
	if err != nil {
		return nil, fmt.Errorf("resolve label: %w", err)
	}
	if node == nil {
		return nil, fmt.Errorf("ontology item %s: %w", newOntologyItemID, ErrNotFound)
	}

	start, end := m.Start, m.End
	existing, err := e.entities.FindEntity(ctx, store.EntityFilter{
		ProjectID:      m.ProjectID,
		ItemID:         m.ItemID,
		Creator:        m.Creator,
		OntologyItemID: newOntologyItemID,
		Start:          &start,
		End:            &end,
	})
	if err != nil {
		return nil, fmt.Errorf("check signature collision: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("markup with label %s already exists at (%d,%d): %w", newOntologyItemID, start, end, ErrConflict)
	}

	if _, err := e.entities.UpdateEntities(ctx, store.EntityFilter{ID: m.ID}, store.EntityPatch{
		OntologyItemID: &newOntologyItemID,
	}); err != nil {
		return nil, fmt.Errorf("relabel entity markup: %w", err)
	}

	return &RelabelResult{
		ID:             m.ID,
		Classification: common.ClassificationEntity,
		ProjectID:      m.ProjectID,
		Creator:        m.Creator,
		OntologyItemID: newOntologyItemID,
		LabelName:      node.Name,
	}, nil
}

func entityIDs(in []common.EntityMarkup) []string {
	ids := make([]string, 0, len(in))
	for _, m := range in {
		ids = append(ids, m.ID)
	}
	return ids
}
