// Package memory implements the store interfaces with mutex-guarded maps.
// It backs the engine tests and local development without a database; the
// filter semantics mirror the pgx backend exactly.
package memory

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/nlp-tlp/quickgraph-sub001/pkg/common"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/store"
)

// MarkupStore is an in-memory store.MarkupStore.
type MarkupStore struct {
	mu        sync.Mutex
	entities  map[string]common.EntityMarkup
	relations map[string]common.RelationMarkup
}

// NewMarkupStore creates an empty in-memory markup store.
func NewMarkupStore() *MarkupStore {
	return &MarkupStore{
		entities:  make(map[string]common.EntityMarkup),
		relations: make(map[string]common.RelationMarkup),
	}
}

func (s *MarkupStore) UpsertEntity(ctx context.Context, sig store.EntitySignature, body store.EntityBody) (bool, common.EntityMarkup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for id, m := range s.entities {
		if m.ProjectID == sig.ProjectID && m.ItemID == sig.ItemID && m.Creator == sig.Creator &&
			m.OntologyItemID == sig.OntologyItemID && m.Start == sig.Start && m.End == sig.End {
			m.SurfaceForm = body.SurfaceForm
			// A confirmed record never reverts to suggested.
			m.Suggested = m.Suggested && body.Suggested
			m.UpdatedAt = now
			s.entities[id] = m
			return false, m, nil
		}
	}

	id, err := store.NewID()
	if err != nil {
		return false, common.EntityMarkup{}, err
	}
	m := common.EntityMarkup{
		ID:             id,
		ProjectID:      sig.ProjectID,
		ItemID:         sig.ItemID,
		Creator:        sig.Creator,
		OntologyItemID: sig.OntologyItemID,
		Start:          sig.Start,
		End:            sig.End,
		SurfaceForm:    body.SurfaceForm,
		Suggested:      body.Suggested,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.entities[id] = m
	return true, m, nil
}

func (s *MarkupStore) FindEntity(ctx context.Context, f store.EntityFilter) (*common.EntityMarkup, error) {
	matches, err := s.FindEntities(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

func (s *MarkupStore) FindEntities(ctx context.Context, f store.EntityFilter) ([]common.EntityMarkup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []common.EntityMarkup
	for _, m := range s.entities {
		if entityMatches(m, f) {
			out = append(out, m)
		}
	}
	sortEntities(out)
	return out, nil
}

func (s *MarkupStore) UpdateEntities(ctx context.Context, f store.EntityFilter, p store.EntityPatch) ([]common.EntityMarkup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var out []common.EntityMarkup
	for id, m := range s.entities {
		if !entityMatches(m, f) {
			continue
		}
		if p.Suggested != nil {
			m.Suggested = *p.Suggested
		}
		if p.OntologyItemID != nil {
			m.OntologyItemID = *p.OntologyItemID
		}
		m.UpdatedAt = now
		s.entities[id] = m
		out = append(out, m)
	}
	sortEntities(out)
	return out, nil
}

func (s *MarkupStore) DeleteEntities(ctx context.Context, f store.EntityFilter) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, m := range s.entities {
		if entityMatches(m, f) {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(s.entities, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MarkupStore) UpsertRelation(ctx context.Context, sig store.RelationSignature, body store.RelationBody) (bool, common.RelationMarkup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for id, m := range s.relations {
		if m.ProjectID == sig.ProjectID && m.ItemID == sig.ItemID && m.Creator == sig.Creator &&
			m.OntologyItemID == sig.OntologyItemID && m.SourceID == sig.SourceID && m.TargetID == sig.TargetID {
			m.Suggested = m.Suggested && body.Suggested
			m.UpdatedAt = now
			s.relations[id] = m
			return false, m, nil
		}
	}

	id, err := store.NewID()
	if err != nil {
		return false, common.RelationMarkup{}, err
	}
	m := common.RelationMarkup{
		ID:             id,
		ProjectID:      sig.ProjectID,
		ItemID:         sig.ItemID,
		Creator:        sig.Creator,
		OntologyItemID: sig.OntologyItemID,
		SourceID:       sig.SourceID,
		TargetID:       sig.TargetID,
		Suggested:      body.Suggested,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.relations[id] = m
	return true, m, nil
}

func (s *MarkupStore) FindRelation(ctx context.Context, f store.RelationFilter) (*common.RelationMarkup, error) {
	matches, err := s.FindRelations(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

func (s *MarkupStore) FindRelations(ctx context.Context, f store.RelationFilter) ([]common.RelationMarkup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []common.RelationMarkup
	for _, m := range s.relations {
		if relationMatches(m, f) {
			out = append(out, m)
		}
	}
	sortRelations(out)
	return out, nil
}

func (s *MarkupStore) UpdateRelations(ctx context.Context, f store.RelationFilter, p store.RelationPatch) ([]common.RelationMarkup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var out []common.RelationMarkup
	for id, m := range s.relations {
		if !relationMatches(m, f) {
			continue
		}
		if p.Suggested != nil {
			m.Suggested = *p.Suggested
		}
		if p.OntologyItemID != nil {
			m.OntologyItemID = *p.OntologyItemID
		}
		m.UpdatedAt = now
		s.relations[id] = m
		out = append(out, m)
	}
	sortRelations(out)
	return out, nil
}

func (s *MarkupStore) DeleteRelations(ctx context.Context, f store.RelationFilter) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, m := range s.relations {
		if relationMatches(m, f) {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(s.relations, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func entityMatches(m common.EntityMarkup, f store.EntityFilter) bool {
	if f.ID != "" && m.ID != f.ID {
		return false
	}
	if len(f.IDs) > 0 && !containsString(f.IDs, m.ID) {
		return false
	}
	if f.ProjectID != "" && m.ProjectID != f.ProjectID {
		return false
	}
	if f.ItemID != "" && m.ItemID != f.ItemID {
		return false
	}
	if f.Creator != "" && m.Creator != f.Creator {
		return false
	}
	if f.OntologyItemID != "" && m.OntologyItemID != f.OntologyItemID {
		return false
	}
	if f.SurfaceForm != "" && m.SurfaceForm != f.SurfaceForm {
		return false
	}
	if f.Start != nil && m.Start != *f.Start {
		return false
	}
	if f.End != nil && m.End != *f.End {
		return false
	}
	if f.Suggested != nil && m.Suggested != *f.Suggested {
		return false
	}
	return true
}

func relationMatches(m common.RelationMarkup, f store.RelationFilter) bool {
	if f.ID != "" && m.ID != f.ID {
		return false
	}
	if len(f.IDs) > 0 && !containsString(f.IDs, m.ID) {
		return false
	}
	if f.ProjectID != "" && m.ProjectID != f.ProjectID {
		return false
	}
	if f.ItemID != "" && m.ItemID != f.ItemID {
		return false
	}
	if f.Creator != "" && m.Creator != f.Creator {
		return false
	}
	if f.OntologyItemID != "" && m.OntologyItemID != f.OntologyItemID {
		return false
	}
	if f.SourceID != "" && m.SourceID != f.SourceID {
		return false
	}
	if f.TargetID != "" && m.TargetID != f.TargetID {
		return false
	}
	if f.EndpointID != "" && m.SourceID != f.EndpointID && m.TargetID != f.EndpointID {
		return false
	}
	if len(f.EndpointIDs) > 0 && !containsString(f.EndpointIDs, m.SourceID) && !containsString(f.EndpointIDs, m.TargetID) {
		return false
	}
	if f.Suggested != nil && m.Suggested != *f.Suggested {
		return false
	}
	return true
}

func containsString(in []string, v string) bool {
	for _, s := range in {
		if s == v {
			return true
		}
	}
	return false
}

func sortEntities(in []common.EntityMarkup) {
	sort.Slice(in, func(i, j int) bool {
		if in[i].ItemID != in[j].ItemID {
			return in[i].ItemID < in[j].ItemID
		}
		if in[i].Start != in[j].Start {
			return in[i].Start < in[j].Start
		}
		return in[i].ID < in[j].ID
	})
}

func sortRelations(in []common.RelationMarkup) {
	sort.Slice(in, func(i, j int) bool {
		if in[i].ItemID != in[j].ItemID {
			return in[i].ItemID < in[j].ItemID
		}
		return in[i].ID < in[j].ID
	})
}

// DatasetService is an in-memory store.DatasetService seeded with items.
type DatasetService struct {
	mu    sync.Mutex
	items map[string]common.DatasetItem
}

// NewDatasetService creates an in-memory dataset service.
func NewDatasetService(items ...common.DatasetItem) *DatasetService {
	s := &DatasetService{items: make(map[string]common.DatasetItem, len(items))}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return s
}

// AddItem seeds or replaces an item.
func (s *DatasetService) AddItem(item common.DatasetItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

// Lock adds a save state for creator on the given item.
func (s *DatasetService) Lock(itemID string, creator string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return
	}
	if !it.LockedFor(creator) {
		it.SaveStates = append(it.SaveStates, common.SaveState{Creator: creator, CreatedAt: time.Now().UTC()})
		s.items[itemID] = it
	}
}

func (s *DatasetService) GetItem(ctx context.Context, itemID string) (*common.DatasetItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (s *DatasetService) FindItemsContainingText(ctx context.Context, datasetID string, pattern string) ([]common.DatasetItem, error) {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(pattern) + `\b`)
	if err != nil {
		return nil, fmt.Errorf("compile containment pattern: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []common.DatasetItem
	for _, it := range s.items {
		if it.DatasetID == datasetID && re.MatchString(it.Text()) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *DatasetService) IsLocked(ctx context.Context, itemID string, creator string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return false, nil
	}
	return it.LockedFor(creator), nil
}

// OntologyService is an in-memory store.OntologyService seeded with label
// nodes and their parent links.
type OntologyService struct {
	mu    sync.Mutex
	nodes map[string]ontologyEntry
}

type ontologyEntry struct {
	node           common.OntologyNode
	projectID      string
	classification common.Classification
	parentID       string
}

// NewOntologyService creates an empty in-memory ontology service.
func NewOntologyService() *OntologyService {
	return &OntologyService{nodes: make(map[string]ontologyEntry)}
}

// AddNode seeds a label node. parentID may be empty for roots.
func (s *OntologyService) AddNode(projectID string, classification common.Classification, node common.OntologyNode, parentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[node.ID] = ontologyEntry{
		node:           node,
		projectID:      projectID,
		classification: classification,
		parentID:       parentID,
	}
}

func (s *OntologyService) ResolveLabel(ctx context.Context, projectID string, classification common.Classification, labelID string) (*common.OntologyNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.nodes[labelID]
	if !ok || entry.projectID != projectID || entry.classification != classification {
		return nil, nil
	}

	fullname := entry.node.Name
	for parent := entry.parentID; parent != ""; {
		p, ok := s.nodes[parent]
		if !ok {
			break
		}
		fullname = p.node.Name + "/" + fullname
		parent = p.parentID
	}

	node := entry.node
	node.FullName = fullname
	return &node, nil
}
