package pgx

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/nlp-tlp/quickgraph-sub001/internal/util"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/common"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/store"
)

const entityColumns = "id, project_id, item_id, creator, ontology_item_id, start_idx, end_idx, surface_form, suggested, created_at, updated_at"

func scanEntity(row pgx.Row) (common.EntityMarkup, error) {
	var m common.EntityMarkup
	err := row.Scan(
		&m.ID,
		&m.ProjectID,
		&m.ItemID,
		&m.Creator,
		&m.OntologyItemID,
		&m.Start,
		&m.End,
		&m.SurfaceForm,
		&m.Suggested,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

// UpsertEntity inserts an entity markup record or, when the signature
// already exists, refreshes it. The conflict update keeps suggested
// monotonic: a confirmed record never reverts to suggested.
func (s *MarkupStore) UpsertEntity(ctx context.Context, sig store.EntitySignature, body store.EntityBody) (bool, common.EntityMarkup, error) {
	id, err := store.NewID()
	if err != nil {
		return false, common.EntityMarkup{}, err
	}

	query := `
		INSERT INTO entity_markup (id, project_id, item_id, creator, ontology_item_id, start_idx, end_idx, surface_form, suggested)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (project_id, item_id, creator, ontology_item_id, start_idx, end_idx)
		DO UPDATE SET
			surface_form = EXCLUDED.surface_form,
			suggested = entity_markup.suggested AND EXCLUDED.suggested,
			updated_at = now()
		RETURNING ` + entityColumns + `, (xmax = 0) AS created`

	var m common.EntityMarkup
	var created bool
	err = s.conn.QueryRow(ctx, query,
		id,
		sig.ProjectID,
		sig.ItemID,
		sig.Creator,
		sig.OntologyItemID,
		sig.Start,
		sig.End,
		util.SanitizePostgresText(body.SurfaceForm),
		body.Suggested,
	).Scan(
		&m.ID,
		&m.ProjectID,
		&m.ItemID,
		&m.Creator,
		&m.OntologyItemID,
		&m.Start,
		&m.End,
		&m.SurfaceForm,
		&m.Suggested,
		&m.CreatedAt,
		&m.UpdatedAt,
		&created,
	)
	if err != nil {
		return false, common.EntityMarkup{}, fmt.Errorf("upsert entity markup: %w", err)
	}
	return created, m, nil
}

func (s *MarkupStore) FindEntity(ctx context.Context, f store.EntityFilter) (*common.EntityMarkup, error) {
	where, args := entityWhere(f, 0)
	query := "SELECT " + entityColumns + " FROM entity_markup" + where + " ORDER BY item_id, start_idx, id LIMIT 1"

	m, err := scanEntity(s.conn.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find entity markup: %w", err)
	}
	return &m, nil
}

func (s *MarkupStore) FindEntities(ctx context.Context, f store.EntityFilter) ([]common.EntityMarkup, error) {
	where, args := entityWhere(f, 0)
	query := "SELECT " + entityColumns + " FROM entity_markup" + where + " ORDER BY item_id, start_idx, id"

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find entity markup: %w", err)
	}
	defer rows.Close()

	var out []common.EntityMarkup
	for rows.Next() {
		m, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity markup: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find entity markup: %w", err)
	}
	return out, nil
}

func (s *MarkupStore) UpdateEntities(ctx context.Context, f store.EntityFilter, p store.EntityPatch) ([]common.EntityMarkup, error) {
	var sets []string
	var args []any
	if p.Suggested != nil {
		args = append(args, *p.Suggested)
		sets = append(sets, fmt.Sprintf("suggested = $%d", len(args)))
	}
	if p.OntologyItemID != nil {
		args = append(args, *p.OntologyItemID)
		sets = append(sets, fmt.Sprintf("ontology_item_id = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("update entity markup: empty patch")
	}
	sets = append(sets, "updated_at = now()")

	where, whereArgs := entityWhere(f, len(args))
	args = append(args, whereArgs...)

	query := "UPDATE entity_markup SET " + strings.Join(sets, ", ") + where + " RETURNING " + entityColumns

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update entity markup: %w", err)
	}
	defer rows.Close()

	var out []common.EntityMarkup
	for rows.Next() {
		m, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity markup: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("update entity markup: %w", err)
	}
	return out, nil
}

func (s *MarkupStore) DeleteEntities(ctx context.Context, f store.EntityFilter) ([]string, error) {
	where, args := entityWhere(f, 0)
	if where == "" {
		return nil, fmt.Errorf("delete entity markup: empty filter")
	}
	query := "DELETE FROM entity_markup" + where + " RETURNING id"

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("delete entity markup: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete entity markup: %w", err)
	}
	return ids, nil
}
