package pgx

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/nlp-tlp/quickgraph-sub001/pkg/common"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/store"
)

const relationColumns = "id, project_id, item_id, creator, ontology_item_id, source_id, target_id, suggested, created_at, updated_at"

func scanRelation(row pgx.Row) (common.RelationMarkup, error) {
	var m common.RelationMarkup
	err := row.Scan(
		&m.ID,
		&m.ProjectID,
		&m.ItemID,
		&m.Creator,
		&m.OntologyItemID,
		&m.SourceID,
		&m.TargetID,
		&m.Suggested,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

// UpsertRelation inserts a relation markup record or refreshes the
// existing one under the same signature, with the same suggested
// monotonicity as entity upserts.
func (s *MarkupStore) UpsertRelation(ctx context.Context, sig store.RelationSignature, body store.RelationBody) (bool, common.RelationMarkup, error) {
	id, err := store.NewID()
	if err != nil {
		return false, common.RelationMarkup{}, err
	}

	query := `
		INSERT INTO relation_markup (id, project_id, item_id, creator, ontology_item_id, source_id, target_id, suggested)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (project_id, item_id, creator, ontology_item_id, source_id, target_id)
		DO UPDATE SET
			suggested = relation_markup.suggested AND EXCLUDED.suggested,
			updated_at = now()
		RETURNING ` + relationColumns + `, (xmax = 0) AS created`

	var m common.RelationMarkup
	var created bool
	err = s.conn.QueryRow(ctx, query,
		id,
		sig.ProjectID,
		sig.ItemID,
		sig.Creator,
		sig.OntologyItemID,
		sig.SourceID,
		sig.TargetID,
		body.Suggested,
	).Scan(
		&m.ID,
		&m.ProjectID,
		&m.ItemID,
		&m.Creator,
		&m.OntologyItemID,
		&m.SourceID,
		&m.TargetID,
		&m.Suggested,
		&m.CreatedAt,
		&m.UpdatedAt,
		&created,
	)
	if err != nil {
		return false, common.RelationMarkup{}, fmt.Errorf("upsert relation markup: %w", err)
	}
	return created, m, nil
}

func (s *MarkupStore) FindRelation(ctx context.Context, f store.RelationFilter) (*common.RelationMarkup, error) {
	where, args := relationWhere(f, 0)
	query := "SELECT " + relationColumns + " FROM relation_markup" + where + " ORDER BY item_id, id LIMIT 1"

	m, err := scanRelation(s.conn.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find relation markup: %w", err)
	}
	return &m, nil
}

func (s *MarkupStore) FindRelations(ctx context.Context, f store.RelationFilter) ([]common.RelationMarkup, error) {
	where, args := relationWhere(f, 0)
	query := "SELECT " + relationColumns + " FROM relation_markup" + where + " ORDER BY item_id, id"

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find relation markup: %w", err)
	}
	defer rows.Close()

	var out []common.RelationMarkup
	for rows.Next() {
		m, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relation markup: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find relation markup: %w", err)
	}
	return out, nil
}

func (s *MarkupStore) UpdateRelations(ctx context.Context, f store.RelationFilter, p store.RelationPatch) ([]common.RelationMarkup, error) {
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
		return nil, fmt.Errorf("update relation markup: empty patch")
	}
	sets = append(sets, "updated_at = now()")

	where, whereArgs := relationWhere(f, len(args))
	args = append(args, whereArgs...)

	query := "UPDATE relation_markup SET " + strings.Join(sets, ", ") + where + " RETURNING " + relationColumns

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update relation markup: %w", err)
	}
	defer rows.Close()

	var out []common.RelationMarkup
	for rows.Next() {
		m, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relation markup: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("update relation markup: %w", err)
	}
	return out, nil
}

func (s *MarkupStore) DeleteRelations(ctx context.Context, f store.RelationFilter) ([]string, error) {
	where, args := relationWhere(f, 0)
	if where == "" {
		return nil, fmt.Errorf("delete relation markup: empty filter")
	}
	query := "DELETE FROM relation_markup" + where + " RETURNING id"

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("delete relation markup: %w", err)
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
		return nil, fmt.Errorf("delete relation markup: %w", err)
	}
	return ids, nil
}
