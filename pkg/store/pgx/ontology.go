package pgx

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nlp-tlp/quickgraph-sub001/pkg/common"
)

// OntologyService is a PostgreSQL store.OntologyService. Label trees
// are read-only here; the fully qualified name is assembled by walking
// parent links with a recursive CTE.
type OntologyService struct {
	conn *pgxpool.Pool
}

// NewOntologyService creates an ontology service on an existing pool.
func NewOntologyService(conn *pgxpool.Pool) *OntologyService {
	return &OntologyService{conn: conn}
}

func (s *OntologyService) ResolveLabel(ctx context.Context, projectID string, classification common.Classification, labelID string) (*common.OntologyNode, error) {
	rows, err := s.conn.Query(ctx,
		`WITH RECURSIVE chain AS (
			SELECT id, parent_id, name, color, 1 AS depth
			FROM ontology_items
			WHERE id = $1 AND project_id = $2 AND classification = $3
			UNION ALL
			SELECT o.id, o.parent_id, o.name, o.color, chain.depth + 1
			FROM ontology_items o
			JOIN chain ON o.id = chain.parent_id
		)
		SELECT id, name, color, depth FROM chain ORDER BY depth DESC`,
		labelID,
		projectID,
		string(classification),
	)
	if err != nil {
		return nil, fmt.Errorf("resolve ontology item: %w", err)
	}
	defer rows.Close()

	// Rows arrive root first; the last row is the requested node.
	var node common.OntologyNode
	var names []string
	found := false
	for rows.Next() {
		var id, name, color string
		var depth int
		if err := rows.Scan(&id, &name, &color, &depth); err != nil {
			return nil, fmt.Errorf("scan ontology item: %w", err)
		}
		names = append(names, name)
		node = common.OntologyNode{ID: id, Name: name, Color: color}
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolve ontology item: %w", err)
	}
	if !found {
		return nil, nil
	}

	node.FullName = strings.Join(names, "/")
	return &node, nil
}
