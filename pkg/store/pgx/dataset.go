package pgx

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nlp-tlp/quickgraph-sub001/pkg/common"
)

// DatasetService is a PostgreSQL store.DatasetService. Item text is
// reconstructed from the tokens array; containment search runs inside
// the database.
type DatasetService struct {
	conn *pgxpool.Pool
}

// NewDatasetService creates a dataset service on an existing pool.
func NewDatasetService(conn *pgxpool.Pool) *DatasetService {
	return &DatasetService{conn: conn}
}

func (s *DatasetService) GetItem(ctx context.Context, itemID string) (*common.DatasetItem, error) {
	var it common.DatasetItem
	err := s.conn.QueryRow(ctx,
		"SELECT id, dataset_id, tokens FROM dataset_items WHERE id = $1",
		itemID,
	).Scan(&it.ID, &it.DatasetID, &it.Tokens)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset item: %w", err)
	}

	rows, err := s.conn.Query(ctx,
		"SELECT creator, created_at FROM save_states WHERE item_id = $1 ORDER BY creator",
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("get save states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st common.SaveState
		if err := rows.Scan(&st.Creator, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan save state: %w", err)
		}
		it.SaveStates = append(it.SaveStates, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get save states: %w", err)
	}
	return &it, nil
}

// FindItemsContainingText returns the dataset's items whose text
// contains pattern as a whole-word match, using PostgreSQL word
// boundary regexes. The pattern is escaped so surface forms with
// regex metacharacters match literally.
func (s *DatasetService) FindItemsContainingText(ctx context.Context, datasetID string, pattern string) ([]common.DatasetItem, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT id, dataset_id, tokens
		 FROM dataset_items
		 WHERE dataset_id = $1 AND array_to_string(tokens, ' ') ~ ('\m' || $2 || '\M')
		 ORDER BY id`,
		datasetID,
		regexp.QuoteMeta(pattern),
	)
	if err != nil {
		return nil, fmt.Errorf("find dataset items: %w", err)
	}
	defer rows.Close()

	var out []common.DatasetItem
	for rows.Next() {
		var it common.DatasetItem
		if err := rows.Scan(&it.ID, &it.DatasetID, &it.Tokens); err != nil {
			return nil, fmt.Errorf("scan dataset item: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find dataset items: %w", err)
	}
	return out, nil
}

func (s *DatasetService) IsLocked(ctx context.Context, itemID string, creator string) (bool, error) {
	var locked bool
	err := s.conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM save_states WHERE item_id = $1 AND creator = $2)",
		itemID,
		creator,
	).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("check save state: %w", err)
	}
	return locked, nil
}
