package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nlp-tlp/quickgraph-sub001/internal/util"
	"github.com/nlp-tlp/quickgraph-sub001/pkg/logger"
)

// ProcessMarkupEvent appends one markup event to the audit table. The
// full message body is kept as the payload so the audit trail survives
// event schema additions.
func ProcessMarkupEvent(ctx context.Context, conn *pgxpool.Pool, msg []byte) error {
	data := new(MarkupEvent)
	if err := json.Unmarshal(msg, data); err != nil {
		return fmt.Errorf("unmarshal markup event: %w", err)
	}
	if data.Action == "" || !data.Classification.Valid() {
		return fmt.Errorf("malformed markup event: action %q classification %q", data.Action, data.Classification)
	}

	err := util.RetryErrWithContext(ctx, 3, func(ctx context.Context) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO markup_events (action, classification, project_id, creator, count, payload)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			data.Action,
			string(data.Classification),
			data.ProjectID,
			data.Creator,
			data.Count,
			msg,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert markup event: %w", err)
	}

	logger.Debug(
		"[Queue] Recorded markup event",
		"action", data.Action,
		"classification", data.Classification,
		"project_id", data.ProjectID,
		"creator", data.Creator,
		"count", data.Count,
	)
	return nil
}
