package queue

import (
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/nlp-tlp/quickgraph-sub001/pkg/common"
)

// MarkupEvent is the message published after every successful mutating
// markup operation. The audit worker appends these to the markup_events
// table.
type MarkupEvent struct {
	Action         string                `json:"action"`
	Classification common.Classification `json:"classification"`
	ProjectID      string                `json:"project_id"`
	Creator        string                `json:"creator"`
	Count          int                   `json:"count"`
	EntityIDs      []string              `json:"entity_ids,omitempty"`
	RelationIDs    []string              `json:"relation_ids,omitempty"`
}

// PublishMarkupEvent serializes the event and publishes it onto the
// markup event queue.
func PublishMarkupEvent(ch *amqp091.Channel, event MarkupEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal markup event: %w", err)
	}
	return PublishFIFO(ch, EventQueue, data)
}
