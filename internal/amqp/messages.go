package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"summit/internal/core"
)

// EventType names what happened to a dataset.
type EventType string

const (
	EventDatasetProcessed EventType = "dataset.processed"
	EventDatasetCleared   EventType = "dataset.cleared"
)

// DatasetEventMessage announces a dataset change. It carries only the
// dataset key and run id; consumers read rows from the database.
type DatasetEventMessage struct {
	ID           string    `json:"id"`
	Event        EventType `json:"event"`
	JobID        int64     `json:"job_id"`
	SubsidiaryID int64     `json:"subsidiary_id"`
	RunID        string    `json:"run_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewDatasetEventMessage(event EventType, key core.DatasetKey, runID string) *DatasetEventMessage {
	return &DatasetEventMessage{
		ID:           uuid.NewString(),
		Event:        event,
		JobID:        key.JobID,
		SubsidiaryID: key.SubsidiaryID,
		RunID:        runID,
		Timestamp:    time.Now(),
	}
}

// Dataset returns the key the event refers to.
func (m *DatasetEventMessage) Dataset() core.DatasetKey {
	return core.DatasetKey{JobID: m.JobID, SubsidiaryID: m.SubsidiaryID}
}

func (m *DatasetEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DatasetEventMessageFromJSON decodes and validates a message body.
func DatasetEventMessageFromJSON(data []byte) (*DatasetEventMessage, error) {
	var msg DatasetEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Event {
	case EventDatasetProcessed, EventDatasetCleared:
	default:
		return nil, fmt.Errorf("unknown event %q", msg.Event)
	}
	if err := msg.Dataset().Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
