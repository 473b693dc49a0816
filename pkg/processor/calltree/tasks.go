package calltree

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	ProcessorName   = "calltree"
	ProcessTaskType = "calltree_process"
)

// ProcessPayload represents the payload for reconstructing a transaction.
type ProcessPayload struct {
	TransactionHash string `json:"transaction_hash"`
}

// MarshalBinary implements encoding.BinaryMarshaler
func (p *ProcessPayload) MarshalBinary() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (p *ProcessPayload) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, p)
}

// NewProcessTask creates a new process task.
func NewProcessTask(payload *ProcessPayload) (*asynq.Task, error) {
	data, err := payload.MarshalBinary()
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(ProcessTaskType, data), nil
}

// ProcessQueue returns the queue name, namespaced by prefix when set.
func ProcessQueue(prefix string) string {
	queue := fmt.Sprintf("%s:process", ProcessorName)
	if prefix == "" {
		return queue
	}

	return fmt.Sprintf("%s:%s", prefix, queue)
}
