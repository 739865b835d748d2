// Package eventlog carries catalog operations through the partitioned
// event log: the record wire format, the declared topic set, the registry
// that provisions topics on the broker, and the publisher that appends
// records keyed by entity id.
package eventlog

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/merchstream/writeback/entity"
	"github.com/merchstream/writeback/errors"
	"github.com/merchstream/writeback/pkg/timestamp"
)

// Record is one operation on its way from the write path to the batch
// workers. Payload is sealed ciphertext for creates and updates; deletes
// carry none. Records are immutable once produced.
type Record struct {
	EntityID   string        `json:"entityId"`
	Kind       entity.OpKind `json:"kind"`
	Payload    string        `json:"payload,omitempty"`
	MessageID  string        `json:"messageId"`
	EnqueuedAt int64         `json:"enqueuedAt"`
	RetryCount int           `json:"retryCount"`
}

// NewRecord stamps a record with a fresh message id and enqueue time.
func NewRecord(entityID string, kind entity.OpKind, payload string) Record {
	return Record{
		EntityID:   entityID,
		Kind:       kind,
		Payload:    payload,
		MessageID:  NewMessageID(),
		EnqueuedAt: timestamp.Now(),
	}
}

// NewMessageID returns a producer-unique id: the current unix-millisecond
// time plus a random fragment. The broker deduplicates on it within the
// stream's duplicate window.
func NewMessageID() string {
	return fmt.Sprintf("%d-%s", timestamp.Now(), uuid.NewString()[:8])
}

// Validate checks structural soundness before a record hits the wire.
func (r Record) Validate() error {
	if r.EntityID == "" {
		return errors.WrapValidation(errors.ErrEmptyID, "Record", "Validate", "check entity id")
	}
	if !r.Kind.Valid() {
		return errors.WrapValidation(
			fmt.Errorf("unknown operation kind %q", r.Kind),
			"Record", "Validate", "check kind")
	}
	if r.Kind != entity.OpDelete && r.Payload == "" {
		return errors.WrapValidation(
			fmt.Errorf("%s record requires a payload", r.Kind),
			"Record", "Validate", "check payload")
	}
	if r.MessageID == "" {
		return errors.WrapValidation(
			fmt.Errorf("record has no message id"),
			"Record", "Validate", "check message id")
	}
	return nil
}

// Encode renders the record as JSON.
func (r Record) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.WrapValidation(err, "Record", "Encode", "marshal record")
	}
	return data, nil
}

// DecodeRecord parses a wire payload back into a Record.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, errors.WrapValidation(err, "Record", "DecodeRecord", "unmarshal record")
	}
	return r, nil
}
