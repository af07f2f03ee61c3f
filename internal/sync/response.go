package sync

import (
	"bytes"
	"encoding/json"

	"github.com/acme/ganttsync/internal/entity"
)

// Status is the outcome label of a sub-operation.
type Status string

const (
	StatusAdded   Status = "added"
	StatusUpdated Status = "update"
	StatusDeleted Status = "deleted"
	StatusError   Status = "error"
)

// CollectionResponse is the reconciled state of one collection.
type CollectionResponse struct {
	Rows    []*entity.Entity `json:"rows"`
	Removed []*entity.Entity `json:"removed"`
}

// Response is the reconciliation payload returned for a batch.
type Response struct {
	Success      bool               `json:"success"`
	RequestID    json.RawMessage    `json:"requestId,omitempty"`
	Tasks        CollectionResponse `json:"tasks"`
	Dependencies CollectionResponse `json:"dependencies"`

	// Err is the error behind a failed response. It is never serialized.
	Err error `json:"-"`
}

// Assemble builds a Response. Success is false only for StatusError. A
// missing or null requestID is omitted, and nil slices become empty arrays.
func Assemble(status Status, requestID json.RawMessage, err error,
	taskRows, depRows, taskRemoved, depRemoved []*entity.Entity) *Response {
	return &Response{
		Success:   status != StatusError,
		RequestID: echoID(requestID),
		Tasks: CollectionResponse{
			Rows:    nonNil(taskRows),
			Removed: nonNil(taskRemoved),
		},
		Dependencies: CollectionResponse{
			Rows:    nonNil(depRows),
			Removed: nonNil(depRemoved),
		},
		Err: err,
	}
}

// ErrorResponse returns the generic failure payload: success false, no
// requestId, all arrays empty.
func ErrorResponse(err error) *Response {
	return Assemble(StatusError, nil, err, nil, nil, nil, nil)
}

func echoID(id json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(id)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return trimmed
}

func nonNil(list []*entity.Entity) []*entity.Entity {
	if list == nil {
		return []*entity.Entity{}
	}
	return list
}
