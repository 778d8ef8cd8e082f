package jsonrpc2

import (
	"encoding/json"
	"sync/atomic"

	"github.com/google/uuid"
)

// Client builds outgoing requests. IDs are sequential integers unless UUID
// is set, in which case every request gets a random UUID string.
type Client struct {
	// UUID switches request IDs to random UUID strings, useful when several
	// clients share one peer and sequential IDs could collide.
	UUID bool

	id int32
}

// NextID returns the next unused request ID, encoded as JSON.
func (c *Client) NextID() json.RawMessage {
	if c.UUID {
		id, _ := json.Marshal(uuid.New().String())
		return id
	}
	id, _ := json.Marshal(atomic.AddInt32(&c.id, 1))
	return id
}

// Request builds a call with positional params and a fresh ID.
func (c *Client) Request(method string, params ...interface{}) (*Message, error) {
	msg, err := newNotification(method, params...)
	if err != nil {
		return nil, err
	}
	msg.ID = c.NextID()
	return msg, nil
}

// Notification builds a call without an ID; no response is expected.
func (c *Client) Notification(method string, params ...interface{}) (*Message, error) {
	return newNotification(method, params...)
}

func newNotification(method string, params ...interface{}) (*Message, error) {
	msg := &Message{
		Method:  method,
		Version: Version,
	}
	if len(params) == 0 {
		return msg, nil
	}
	var err error
	if msg.Params, err = json.Marshal(params); err != nil {
		return nil, err
	}
	return msg, nil
}
