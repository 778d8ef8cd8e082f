package jsonrpc2

import (
	"encoding/json"
	"errors"
)

const Version = "2.0"

// ErrBatchUnsupported is returned when decoding a batch (array) message.
var ErrBatchUnsupported = errors.New("jsonrpc2: batch messages are not supported")

// Message is a JSONRPC 2.0 envelope. A request has a Method and an ID, a
// notification has a Method without an ID, and a response has an ID with
// either a Result or an Error.
type Message struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsRequest returns true if the message is a call that expects a response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

// IsNotification returns true if the message is a call without an ID.
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IsResponse returns true if the message carries a result or an error.
func (m *Message) IsResponse() bool {
	return m.Method == "" && (m.Result != nil || m.Error != nil)
}

// UnmarshalResult decodes the response result into result. An error
// response is returned as its Error value.
func (m *Message) UnmarshalResult(result interface{}) error {
	if m.Error != nil {
		return *m.Error
	}
	if result == nil || len(m.Result) == 0 || string(m.Result) == "null" {
		// No result
		return nil
	}
	return json.Unmarshal(m.Result, result)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	if isArray(data) {
		return ErrBatchUnsupported
	}
	// Alias drops the method set to avoid recursing.
	type alias Message
	var msg alias
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	*m = Message(msg)
	return nil
}

func (m *Message) String() string {
	out, err := json.Marshal(m)
	if err != nil {
		return "<invalid message: " + err.Error() + ">"
	}
	return string(out)
}

// MatchID is a filter predicate that accepts responses whose ID equals the
// request's ID.
func MatchID(req, candidate *Message) bool {
	if req == nil || candidate == nil || len(req.ID) == 0 {
		return false
	}
	return candidate.Method == "" && equalID(req.ID, candidate.ID)
}
