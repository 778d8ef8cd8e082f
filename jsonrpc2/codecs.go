package jsonrpc2

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/vipnode/rpcclient/internal/pretty"
)

// Codec is an abstraction for receiving and sending JSONRPC messages.
type Codec interface {
	ReadMessage() (*Message, error)
	WriteMessage(*Message) error
	Close() error
}

var _ Codec = &jsonCodec{}

// DecodeError is returned by ReadMessage when a complete JSON value arrived
// but is not a message this package can handle, such as a batch or an error
// object with a non-integer code. The codec stays usable: the next
// ReadMessage continues with the following value.
type DecodeError struct {
	Raw json.RawMessage
	Err error
}

func (err *DecodeError) Error() string {
	return fmt.Sprintf("jsonrpc2: malformed message: %s", err.Err)
}

func (err *DecodeError) Unwrap() error {
	return err.Err
}

// DecodeMessage parses a single message. Failures are returned as a
// *DecodeError.
func DecodeMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &DecodeError{Raw: json.RawMessage(raw), Err: err}
	}
	return &msg, nil
}

// IOCodec returns a Codec that wraps JSON encoding and decoding over IO.
func IOCodec(rwc io.ReadWriteCloser) Codec {
	return &jsonCodec{
		decoder: json.NewDecoder(rwc),
		encoder: json.NewEncoder(rwc),
		closer:  rwc,
	}
}

type jsonCodec struct {
	muRead  sync.Mutex
	muWrite sync.Mutex
	decoder *json.Decoder
	encoder *json.Encoder
	closer  io.Closer
}

func (codec *jsonCodec) ReadMessage() (*Message, error) {
	codec.muRead.Lock()
	defer codec.muRead.Unlock()
	// Syntax errors leave the stream out of sync, so only those are fatal.
	var raw json.RawMessage
	if err := codec.decoder.Decode(&raw); err != nil {
		return nil, err
	}
	return DecodeMessage(raw)
}

func (codec *jsonCodec) WriteMessage(msg *Message) error {
	codec.muWrite.Lock()
	defer codec.muWrite.Unlock()
	return codec.encoder.Encode(msg)
}

func (codec *jsonCodec) Close() error {
	return codec.closer.Close()
}

// DebugCodec wraps a codec and logs every message read and written, tagged
// with label. Long messages are abbreviated.
func DebugCodec(label string, codec Codec) Codec {
	return &debugCodec{label, codec}
}

type debugCodec struct {
	label string
	Codec
}

func (codec *debugCodec) ReadMessage() (*Message, error) {
	msg, err := codec.Codec.ReadMessage()
	if err != nil {
		logger.Printf("%s <- error: %s", codec.label, err)
		return msg, err
	}
	logger.Printf("%s <- %s", codec.label, pretty.Abbrev(msg.String()))
	return msg, nil
}

func (codec *debugCodec) WriteMessage(msg *Message) error {
	logger.Printf("%s -> %s", codec.label, pretty.Abbrev(msg.String()))
	return codec.Codec.WriteMessage(msg)
}
