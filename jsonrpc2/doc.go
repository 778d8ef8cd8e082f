/*
	Package jsonrpc2 implements the JSONRPC 2.0 wire layer used by rpcclient.
	Batches are not supported.

	Message is the envelope for requests, notifications and responses. The
	core client never looks inside a Message; only filters and callers do.

	Error is an immutable JSONRPC error value. The standard codes and the
	client-specific codes (no error, timeout, invalid state, connection lost)
	are exported as package values and can be compared with errors.Is.

	Client builds outgoing requests and notifications with unique IDs.

	Codec is the transport and encoding. IOCodec works over any stream, the
	ws subpackages provide WebSocket codecs.
*/
package jsonrpc2
