// Websocket implementation using gobwas' zero-copy ws library
package gobwas

import (
	"context"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/vipnode/rpcclient/jsonrpc2"
)

type rwc struct {
	io.Reader
	io.Writer
	io.Closer
}

// WebSocketDial returns a Codec that wraps a client-side connection with JSON
// encoding and decoding.
func WebSocketDial(ctx context.Context, url string) (jsonrpc2.Codec, error) {
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, err
	}

	return clientWebSocketCodec(conn), nil
}

func clientWebSocketCodec(conn net.Conn) jsonrpc2.Codec {
	return newCodec(conn, ws.StateClientSide)
}

// serverWebSocketCodec returns a server-side Codec that wraps JSON encoding and
// decoding over a websocket connection.
func serverWebSocketCodec(conn net.Conn) jsonrpc2.Codec {
	return newCodec(conn, ws.StateServerSide)
}

func newCodec(conn net.Conn, state ws.State) jsonrpc2.Codec {
	r := wsutil.NewReader(conn, state)
	w := wsutil.NewWriter(conn, state, ws.OpText)
	return &wsCodec{
		inner: jsonrpc2.IOCodec(rwc{r, w, conn}),
		conn:  conn,
		state: state,
		r:     r,
		w:     w,
	}
}

var _ jsonrpc2.Codec = &wsCodec{}

type wsCodec struct {
	muWrite sync.Mutex
	inner   jsonrpc2.Codec
	conn    net.Conn
	state   ws.State
	r       *wsutil.Reader
	w       *wsutil.Writer
}

func (codec *wsCodec) ReadMessage() (*jsonrpc2.Message, error) {
	for {
		header, err := codec.r.NextFrame()
		if err != nil {
			return nil, err
		}
		if header.OpCode == ws.OpClose {
			return nil, io.EOF
		}
		if header.OpCode.IsControl() {
			// Pings and pongs carry nothing for us.
			if _, err := io.Copy(ioutil.Discard, codec.r); err != nil {
				return nil, err
			}
			continue
		}
		return codec.inner.ReadMessage()
	}
}

func (codec *wsCodec) WriteMessage(msg *jsonrpc2.Message) error {
	codec.muWrite.Lock()
	defer codec.muWrite.Unlock()
	err := codec.inner.WriteMessage(msg)
	if err != nil {
		return err
	}
	if err = codec.w.Flush(); err != nil {
		return err
	}
	return nil
}

// Close sends a normal closure frame and closes the underlying connection.
func (codec *wsCodec) Close() error {
	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	frame := ws.NewCloseFrame(body)
	if codec.state.ClientSide() {
		frame = ws.MaskFrameInPlace(frame)
	}
	codec.muWrite.Lock()
	_ = ws.WriteFrame(codec.conn, frame)
	codec.muWrite.Unlock()
	return codec.inner.Close()
}

// Upgrader upgrades an HTTP request to a WebSocket request and returns the
// appropriate jsonrpc2 codec.
type Upgrader struct {
	Upgrader ws.HTTPUpgrader
}

func (u *Upgrader) Upgrade(r *http.Request, w http.ResponseWriter, h http.Header) (jsonrpc2.Codec, error) {
	conn, _, _, err := u.Upgrader.Upgrade(r, w)
	if err != nil {
		return nil, err
	}
	return serverWebSocketCodec(conn), nil
}
