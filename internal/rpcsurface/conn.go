package rpcsurface

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/blite-io/blite-server/internal/identity"
)

// Conn is one authenticated RPC connection: the underlying websocket plus
// the per-connection state every dispatched call needs — the caller's
// identity and the correlation-id-keyed cancellation registry streaming
// calls register into so an "abort" envelope or a connection close can
// cancel them.
type Conn struct {
	ws   *websocket.Conn
	user identity.User

	writeMu sync.Mutex

	cancelMu sync.Mutex
	cancels  map[uint32]context.CancelFunc
}

func newConn(ws *websocket.Conn, user identity.User) *Conn {
	return &Conn{ws: ws, user: user, cancels: make(map[uint32]context.CancelFunc)}
}

// registerCancel tracks cancel under correlationID so a later abort/close
// can stop the in-flight call. The returned func deregisters it once the
// call finishes on its own.
func (c *Conn) registerCancel(correlationID uint32, cancel context.CancelFunc) func() {
	c.cancelMu.Lock()
	c.cancels[correlationID] = cancel
	c.cancelMu.Unlock()
	return func() {
		c.cancelMu.Lock()
		delete(c.cancels, correlationID)
		c.cancelMu.Unlock()
	}
}

// abort cancels the call registered under correlationID, if any is still
// in flight.
func (c *Conn) abort(correlationID uint32) {
	c.cancelMu.Lock()
	cancel, ok := c.cancels[correlationID]
	c.cancelMu.Unlock()
	if ok {
		cancel()
	}
}

// cancelAll is called on connection teardown so no streaming call outlives
// its socket.
func (c *Conn) cancelAll() {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	for id, cancel := range c.cancels {
		cancel()
		delete(c.cancels, id)
	}
}

// send writes one envelope as a binary websocket message. Writes are
// serialised: streaming handlers and the read loop's error replies can
// both write concurrently on the same connection.
func (c *Conn) send(e Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, Encode(e))
}

func (c *Conn) sendError(service Service, method byte, correlationID uint32, err error) error {
	status, message := rpcStatus(err)
	w := &payloadWriter{}
	w.writeString(status)
	w.writeString(message)
	return c.send(Envelope{Kind: KindError, Service: service, Method: method, CorrelationID: correlationID, Payload: w.bytes()})
}
