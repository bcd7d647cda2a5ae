package rpcsurface

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// unaryHandler runs one call-and-reply RPC method: it returns the reply
// payload for a KindStreamEnd frame, or an error for a KindError frame.
type unaryHandler func(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error)

// streamHandler runs a server-streaming RPC method. It must write its own
// KindStreamItem frames via c.send (addressed with the service/method it
// receives, so one handler body can serve both DynamicService and
// DocumentService) and return nil on a clean finish (the dispatcher sends
// the closing KindStreamEnd); returning an error sends a KindError frame
// instead, abandoning any items already streamed.
type streamHandler func(ctx context.Context, s *Server, c *Conn, service Service, method byte, corr uint32, payload []byte) error

type route struct {
	service   Service
	method    byte
	name      string
	streaming bool
	unary     unaryHandler
	stream    streamHandler
}

func key(service Service, method byte) [2]byte { return [2]byte{byte(service), method} }

// dispatchTable maps (service, method) to its route. Populated by each
// service_*.go file's init().
var dispatchTable = map[[2]byte]route{}

func registerUnary(service Service, method byte, name string, fn unaryHandler) {
	dispatchTable[key(service, method)] = route{service: service, method: method, name: name, unary: fn}
}

func registerStream(service Service, method byte, name string, fn streamHandler) {
	dispatchTable[key(service, method)] = route{service: service, method: method, name: name, streaming: true, stream: fn}
}

// readLoop reads envelopes off conn's websocket until it closes, dispatching
// each "call" frame and handling "abort" frames in between.
func (s *Server) readLoop(c *Conn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && s.log != nil {
				s.log.WithError(err).Debug("rpc surface: connection closed")
			}
			return
		}
		env, err := Decode(data)
		if err != nil {
			continue
		}
		switch env.Kind {
		case KindAbort:
			c.abort(env.CorrelationID)
		case KindCall:
			s.dispatch(c, env)
		}
	}
}

func (s *Server) dispatch(c *Conn, env Envelope) {
	r, ok := dispatchTable[key(env.Service, env.Method)]
	if !ok {
		_ = c.sendError(env.Service, env.Method, env.CorrelationID, errUnknownMethod(env.Service, env.Method))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	deregister := c.registerCancel(env.CorrelationID, cancel)

	if r.streaming {
		if s.metrics != nil {
			s.metrics.StreamStarted(r.service.String(), r.name)
		}
		go func() {
			defer cancel()
			defer deregister()
			start := time.Now()
			err := r.stream(ctx, s, c, env.Service, env.Method, env.CorrelationID, env.Payload)
			s.finish(c, env, r, start, err)
			if s.metrics != nil {
				s.metrics.StreamEnded(r.service.String(), r.name)
			}
		}()
		return
	}

	go func() {
		defer cancel()
		defer deregister()
		start := time.Now()
		reply, err := r.unary(ctx, s, c, env.CorrelationID, env.Payload)
		if err != nil {
			s.finish(c, env, r, start, err)
			return
		}
		_ = c.send(Envelope{Kind: KindStreamEnd, Service: env.Service, Method: env.Method, CorrelationID: env.CorrelationID, Payload: reply})
		if s.metrics != nil {
			s.metrics.RecordRPCCall(r.service.String(), r.name, "ok", time.Since(start))
		}
	}()
}

// finish sends the terminal frame for a call that errored (unary or
// streaming) and records the failure metric.
func (s *Server) finish(c *Conn, env Envelope, r route, start time.Time, err error) {
	if err != nil {
		_ = c.sendError(env.Service, env.Method, env.CorrelationID, err)
		if s.metrics != nil {
			status, _ := rpcStatus(err)
			s.metrics.RecordRPCCall(r.service.String(), r.name, status, time.Since(start))
			s.metrics.RecordError(r.service.String(), status)
		}
		return
	}
	_ = c.send(Envelope{Kind: KindStreamEnd, Service: env.Service, Method: env.Method, CorrelationID: env.CorrelationID})
	if s.metrics != nil {
		s.metrics.RecordRPCCall(r.service.String(), r.name, "ok", time.Since(start))
	}
}
