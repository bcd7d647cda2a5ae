// Package rpcsurface implements the binary RPC transport from spec.md
// §4.7/§4.9: a websocket connection framed with a small fixed envelope,
// dispatched to one of five services (Metadata, Dynamic, Document,
// Transaction, Admin). It reuses internal/queryd's wire idiom for scalar
// framing so both the descriptor wire format and the envelope wire format
// speak the same uvarint/length-prefixed-string dialect.
package rpcsurface

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/blite-io/blite-server/internal/queryd"
)

// MessageKind is the envelope's one-byte message discriminator.
type MessageKind byte

const (
	KindCall       MessageKind = 1
	KindStreamItem MessageKind = 2
	KindStreamEnd  MessageKind = 3
	KindError      MessageKind = 4
	KindAbort      MessageKind = 5
)

// Service identifies one of the five RPC services.
type Service byte

const (
	ServiceMetadata    Service = 1
	ServiceDynamic     Service = 2
	ServiceDocument    Service = 3
	ServiceTransaction Service = 4
	ServiceAdmin       Service = 5
)

func (s Service) String() string {
	switch s {
	case ServiceMetadata:
		return "MetadataService"
	case ServiceDynamic:
		return "DynamicService"
	case ServiceDocument:
		return "DocumentService"
	case ServiceTransaction:
		return "TransactionService"
	case ServiceAdmin:
		return "AdminService"
	default:
		return "UnknownService"
	}
}

// Envelope is one framed RPC message: a message kind, the (service,
// method) pair the call is addressed to, a correlation id the client
// picks and the server echoes back on every reply frame belonging to
// that call, and an opaque payload whose shape depends on kind/method.
type Envelope struct {
	Kind          MessageKind
	Service       Service
	Method        byte
	CorrelationID uint32
	Payload       []byte
}

// Encode serialises an Envelope into one websocket binary message:
// kind(1) + service(1) + method(1) + correlationId(4, big-endian) +
// payload.
func Encode(e Envelope) []byte {
	buf := make([]byte, 7+len(e.Payload))
	buf[0] = byte(e.Kind)
	buf[1] = byte(e.Service)
	buf[2] = e.Method
	binary.BigEndian.PutUint32(buf[3:7], e.CorrelationID)
	copy(buf[7:], e.Payload)
	return buf
}

// Decode parses one websocket binary message produced by Encode.
func Decode(data []byte) (Envelope, error) {
	if len(data) < 7 {
		return Envelope{}, fmt.Errorf("rpcsurface: envelope too short (%d bytes)", len(data))
	}
	return Envelope{
		Kind:          MessageKind(data[0]),
		Service:       Service(data[1]),
		Method:        data[2],
		CorrelationID: binary.BigEndian.Uint32(data[3:7]),
		Payload:       data[7:],
	}, nil
}

// payloadWriter accumulates one envelope's payload using queryd's
// exported scalar-framing helpers.
type payloadWriter struct {
	buf bytes.Buffer
}

func (w *payloadWriter) writeString(s string) { queryd.WriteString(&w.buf, s) }
func (w *payloadWriter) writeUvarint(v uint64) { queryd.WriteUvarint(&w.buf, v) }
func (w *payloadWriter) writeBool(b bool) {
	if b {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}
func (w *payloadWriter) writeBytes(b []byte) {
	w.writeUvarint(uint64(len(b)))
	w.buf.Write(b)
}
func (w *payloadWriter) bytes() []byte { return w.buf.Bytes() }

// payloadReader parses one envelope's payload using queryd's exported
// scalar-framing helpers.
type payloadReader struct {
	r *bytes.Reader
}

func newPayloadReader(payload []byte) *payloadReader {
	return &payloadReader{r: bytes.NewReader(payload)}
}

func (r *payloadReader) readString() (string, error) { return queryd.ReadString(r.r) }
func (r *payloadReader) readUvarint() (uint64, error) { return queryd.ReadUvarint(r.r) }
func (r *payloadReader) readBool() (bool, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return false, fmt.Errorf("rpcsurface: truncated bool")
	}
	return b != 0, nil
}
func (r *payloadReader) readBytes() ([]byte, error) {
	n, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if err := queryd.ReadFull(r.r, b); err != nil {
		return nil, err
	}
	return b, nil
}
