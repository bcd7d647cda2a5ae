package queryd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// wireVersion is the descriptor wire format version. spec.md §9 leaves the
// exact serialised form (compression framing, versioning) implementation
// defined; this repo pins version 1, uncompressed, as the one authoritative
// form. A future version byte could add a compressed variant.
const wireVersion = 1

// EncodeDescriptor serializes a Descriptor into the length-prefixed binary
// wire format from spec.md §4.4/§6.
func EncodeDescriptor(d *Descriptor) []byte {
	var buf bytes.Buffer
	buf.WriteByte(wireVersion)
	writeStr(&buf, d.Collection)
	if d.Where == nil {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
		encodeNode(&buf, d.Where)
	}
	writeUvarint(&buf, uint64(len(d.Select)))
	for _, f := range d.Select {
		writeStr(&buf, f)
	}
	writeUvarint(&buf, uint64(len(d.OrderBy)))
	for _, k := range d.OrderBy {
		writeStr(&buf, k.Field)
		if k.Descending {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(int64(d.Skip)))
	buf.Write(tmp[:])
	binary.LittleEndian.PutUint64(tmp[:], uint64(int64(d.Take)))
	buf.Write(tmp[:])
	return buf.Bytes()
}

// DecodeDescriptor parses bytes produced by EncodeDescriptor.
func DecodeDescriptor(data []byte) (*Descriptor, error) {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("queryd: truncated descriptor")
	}
	if version != wireVersion {
		return nil, fmt.Errorf("queryd: unsupported descriptor wire version %d", version)
	}
	d := &Descriptor{}
	d.Collection, err = readStr(r)
	if err != nil {
		return nil, err
	}
	hasWhere, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("queryd: truncated descriptor")
	}
	if hasWhere == 1 {
		node, err := decodeNode(r)
		if err != nil {
			return nil, err
		}
		d.Where = node
	}
	selCount, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < selCount; i++ {
		f, err := readStr(r)
		if err != nil {
			return nil, err
		}
		d.Select = append(d.Select, f)
	}
	orderCount, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < orderCount; i++ {
		field, err := readStr(r)
		if err != nil {
			return nil, err
		}
		descByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("queryd: truncated orderBy")
		}
		d.OrderBy = append(d.OrderBy, OrderKey{Field: field, Descending: descByte == 1})
	}
	var tmp [8]byte
	if err := readFull(r, tmp[:]); err != nil {
		return nil, err
	}
	d.Skip = int(int64(binary.LittleEndian.Uint64(tmp[:])))
	if err := readFull(r, tmp[:]); err != nil {
		return nil, err
	}
	d.Take = int(int64(binary.LittleEndian.Uint64(tmp[:])))
	return d, nil
}

func encodeNode(buf *bytes.Buffer, n *FilterNode) {
	buf.WriteByte(byte(n.Kind))
	switch n.Kind {
	case NodeBinary:
		writeStr(buf, n.Field)
		writeStr(buf, string(n.BinOp))
		if n.BinOp == OpIn {
			writeUvarint(buf, uint64(len(n.Values)))
			for _, v := range n.Values {
				encodeScalar(buf, v)
			}
		} else {
			encodeScalar(buf, n.Value)
		}
	case NodeLogical:
		writeStr(buf, string(n.LogicalOp))
		writeUvarint(buf, uint64(len(n.Children)))
		for _, c := range n.Children {
			encodeNode(buf, c)
		}
	case NodeUnary:
		encodeNode(buf, n.Negated)
	}
}

func decodeNode(r *bytes.Reader) (*FilterNode, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("queryd: truncated filter node")
	}
	n := &FilterNode{Kind: NodeKind(kindByte)}
	switch n.Kind {
	case NodeBinary:
		n.Field, err = readStr(r)
		if err != nil {
			return nil, err
		}
		opStr, err := readStr(r)
		if err != nil {
			return nil, err
		}
		n.BinOp = Op(opStr)
		if n.BinOp == OpIn {
			count, err := readUvarint(r)
			if err != nil {
				return nil, err
			}
			for i := uint64(0); i < count; i++ {
				v, err := decodeScalar(r)
				if err != nil {
					return nil, err
				}
				n.Values = append(n.Values, v)
			}
		} else {
			n.Value, err = decodeScalar(r)
			if err != nil {
				return nil, err
			}
		}
	case NodeLogical:
		opStr, err := readStr(r)
		if err != nil {
			return nil, err
		}
		n.LogicalOp = LogicalOp(opStr)
		count, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		for i := uint64(0); i < count; i++ {
			child, err := decodeNode(r)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		}
	case NodeUnary:
		n.Negated, err = decodeNode(r)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("queryd: unknown filter node kind %d", kindByte)
	}
	return n, nil
}

func encodeScalar(buf *bytes.Buffer, s Scalar) {
	buf.WriteByte(byte(s.Kind))
	switch s.Kind {
	case ScalarNull:
	case ScalarBool:
		if s.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case ScalarInt32, ScalarInt64, ScalarTimestamp:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(s.Int64))
		buf.Write(tmp[:])
	case ScalarFloat64:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(s.Float64))
		buf.Write(tmp[:])
	case ScalarDecimal, ScalarString:
		writeStr(buf, s.Str)
	case ScalarUUID, ScalarObjectID:
		writeUvarint(buf, uint64(len(s.Bytes)))
		buf.Write(s.Bytes)
	}
}

func decodeScalar(r *bytes.Reader) (Scalar, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return Scalar{}, fmt.Errorf("queryd: truncated scalar")
	}
	s := Scalar{Kind: ScalarKind(kindByte)}
	switch s.Kind {
	case ScalarNull:
	case ScalarBool:
		b, err := r.ReadByte()
		if err != nil {
			return Scalar{}, fmt.Errorf("queryd: truncated bool scalar")
		}
		s.Bool = b != 0
	case ScalarInt32, ScalarInt64, ScalarTimestamp:
		var tmp [8]byte
		if err := readFull(r, tmp[:]); err != nil {
			return Scalar{}, err
		}
		s.Int64 = int64(binary.LittleEndian.Uint64(tmp[:]))
	case ScalarFloat64:
		var tmp [8]byte
		if err := readFull(r, tmp[:]); err != nil {
			return Scalar{}, err
		}
		s.Float64 = math.Float64frombits(binary.LittleEndian.Uint64(tmp[:]))
	case ScalarDecimal, ScalarString:
		s.Str, err = readStr(r)
		if err != nil {
			return Scalar{}, err
		}
	case ScalarUUID, ScalarObjectID:
		n, err := readUvarint(r)
		if err != nil {
			return Scalar{}, err
		}
		s.Bytes = make([]byte, n)
		if err := readFull(r, s.Bytes); err != nil {
			return Scalar{}, err
		}
	default:
		return Scalar{}, fmt.Errorf("queryd: unknown scalar kind %d", kindByte)
	}
	return s, nil
}

func writeStr(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readStr(r *bytes.Reader) (string, error) {
	n, err := readUvarint(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if err := readFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, fmt.Errorf("queryd: truncated varint")
	}
	return v, nil
}

func readFull(r *bytes.Reader, buf []byte) error {
	n, err := r.Read(buf)
	if err != nil || n != len(buf) {
		return fmt.Errorf("queryd: truncated buffer")
	}
	return nil
}

// WriteString and the other Write/Read exported functions below reuse this
// file's length-prefixed scalar encoding for internal/rpcsurface's envelope
// codec, so the RPC wire format and the descriptor wire format share one
// uvarint/string idiom instead of each package rolling its own.

// WriteString appends a length-prefixed UTF-8 string to buf.
func WriteString(buf *bytes.Buffer, s string) { writeStr(buf, s) }

// ReadString reads a length-prefixed UTF-8 string from r.
func ReadString(r *bytes.Reader) (string, error) { return readStr(r) }

// WriteUvarint appends v to buf as an unsigned varint.
func WriteUvarint(buf *bytes.Buffer, v uint64) { writeUvarint(buf, v) }

// ReadUvarint reads an unsigned varint from r.
func ReadUvarint(r *bytes.Reader) (uint64, error) { return readUvarint(r) }

// ReadFull reads exactly len(buf) bytes from r.
func ReadFull(r *bytes.Reader, buf []byte) error { return readFull(r, buf) }
