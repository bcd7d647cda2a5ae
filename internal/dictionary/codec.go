package dictionary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// codecVersion is the single wire-format version emitted today. A future
// version could add compression; see SPEC_FULL.md §9.
const codecVersion = 1

// Encode serializes doc plus its document identifier into the bespoke
// on-the-wire document format from spec.md §4.1: a framed sequence of
// (id, type-tag, value) triples using ids resolved through forward. It
// fails if a field name in doc has no entry in forward.
func Encode(doc Document, id DocID, forward map[string]ID) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(codecVersion)
	buf.WriteByte(byte(id.Kind))
	writeUvarint(&buf, uint64(len(id.Bytes)))
	buf.Write(id.Bytes)

	writeUvarint(&buf, uint64(len(doc)))
	for name, v := range doc {
		fid, ok := forward[normalize(name)]
		if !ok {
			return nil, fmt.Errorf("dictionary: field %q has no assigned id", name)
		}
		writeUvarint(&buf, uint64(fid))
		if err := encodeValue(&buf, v, forward); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode back into a Document and its
// identifier, resolving field ids through reverse. It fails if an id in
// the bytes has no entry in reverse.
func Decode(data []byte, reverse map[ID]string) (Document, DocID, error) {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return nil, DocID{}, fmt.Errorf("dictionary: truncated buffer")
	}
	if version != codecVersion {
		return nil, DocID{}, fmt.Errorf("dictionary: unsupported codec version %d", version)
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, DocID{}, fmt.Errorf("dictionary: truncated identifier")
	}
	idLen, err := readUvarint(r)
	if err != nil {
		return nil, DocID{}, err
	}
	idBytes := make([]byte, idLen)
	if _, err := r.Read(idBytes); err != nil && idLen > 0 {
		return nil, DocID{}, fmt.Errorf("dictionary: truncated identifier bytes")
	}
	id := DocID{Kind: DocIDKind(kindByte), Bytes: idBytes}

	fieldCount, err := readUvarint(r)
	if err != nil {
		return nil, DocID{}, err
	}
	doc := make(Document, fieldCount)
	for i := uint64(0); i < fieldCount; i++ {
		fid, err := readUvarint(r)
		if err != nil {
			return nil, DocID{}, err
		}
		name, ok := reverse[ID(fid)]
		if !ok {
			return nil, DocID{}, fmt.Errorf("dictionary: unknown field id %d", fid)
		}
		v, err := decodeValue(r, reverse)
		if err != nil {
			return nil, DocID{}, err
		}
		doc[name] = v
	}
	return doc, id, nil
}

func encodeValue(buf *bytes.Buffer, v Value, forward map[string]ID) error {
	buf.WriteByte(byte(v.Kind))
	switch v.Kind {
	case KindNull:
	case KindBool:
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindInt32:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(int32(v.Int64)))
		buf.Write(tmp[:])
	case KindInt64, KindTimestamp:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(v.Int64))
		buf.Write(tmp[:])
	case KindFloat64:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v.Float64))
		buf.Write(tmp[:])
	case KindString:
		writeUvarint(buf, uint64(len(v.Str)))
		buf.WriteString(v.Str)
	case KindUUID, KindObjectID, KindBytes:
		writeUvarint(buf, uint64(len(v.Bytes)))
		buf.Write(v.Bytes)
	case KindArray:
		writeUvarint(buf, uint64(len(v.Array)))
		for _, item := range v.Array {
			if err := encodeValue(buf, item, forward); err != nil {
				return err
			}
		}
	case KindDocument:
		writeUvarint(buf, uint64(len(v.Doc)))
		for name, item := range v.Doc {
			fid, ok := forward[normalize(name)]
			if !ok {
				return fmt.Errorf("dictionary: field %q has no assigned id", name)
			}
			writeUvarint(buf, uint64(fid))
			if err := encodeValue(buf, item, forward); err != nil {
				return err
			}
		}
	case KindVector:
		writeUvarint(buf, uint64(len(v.Vector)))
		for _, f := range v.Vector {
			var tmp [4]byte
			binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(f))
			buf.Write(tmp[:])
		}
	default:
		return fmt.Errorf("dictionary: unknown value kind %d", v.Kind)
	}
	return nil
}

func decodeValue(r *bytes.Reader, reverse map[ID]string) (Value, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return Value{}, fmt.Errorf("dictionary: truncated value")
	}
	kind := Kind(kindByte)
	switch kind {
	case KindNull:
		return Value{Kind: KindNull}, nil
	case KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return Value{}, fmt.Errorf("dictionary: truncated bool")
		}
		return Value{Kind: KindBool, Bool: b != 0}, nil
	case KindInt32:
		var tmp [4]byte
		if _, err := readFull(r, tmp[:]); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindInt32, Int64: int64(int32(binary.LittleEndian.Uint32(tmp[:])))}, nil
	case KindInt64, KindTimestamp:
		var tmp [8]byte
		if _, err := readFull(r, tmp[:]); err != nil {
			return Value{}, err
		}
		return Value{Kind: kind, Int64: int64(binary.LittleEndian.Uint64(tmp[:]))}, nil
	case KindFloat64:
		var tmp [8]byte
		if _, err := readFull(r, tmp[:]); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindFloat64, Float64: math.Float64frombits(binary.LittleEndian.Uint64(tmp[:]))}, nil
	case KindString:
		n, err := readUvarint(r)
		if err != nil {
			return Value{}, err
		}
		s := make([]byte, n)
		if _, err := readFull(r, s); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindString, Str: string(s)}, nil
	case KindUUID, KindObjectID, KindBytes:
		n, err := readUvarint(r)
		if err != nil {
			return Value{}, err
		}
		b := make([]byte, n)
		if _, err := readFull(r, b); err != nil {
			return Value{}, err
		}
		return Value{Kind: kind, Bytes: b}, nil
	case KindArray:
		n, err := readUvarint(r)
		if err != nil {
			return Value{}, err
		}
		arr := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			item, err := decodeValue(r, reverse)
			if err != nil {
				return Value{}, err
			}
			arr = append(arr, item)
		}
		return Value{Kind: KindArray, Array: arr}, nil
	case KindDocument:
		n, err := readUvarint(r)
		if err != nil {
			return Value{}, err
		}
		doc := make(Document, n)
		for i := uint64(0); i < n; i++ {
			fid, err := readUvarint(r)
			if err != nil {
				return Value{}, err
			}
			name, ok := reverse[ID(fid)]
			if !ok {
				return Value{}, fmt.Errorf("dictionary: unknown field id %d", fid)
			}
			item, err := decodeValue(r, reverse)
			if err != nil {
				return Value{}, err
			}
			doc[name] = item
		}
		return Value{Kind: KindDocument, Doc: doc}, nil
	case KindVector:
		n, err := readUvarint(r)
		if err != nil {
			return Value{}, err
		}
		vec := make([]float32, n)
		for i := range vec {
			var tmp [4]byte
			if _, err := readFull(r, tmp[:]); err != nil {
				return Value{}, err
			}
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(tmp[:]))
		}
		return Value{Kind: KindVector, Vector: vec}, nil
	default:
		return Value{}, fmt.Errorf("dictionary: unknown value kind %d", kind)
	}
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err != nil || n != len(buf) {
		return n, fmt.Errorf("dictionary: truncated buffer")
	}
	return n, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, fmt.Errorf("dictionary: truncated varint")
	}
	return v, nil
}
