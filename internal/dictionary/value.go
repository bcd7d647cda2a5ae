package dictionary

// Kind tags the scalar and composite value types the codec can carry
// (spec.md §3, §4.1).
type Kind byte

const (
	KindNull Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindFloat64
	KindString
	KindTimestamp
	KindUUID
	KindObjectID
	KindBytes
	KindArray
	KindDocument
	KindVector
)

// Value is a tagged union covering every scalar kind in spec.md §3 plus
// arrays, nested documents, and a float32 vector kind used by the
// embedding pipeline.
type Value struct {
	Kind    Kind
	Bool    bool
	Int64   int64
	Float64 float64
	Str     string
	Bytes   []byte
	Array   []Value
	Doc     Document
	Vector  []float32
}

// Document is a flat or nested field-name -> Value map, the server-side
// model the codec encodes from and decodes into.
type Document map[string]Value

func VNull() Value                 { return Value{Kind: KindNull} }
func VBool(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func VInt32(i int32) Value         { return Value{Kind: KindInt32, Int64: int64(i)} }
func VInt64(i int64) Value         { return Value{Kind: KindInt64, Int64: i} }
func VFloat64(f float64) Value     { return Value{Kind: KindFloat64, Float64: f} }
func VString(s string) Value       { return Value{Kind: KindString, Str: s} }
func VTimestamp(unixNano int64) Value {
	return Value{Kind: KindTimestamp, Int64: unixNano}
}
func VUUID(b [16]byte) Value       { return Value{Kind: KindUUID, Bytes: b[:]} }
func VObjectID(b [12]byte) Value   { return Value{Kind: KindObjectID, Bytes: b[:]} }
func VBytes(b []byte) Value        { return Value{Kind: KindBytes, Bytes: b} }
func VArray(vs []Value) Value      { return Value{Kind: KindArray, Array: vs} }
func VDocument(d Document) Value   { return Value{Kind: KindDocument, Doc: d} }
func VVector(v []float32) Value    { return Value{Kind: KindVector, Vector: v} }

// DocIDKind tags the identifier kinds in spec.md §3/§6.
type DocIDKind byte

const (
	DocIDObjectID DocIDKind = iota
	DocIDInt32
	DocIDInt64
	DocIDUUID
	DocIDString
)

// DocID is the (bytes, kind) identifier pair from spec.md §6.
type DocID struct {
	Kind  DocIDKind
	Bytes []byte
}

func (d DocID) String() string {
	switch d.Kind {
	case DocIDString:
		return string(d.Bytes)
	default:
		return hexEncode(d.Bytes)
	}
}

func hexEncode(b []byte) string {
	const hex = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hex[c>>4]
		out[i*2+1] = hex[c&0x0f]
	}
	return string(out)
}
