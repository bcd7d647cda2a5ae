package httpapi

import (
	"encoding/hex"
	"fmt"

	"github.com/blite-io/blite-server/internal/dictionary"
)

// docIDKindNames mirrors spec.md §6's identifier-kind vocabulary in its
// JSON spelling.
var docIDKindNames = map[dictionary.DocIDKind]string{
	dictionary.DocIDObjectID: "objectId",
	dictionary.DocIDString:   "string",
	dictionary.DocIDInt32:    "int32",
	dictionary.DocIDInt64:    "int64",
	dictionary.DocIDUUID:     "uuid",
}

var docIDKindValues = map[string]dictionary.DocIDKind{
	"objectId": dictionary.DocIDObjectID,
	"string":   dictionary.DocIDString,
	"int32":    dictionary.DocIDInt32,
	"int64":    dictionary.DocIDInt64,
	"uuid":     dictionary.DocIDUUID,
}

// docIDJSON is the HTTP-surface spelling of the (bytes, kind) pair.
type docIDJSON struct {
	Kind  string `json:"kind"`
	Bytes string `json:"bytes"`
}

func docIDToJSON(id dictionary.DocID) docIDJSON {
	return docIDJSON{Kind: docIDKindNames[id.Kind], Bytes: hex.EncodeToString(id.Bytes)}
}

// routeDocID interprets a path-segment document id. Memengine's default
// Insert mints 12-byte ObjectIDs and this surface renders them as hex
// (docIDToJSON), so a 24-hex-char segment is treated as an ObjectID;
// anything else is a string id, matching whatever kind the caller
// originally supplied on insert.
func routeDocID(raw string) (dictionary.DocID, error) {
	if len(raw) == 24 {
		if b, err := hex.DecodeString(raw); err == nil {
			return dictionary.DocID{Kind: dictionary.DocIDObjectID, Bytes: b}, nil
		}
	}
	return dictionary.DocID{Kind: dictionary.DocIDString, Bytes: []byte(raw)}, nil
}

func docIDFromJSON(j docIDJSON) (dictionary.DocID, error) {
	kind, ok := docIDKindValues[j.Kind]
	if !ok {
		return dictionary.DocID{}, fmt.Errorf("httpapi: unknown document id kind %q", j.Kind)
	}
	if kind == dictionary.DocIDString {
		return dictionary.DocID{Kind: kind, Bytes: []byte(j.Bytes)}, nil
	}
	b, err := hex.DecodeString(j.Bytes)
	if err != nil {
		return dictionary.DocID{}, fmt.Errorf("httpapi: invalid hex document id bytes: %w", err)
	}
	return dictionary.DocID{Kind: kind, Bytes: b}, nil
}

// documentToJSON renders a dictionary.Document as a plain JSON-friendly
// map. This is the HTTP surface's own document encoding, separate from
// the binary field-dictionary codec the RPC surface uses.
func documentToJSON(doc dictionary.Document) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = valueToJSON(v)
	}
	return out
}

func valueToJSON(v dictionary.Value) interface{} {
	switch v.Kind {
	case dictionary.KindNull:
		return nil
	case dictionary.KindBool:
		return v.Bool
	case dictionary.KindInt32, dictionary.KindInt64, dictionary.KindTimestamp:
		return v.Int64
	case dictionary.KindFloat64:
		return v.Float64
	case dictionary.KindString:
		return v.Str
	case dictionary.KindUUID, dictionary.KindObjectID, dictionary.KindBytes:
		return hex.EncodeToString(v.Bytes)
	case dictionary.KindArray:
		out := make([]interface{}, len(v.Array))
		for i, e := range v.Array {
			out[i] = valueToJSON(e)
		}
		return out
	case dictionary.KindDocument:
		return documentToJSON(v.Doc)
	case dictionary.KindVector:
		out := make([]float64, len(v.Vector))
		for i, e := range v.Vector {
			out[i] = float64(e)
		}
		return out
	default:
		return nil
	}
}

// documentFromJSON infers dictionary.Value kinds from decoded JSON Go
// types (the result of encoding/json's default map[string]interface{}
// decoding): bool, float64, string, nil, []interface{}, map[string]interface{}.
func documentFromJSON(m map[string]interface{}) dictionary.Document {
	out := make(dictionary.Document, len(m))
	for k, v := range m {
		out[k] = valueFromJSON(v)
	}
	return out
}

func valueFromJSON(v interface{}) dictionary.Value {
	switch t := v.(type) {
	case nil:
		return dictionary.VNull()
	case bool:
		return dictionary.VBool(t)
	case float64:
		if t == float64(int64(t)) {
			return dictionary.VInt64(int64(t))
		}
		return dictionary.VFloat64(t)
	case string:
		return dictionary.VString(t)
	case []interface{}:
		arr := make([]dictionary.Value, len(t))
		for i, e := range t {
			arr[i] = valueFromJSON(e)
		}
		return dictionary.VArray(arr)
	case map[string]interface{}:
		return dictionary.VDocument(documentFromJSON(t))
	default:
		return dictionary.VNull()
	}
}
