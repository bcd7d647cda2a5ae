package rpcsurface

import (
	"github.com/blite-io/blite-server/internal/dictionary"
	"github.com/blite-io/blite-server/internal/engine"
)

// collectFieldNames gathers every field name appearing in doc, recursing
// into nested documents and arrays of documents, grounded on
// memengine/backup.go's helper of the same shape: the field dictionary
// needs an id for every name the codec will encode, not just the
// top-level ones.
func collectFieldNames(doc dictionary.Document, into map[string]struct{}) {
	for name, v := range doc {
		into[name] = struct{}{}
		switch v.Kind {
		case dictionary.KindDocument:
			collectFieldNames(v.Doc, into)
		case dictionary.KindArray:
			for _, item := range v.Array {
				if item.Kind == dictionary.KindDocument {
					collectFieldNames(item.Doc, into)
				}
			}
		}
	}
}

// encodeDoc registers doc's field names against eng's dictionary and
// returns the binary codec form the RPC surface puts on the wire (spec.md
// §4.1's "compact on-the-wire document format").
func encodeDoc(eng engine.Engine, collection string, doc dictionary.Document, id dictionary.DocID) ([]byte, error) {
	names := make(map[string]struct{})
	collectFieldNames(doc, names)
	fieldNames := make([]string, 0, len(names))
	for n := range names {
		fieldNames = append(fieldNames, n)
	}
	forward := eng.Dictionary().Register(collection, fieldNames)
	return dictionary.Encode(doc, id, forward)
}

// decodeDoc inverts eng's dictionary snapshot and decodes data produced by
// a client using the same field-id assignment (spec.md §4.7's
// GetKeyMap/RegisterKeys round trip).
func decodeDoc(eng engine.Engine, data []byte) (dictionary.Document, dictionary.DocID, error) {
	forward := eng.Dictionary().Snapshot()
	reverse := make(map[dictionary.ID]string, len(forward))
	for name, id := range forward {
		reverse[id] = name
	}
	return dictionary.Decode(data, reverse)
}
