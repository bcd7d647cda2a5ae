package memengine

import (
	"bufio"
	"context"
	"encoding/binary"
	"os"
	"sort"

	"github.com/blite-io/blite-server/internal/dictionary"
	"github.com/blite-io/blite-server/internal/svcerr"
)

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

// BackupToPath writes a length-prefixed dump of every collection, encoding
// each document through the same field-dictionary codec used on the wire
// (spec.md §4.1), to path. The on-disk page/WAL format a real engine would
// use is out of scope (spec.md §1); this is a reference snapshot format.
// The field dictionary the documents were encoded with is not written to
// the file, and memengine has no routine that reads a backup back in.
func (e *Engine) BackupToPath(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return svcerr.Internal("creating backup file", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.collections))
	for name := range e.collections {
		names = append(names, name)
	}
	sort.Strings(names)

	writeUvarint(w, uint64(len(names)))
	for _, name := range names {
		c := e.collections[name]
		writeStr(w, name)
		writeUvarint(w, uint64(len(c.docs)))
		for _, key := range c.order {
			sd, ok := c.docs[key]
			if !ok {
				continue
			}
			fieldSet := make(map[string]struct{})
			collectFieldNames(sd.doc, fieldSet)
			fieldNames := make([]string, 0, len(fieldSet))
			for n := range fieldSet {
				fieldNames = append(fieldNames, n)
			}
			forward := e.dict.Register(name, fieldNames)
			encoded, err := dictionary.Encode(sd.doc, sd.id, forward)
			if err != nil {
				return svcerr.Internal("encoding document for backup", err)
			}
			writeUvarint(w, uint64(len(encoded)))
			if _, err := w.Write(encoded); err != nil {
				return svcerr.Internal("writing backup entry", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return svcerr.Internal("flushing backup file", err)
	}
	return nil
}

func writeUvarint(w *bufio.Writer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.Write(tmp[:n])
}

func writeStr(w *bufio.Writer, s string) {
	writeUvarint(w, uint64(len(s)))
	w.WriteString(s)
}
