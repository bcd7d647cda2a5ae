package rpcsurface

import "github.com/blite-io/blite-server/internal/dictionary"

// writeDocID frames a dictionary.DocID as kind(1) + length-prefixed bytes,
// the RPC surface's own identifier wire shape (spec.md §6's "Document
// identifier wire contract", expressed over the envelope payload instead
// of HTTP's hex-string JSON spelling).
func (w *payloadWriter) writeDocID(id dictionary.DocID) {
	w.buf.WriteByte(byte(id.Kind))
	w.writeBytes(id.Bytes)
}

func (r *payloadReader) readDocID() (dictionary.DocID, error) {
	kindByte, err := r.r.ReadByte()
	if err != nil {
		return dictionary.DocID{}, err
	}
	b, err := r.readBytes()
	if err != nil {
		return dictionary.DocID{}, err
	}
	return dictionary.DocID{Kind: dictionary.DocIDKind(kindByte), Bytes: b}, nil
}
