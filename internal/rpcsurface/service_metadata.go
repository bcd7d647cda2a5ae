package rpcsurface

import (
	"context"
	"strings"

	"github.com/blite-io/blite-server/internal/identity"
)

// Metadata service methods (spec.md §4.7): clients negotiate their local
// dictionary copy here before encoding a single field they haven't
// registered.
const (
	methodGetKeyMap    byte = 1
	methodRegisterKeys byte = 2
)

func init() {
	registerUnary(ServiceMetadata, methodGetKeyMap, "GetKeyMap", handleGetKeyMap)
	registerUnary(ServiceMetadata, methodRegisterKeys, "RegisterKeys", handleRegisterKeys)
}

// handleGetKeyMap returns the anchor collection's entire name->id
// dictionary snapshot. Only Query on the anchor is required: reading the
// map never mutates anything.
func handleGetKeyMap(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	anchor, err := r.readString()
	if err != nil {
		return nil, err
	}

	cc, err := s.resolve(c, databaseID, anchor, identity.OpQuery, "")
	if err != nil {
		return nil, err
	}

	snapshot := cc.eng.Dictionary().Snapshot()
	w := &payloadWriter{}
	w.writeUvarint(uint64(len(snapshot)))
	for name, id := range snapshot {
		w.writeString(name)
		w.writeUvarint(uint64(id))
	}
	return w.bytes(), nil
}

// handleRegisterKeys registers (lowercased) names idempotently and
// returns id assignments for the requested names only, per spec.md
// §4.7 — typed clients call this before their first write.
func handleRegisterKeys(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	anchor, err := r.readString()
	if err != nil {
		return nil, err
	}
	count, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	names := make([]string, count)
	for i := range names {
		names[i], err = r.readString()
		if err != nil {
			return nil, err
		}
	}

	cc, err := s.resolve(c, databaseID, anchor, identity.OpInsert, "")
	if err != nil {
		return nil, err
	}

	assigned := cc.eng.Dictionary().Register(cc.physical, names)
	w := &payloadWriter{}
	w.writeUvarint(uint64(len(names)))
	for _, name := range names {
		normalized := strings.ToLower(strings.TrimSpace(name))
		w.writeString(normalized)
		w.writeUvarint(uint64(assigned[normalized]))
	}
	return w.bytes(), nil
}
