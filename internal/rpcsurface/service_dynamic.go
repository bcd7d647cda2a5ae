package rpcsurface

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/blite-io/blite-server/internal/cache"
	"github.com/blite-io/blite-server/internal/dictionary"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/queryd"
	"github.com/blite-io/blite-server/internal/svcerr"
)

func secondsToDuration(seconds uint64) time.Duration { return time.Duration(seconds) * time.Second }

func putFloat64(buf []byte, f float64) { binary.BigEndian.PutUint64(buf, math.Float64bits(f)) }

// Dynamic/Document service methods (spec.md §4.9). Both services share
// these method codes; only the Service byte in the envelope differs, and
// DocumentService additionally carries a typeName hint neither service
// validates against a schema (spec.md §9's open-question resolution).
const (
	methodInsert              byte = 1
	methodFindByID            byte = 2
	methodUpdate              byte = 3
	methodDelete              byte = 4
	methodBulkInsert          byte = 5
	methodBulkUpdate          byte = 6
	methodBulkDelete          byte = 7
	methodQuery               byte = 8
	methodListCollections     byte = 9
	methodDropCollection      byte = 10
	methodCreateIndex         byte = 11
	methodDropIndex           byte = 12
	methodListIndexes         byte = 13
	methodSetVectorSource     byte = 14
	methodGetVectorSource     byte = 15
	methodSetSchema           byte = 16
	methodGetSchema           byte = 17
	methodConfigureTimeSeries byte = 18
	methodGetTimeSeriesInfo   byte = 19
	methodVectorSearch        byte = 20
)

func init() {
	registerDocCRUD(ServiceDynamic)
	registerUnary(ServiceDynamic, methodListCollections, "ListCollections", handleListCollections)
	registerUnary(ServiceDynamic, methodDropCollection, "DropCollection", handleDropCollection)
	registerUnary(ServiceDynamic, methodCreateIndex, "CreateIndex", handleCreateIndex)
	registerUnary(ServiceDynamic, methodDropIndex, "DropIndex", handleDropIndex)
	registerUnary(ServiceDynamic, methodListIndexes, "ListIndexes", handleListIndexes)
	registerUnary(ServiceDynamic, methodSetVectorSource, "SetVectorSource", handleSetVectorSource)
	registerUnary(ServiceDynamic, methodGetVectorSource, "GetVectorSource", handleGetVectorSource)
	registerUnary(ServiceDynamic, methodSetSchema, "SetSchema", handleSetSchema)
	registerUnary(ServiceDynamic, methodGetSchema, "GetSchema", handleGetSchema)
	registerUnary(ServiceDynamic, methodConfigureTimeSeries, "ConfigureTimeSeries", handleConfigureTimeSeries)
	registerUnary(ServiceDynamic, methodGetTimeSeriesInfo, "GetTimeSeriesInfo", handleGetTimeSeriesInfo)
	registerStream(ServiceDynamic, methodQuery, "Query", handleQuery)
	registerStream(ServiceDynamic, methodVectorSearch, "VectorSearch", handleVectorSearch)
}

// registerDocCRUD wires the CRUD method set shared by Dynamic and
// Document into service's slot of the dispatch table.
func registerDocCRUD(service Service) {
	registerUnary(service, methodInsert, "Insert", handleInsert)
	registerUnary(service, methodFindByID, "FindById", handleFindByID)
	registerUnary(service, methodUpdate, "Update", handleUpdate)
	registerUnary(service, methodDelete, "Delete", handleDelete)
	registerUnary(service, methodBulkInsert, "BulkInsert", handleBulkInsert)
	registerUnary(service, methodBulkUpdate, "BulkUpdate", handleBulkUpdate)
	registerUnary(service, methodBulkDelete, "BulkDelete", handleBulkDelete)
}

// callHeader is the common prefix every Dynamic/Document CRUD request
// carries: which database/collection it targets, the optional transaction
// it should route through, and (DocumentService only) the typeName hint.
type callHeader struct {
	databaseID    string
	collection    string
	transactionID string
	typeName      string
}

func readCallHeader(r *payloadReader) (callHeader, error) {
	var h callHeader
	var err error
	if h.databaseID, err = r.readString(); err != nil {
		return h, err
	}
	if h.collection, err = r.readString(); err != nil {
		return h, err
	}
	if h.transactionID, err = r.readString(); err != nil {
		return h, err
	}
	if h.typeName, err = r.readString(); err != nil {
		return h, err
	}
	return h, nil
}

func handleInsert(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	h, err := readCallHeader(r)
	if err != nil {
		return nil, err
	}
	docBytes, err := r.readBytes()
	if err != nil {
		return nil, err
	}

	cc, err := s.resolve(c, h.databaseID, h.collection, identity.OpInsert, h.transactionID)
	if err != nil {
		return nil, err
	}
	doc, _, err := decodeDoc(cc.eng, docBytes)
	if err != nil {
		return nil, svcerr.InvalidInput("malformed document payload: " + err.Error())
	}
	id, err := cc.eng.Insert(ctx, cc.tx, cc.physical, doc, nil)
	if err != nil {
		return nil, err
	}
	s.markDirty(cc)

	w := &payloadWriter{}
	w.writeDocID(id)
	return w.bytes(), nil
}

func handleFindByID(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	h, err := readCallHeader(r)
	if err != nil {
		return nil, err
	}
	id, err := r.readDocID()
	if err != nil {
		return nil, err
	}

	cc, err := s.resolve(c, h.databaseID, h.collection, identity.OpQuery, h.transactionID)
	if err != nil {
		return nil, err
	}
	doc, found, err := cc.eng.FindByID(ctx, cc.tx, cc.physical, id)
	if err != nil {
		return nil, err
	}

	w := &payloadWriter{}
	if !found {
		w.writeBool(false)
		return w.bytes(), nil
	}
	encoded, err := encodeDoc(cc.eng, cc.physical, doc, id)
	if err != nil {
		return nil, svcerr.Internal("encoding document", err)
	}
	w.writeBool(true)
	w.writeBytes(encoded)
	w.writeString(h.typeName)
	return w.bytes(), nil
}

func handleUpdate(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	h, err := readCallHeader(r)
	if err != nil {
		return nil, err
	}
	id, err := r.readDocID()
	if err != nil {
		return nil, err
	}
	docBytes, err := r.readBytes()
	if err != nil {
		return nil, err
	}

	cc, err := s.resolve(c, h.databaseID, h.collection, identity.OpUpdate, h.transactionID)
	if err != nil {
		return nil, err
	}
	doc, _, err := decodeDoc(cc.eng, docBytes)
	if err != nil {
		return nil, svcerr.InvalidInput("malformed document payload: " + err.Error())
	}
	found, err := cc.eng.Update(ctx, cc.tx, cc.physical, id, doc)
	if err != nil {
		return nil, err
	}
	if found {
		s.markDirty(cc)
	}

	w := &payloadWriter{}
	w.writeBool(found)
	return w.bytes(), nil
}

func handleDelete(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	h, err := readCallHeader(r)
	if err != nil {
		return nil, err
	}
	id, err := r.readDocID()
	if err != nil {
		return nil, err
	}

	cc, err := s.resolve(c, h.databaseID, h.collection, identity.OpDelete, h.transactionID)
	if err != nil {
		return nil, err
	}
	found, err := cc.eng.Delete(ctx, cc.tx, cc.physical, id)
	if err != nil {
		return nil, err
	}
	if found {
		s.markDirty(cc)
	}

	w := &payloadWriter{}
	w.writeBool(found)
	return w.bytes(), nil
}

func handleBulkInsert(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	h, err := readCallHeader(r)
	if err != nil {
		return nil, err
	}
	count, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	docs := make([][]byte, count)
	for i := range docs {
		if docs[i], err = r.readBytes(); err != nil {
			return nil, err
		}
	}

	cc, err := s.resolve(c, h.databaseID, h.collection, identity.OpInsert, h.transactionID)
	if err != nil {
		return nil, err
	}
	w := &payloadWriter{}
	w.writeUvarint(uint64(len(docs)))
	for _, raw := range docs {
		doc, _, err := decodeDoc(cc.eng, raw)
		if err != nil {
			return nil, svcerr.InvalidInput("malformed document payload: " + err.Error())
		}
		id, err := cc.eng.Insert(ctx, cc.tx, cc.physical, doc, nil)
		if err != nil {
			return nil, err
		}
		w.writeDocID(id)
	}
	s.markDirty(cc)
	return w.bytes(), nil
}

func handleBulkUpdate(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	h, err := readCallHeader(r)
	if err != nil {
		return nil, err
	}
	count, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	type pair struct {
		id  dictionary.DocID
		doc []byte
	}
	pairs := make([]pair, count)
	for i := range pairs {
		if pairs[i].id, err = r.readDocID(); err != nil {
			return nil, err
		}
		if pairs[i].doc, err = r.readBytes(); err != nil {
			return nil, err
		}
	}

	cc, err := s.resolve(c, h.databaseID, h.collection, identity.OpUpdate, h.transactionID)
	if err != nil {
		return nil, err
	}
	w := &payloadWriter{}
	w.writeUvarint(uint64(len(pairs)))
	anyDirty := false
	for _, p := range pairs {
		doc, _, err := decodeDoc(cc.eng, p.doc)
		if err != nil {
			return nil, svcerr.InvalidInput("malformed document payload: " + err.Error())
		}
		found, err := cc.eng.Update(ctx, cc.tx, cc.physical, p.id, doc)
		if err != nil {
			return nil, err
		}
		if found {
			anyDirty = true
		}
		w.writeBool(found)
	}
	if anyDirty {
		s.markDirty(cc)
	}
	return w.bytes(), nil
}

func handleBulkDelete(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	h, err := readCallHeader(r)
	if err != nil {
		return nil, err
	}
	count, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	ids := make([]dictionary.DocID, count)
	for i := range ids {
		if ids[i], err = r.readDocID(); err != nil {
			return nil, err
		}
	}

	cc, err := s.resolve(c, h.databaseID, h.collection, identity.OpDelete, h.transactionID)
	if err != nil {
		return nil, err
	}
	w := &payloadWriter{}
	w.writeUvarint(uint64(len(ids)))
	anyDirty := false
	for _, id := range ids {
		found, err := cc.eng.Delete(ctx, cc.tx, cc.physical, id)
		if err != nil {
			return nil, err
		}
		if found {
			anyDirty = true
		}
		w.writeBool(found)
	}
	if anyDirty {
		s.markDirty(cc)
	}
	return w.bytes(), nil
}

// handleQuery streams documents matching a client-serialised
// queryd.Descriptor, caching whole result sets under
// cache.VariantBinaryQuery the same way httpapi's runQuery does (spec.md
// §5's cache-bypass-during-transaction rule applies equally here).
func handleQuery(ctx context.Context, s *Server, c *Conn, service Service, method byte, corr uint32, payload []byte) error {
	r := newPayloadReader(payload)
	h, err := readCallHeader(r)
	if err != nil {
		return err
	}
	descriptorBytes, err := r.readBytes()
	if err != nil {
		return err
	}

	cc, err := s.resolve(c, h.databaseID, h.collection, identity.OpQuery, h.transactionID)
	if err != nil {
		return err
	}
	d, err := queryd.DecodeDescriptor(descriptorBytes)
	if err != nil {
		return svcerr.InvalidInput("malformed query descriptor: " + err.Error())
	}
	d.Collection = cc.physical

	if cached, ok := s.cachedRead(cc, cache.VariantBinaryQuery, cache.HashParameters(descriptorBytes)); ok {
		for _, raw := range cached.([][]byte) {
			if err := c.send(Envelope{Kind: KindStreamItem, Service: service, Method: method, CorrelationID: corr, Payload: raw}); err != nil {
				return err
			}
		}
		return nil
	}

	iter, err := s.executor.Run(ctx, cc.eng, cc.tx, d)
	if err != nil {
		return err
	}
	defer iter.Close()

	var cacheable [][]byte
	cacheableOK := cc.tx == nil
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		doc, id, ok, err := iter.Next(ctx)
		if err != nil {
			return svcerr.Internal("running query", err)
		}
		if !ok {
			break
		}
		encoded, err := encodeDoc(cc.eng, cc.physical, doc, id)
		if err != nil {
			return svcerr.Internal("encoding document", err)
		}
		item := &payloadWriter{}
		item.writeBool(true)
		item.writeDocID(id)
		item.writeBytes(encoded)
		item.writeString(h.typeName)
		raw := item.bytes()
		if cacheableOK {
			cacheable = append(cacheable, raw)
		}
		if err := c.send(Envelope{Kind: KindStreamItem, Service: service, Method: method, CorrelationID: corr, Payload: raw}); err != nil {
			return err
		}
	}
	if cacheableOK {
		s.cacheStore(cc, cache.VariantBinaryQuery, cache.HashParameters(descriptorBytes), cacheable)
	}
	return nil
}

func handleListCollections(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	cc, err := s.resolve(c, databaseID, "*", identity.OpQuery, "")
	if err != nil {
		return nil, err
	}
	names, err := cc.eng.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	logical := make([]string, 0, len(names))
	for _, n := range names {
		if l, owned := s.guard.StripNamespace(c.user, n); owned {
			logical = append(logical, l)
		}
	}
	w := &payloadWriter{}
	w.writeUvarint(uint64(len(logical)))
	for _, n := range logical {
		w.writeString(n)
	}
	return w.bytes(), nil
}

func handleDropCollection(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	collection, err := r.readString()
	if err != nil {
		return nil, err
	}
	cc, err := s.resolve(c, databaseID, collection, identity.OpDrop, "")
	if err != nil {
		return nil, err
	}
	if err := cc.eng.DropCollection(ctx, cc.physical); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(cc.databaseID, cc.physical)
	}
	return nil, nil
}

func handleCreateIndex(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	collection, err := r.readString()
	if err != nil {
		return nil, err
	}
	idx, err := readIndexDescriptor(r)
	if err != nil {
		return nil, err
	}
	cc, err := s.resolve(c, databaseID, collection, identity.OpAdmin, "")
	if err != nil {
		return nil, err
	}
	if err := cc.eng.CreateIndex(ctx, cc.physical, idx); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleDropIndex(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	collection, err := r.readString()
	if err != nil {
		return nil, err
	}
	name, err := r.readString()
	if err != nil {
		return nil, err
	}
	cc, err := s.resolve(c, databaseID, collection, identity.OpAdmin, "")
	if err != nil {
		return nil, err
	}
	if err := cc.eng.DropIndex(ctx, cc.physical, name); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleListIndexes(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	collection, err := r.readString()
	if err != nil {
		return nil, err
	}
	cc, err := s.resolve(c, databaseID, collection, identity.OpQuery, "")
	if err != nil {
		return nil, err
	}
	idxs, err := cc.eng.ListIndexes(ctx, cc.physical)
	if err != nil {
		return nil, err
	}
	w := &payloadWriter{}
	w.writeUvarint(uint64(len(idxs)))
	for _, idx := range idxs {
		writeIndexDescriptor(w, idx)
	}
	return w.bytes(), nil
}

func readIndexDescriptor(r *payloadReader) (engine.IndexDescriptor, error) {
	var idx engine.IndexDescriptor
	var err error
	if idx.Name, err = r.readString(); err != nil {
		return idx, err
	}
	if idx.FieldPath, err = r.readString(); err != nil {
		return idx, err
	}
	kind, err := r.readString()
	if err != nil {
		return idx, err
	}
	idx.Kind = engine.IndexKind(kind)
	if idx.Unique, err = r.readBool(); err != nil {
		return idx, err
	}
	dim, err := r.readUvarint()
	if err != nil {
		return idx, err
	}
	idx.VectorDim = int(dim)
	metric, err := r.readString()
	if err != nil {
		return idx, err
	}
	idx.Metric = engine.DistanceMetric(metric)
	return idx, nil
}

func writeIndexDescriptor(w *payloadWriter, idx engine.IndexDescriptor) {
	w.writeString(idx.Name)
	w.writeString(idx.FieldPath)
	w.writeString(string(idx.Kind))
	w.writeBool(idx.Unique)
	w.writeUvarint(uint64(idx.VectorDim))
	w.writeString(string(idx.Metric))
}

func handleSetVectorSource(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	collection, err := r.readString()
	if err != nil {
		return nil, err
	}
	cfg, err := readVectorSourceConfig(r)
	if err != nil {
		return nil, err
	}
	if cfg.VectorField == "" || cfg.IndexName == "" {
		return nil, svcerr.InvalidInput("vectorField and indexName are required")
	}
	cc, err := s.resolve(c, databaseID, collection, identity.OpAdmin, "")
	if err != nil {
		return nil, err
	}
	if err := cc.eng.SetVectorSource(ctx, cc.physical, cfg); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleGetVectorSource(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	collection, err := r.readString()
	if err != nil {
		return nil, err
	}
	cc, err := s.resolve(c, databaseID, collection, identity.OpQuery, "")
	if err != nil {
		return nil, err
	}
	cfg, found, err := cc.eng.GetVectorSource(ctx, cc.physical)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, svcerr.NotFound("collection has no vector source configured")
	}
	w := &payloadWriter{}
	writeVectorSourceConfig(w, cfg)
	return w.bytes(), nil
}

func readVectorSourceConfig(r *payloadReader) (engine.VectorSourceConfig, error) {
	var cfg engine.VectorSourceConfig
	var err error
	if cfg.Separator, err = r.readString(); err != nil {
		return cfg, err
	}
	count, err := r.readUvarint()
	if err != nil {
		return cfg, err
	}
	cfg.Parts = make([]engine.VectorSourcePart, count)
	for i := range cfg.Parts {
		if cfg.Parts[i].Path, err = r.readString(); err != nil {
			return cfg, err
		}
		if cfg.Parts[i].Prefix, err = r.readString(); err != nil {
			return cfg, err
		}
		if cfg.Parts[i].Suffix, err = r.readString(); err != nil {
			return cfg, err
		}
	}
	if cfg.VectorField, err = r.readString(); err != nil {
		return cfg, err
	}
	if cfg.IndexName, err = r.readString(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func writeVectorSourceConfig(w *payloadWriter, cfg engine.VectorSourceConfig) {
	w.writeString(cfg.Separator)
	w.writeUvarint(uint64(len(cfg.Parts)))
	for _, p := range cfg.Parts {
		w.writeString(p.Path)
		w.writeString(p.Prefix)
		w.writeString(p.Suffix)
	}
	w.writeString(cfg.VectorField)
	w.writeString(cfg.IndexName)
}

func handleSetSchema(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	collection, err := r.readString()
	if err != nil {
		return nil, err
	}
	count, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	fields := make([]engine.SchemaField, count)
	for i := range fields {
		if fields[i].Name, err = r.readString(); err != nil {
			return nil, err
		}
		if fields[i].TypeCode, err = r.readString(); err != nil {
			return nil, err
		}
		if fields[i].Nullable, err = r.readBool(); err != nil {
			return nil, err
		}
	}
	cc, err := s.resolve(c, databaseID, collection, identity.OpAdmin, "")
	if err != nil {
		return nil, err
	}
	if err := cc.eng.SetSchema(ctx, cc.physical, fields); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleGetSchema(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	collection, err := r.readString()
	if err != nil {
		return nil, err
	}
	cc, err := s.resolve(c, databaseID, collection, identity.OpQuery, "")
	if err != nil {
		return nil, err
	}
	fields, err := cc.eng.GetSchema(ctx, cc.physical)
	if err != nil {
		return nil, err
	}
	w := &payloadWriter{}
	w.writeUvarint(uint64(len(fields)))
	for _, f := range fields {
		w.writeString(f.Name)
		w.writeString(f.TypeCode)
		w.writeBool(f.Nullable)
	}
	return w.bytes(), nil
}

func handleConfigureTimeSeries(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	collection, err := r.readString()
	if err != nil {
		return nil, err
	}
	ttlField, err := r.readString()
	if err != nil {
		return nil, err
	}
	retentionSeconds, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	cc, err := s.resolve(c, databaseID, collection, identity.OpAdmin, "")
	if err != nil {
		return nil, err
	}
	cfg := engine.TimeSeriesConfig{TTLField: ttlField, Retention: secondsToDuration(retentionSeconds)}
	if err := cc.eng.ConfigureTimeSeries(ctx, cc.physical, cfg); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleGetTimeSeriesInfo(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	collection, err := r.readString()
	if err != nil {
		return nil, err
	}
	cc, err := s.resolve(c, databaseID, collection, identity.OpQuery, "")
	if err != nil {
		return nil, err
	}
	cfg, found, err := cc.eng.GetTimeSeriesInfo(ctx, cc.physical)
	if err != nil {
		return nil, err
	}
	w := &payloadWriter{}
	w.writeBool(found)
	if found {
		w.writeString(cfg.TTLField)
		w.writeUvarint(uint64(cfg.Retention.Seconds()))
	}
	return w.bytes(), nil
}

// handleVectorSearch streams the k nearest documents to a query vector.
// A missing index is a semantic (FailedPrecondition) failure, mirroring
// httpapi's defaultVectorIndex (spec.md §4.10).
func handleVectorSearch(ctx context.Context, s *Server, c *Conn, service Service, method byte, corr uint32, payload []byte) error {
	r := newPayloadReader(payload)
	h, err := readCallHeader(r)
	if err != nil {
		return err
	}
	indexName, err := r.readString()
	if err != nil {
		return err
	}
	k, err := r.readUvarint()
	if err != nil {
		return err
	}
	efSearch, err := r.readUvarint()
	if err != nil {
		return err
	}
	query, err := r.readFloatVector()
	if err != nil {
		return err
	}
	if len(query) == 0 {
		return svcerr.InvalidInput("queryVector must not be empty")
	}

	cc, err := s.resolve(c, h.databaseID, h.collection, identity.OpQuery, "")
	if err != nil {
		return err
	}

	if indexName == "" {
		idxs, err := cc.eng.ListIndexes(ctx, cc.physical)
		if err != nil {
			return err
		}
		for _, idx := range idxs {
			if idx.Kind != engine.IndexVector {
				continue
			}
			if indexName != "" {
				return svcerr.Semantic("collection has multiple vector indexes; indexName is required")
			}
			indexName = idx.Name
		}
		if indexName == "" {
			return svcerr.Semantic("collection has no vector index")
		}
	}

	kInt := int(k)
	if kInt <= 0 {
		kInt = 10
	}
	efInt := int(efSearch)
	if efInt <= 0 {
		efInt = kInt
	}

	hits, err := cc.eng.VectorSearch(ctx, cc.physical, indexName, kInt, efInt, query)
	if err != nil {
		return err
	}
	for _, hit := range hits {
		if err := ctx.Err(); err != nil {
			return nil
		}
		encoded, err := encodeDoc(cc.eng, cc.physical, hit.Document, hit.DocID)
		if err != nil {
			return svcerr.Internal("encoding document", err)
		}
		item := &payloadWriter{}
		item.writeDocID(hit.DocID)
		item.writeBytes(encoded)
		item.writeString(h.typeName)
		var scoreBits [8]byte
		putFloat64(scoreBits[:], hit.Score)
		item.buf.Write(scoreBits[:])
		if err := c.send(Envelope{Kind: KindStreamItem, Service: service, Method: method, CorrelationID: corr, Payload: item.bytes()}); err != nil {
			return err
		}
	}
	return nil
}
