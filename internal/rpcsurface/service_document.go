package rpcsurface

// DocumentService reuses DynamicService's CRUD handlers verbatim — the
// wire format and semantics are identical (spec.md §9's resolution of the
// typed-vs-dynamic open question), differing only in the Service byte
// under which they're dispatched and in typeName actually carrying a
// client-meaningful hint rather than an always-empty string.
func init() {
	registerDocCRUD(ServiceDocument)
	registerUnary(ServiceDocument, methodListCollections, "ListCollections", handleListCollections)
	registerUnary(ServiceDocument, methodDropCollection, "DropCollection", handleDropCollection)
	registerUnary(ServiceDocument, methodCreateIndex, "CreateIndex", handleCreateIndex)
	registerUnary(ServiceDocument, methodDropIndex, "DropIndex", handleDropIndex)
	registerUnary(ServiceDocument, methodListIndexes, "ListIndexes", handleListIndexes)
	registerUnary(ServiceDocument, methodSetVectorSource, "SetVectorSource", handleSetVectorSource)
	registerUnary(ServiceDocument, methodGetVectorSource, "GetVectorSource", handleGetVectorSource)
	registerUnary(ServiceDocument, methodSetSchema, "SetSchema", handleSetSchema)
	registerUnary(ServiceDocument, methodGetSchema, "GetSchema", handleGetSchema)
	registerUnary(ServiceDocument, methodConfigureTimeSeries, "ConfigureTimeSeries", handleConfigureTimeSeries)
	registerUnary(ServiceDocument, methodGetTimeSeriesInfo, "GetTimeSeriesInfo", handleGetTimeSeriesInfo)
	registerStream(ServiceDocument, methodQuery, "Query", handleQuery)
	registerStream(ServiceDocument, methodVectorSearch, "VectorSearch", handleVectorSearch)
}
