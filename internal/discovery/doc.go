// Package discovery walks the paginated listing endpoint, resolves each record
// to a document and hands the document to the retriever. It runs strictly one
// page, one record and one download at a time.
package discovery
