// Package milvus wraps the official Milvus Go SDK with the operations the smoke
// sequence needs.
//
// This package is organized into multiple files:
//   - types.go: schema, index, search and query types
//   - client.go: connection, collection lifecycle, insert, flush and index operations
//   - search.go: vector search and filtered query
//   - recall.go: recall@K for search quality checks
//
// Every operation takes the caller's context and wraps SDK errors with the
// operation that failed.
package milvus
