// Package milvus wraps the official Milvus Go SDK with the operations the smoke
// sequence needs.
// This file contains type definitions and data structures.
package milvus

import "time"

// Field represents a field definition for a Milvus collection schema.
// It defines the structure and properties of data fields in a collection.
type Field struct {
	Name         string `json:"name" yaml:"name"`                                     // Field name
	DataType     string `json:"dataType" yaml:"dataType"`                             // Data type (e.g., "Int64", "VarChar", "FloatVector")
	IsPrimaryKey bool   `json:"isPrimaryKey,omitempty" yaml:"isPrimaryKey,omitempty"` // Whether this field is the primary key
	IsAutoID     bool   `json:"isAutoID,omitempty" yaml:"isAutoID,omitempty"`         // Whether to auto-generate IDs for this field
	Dimension    int64  `json:"dimension,omitempty" yaml:"dimension,omitempty"`       // Vector dimension (required for vector fields)
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`   // Field description
	MaxLength    int64  `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`       // Maximum length (required for VarChar fields)
}

// Schema represents a Milvus collection schema.
type Schema struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Fields      []Field `json:"fields" yaml:"fields"`
}

// IndexParams describes the index built on a vector field.
type IndexParams struct {
	IndexType      string `json:"indexType" yaml:"indexType"`   // FLAT, IVF_FLAT, IVF_SQ8, IVF_PQ, HNSW, AUTOINDEX
	MetricType     string `json:"metricType" yaml:"metricType"` // L2, IP, COSINE
	NList          int    `json:"nlist,omitempty" yaml:"nlist,omitempty"`
	M              int    `json:"m,omitempty" yaml:"m,omitempty"`
	NBits          int    `json:"nbits,omitempty" yaml:"nbits,omitempty"`
	HNSWM          int    `json:"M,omitempty" yaml:"M,omitempty"`
	EfConstruction int    `json:"efConstruction,omitempty" yaml:"efConstruction,omitempty"`
}

// SearchRequest is a single ANN search against one vector field.
type SearchRequest struct {
	Collection   string
	Vectors      [][]float32
	Limit        int
	VectorField  string
	OutputFields []string
	Filter       string
	// NProbe applies to IVF indexes, Ef to HNSW. Zero leaves the server default.
	NProbe int
	Ef     int
}

// QueryRequest is a scalar-filtered query.
type QueryRequest struct {
	Collection   string
	Filter       string
	OutputFields []string
}

// SearchResult represents a single search result from a vector search operation.
// Contains the matched entity's ID, distance/score, and optional field values.
type SearchResult struct {
	ID     int64          `json:"id"`
	Score  float32        `json:"score"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Row is one entity returned by a query, keyed by output field name.
type Row map[string]any

// Options configures a connection.
type Options struct {
	Address  string
	Username string
	Password string
	DBName   string
	// Timeout bounds connection establishment only.
	Timeout time.Duration
}
