// Package milvus wraps the official Milvus Go SDK with the operations the smoke
// sequence needs.
// This file contains search and query operations.
package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

// Search runs an ANN search and flattens the hits of every query vector into
// one slice, in the order the server returned them.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	searchVectors := make([]entity.Vector, len(req.Vectors))
	for i, v := range req.Vectors {
		searchVectors[i] = entity.FloatVector(v)
	}

	option := milvusclient.NewSearchOption(req.Collection, req.Limit, searchVectors)

	vectorField := req.VectorField
	if vectorField == "" {
		vectorField = "vector"
	}
	option = option.WithANNSField(vectorField)

	if len(req.OutputFields) > 0 {
		option = option.WithOutputFields(req.OutputFields...)
	}
	if req.Filter != "" {
		option = option.WithFilter(req.Filter)
	}
	switch {
	case req.NProbe > 0:
		option = option.WithAnnParam(index.NewIvfAnnParam(req.NProbe))
	case req.Ef > 0:
		option = option.WithAnnParam(index.NewHNSWAnnParam(req.Ef))
	}

	resultSets, err := c.client.Search(ctx, option)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}

	var results []SearchResult
	for _, result := range resultSets {
		for i := 0; i < result.ResultCount; i++ {
			item := SearchResult{
				Score:  result.Scores[i],
				Fields: make(map[string]any),
			}

			if idVal, err := result.IDs.Get(i); err == nil {
				if id, ok := idVal.(int64); ok {
					item.ID = id
				}
			}

			for _, field := range req.OutputFields {
				if field == "id" {
					continue
				}
				if fieldColumn := result.GetColumn(field); fieldColumn != nil {
					if fieldVal, err := fieldColumn.Get(i); err == nil {
						item.Fields[field] = fieldVal
					}
				}
			}

			results = append(results, item)
		}
	}
	return results, nil
}

// Query returns the entities matching req.Filter with the requested output fields.
func (c *Client) Query(ctx context.Context, req QueryRequest) ([]Row, error) {
	option := milvusclient.NewQueryOption(req.Collection).
		WithFilter(req.Filter).
		WithOutputFields(req.OutputFields...)

	rs, err := c.client.Query(ctx, option)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query")
	}

	columns := make(map[string]column.Column, len(req.OutputFields))
	for _, field := range req.OutputFields {
		if col := rs.GetColumn(field); col != nil {
			columns[field] = col
		}
	}
	return rowsFromColumns(columns)
}

func rowsFromColumns(columns map[string]column.Column) ([]Row, error) {
	n := 0
	for _, col := range columns {
		if col.Len() > n {
			n = col.Len()
		}
	}

	rows := make([]Row, n)
	for i := range rows {
		rows[i] = make(Row, len(columns))
	}
	for name, col := range columns {
		for i := 0; i < col.Len(); i++ {
			v, err := col.Get(i)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to read %s at row %d", name, i)
			}
			rows[i][name] = v
		}
	}
	return rows, nil
}

// InFilter builds a boolean expression matching field against a set of
// string literals, e.g. text_id in ['a', 'b'].
func InFilter(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", `\'`) + "'"
	}
	return fmt.Sprintf("%s in [%s]", field, strings.Join(quoted, ", "))
}
