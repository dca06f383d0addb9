// Package milvus wraps the official Milvus Go SDK with the operations the smoke
// sequence needs.
// This file contains the client implementation and collection/data operations.
package milvus

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

// DefaultAddress is used when no address is configured.
const DefaultAddress = "localhost:19530"

// Client represents a connection to a Milvus instance.
// It wraps the official Milvus client; every call takes the caller's context.
type Client struct {
	client *milvusclient.Client
}

// Connect opens a connection to Milvus. opts.Timeout bounds only the
// establishment of the connection, not later calls.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	address := opts.Address
	if address == "" {
		address = DefaultAddress
	}

	dialCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	c, err := milvusclient.New(dialCtx, &milvusclient.ClientConfig{
		Address:  address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.DBName,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to milvus at %s", address)
	}
	return &Client{client: c}, nil
}

// Close closes the Milvus client connection and releases associated resources.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// ListCollections returns the names of every collection in the database.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	names, err := c.client.ListCollections(ctx, milvusclient.NewListCollectionOption())
	if err != nil {
		return nil, errors.Wrap(err, "failed to list collections")
	}
	return names, nil
}

// HasCollection reports whether the named collection exists.
func (c *Client) HasCollection(ctx context.Context, collectionName string) (bool, error) {
	option := milvusclient.NewHasCollectionOption(collectionName)
	ok, err := c.client.HasCollection(ctx, option)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check collection %s", collectionName)
	}
	return ok, nil
}

// ParseSchemaJSON decodes a JSON schema and checks that it can be built.
func ParseSchemaJSON(schemaJSON string) (Schema, error) {
	var schema Schema
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		return schema, errors.Wrap(err, "failed to parse schema JSON")
	}
	if _, err := BuildSchema(schema); err != nil {
		return schema, err
	}
	return schema, nil
}

// CreateCollectionFromJSON creates a collection from a JSON schema string.
func (c *Client) CreateCollectionFromJSON(ctx context.Context, schemaJSON string) error {
	schema, err := ParseSchemaJSON(schemaJSON)
	if err != nil {
		return err
	}
	return c.CreateCollection(ctx, schema)
}

// CreateCollection creates a collection bound to schema.
func (c *Client) CreateCollection(ctx context.Context, schema Schema) error {
	entitySchema, err := BuildSchema(schema)
	if err != nil {
		return err
	}

	option := milvusclient.NewCreateCollectionOption(schema.Name, entitySchema)
	if err := c.client.CreateCollection(ctx, option); err != nil {
		return errors.Wrapf(err, "failed to create collection %s", schema.Name)
	}
	return nil
}

// BuildSchema converts a Schema into the SDK's entity schema.
// Vector fields need a dimension and VarChar fields a max length.
func BuildSchema(schema Schema) (*entity.Schema, error) {
	if schema.Name == "" {
		return nil, errors.New("schema has empty collection name")
	}
	if len(schema.Fields) == 0 {
		return nil, errors.Newf("schema %s has no fields", schema.Name)
	}

	entitySchema := entity.NewSchema().
		WithName(schema.Name).
		WithDescription(schema.Description)

	for _, field := range schema.Fields {
		entityField, err := buildField(field)
		if err != nil {
			return nil, err
		}
		entitySchema = entitySchema.WithField(entityField)
	}
	return entitySchema, nil
}

func buildField(field Field) (*entity.Field, error) {
	if field.DataType == "" {
		return nil, errors.Newf("field %s has empty dataType", field.Name)
	}

	dataType, ok := fieldTypes[field.DataType]
	if !ok {
		return nil, errors.Newf("unsupported data type: '%s' for field '%s'", field.DataType, field.Name)
	}

	entityField := entity.NewField().
		WithName(field.Name).
		WithDescription(field.Description).
		WithDataType(dataType)

	switch dataType {
	case entity.FieldTypeFloatVector, entity.FieldTypeBinaryVector,
		entity.FieldTypeFloat16Vector, entity.FieldTypeBFloat16Vector:
		if field.Dimension <= 0 {
			return nil, errors.Newf("vector field %s requires a positive dimension", field.Name)
		}
		entityField = entityField.WithDim(field.Dimension)
	case entity.FieldTypeVarChar:
		if field.MaxLength <= 0 {
			return nil, errors.Newf("varchar field %s requires maxLength", field.Name)
		}
	}

	if field.IsPrimaryKey {
		entityField = entityField.WithIsPrimaryKey(true)
	}
	if field.IsAutoID {
		entityField = entityField.WithIsAutoID(true)
	}
	if field.MaxLength > 0 {
		entityField = entityField.WithMaxLength(field.MaxLength)
	}
	return entityField, nil
}

var fieldTypes = map[string]entity.FieldType{
	"Int64":             entity.FieldTypeInt64,
	"Int32":             entity.FieldTypeInt32,
	"Int16":             entity.FieldTypeInt16,
	"Int8":              entity.FieldTypeInt8,
	"Bool":              entity.FieldTypeBool,
	"Float":             entity.FieldTypeFloat,
	"Double":            entity.FieldTypeDouble,
	"String":            entity.FieldTypeString,
	"VarChar":           entity.FieldTypeVarChar,
	"JSON":              entity.FieldTypeJSON,
	"FloatVector":       entity.FieldTypeFloatVector,
	"BinaryVector":      entity.FieldTypeBinaryVector,
	"Float16Vector":     entity.FieldTypeFloat16Vector,
	"BFloat16Vector":    entity.FieldTypeBFloat16Vector,
	"SparseFloatVector": entity.FieldTypeSparseVector,
}

// DropCollection deletes the collection and its data.
func (c *Client) DropCollection(ctx context.Context, collectionName string) error {
	option := milvusclient.NewDropCollectionOption(collectionName)
	if err := c.client.DropCollection(ctx, option); err != nil {
		return errors.Wrapf(err, "failed to drop collection %s", collectionName)
	}
	return nil
}

// LoadCollection loads a collection and waits until the server reports it ready.
func (c *Client) LoadCollection(ctx context.Context, collectionName string) error {
	option := milvusclient.NewLoadCollectionOption(collectionName)
	task, err := c.client.LoadCollection(ctx, option)
	if err != nil {
		return errors.Wrapf(err, "failed to load collection %s", collectionName)
	}

	if err := task.Await(ctx); err != nil {
		return errors.Wrap(err, "failed to wait for collection load")
	}
	return nil
}

// ReleaseCollection unloads the collection from memory.
func (c *Client) ReleaseCollection(ctx context.Context, collectionName string) error {
	option := milvusclient.NewReleaseCollectionOption(collectionName)
	if err := c.client.ReleaseCollection(ctx, option); err != nil {
		return errors.Wrapf(err, "failed to release collection %s", collectionName)
	}
	return nil
}

// Flush persists buffered inserts and waits for the flush to finish.
func (c *Client) Flush(ctx context.Context, collectionName string) error {
	task, err := c.client.Flush(ctx, milvusclient.NewFlushOption(collectionName))
	if err != nil {
		return errors.Wrapf(err, "failed to flush collection %s", collectionName)
	}
	if err := task.Await(ctx); err != nil {
		return errors.Wrap(err, "failed to wait for flush")
	}
	return nil
}

// CountEntities returns the row count from the collection statistics.
func (c *Client) CountEntities(ctx context.Context, collectionName string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collectionName))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get stats for collection %s", collectionName)
	}
	return parseRowCount(stats)
}

func parseRowCount(stats map[string]string) (int64, error) {
	raw, ok := stats["row_count"]
	if !ok {
		return 0, errors.New("collection stats missing row_count")
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid row_count %q", raw)
	}
	return n, nil
}

// Insert inserts column data keyed by field name and returns the primary keys
// the server assigned.
func (c *Client) Insert(ctx context.Context, collectionName string, data map[string]any) ([]int64, error) {
	columns, err := BuildColumns(data)
	if err != nil {
		return nil, err
	}

	rowCount := 0
	for _, col := range columns {
		if col.Len() > rowCount {
			rowCount = col.Len()
		}
	}

	option := milvusclient.NewColumnBasedInsertOption(collectionName, columns...)
	result, err := c.client.Insert(ctx, option)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert")
	}

	if result.InsertCount != int64(rowCount) {
		return nil, errors.Newf("insert count mismatch: expected %d, got %d", rowCount, result.InsertCount)
	}

	return int64IDs(result.IDs)
}

// BuildColumns converts typed slices into SDK columns.
func BuildColumns(data map[string]any) ([]column.Column, error) {
	var columns []column.Column

	for fieldName, fieldData := range data {
		switch v := fieldData.(type) {
		case [][]float32:
			if len(v) == 0 {
				continue
			}
			columns = append(columns, column.NewColumnFloatVector(fieldName, len(v[0]), v))
		case []int64:
			columns = append(columns, column.NewColumnInt64(fieldName, v))
		case []int32:
			columns = append(columns, column.NewColumnInt32(fieldName, v))
		case []float32:
			columns = append(columns, column.NewColumnFloat(fieldName, v))
		case []float64:
			columns = append(columns, column.NewColumnDouble(fieldName, v))
		case []string:
			columns = append(columns, column.NewColumnVarChar(fieldName, v))
		case []bool:
			columns = append(columns, column.NewColumnBool(fieldName, v))
		default:
			return nil, errors.Newf("unsupported field type for field %s: %T", fieldName, fieldData)
		}
	}

	if len(columns) == 0 {
		return nil, errors.New("no valid columns provided")
	}
	return columns, nil
}

func int64IDs(ids column.Column) ([]int64, error) {
	if ids == nil {
		return nil, nil
	}
	out := make([]int64, 0, ids.Len())
	for i := 0; i < ids.Len(); i++ {
		v, err := ids.Get(i)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read primary key %d", i)
		}
		id, ok := v.(int64)
		if !ok {
			return nil, errors.Newf("primary key %d is %T, not int64", i, v)
		}
		out = append(out, id)
	}
	return out, nil
}

// CreateIndex creates an index on a field and waits for the build to complete.
func (c *Client) CreateIndex(ctx context.Context, collectionName, fieldName string, params IndexParams) error {
	idx, err := BuildIndex(params)
	if err != nil {
		return err
	}

	option := milvusclient.NewCreateIndexOption(collectionName, fieldName, idx)
	task, err := c.client.CreateIndex(ctx, option)
	if err != nil {
		return errors.Wrap(err, "failed to create index")
	}

	if err := task.Await(ctx); err != nil {
		return errors.Wrap(err, "failed to wait for index creation")
	}
	return nil
}

// BuildIndex maps IndexParams onto an SDK index. Unset parameters take the
// same defaults the Milvus docs use.
func BuildIndex(params IndexParams) (index.Index, error) {
	metricType, err := ParseMetric(params.MetricType)
	if err != nil {
		return nil, err
	}

	nlist := params.NList
	if nlist <= 0 {
		nlist = 1024
	}

	switch params.IndexType {
	case "", "FLAT":
		return index.NewFlatIndex(metricType), nil
	case "IVF_FLAT":
		return index.NewIvfFlatIndex(metricType, nlist), nil
	case "IVF_SQ8":
		return index.NewIvfSQ8Index(metricType, nlist), nil
	case "IVF_PQ":
		m, nbits := params.M, params.NBits
		if m <= 0 {
			m = 4
		}
		if nbits <= 0 {
			nbits = 8
		}
		return index.NewIvfPQIndex(metricType, nlist, m, nbits), nil
	case "HNSW":
		M, efConstruction := params.HNSWM, params.EfConstruction
		if M <= 0 {
			M = 16
		}
		if efConstruction <= 0 {
			efConstruction = 200
		}
		return index.NewHNSWIndex(metricType, M, efConstruction), nil
	case "AUTOINDEX":
		return index.NewAutoIndex(metricType), nil
	default:
		return nil, errors.Newf("unsupported index type: %s", params.IndexType)
	}
}

// ParseMetric maps a metric name onto the SDK metric type. Empty means L2.
func ParseMetric(name string) (entity.MetricType, error) {
	switch name {
	case "", "L2":
		return entity.L2, nil
	case "IP":
		return entity.IP, nil
	case "COSINE":
		return entity.COSINE, nil
	default:
		return "", errors.Newf("unsupported metric type: %s", name)
	}
}
