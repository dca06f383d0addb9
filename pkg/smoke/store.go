package smoke

import (
	"context"

	"github.com/mmga-lab/milvus-smoke/pkg/milvus"
)

// Store is the part of a vector database client the smoke sequence drives.
// *milvus.Client implements it.
type Store interface {
	ListCollections(ctx context.Context) ([]string, error)
	HasCollection(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, schema milvus.Schema) error
	Insert(ctx context.Context, collectionName string, data map[string]any) ([]int64, error)
	Flush(ctx context.Context, collectionName string) error
	CreateIndex(ctx context.Context, collectionName, fieldName string, params milvus.IndexParams) error
	LoadCollection(ctx context.Context, collectionName string) error
	CountEntities(ctx context.Context, collectionName string) (int64, error)
	Search(ctx context.Context, req milvus.SearchRequest) ([]milvus.SearchResult, error)
	Query(ctx context.Context, req milvus.QueryRequest) ([]milvus.Row, error)
	ReleaseCollection(ctx context.Context, collectionName string) error
	DropCollection(ctx context.Context, collectionName string) error
	Close(ctx context.Context) error
}

var _ Store = (*milvus.Client)(nil)

// Dialer opens a Store for cfg.
type Dialer func(ctx context.Context, cfg Config) (Store, error)

// MilvusDialer connects with the official Milvus client.
func MilvusDialer(ctx context.Context, cfg Config) (Store, error) {
	c, err := milvus.Connect(ctx, milvus.Options{
		Address:  cfg.Address(),
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
