package smoke

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mmga-lab/milvus-smoke/pkg/milvus"
)

// Field names of the smoke collection.
const (
	FieldID        = "id"
	FieldTextID    = "text_id"
	FieldEmbedding = "embedding"
)

// CollectionName returns prefix_<unix seconds>_<8 hex chars>. The random
// suffix keeps runs started within the same second apart.
func CollectionName(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", prefix, now.Unix(), suffix)
}

// SmokeSchema is the auto-id primary key, a VarChar(100) identifier and a
// dim-wide float vector.
func SmokeSchema(name string, dim int) milvus.Schema {
	return milvus.Schema{
		Name:        name,
		Description: "Test collection",
		Fields: []milvus.Field{
			{Name: FieldID, DataType: "Int64", IsPrimaryKey: true, IsAutoID: true},
			{Name: FieldTextID, DataType: "VarChar", MaxLength: 100},
			{Name: FieldEmbedding, DataType: "FloatVector", Dimension: int64(dim)},
		},
	}
}

// TextIDs returns text_0 .. text_{n-1}.
func TextIDs(n int) []string {
	return lo.Map(make([]struct{}, n), func(_ struct{}, i int) string {
		return fmt.Sprintf("text_%d", i)
	})
}

// RandomVectors returns n vectors of dim values drawn uniformly from [0, 1).
func RandomVectors(rng *rand.Rand, n, dim int) [][]float32 {
	vectors := make([][]float32, n)
	for i := range vectors {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = rng.Float32()
		}
		vectors[i] = vec
	}
	return vectors
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
