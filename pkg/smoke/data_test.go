package smoke

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmga-lab/milvus-smoke/pkg/milvus"
)

func TestCollectionNameUniqueWithinSecond(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := CollectionName("test_collection", now)
	b := CollectionName("test_collection", now)

	assert.NotEqual(t, a, b)
	assert.Regexp(t, regexp.MustCompile(`^test_collection_1700000000_[0-9a-f]{8}$`), a)
	assert.True(t, validName(a))
}

func TestTextIDs(t *testing.T) {
	assert.Equal(t, []string{"text_0", "text_1", "text_2"}, TextIDs(3))
	assert.Empty(t, TextIDs(0))
}

func TestRandomVectors(t *testing.T) {
	vecs := RandomVectors(newRand(7), 100, 128)
	require.Len(t, vecs, 100)
	for _, v := range vecs {
		require.Len(t, v, 128)
		for _, x := range v {
			assert.GreaterOrEqual(t, x, float32(0))
			assert.Less(t, x, float32(1))
		}
	}

	// same seed, same data
	assert.Equal(t, RandomVectors(newRand(7), 2, 4), RandomVectors(newRand(7), 2, 4))
}

func TestSmokeSchemaBuilds(t *testing.T) {
	schema := SmokeSchema("test_collection_1", 128)
	_, err := milvus.BuildSchema(schema)
	require.NoError(t, err)
	assert.Equal(t, "Test collection", schema.Description)
	assert.Equal(t, []string{FieldID, FieldTextID, FieldEmbedding},
		[]string{schema.Fields[0].Name, schema.Fields[1].Name, schema.Fields[2].Name})
}
