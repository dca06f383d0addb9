// Package milvussmoke registers the milvus-smoke k6 extension. Build it into
// k6 with xk6 and import k6/x/milvus-smoke from a script.
package milvussmoke

import (
	"go.k6.io/k6/js/modules"

	"github.com/mmga-lab/milvus-smoke/pkg/xk6"
)

func init() {
	modules.Register("k6/x/milvus-smoke", xk6.New())
}
