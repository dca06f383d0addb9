package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmga-lab/milvus-smoke/pkg/smoke"
	"github.com/mmga-lab/milvus-smoke/pkg/smoke/smoketest"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

// runCmd executes the root command with args and returns stdout, stderr and
// the error.
func runCmd(t *testing.T, opts []smoke.Option, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd(append([]smoke.Option{smoke.WithSleep(noSleep)}, opts...)...)
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootPasses(t *testing.T) {
	t.Setenv(smoke.EnvHost, "")
	store := smoketest.NewMemoryStore()

	stdout, _, err := runCmd(t, []smoke.Option{smoke.WithDialer(store.Dialer())}, "--strict", "--seed", "1")

	require.NoError(t, err)
	assert.Contains(t, stdout, "ALL TESTS PASSED")
	assert.Contains(t, stdout, "✓ Inserted 100 vectors")
	assert.Contains(t, stdout, "✓ Search completed, found 5 results")
	assert.Contains(t, stdout, "✓ Query completed, found 3 results")
	assert.True(t, store.Closed())

	names, err := store.ListCollections(context.Background())
	require.NoError(t, err)
	assert.Len(t, names, 1, "collection is kept without --drop")
}

func TestRootDrop(t *testing.T) {
	t.Setenv(smoke.EnvHost, "")
	store := smoketest.NewMemoryStore()

	_, _, err := runCmd(t, []smoke.Option{smoke.WithDialer(store.Dialer())}, "--drop", "--rows", "10", "--dim", "8")

	require.NoError(t, err)
	names, err := store.ListCollections(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRootConnectFailure(t *testing.T) {
	t.Setenv(smoke.EnvHost, "")
	var dialed string
	dial := func(ctx context.Context, cfg smoke.Config) (smoke.Store, error) {
		dialed = cfg.Address()
		return nil, errors.Newf("failed to connect to milvus at %s: connection refused", cfg.Address())
	}

	stdout, stderr, err := runCmd(t, []smoke.Option{smoke.WithDialer(dial)}, "--host", "unreachable.invalid", "--timeout", "1s")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFailed))
	assert.Equal(t, "unreachable.invalid:19530", dialed)
	assert.Contains(t, stdout, "TEST FAILED")
	assert.Contains(t, stdout, "failed to connect to milvus at unreachable.invalid:19530")
	assert.Contains(t, stderr, "smoke test failed")
}

func TestRootConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smoke.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: from-file\nport: 1000\nrows: 20\n"), 0o644))
	t.Setenv(smoke.EnvHost, "from-env:2000")

	var got smoke.Config
	dial := func(ctx context.Context, cfg smoke.Config) (smoke.Store, error) {
		got = cfg
		return smoketest.NewMemoryStore(), nil
	}

	_, _, err := runCmd(t, []smoke.Option{smoke.WithDialer(dial)}, "--config", path, "--port", "3000")

	require.NoError(t, err)
	assert.Equal(t, "from-env", got.Host)
	assert.Equal(t, 3000, got.Port)
	assert.Equal(t, 20, got.Rows)
	assert.Equal(t, 128, got.Dimension)
}

func TestRootRejectsBadInput(t *testing.T) {
	t.Setenv(smoke.EnvHost, "")

	_, _, err := runCmd(t, nil, "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid log level")

	_, _, err = runCmd(t, nil, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	_, _, err = runCmd(t, nil, "extra-arg")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	stdout, _, err := runCmd(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "milvus-smoke dev")
}
