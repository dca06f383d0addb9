package smoke

import (
	"net"
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-yaml"
	"github.com/spf13/pflag"

	"github.com/mmga-lab/milvus-smoke/pkg/milvus"
)

// EnvHost names the environment variable that overrides the endpoint. It
// holds either a host or a host:port pair.
const EnvHost = "MILVUS_HOST"

// Config holds everything one smoke run needs.
type Config struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username,omitempty"`
	Password string        `yaml:"password,omitempty"`
	DBName   string        `yaml:"dbName,omitempty"`
	Timeout  time.Duration `yaml:"timeout"` // connection establishment only

	Dimension        int                `yaml:"dimension"`
	Rows             int                `yaml:"rows"`
	CollectionPrefix string             `yaml:"collectionPrefix"`
	Index            milvus.IndexParams `yaml:"index"`
	NProbe           int                `yaml:"nprobe"`
	Ef               int                `yaml:"ef"` // HNSW search breadth, 0 leaves the server default
	Limit            int                `yaml:"limit"`
	QueryIDs         int                `yaml:"queryIds"`

	// MinRecall is the self-recall a strict run requires when searching
	// for already inserted vectors.
	MinRecall float64 `yaml:"minRecall"`

	// LoadWait is a fixed settle delay after the load task reports ready.
	LoadWait time.Duration `yaml:"loadWait"`

	Drop   bool   `yaml:"drop"`
	Strict bool   `yaml:"strict"`
	Seed   uint64 `yaml:"seed"` // 0 picks a random seed
}

// DefaultConfig returns the configuration of the classic smoke run:
// localhost:19530, 100 rows of 128-dim vectors, IVF_FLAT/L2 with nlist 128.
func DefaultConfig() Config {
	return Config{
		Host:             "localhost",
		Port:             19530,
		Timeout:          10 * time.Second,
		Dimension:        128,
		Rows:             100,
		CollectionPrefix: "test_collection",
		Index: milvus.IndexParams{
			IndexType:  "IVF_FLAT",
			MetricType: "L2",
			NList:      128,
		},
		NProbe:    10,
		Ef:        64,
		Limit:     5,
		QueryIDs:  3,
		MinRecall: 0.9,
		LoadWait:  2 * time.Second,
	}
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoadFile reads a YAML config. Keys missing from the file keep their
// default values.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return cfg, nil
}

// ApplyEnv applies EnvHost from getenv, if set.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	v := getenv(EnvHost)
	if v == "" {
		return nil
	}
	if err := c.SetAddress(v); err != nil {
		return errors.Wrapf(err, "invalid %s", EnvHost)
	}
	return nil
}

// SetAddress sets Host, and Port when addr is host:port.
func (c *Config) SetAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// bare host
		c.Host = addr
		return nil
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return errors.Wrapf(err, "invalid port in %q", addr)
	}
	c.Host, c.Port = host, p
	return nil
}

// BindFlags registers one flag per setting on fs, bound to c. Current field
// values become the flag defaults.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Host, "host", c.Host, "Milvus host")
	fs.IntVar(&c.Port, "port", c.Port, "Milvus port")
	fs.StringVar(&c.Username, "username", c.Username, "Milvus username")
	fs.StringVar(&c.Password, "password", c.Password, "Milvus password")
	fs.StringVar(&c.DBName, "db", c.DBName, "Milvus database name")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "connection timeout")
	fs.IntVar(&c.Dimension, "dim", c.Dimension, "vector dimension")
	fs.IntVar(&c.Rows, "rows", c.Rows, "number of rows to insert")
	fs.StringVar(&c.CollectionPrefix, "collection-prefix", c.CollectionPrefix, "test collection name prefix")
	fs.StringVar(&c.Index.IndexType, "index-type", c.Index.IndexType, "index type (FLAT, IVF_FLAT, IVF_SQ8, IVF_PQ, HNSW, AUTOINDEX)")
	fs.StringVar(&c.Index.MetricType, "metric", c.Index.MetricType, "metric type (L2, IP, COSINE)")
	fs.IntVar(&c.Index.NList, "nlist", c.Index.NList, "IVF cluster count")
	fs.IntVar(&c.NProbe, "nprobe", c.NProbe, "IVF clusters probed per search")
	fs.IntVar(&c.Ef, "ef", c.Ef, "HNSW candidate list size per search")
	fs.IntVar(&c.Limit, "limit", c.Limit, "search result limit")
	fs.IntVar(&c.QueryIDs, "query-ids", c.QueryIDs, "number of text ids in the filtered query")
	fs.Float64Var(&c.MinRecall, "min-recall", c.MinRecall, "self-recall required in strict mode")
	fs.DurationVar(&c.LoadWait, "load-wait", c.LoadWait, "settle delay after load")
	fs.BoolVar(&c.Drop, "drop", c.Drop, "drop the test collection after release")
	fs.BoolVar(&c.Strict, "strict", c.Strict, "verify results, not just call success")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "random seed for vectors (0 = random)")
}

// Overlay applies the flags explicitly set on fs onto c, leaving every other
// field untouched.
func (c *Config) Overlay(fs *pflag.FlagSet) error {
	tmp := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
	c.BindFlags(tmp)

	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil || tmp.Lookup(f.Name) == nil {
			return
		}
		err = tmp.Set(f.Name, f.Value.String())
	})
	return err
}

// Validate reports the first setting that cannot produce a meaningful run.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.New("host is required")
	case c.Port <= 0 || c.Port > 65535:
		return errors.Newf("port %d out of range", c.Port)
	case c.Timeout < 0:
		return errors.New("timeout must not be negative")
	case c.Dimension <= 0:
		return errors.Newf("dimension must be positive, got %d", c.Dimension)
	case c.Rows <= 0:
		return errors.Newf("rows must be positive, got %d", c.Rows)
	case c.Limit <= 0:
		return errors.Newf("limit must be positive, got %d", c.Limit)
	case c.Ef < 0:
		return errors.Newf("ef must not be negative, got %d", c.Ef)
	case c.Index.IndexType == "HNSW" && c.Ef > 0 && c.Ef < c.Limit:
		return errors.Newf("ef %d must be at least limit %d", c.Ef, c.Limit)
	case c.QueryIDs <= 0 || c.QueryIDs > c.Rows:
		return errors.Newf("query ids must be in [1, %d], got %d", c.Rows, c.QueryIDs)
	case c.MinRecall < 0 || c.MinRecall > 1:
		return errors.Newf("min recall must be in [0, 1], got %g", c.MinRecall)
	case c.LoadWait < 0:
		return errors.New("load wait must not be negative")
	}
	if !validName(c.CollectionPrefix) {
		return errors.Newf("invalid collection prefix %q", c.CollectionPrefix)
	}
	if _, err := milvus.BuildIndex(c.Index); err != nil {
		return err
	}
	return nil
}

// validName follows Milvus collection naming: a letter or underscore, then
// letters, digits and underscores.
func validName(s string) bool {
	if s == "" || len(s) > 200 {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
