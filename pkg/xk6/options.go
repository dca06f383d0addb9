package xk6

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mmga-lab/milvus-smoke/pkg/smoke"
)

// buildConfig layers MILVUS_HOST, address and the script's options over the
// default smoke configuration.
func buildConfig(address string, options map[string]interface{}, getenv func(string) string) (smoke.Config, error) {
	cfg := smoke.DefaultConfig()
	if err := cfg.ApplyEnv(getenv); err != nil {
		return cfg, err
	}
	if address != "" {
		if err := cfg.SetAddress(address); err != nil {
			return cfg, err
		}
	}

	ints := map[string]*int{
		"rows":      &cfg.Rows,
		"dimension": &cfg.Dimension,
		"nlist":     &cfg.Index.NList,
		"nprobe":    &cfg.NProbe,
		"ef":        &cfg.Ef,
		"limit":     &cfg.Limit,
		"queryIds":  &cfg.QueryIDs,
	}
	strs := map[string]*string{
		"indexType":        &cfg.Index.IndexType,
		"metricType":       &cfg.Index.MetricType,
		"collectionPrefix": &cfg.CollectionPrefix,
	}
	bools := map[string]*bool{
		"strict": &cfg.Strict,
		"drop":   &cfg.Drop,
	}

	for key, raw := range options {
		switch {
		case ints[key] != nil:
			n, ok := toInt(raw)
			if !ok {
				return cfg, errors.Newf("option %s must be a number, got %T", key, raw)
			}
			*ints[key] = n
		case strs[key] != nil:
			s, ok := raw.(string)
			if !ok {
				return cfg, errors.Newf("option %s must be a string, got %T", key, raw)
			}
			if key != "collectionPrefix" {
				s = strings.ToUpper(s)
			}
			*strs[key] = s
		case bools[key] != nil:
			b, ok := raw.(bool)
			if !ok {
				return cfg, errors.Newf("option %s must be a boolean, got %T", key, raw)
			}
			*bools[key] = b
		case key == "minRecall":
			f, ok := raw.(float64)
			if n, isInt := toInt(raw); !ok && isInt {
				f, ok = float64(n), true
			}
			if !ok {
				return cfg, errors.Newf("option %s must be a number, got %T", key, raw)
			}
			cfg.MinRecall = f
		case key == "loadWait" || key == "timeout":
			ms, ok := toInt(raw)
			if !ok {
				return cfg, errors.Newf("option %s must be milliseconds, got %T", key, raw)
			}
			d := time.Duration(ms) * time.Millisecond
			if key == "loadWait" {
				cfg.LoadWait = d
			} else {
				cfg.Timeout = d
			}
		default:
			return cfg, errors.Newf("unknown option %q", key)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// JavaScript numbers arrive as int64 or float64.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// lineWriter hands every complete line written to it to the function.
type lineWriter func(line string)

func (w lineWriter) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")
	for _, line := range strings.Split(text, "\n") {
		w(line)
	}
	return len(p), nil
}
