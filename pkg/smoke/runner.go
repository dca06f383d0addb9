// Package smoke runs an end-to-end smoke test against a vector database:
// connect, create a collection, insert, flush, index, load, search, query
// and release, reporting progress per step and one pass/fail outcome.
package smoke

import (
	"context"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mmga-lab/milvus-smoke/pkg/milvus"
)

// Step names, in execution order.
const (
	StepConnect          = "connect"
	StepListCollections  = "list_collections"
	StepCreateCollection = "create_collection"
	StepInsert           = "insert"
	StepFlush            = "flush"
	StepCreateIndex      = "create_index"
	StepLoad             = "load"
	StepStats            = "stats"
	StepSearch           = "search"
	StepQuery            = "query"
	StepRelease          = "release"
)

// Runner executes the smoke sequence.
type Runner struct {
	cfg      Config
	dial     Dialer
	out      *Reporter
	logger   *zap.Logger
	observer func(StepResult)
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithDialer replaces the Milvus dialer.
func WithDialer(d Dialer) Option {
	return func(r *Runner) { r.dial = d }
}

// WithOutput sets where progress lines go. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = NewReporter(w) }
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithObserver registers fn to be called after every step.
func WithObserver(fn func(StepResult)) Option {
	return func(r *Runner) { r.observer = fn }
}

// WithSleep replaces the settle wait after load.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = fn }
}

// NewRunner returns a Runner for cfg.
func NewRunner(cfg Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		dial:   MilvusDialer,
		out:    NewReporter(os.Stdout),
		logger: zap.NewNop(),
		now:    time.Now,
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// session is the state shared by the steps of one run.
type session struct {
	store      Store
	collection string
	before     []string
	rng        *rand.Rand
	vectors    [][]float32
	ids        []int64
	recall     *float64
}

type step struct {
	name  string
	title string
	run   func(ctx context.Context, s *session) (int, error)
}

// Run executes every step in order, stopping at the first failure, and
// always closes the connection afterwards. The returned report is never nil.
func (r *Runner) Run(ctx context.Context) *Report {
	report := &Report{Address: r.cfg.Address()}
	r.out.Header("MILVUS COMPREHENSIVE TEST")

	s := &session{rng: newRand(r.cfg.Seed)}
	defer r.disconnect(s)

	err := r.cfg.Validate()
	if err != nil {
		err = errors.Wrap(err, "invalid configuration")
	} else {
		err = r.execute(ctx, s, report)
	}
	report.Collection = s.collection

	if err != nil {
		report.Err = err
		r.logger.Error("smoke test failed", zap.String("address", report.Address), zap.Error(err))
		r.out.Failed(err)
		return report
	}
	r.logger.Info("smoke test passed",
		zap.String("address", report.Address),
		zap.String("collection", report.Collection))
	r.out.Passed()
	return report
}

func (r *Runner) execute(ctx context.Context, s *session, report *Report) error {
	for i, st := range r.steps() {
		n := i + 1
		r.out.Step(n, st.title)
		r.logger.Debug("step started", zap.Int("step", n), zap.String("name", st.name))

		start := time.Now()
		items, err := st.run(ctx, s)
		res := StepResult{Step: n, Name: st.name, Duration: time.Since(start), Items: items}
		if st.name == StepSearch {
			res.Recall = s.recall
		}
		if err != nil {
			res.Err = &StepError{Step: n, Name: st.name, Err: err}
		}
		report.Steps = append(report.Steps, res)
		if r.observer != nil {
			r.observer(res)
		}

		if res.Err != nil {
			return res.Err
		}
		r.logger.Debug("step finished",
			zap.Int("step", n),
			zap.String("name", st.name),
			zap.String("collection", s.collection),
			zap.Duration("duration", res.Duration),
			zap.Int("items", items))
		r.out.Blank()
	}
	return nil
}

// disconnect closes the store, if one was opened. Its failure never changes
// the outcome of the run.
func (r *Runner) disconnect(s *session) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Close(ctx); err != nil {
		r.logger.Debug("disconnect failed", zap.Error(err))
		return
	}
	r.out.Disconnected()
}

func (r *Runner) steps() []step {
	return []step{
		{StepConnect, "Connecting to Milvus...", r.connect},
		{StepListCollections, "Listing existing collections...", r.listCollections},
		{StepCreateCollection, "Creating test collection...", r.createCollection},
		{StepInsert, "Inserting " + strconv.Itoa(r.cfg.Rows) + " vectors...", r.insert},
		{StepFlush, "Flushing data to storage...", r.flush},
		{StepCreateIndex, "Building index...", r.createIndex},
		{StepLoad, "Loading collection into memory...", r.load},
		{StepStats, "Getting collection statistics...", r.stats},
		{StepSearch, "Performing vector search...", r.search},
		{StepQuery, "Performing filtered query...", r.query},
		{StepRelease, "Cleaning up test collection...", r.release},
	}
}

func (r *Runner) connect(ctx context.Context, s *session) (int, error) {
	store, err := r.dial(ctx, r.cfg)
	if err != nil {
		return 0, err
	}
	s.store = store
	r.out.Success("Connected successfully")
	return 1, nil
}

func (r *Runner) listCollections(ctx context.Context, s *session) (int, error) {
	names, err := s.store.ListCollections(ctx)
	if err != nil {
		return 0, err
	}
	s.before = names
	r.out.Success("Found %d collections", len(names))
	for _, name := range names {
		r.out.Detail("- %s", name)
	}
	return len(names), nil
}

func (r *Runner) createCollection(ctx context.Context, s *session) (int, error) {
	name := CollectionName(r.cfg.CollectionPrefix, r.now())
	if err := s.store.CreateCollection(ctx, SmokeSchema(name, r.cfg.Dimension)); err != nil {
		return 0, err
	}
	s.collection = name
	r.out.Success("Created collection: %s", name)

	if r.cfg.Strict {
		after, err := s.store.ListCollections(ctx)
		if err != nil {
			return 0, err
		}
		want := append(append([]string{}, s.before...), name)
		missing := lo.Filter(want, func(n string, _ int) bool { return !lo.Contains(after, n) })
		if len(missing) > 0 {
			return 0, checkFailed("collections missing after create: %s", strings.Join(missing, ", "))
		}
		exists, err := s.store.HasCollection(ctx, name)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, checkFailed("collection %s does not exist after create", name)
		}
	}
	return 1, nil
}

func (r *Runner) insert(ctx context.Context, s *session) (int, error) {
	vectors := RandomVectors(s.rng, r.cfg.Rows, r.cfg.Dimension)
	data := map[string]any{
		FieldTextID:    TextIDs(r.cfg.Rows),
		FieldEmbedding: vectors,
	}
	ids, err := s.store.Insert(ctx, s.collection, data)
	if err != nil {
		return 0, err
	}
	s.vectors, s.ids = vectors, ids
	r.out.Success("Inserted %d vectors", len(ids))

	if r.cfg.Strict && len(ids) != r.cfg.Rows {
		return len(ids), checkFailed("server returned %d primary keys for %d rows", len(ids), r.cfg.Rows)
	}
	return len(ids), nil
}

func (r *Runner) flush(ctx context.Context, s *session) (int, error) {
	if err := s.store.Flush(ctx, s.collection); err != nil {
		return 0, err
	}
	r.out.Success("Data flushed")
	return 0, nil
}

func (r *Runner) createIndex(ctx context.Context, s *session) (int, error) {
	if err := s.store.CreateIndex(ctx, s.collection, FieldEmbedding, r.cfg.Index); err != nil {
		return 0, err
	}
	r.out.Success("Index created")
	return 0, nil
}

func (r *Runner) load(ctx context.Context, s *session) (int, error) {
	if err := s.store.LoadCollection(ctx, s.collection); err != nil {
		return 0, err
	}
	r.out.Success("Collection loaded")

	if r.cfg.LoadWait > 0 {
		r.out.Detail("Waiting for collection to finish loading...")
		if err := r.sleep(ctx, r.cfg.LoadWait); err != nil {
			return 0, errors.Wrap(err, "interrupted while waiting for load")
		}
	}
	return 0, nil
}

func (r *Runner) stats(ctx context.Context, s *session) (int, error) {
	n, err := s.store.CountEntities(ctx, s.collection)
	if err != nil {
		return 0, err
	}
	r.out.Success("Collection has %d entities", n)

	if r.cfg.Strict && n < int64(r.cfg.Rows) {
		return int(n), checkFailed("collection has %d entities, want at least %d", n, r.cfg.Rows)
	}
	return int(n), nil
}

func (r *Runner) search(ctx context.Context, s *session) (int, error) {
	hits, err := s.store.Search(ctx, r.searchRequest(s, RandomVectors(s.rng, 1, r.cfg.Dimension)))
	if err != nil {
		return 0, err
	}
	r.out.Success("Search completed, found %d results", len(hits))
	for i, hit := range hits {
		r.out.Detail("%d. ID=%d, text_id=%v, distance=%.4f", i+1, hit.ID, hit.Fields[FieldTextID], hit.Score)
	}

	if r.cfg.Strict {
		if len(hits) > r.cfg.Limit {
			return len(hits), checkFailed("search returned %d hits, limit is %d", len(hits), r.cfg.Limit)
		}
		if r.cfg.Index.MetricType == "" || r.cfg.Index.MetricType == "L2" {
			for _, hit := range hits {
				if hit.Score < 0 {
					return len(hits), checkFailed("hit %d has negative L2 distance %f", hit.ID, hit.Score)
				}
			}
		}
		if err := r.checkRecall(ctx, s); err != nil {
			return len(hits), err
		}
	}
	return len(hits), nil
}

func (r *Runner) searchRequest(s *session, vectors [][]float32) milvus.SearchRequest {
	req := milvus.SearchRequest{
		Collection:   s.collection,
		Vectors:      vectors,
		Limit:        r.cfg.Limit,
		VectorField:  FieldEmbedding,
		OutputFields: []string{FieldTextID},
	}
	switch {
	case strings.HasPrefix(r.cfg.Index.IndexType, "IVF"):
		req.NProbe = r.cfg.NProbe
	case r.cfg.Index.IndexType == "HNSW":
		req.Ef = r.cfg.Ef
	}
	return req
}

// checkRecall searches for the first inserted vectors one at a time and
// expects each to find its own primary key.
func (r *Runner) checkRecall(ctx context.Context, s *session) error {
	n := min(r.cfg.QueryIDs, len(s.vectors), len(s.ids))
	if n == 0 {
		return nil
	}

	hits := make([][]milvus.SearchResult, n)
	truth := make([][]int64, n)
	for i := 0; i < n; i++ {
		res, err := s.store.Search(ctx, r.searchRequest(s, s.vectors[i:i+1]))
		if err != nil {
			return errors.Wrap(err, "self-recall search failed")
		}
		hits[i], truth[i] = res, []int64{s.ids[i]}
	}

	recall := milvus.Recall(hits, truth)
	s.recall = &recall
	r.out.Detail("self-recall@%d: %.2f", r.cfg.Limit, recall)
	if recall < r.cfg.MinRecall {
		return checkFailed("self-recall %.2f below %.2f", recall, r.cfg.MinRecall)
	}
	return nil
}

func (r *Runner) query(ctx context.Context, s *session) (int, error) {
	want := TextIDs(r.cfg.QueryIDs)
	rows, err := s.store.Query(ctx, milvus.QueryRequest{
		Collection:   s.collection,
		Filter:       milvus.InFilter(FieldTextID, want),
		OutputFields: []string{FieldTextID, FieldID},
	})
	if err != nil {
		return 0, err
	}
	r.out.Success("Query completed, found %d results", len(rows))
	for _, row := range rows {
		r.out.Detail("- %v", map[string]any(row))
	}

	if r.cfg.Strict {
		got := make([]string, 0, len(rows))
		for _, row := range rows {
			textID, _ := row[FieldTextID].(string)
			if !lo.Contains(want, textID) {
				return len(rows), checkFailed("query returned unexpected text_id %q", textID)
			}
			got = append(got, textID)
		}
		if len(lo.Uniq(got)) != len(want) || len(rows) != len(want) {
			return len(rows), checkFailed("query returned %d rows, want exactly %d", len(rows), len(want))
		}
	}
	return len(rows), nil
}

func (r *Runner) release(ctx context.Context, s *session) (int, error) {
	if err := s.store.ReleaseCollection(ctx, s.collection); err != nil {
		return 0, err
	}
	r.out.Success("Test collection '%s' released", s.collection)

	if r.cfg.Drop {
		if err := s.store.DropCollection(ctx, s.collection); err != nil {
			return 0, err
		}
		r.out.Success("Test collection '%s' dropped", s.collection)
	}
	return 0, nil
}
