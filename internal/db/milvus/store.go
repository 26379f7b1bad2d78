// Package milvus implements db.Store on a Milvus 2.x server.
package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/kailas-cloud/nerprompt/internal/db"
	"github.com/kailas-cloud/nerprompt/internal/domain/search/filter"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

const pkField = "id"

// Config holds connection and search parameters.
type Config struct {
	Address  string
	Username string
	Password string
	Database string
	Timeout  time.Duration
	NProbe   int // IVF search breadth
	EF       int // HNSW search breadth
}

// Store implements db.Store via the Milvus v2 SDK.
type Store struct {
	client *milvusclient.Client
	cfg    Config

	mu     sync.Mutex
	loaded map[string]bool
}

// NewStore connects to Milvus.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.NProbe <= 0 {
		cfg.NProbe = 10
	}
	if cfg.EF <= 0 {
		cfg.EF = 64
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}
	return &Store{client: c, cfg: cfg, loaded: make(map[string]bool)}, nil
}

// Ping lists collections as a liveness probe.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.ListCollections(ctx, milvusclient.NewListCollectionOption()); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close closes the client connection.
func (s *Store) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	_ = s.client.Close(ctx)
}

// WaitForReady polls Ping until the server responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for milvus: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// CreateCollection creates the collection, builds the vector index and loads it.
func (s *Store) CreateCollection(ctx context.Context, def *db.CollectionDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(def.Name))
	if err != nil {
		return &db.Error{Op: db.OpMilvusCreate, Err: fmt.Errorf("check existence: %w", err)}
	}
	if exists {
		return db.ErrCollectionExists
	}

	schema, err := buildSchema(def)
	if err != nil {
		return err
	}
	if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(def.Name, schema)); err != nil {
		return &db.Error{Op: db.OpMilvusCreate, Err: err}
	}

	task, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(def.Name, def.Vector.Name, buildIndex(&def.Vector)))
	if err != nil {
		return &db.Error{Op: db.OpMilvusCreate, Err: fmt.Errorf("create index: %w", err)}
	}
	if err := task.Await(ctx); err != nil {
		return &db.Error{Op: db.OpMilvusCreate, Err: fmt.Errorf("wait for index: %w", err)}
	}
	return s.ensureLoaded(ctx, def.Name)
}

// DescribeCollection reconstructs the definition from the Milvus schema.
func (s *Store) DescribeCollection(ctx context.Context, name string) (*db.CollectionDefinition, error) {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return nil, &db.Error{Op: db.OpMilvusDescribe, Err: err}
	}
	if !exists {
		return nil, db.ErrCollectionNotFound
	}
	coll, err := s.client.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(name))
	if err != nil {
		return nil, &db.Error{Op: db.OpMilvusDescribe, Err: err}
	}
	return definitionFromSchema(name, coll.Schema)
}

// DropCollection drops the collection and its data.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return &db.Error{Op: db.OpMilvusDrop, Err: err}
	}
	if !exists {
		return db.ErrCollectionNotFound
	}
	if err := s.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return &db.Error{Op: db.OpMilvusDrop, Err: err}
	}
	s.mu.Lock()
	delete(s.loaded, name)
	s.mu.Unlock()
	return nil
}

// ListCollections returns all collection names in the database.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx, milvusclient.NewListCollectionOption())
	if err != nil {
		return nil, &db.Error{Op: db.OpMilvusList, Err: err}
	}
	return names, nil
}

// CountRecords returns row_count from collection statistics.
func (s *Store) CountRecords(ctx context.Context, name string) (int, error) {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return 0, &db.Error{Op: db.OpMilvusStats, Err: err}
	}
	if !exists {
		return 0, db.ErrCollectionNotFound
	}
	stats, err := s.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(name))
	if err != nil {
		return 0, &db.Error{Op: db.OpMilvusStats, Err: err}
	}
	val, ok := stats["row_count"]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parse row_count: %w", err)
	}
	return n, nil
}

// InsertRecords inserts column-based data and flushes so records are searchable immediately.
func (s *Store) InsertRecords(ctx context.Context, name string, records []db.Record) ([]string, error) {
	def, err := s.DescribeCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	cols, err := buildColumns(def, records)
	if err != nil {
		return nil, err
	}

	result, err := s.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(name, cols...))
	if err != nil {
		return nil, &db.Error{Op: db.OpMilvusInsert, Err: err}
	}

	flushTask, err := s.client.Flush(ctx, milvusclient.NewFlushOption(name))
	if err != nil {
		return nil, &db.Error{Op: db.OpMilvusInsert, Err: fmt.Errorf("flush: %w", err)}
	}
	if err := flushTask.Await(ctx); err != nil {
		return nil, &db.Error{Op: db.OpMilvusInsert, Err: fmt.Errorf("wait for flush: %w", err)}
	}

	idCol, ok := result.IDs.(*column.ColumnInt64)
	if !ok {
		return nil, fmt.Errorf("unexpected primary key column %T", result.IDs)
	}
	ids := make([]string, 0, idCol.Len())
	for _, id := range idCol.Data() {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return ids, nil
}

// SearchKNN runs an ANN search with an optional boolean filter expression.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	def, err := s.DescribeCollection(ctx, q.Collection)
	if err != nil {
		return nil, err
	}
	if len(q.Vector) != def.Vector.Dim {
		return nil, fmt.Errorf("%w: expected %d, got %d", db.ErrDimensionMismatch, def.Vector.Dim, len(q.Vector))
	}
	if err := s.ensureLoaded(ctx, q.Collection); err != nil {
		return nil, err
	}

	outputFields := q.ReturnFields
	if len(outputFields) == 0 {
		outputFields = def.FieldNames()
	}

	opt := milvusclient.NewSearchOption(q.Collection, q.K, []entity.Vector{entity.FloatVector(q.Vector)}).
		WithANNSField(def.Vector.Name).
		WithOutputFields(outputFields...)
	switch def.Vector.Algorithm {
	case db.VectorIVFFlat:
		opt = opt.WithSearchParam("nprobe", strconv.Itoa(s.cfg.NProbe))
	case db.VectorHNSW:
		opt = opt.WithSearchParam("ef", strconv.Itoa(max(s.cfg.EF, q.K)))
	}
	if expr := buildFilter(q.Filters); expr != "" {
		opt = opt.WithFilter(expr)
	}

	results, err := s.client.Search(ctx, opt)
	if err != nil {
		return nil, &db.Error{Op: db.OpMilvusSearch, Err: err}
	}
	if len(results) == 0 {
		return &db.SearchResult{Metric: def.Vector.Metric}, nil
	}

	rs := results[0]
	entries := convertResults(rs.ResultCount, rs.IDs, rs.Scores, rs.Fields, def.Vector.Metric)
	return &db.SearchResult{Metric: def.Vector.Metric, Entries: entries}, nil
}

func (s *Store) ensureLoaded(ctx context.Context, name string) error {
	s.mu.Lock()
	done := s.loaded[name]
	s.mu.Unlock()
	if done {
		return nil
	}

	task, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}

	s.mu.Lock()
	s.loaded[name] = true
	s.mu.Unlock()
	return nil
}

// schemaMeta is kept in the schema description: Milvus has no notion of
// our metric-per-collection or tag/text distinction.
type schemaMeta struct {
	Metric    db.DistanceMetric  `json:"metric"`
	Algorithm db.VectorAlgorithm `json:"algorithm"`
	Tags      []string           `json:"tags,omitempty"`
	NList     int                `json:"nlist,omitempty"`
	M         int                `json:"m,omitempty"`
	EF        int                `json:"ef_construction,omitempty"`
}

func buildSchema(def *db.CollectionDefinition) (*entity.Schema, error) {
	meta := schemaMeta{
		Metric:    def.Vector.Metric,
		Algorithm: def.Vector.Algorithm,
		NList:     def.Vector.NList,
		M:         def.Vector.M,
		EF:        def.Vector.EFConstruct,
	}
	for _, f := range def.Fields {
		if f.Type == db.FieldTag {
			meta.Tags = append(meta.Tags, f.Name)
		}
	}
	desc, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal schema meta: %w", err)
	}

	schema := entity.NewSchema().
		WithName(def.Name).
		WithDescription(string(desc)).
		WithAutoID(true)

	schema.WithField(
		entity.NewField().
			WithName(pkField).
			WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true).
			WithIsAutoID(true),
	)
	schema.WithField(
		entity.NewField().
			WithName(def.Vector.Name).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(def.Vector.Dim)),
	)
	for _, f := range def.Fields {
		maxLen := f.MaxLength
		if maxLen <= 0 {
			maxLen = 65535
		}
		schema.WithField(
			entity.NewField().
				WithName(f.Name).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(int64(maxLen)),
		)
	}
	return schema, nil
}

func definitionFromSchema(name string, schema *entity.Schema) (*db.CollectionDefinition, error) {
	if schema == nil {
		return nil, fmt.Errorf("collection %s has no schema", name)
	}
	var meta schemaMeta
	if err := json.Unmarshal([]byte(schema.Description), &meta); err != nil {
		return nil, fmt.Errorf("collection %s: %w: not created by this service", name, db.ErrInvalidDefinition)
	}
	tags := make(map[string]bool, len(meta.Tags))
	for _, t := range meta.Tags {
		tags[t] = true
	}

	def := &db.CollectionDefinition{
		Name: name,
		Vector: db.VectorField{
			Metric:      meta.Metric,
			Algorithm:   meta.Algorithm,
			NList:       meta.NList,
			M:           meta.M,
			EFConstruct: meta.EF,
		},
	}
	for _, f := range schema.Fields {
		switch f.DataType {
		case entity.FieldTypeFloatVector:
			dim, err := strconv.Atoi(f.TypeParams["dim"])
			if err != nil {
				return nil, fmt.Errorf("parse dim of %s: %w", f.Name, err)
			}
			def.Vector.Name = f.Name
			def.Vector.Dim = dim
		case entity.FieldTypeVarChar:
			maxLen, _ := strconv.Atoi(f.TypeParams["max_length"])
			typ := db.FieldText
			if tags[f.Name] {
				typ = db.FieldTag
			}
			def.Fields = append(def.Fields, db.Field{Name: f.Name, Type: typ, MaxLength: maxLen})
		}
	}
	if def.Vector.Name == "" {
		return nil, fmt.Errorf("collection %s has no vector field", name)
	}
	return def, nil
}

func buildIndex(v *db.VectorField) index.Index {
	metric := toMetricType(v.Metric)
	switch v.Algorithm {
	case db.VectorHNSW:
		m, ef := v.M, v.EFConstruct
		if m <= 0 {
			m = 16
		}
		if ef <= 0 {
			ef = 200
		}
		return index.NewHNSWIndex(metric, m, ef)
	case db.VectorIVFFlat:
		nlist := v.NList
		if nlist <= 0 {
			nlist = 1024
		}
		return index.NewIvfFlatIndex(metric, nlist)
	default:
		return index.NewFlatIndex(metric)
	}
}

func toMetricType(m db.DistanceMetric) entity.MetricType {
	switch m {
	case db.DistanceL2:
		return entity.L2
	case db.DistanceIP:
		return entity.IP
	default:
		return entity.COSINE
	}
}

func buildColumns(def *db.CollectionDefinition, records []db.Record) ([]column.Column, error) {
	vectors := make([][]float32, len(records))
	for i, r := range records {
		if err := def.ValidateRecord(r); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		vectors[i] = r.Vector
	}

	cols := make([]column.Column, 0, len(def.Fields)+1)
	cols = append(cols, column.NewColumnFloatVector(def.Vector.Name, def.Vector.Dim, vectors))
	for _, f := range def.Fields {
		values := make([]string, len(records))
		for i, r := range records {
			values[i] = r.Fields[f.Name]
		}
		cols = append(cols, column.NewColumnVarChar(f.Name, values))
	}
	return cols, nil
}

// convertResults maps Milvus scores to distances. COSINE and IP report similarity,
// L2 reports squared distance.
func convertResults(
	count int, ids column.Column, scores []float32, fields []column.Column, metric db.DistanceMetric,
) []db.SearchEntry {
	entries := make([]db.SearchEntry, 0, count)
	for i := 0; i < count && i < len(scores); i++ {
		entry := db.SearchEntry{Fields: make(map[string]string, len(fields))}

		if idCol, ok := ids.(*column.ColumnInt64); ok && i < idCol.Len() {
			entry.ID = strconv.FormatInt(idCol.Data()[i], 10)
		}

		score := float64(scores[i])
		switch metric {
		case db.DistanceL2:
			entry.Distance = math.Sqrt(math.Max(score, 0))
		default:
			entry.Distance = 1 - score
		}

		for _, field := range fields {
			if col, ok := field.(*column.ColumnVarChar); ok && i < col.Len() {
				entry.Fields[col.Name()] = col.Data()[i]
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// buildFilter translates filter.Expression into a Milvus boolean expression.
func buildFilter(expr filter.Expression) string {
	if expr.IsEmpty() {
		return ""
	}
	parts := make([]string, 0, len(expr.Must())+len(expr.MustNot()))
	for _, c := range expr.Must() {
		parts = append(parts, fmt.Sprintf("%s == %s", c.Key(), quote(c.Match())))
	}
	for _, c := range expr.MustNot() {
		parts = append(parts, fmt.Sprintf("%s != %s", c.Key(), quote(c.Match())))
	}
	return strings.Join(parts, " and ")
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quote(s string) string {
	return `"` + quoteEscaper.Replace(s) + `"`
}
