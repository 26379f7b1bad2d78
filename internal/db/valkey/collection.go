package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/nerprompt/internal/db"
)

// Meta hash field names.
const (
	metaName      = "name"
	metaDim       = "dim"
	metaMetric    = "metric"
	metaAlgorithm = "algorithm"
	metaVector    = "vector_field"
	metaFields    = "fields"
	metaM         = "m"
	metaEF        = "ef_construction"
	metaBlockSize = "block_size"
)

// CreateCollection writes the meta hash, then FT.CREATE. The meta hash is rolled back
// if the index cannot be created.
func (s *Store) CreateCollection(ctx context.Context, def *db.CollectionDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if def.Vector.Algorithm == db.VectorIVFFlat {
		return fmt.Errorf("%w: IVF_FLAT is not supported by valkey-search", db.ErrInvalidDefinition)
	}

	metaKey := s.metaKey(def.Name)
	found, err := s.exists(ctx, metaKey)
	if err != nil {
		return err
	}
	if found {
		return db.ErrCollectionExists
	}

	meta, err := encodeMeta(def)
	if err != nil {
		return err
	}
	if err := s.hset(ctx, metaKey, meta); err != nil {
		return fmt.Errorf("store collection meta: %w", err)
	}

	args := buildCreateArgs(s.indexName(def.Name), s.recordPrefix(def.Name), def)
	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		createErr := error(&db.Error{Op: db.OpCreateIndex, Err: err})
		if isRedisErr(err, "index already exists") {
			createErr = db.ErrCollectionExists
		}
		if delErr := s.del(ctx, metaKey); delErr != nil {
			return errors.Join(createErr, fmt.Errorf("rollback meta: %w", delErr))
		}
		return createErr
	}

	s.remember(def)
	return nil
}

// DescribeCollection reads the definition from the meta hash.
func (s *Store) DescribeCollection(ctx context.Context, name string) (*db.CollectionDefinition, error) {
	if def, ok := s.cached(name); ok {
		return def, nil
	}
	m, err := s.hgetAll(ctx, s.metaKey(name))
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, db.ErrCollectionNotFound
	}
	def, err := decodeMeta(m)
	if err != nil {
		return nil, fmt.Errorf("decode collection %s: %w", name, err)
	}
	s.remember(def)
	return copyDef(def), nil
}

// DropCollection drops the index, deletes record hashes and the meta hash.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	found, err := s.exists(ctx, s.metaKey(name))
	if err != nil {
		return err
	}
	if !found {
		return db.ErrCollectionNotFound
	}

	cmd := s.b().Arbitrary("FT.DROPINDEX").Args(s.indexName(name)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil && !isRedisErr(err, "unknown index name") {
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}

	keys, err := s.scan(ctx, s.recordPrefix(name)+"*")
	if err != nil {
		return fmt.Errorf("scan records: %w", err)
	}
	for start := 0; start < len(keys); start += 100 {
		end := min(start+100, len(keys))
		if err := s.del(ctx, keys[start:end]...); err != nil {
			return fmt.Errorf("delete records: %w", err)
		}
	}
	if err := s.del(ctx, s.metaKey(name)); err != nil {
		return err
	}

	s.forget(name)
	return nil
}

// ListCollections returns collection names sorted alphabetically.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	prefix := s.metaKey("")
	keys, err := s.scan(ctx, prefix+"*")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, prefix))
	}
	sort.Strings(names)
	return names, nil
}

// CountRecords counts record keys via SCAN: valkey-search has no bare FT.SEARCH without KNN.
func (s *Store) CountRecords(ctx context.Context, name string) (int, error) {
	if _, err := s.DescribeCollection(ctx, name); err != nil {
		return 0, err
	}
	keys, err := s.scan(ctx, s.recordPrefix(name)+"*")
	if err != nil {
		return 0, fmt.Errorf("scan for count: %w", err)
	}
	return len(keys), nil
}

func (s *Store) cached(name string) (*db.CollectionDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[name]
	if !ok {
		return nil, false
	}
	return copyDef(def), true
}

func (s *Store) remember(def *db.CollectionDefinition) {
	s.mu.Lock()
	s.defs[def.Name] = copyDef(def)
	s.mu.Unlock()
}

func (s *Store) forget(name string) {
	s.mu.Lock()
	delete(s.defs, name)
	s.mu.Unlock()
}

func copyDef(def *db.CollectionDefinition) *db.CollectionDefinition {
	cp := *def
	cp.Fields = append([]db.Field(nil), def.Fields...)
	return &cp
}

func encodeMeta(def *db.CollectionDefinition) (map[string]string, error) {
	fields, err := json.Marshal(def.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	return map[string]string{
		metaName:      def.Name,
		metaDim:       strconv.Itoa(def.Vector.Dim),
		metaMetric:    string(def.Vector.Metric),
		metaAlgorithm: string(def.Vector.Algorithm),
		metaVector:    def.Vector.Name,
		metaFields:    string(fields),
		metaM:         strconv.Itoa(def.Vector.M),
		metaEF:        strconv.Itoa(def.Vector.EFConstruct),
		metaBlockSize: strconv.Itoa(def.Vector.BlockSize),
	}, nil
}

func decodeMeta(m map[string]string) (*db.CollectionDefinition, error) {
	dim, err := strconv.Atoi(m[metaDim])
	if err != nil {
		return nil, fmt.Errorf("parse dim: %w", err)
	}
	metric, err := db.ParseDistanceMetric(m[metaMetric])
	if err != nil {
		return nil, err
	}
	algo, err := db.ParseVectorAlgorithm(m[metaAlgorithm])
	if err != nil {
		return nil, err
	}
	def := &db.CollectionDefinition{
		Name: m[metaName],
		Vector: db.VectorField{
			Name:      m[metaVector],
			Dim:       dim,
			Metric:    metric,
			Algorithm: algo,
		},
	}
	if def.Vector.Name == "" {
		def.Vector.Name = db.DefaultVectorField
	}
	// optional tuning params; zero when absent
	def.Vector.M, _ = strconv.Atoi(m[metaM])
	def.Vector.EFConstruct, _ = strconv.Atoi(m[metaEF])
	def.Vector.BlockSize, _ = strconv.Atoi(m[metaBlockSize])

	if raw := m[metaFields]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &def.Fields); err != nil {
			return nil, fmt.Errorf("parse fields: %w", err)
		}
	}
	return def, nil
}

// buildCreateArgs renders FT.CREATE arguments. Only TAG fields are indexed:
// text payload is stored in the hash and returned via RETURN.
func buildCreateArgs(index, prefix string, def *db.CollectionDefinition) []string {
	args := []string{index, "ON", "HASH", "PREFIX", "1", prefix, "SCHEMA"}
	for _, f := range def.Fields {
		if f.Type == db.FieldTag {
			args = append(args, f.Name, "TAG")
		}
	}
	args = append(args, def.Vector.Name)
	return append(args, buildVectorFieldArgs(&def.Vector)...)
}

func buildVectorFieldArgs(v *db.VectorField) []string {
	algo := v.Algorithm
	if algo == "" {
		algo = db.VectorFlat
	}

	metric := v.Metric
	if metric == "" {
		metric = db.DistanceCosine
	}

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(v.Dim),
		"DISTANCE_METRIC", string(metric),
	}

	switch algo {
	case db.VectorHNSW:
		if v.M > 0 {
			attrs = append(attrs, "M", strconv.Itoa(v.M))
		}
		if v.EFConstruct > 0 {
			attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(v.EFConstruct))
		}
	case db.VectorFlat:
		if v.BlockSize > 0 {
			attrs = append(attrs, "BLOCK_SIZE", strconv.Itoa(v.BlockSize))
		}
	}

	result := make([]string, 0, 3+len(attrs))
	result = append(result, "VECTOR", string(algo), strconv.Itoa(len(attrs)))
	result = append(result, attrs...)
	return result
}
