// Package chi is the HTTP API: query, batch, ingestion and collection admin endpoints.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/nerprompt/internal/dataset"
	"github.com/kailas-cloud/nerprompt/internal/domain"
	dombatch "github.com/kailas-cloud/nerprompt/internal/domain/batch"
	healthuc "github.com/kailas-cloud/nerprompt/internal/usecase/health"
	"github.com/kailas-cloud/nerprompt/internal/usecase/ingestion"
	"github.com/kailas-cloud/nerprompt/internal/usecase/instruction"
)

// Request limits.
const (
	MaxTopK             = 100
	DefaultMaxBodyBytes = 32 << 20
)

// Server implements the HTTP handlers.
type Server struct {
	instructions InstructionBuilder
	batch        BatchRunner
	ingest       Ingester
	collections  CollectionAdmin
	health       HealthChecker
	logger       *zap.Logger
	maxBodyBytes int64
}

// NewServer creates an HTTP API server.
func NewServer(
	instructions InstructionBuilder,
	batch BatchRunner,
	ingest Ingester,
	collections CollectionAdmin,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	return &Server{
		instructions: instructions,
		batch:        batch,
		ingest:       ingest,
		collections:  collections,
		health:       health,
		logger:       logger,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
}

// WithMaxBodyBytes limits request body size.
func (s *Server) WithMaxBodyBytes(n int64) *Server {
	if n > 0 {
		s.maxBodyBytes = n
	}
	return s
}

type queryRequest struct {
	Text           string `json:"text"`
	Language       string `json:"language"`
	TopKEntities   *int   `json:"top_k_entities,omitempty"`
	TopKSentences  *int   `json:"top_k_sentences,omitempty"`
	IncludeDetails bool   `json:"include_details,omitempty"`
}

func (q queryRequest) toDomain() (domain.Query, error) {
	out := domain.Query{Text: q.Text, Language: domain.Language(q.Language)}
	if q.TopKEntities != nil {
		if *q.TopKEntities <= 0 || *q.TopKEntities > MaxTopK {
			return domain.Query{}, domain.NewInvalidInput("top_k_entities",
				fmt.Sprintf("must be between 1 and %d", MaxTopK))
		}
		out.TopKEntities = *q.TopKEntities
	}
	if q.TopKSentences != nil {
		if *q.TopKSentences <= 0 || *q.TopKSentences > MaxTopK {
			return domain.Query{}, domain.NewInvalidInput("top_k_sentences",
				fmt.Sprintf("must be between 1 and %d", MaxTopK))
		}
		out.TopKSentences = *q.TopKSentences
	}
	return out, nil
}

// Query handles POST /v1/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := s.decode(w, r, &req); err != nil {
		s.decodeError(w, err)
		return
	}
	q, err := req.toDomain()
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	out, err := s.instructions.Build(ctx, q, req.IncludeDetails)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, out)
}

type batchRequest struct {
	Queries        []queryRequest `json:"queries"`
	IncludeDetails bool           `json:"include_details,omitempty"`
}

// BatchItem is the outcome of one query of a batch.
type BatchItem struct {
	ID     string              `json:"id"`
	Status dombatch.ItemStatus `json:"status"`
	Result *instruction.Output `json:"result,omitempty"`
	Error  *ErrorResponse      `json:"error,omitempty"`
}

// BatchResponse is the body of POST /v1/query/batch.
type BatchResponse struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// QueryBatch handles POST /v1/query/batch. Items fail independently.
func (s *Server) QueryBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := s.decode(w, r, &req); err != nil {
		s.decodeError(w, err)
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, domain.KindInvalidInput, "queries must not be empty")
		return
	}

	items := make([]BatchItem, len(req.Queries))
	queries := make([]domain.Query, 0, len(req.Queries))
	positions := make([]int, 0, len(req.Queries))
	for i, qr := range req.Queries {
		q, err := qr.toDomain()
		if err != nil {
			items[i] = failedItem(strconv.Itoa(i), err)
			continue
		}
		queries = append(queries, q)
		positions = append(positions, i)
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	for j, res := range s.batch.Run(ctx, queries, req.IncludeDetails) {
		i := positions[j]
		if res.Status() != dombatch.StatusOK {
			items[i] = failedItem(strconv.Itoa(i), res.Err())
			continue
		}
		out := res.Value()
		items[i] = BatchItem{ID: strconv.Itoa(i), Status: dombatch.StatusOK, Result: &out}
	}

	resp := BatchResponse{Items: items}
	for _, it := range items {
		if it.Status == dombatch.StatusOK {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, resp)
}

func failedItem(id string, err error) BatchItem {
	return BatchItem{
		ID:     id,
		Status: dombatch.StatusError,
		Error:  &ErrorResponse{Code: domain.KindOf(err), Message: clientMessage(err)},
	}
}

// IngestResponse is the body of the ingestion endpoints.
type IngestResponse struct {
	Reports    []ingestion.Report `json:"reports"`
	Received   int                `json:"received"`
	Duplicates int                `json:"duplicates"`
	Inserted   int                `json:"inserted"`
	Failed     int                `json:"failed"`
}

// IngestEntities handles POST /v1/ingest/entities.
func (s *Server) IngestEntities(w http.ResponseWriter, r *http.Request) {
	doc, err := dataset.ParseEntities(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		s.bodyError(w, r, err)
		return
	}
	ctx, usage := domain.NewContextWithUsage(r.Context())
	reports, err := s.ingest.IngestEntities(ctx, doc, nil)
	s.writeIngest(w, r, usage, reports, err)
}

// IngestSentences handles POST /v1/ingest/sentences.
func (s *Server) IngestSentences(w http.ResponseWriter, r *http.Request) {
	doc, err := dataset.ParseSentences(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		s.bodyError(w, r, err)
		return
	}
	ctx, usage := domain.NewContextWithUsage(r.Context())
	reports, err := s.ingest.IngestSentences(ctx, doc, nil)
	s.writeIngest(w, r, usage, reports, err)
}

// writeIngest answers 200 when every record was written and 207 when some were rejected.
func (s *Server) writeIngest(
	w http.ResponseWriter, r *http.Request, usage *domain.EmbeddingUsage,
	reports []ingestion.Report, err error,
) {
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if reports == nil {
		reports = []ingestion.Report{}
	}
	resp := IngestResponse{Reports: reports}
	resp.Received, resp.Duplicates, resp.Inserted, resp.Failed = ingestion.Totals(reports)

	status := http.StatusOK
	if ingestion.Err(reports) != nil {
		status = http.StatusMultiStatus
	}
	setEmbeddingHeaders(w, usage)
	writeJSON(w, status, resp)
}

// CollectionStats handles GET /v1/collections?language=en,de.
func (s *Server) CollectionStats(w http.ResponseWriter, r *http.Request) {
	langs, err := languagesParam(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	st, err := s.collections.Stats(r.Context(), langs)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// CleanupCollections handles DELETE /v1/collections?language=en.
func (s *Server) CleanupCollections(w http.ResponseWriter, r *http.Request) {
	langs, err := languagesParam(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	rep, err := s.collections.Cleanup(r.Context(), langs)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HealthCheck handles GET /health. Degraded still answers 200.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func (s *Server) bodyError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "request body too large")
		return
	}
	s.handleDomainError(w, r, err)
}

// languagesParam accepts repeated and comma-separated language parameters.
func languagesParam(r *http.Request) ([]domain.Language, error) {
	var codes []string
	for _, v := range r.URL.Query()["language"] {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				codes = append(codes, c)
			}
		}
	}
	langs, err := domain.ParseLanguages(codes)
	if err != nil {
		return nil, fmt.Errorf("language parameter: %w", err)
	}
	return langs, nil
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if tokens, used := usage.Snapshot(); used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(tokens))
	}
}
