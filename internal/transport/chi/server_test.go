package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/nerprompt/internal/dataset"
	"github.com/kailas-cloud/nerprompt/internal/domain"
	dombatch "github.com/kailas-cloud/nerprompt/internal/domain/batch"
	collectionuc "github.com/kailas-cloud/nerprompt/internal/usecase/collection"
	healthuc "github.com/kailas-cloud/nerprompt/internal/usecase/health"
	"github.com/kailas-cloud/nerprompt/internal/usecase/ingestion"
	"github.com/kailas-cloud/nerprompt/internal/usecase/instruction"
)

// --- Mocks ---

type mockBuilder struct {
	err    error
	calls  int
	last   domain.Query
	tokens int
}

func (m *mockBuilder) Build(ctx context.Context, q domain.Query, withDetails bool) (instruction.Output, error) {
	m.calls++
	m.last = q
	if m.err != nil {
		return instruction.Output{}, m.err
	}
	domain.UsageFromContext(ctx).AddTokens(m.tokens)
	out := instruction.Output{Instruction: "Input: " + q.Text}
	if withDetails {
		out.Sentences = []domain.SentenceHit{}
	}
	return out, nil
}

type mockBatch struct {
	got []domain.Query
}

func (m *mockBatch) Run(_ context.Context, qs []domain.Query, _ bool) []dombatch.Result[instruction.Output] {
	m.got = qs
	out := make([]dombatch.Result[instruction.Output], len(qs))
	for i, q := range qs {
		id := fmt.Sprint(i)
		if q.Text == "fail" {
			out[i] = dombatch.NewError[instruction.Output](id, domain.ErrEmbeddingFailure)
			continue
		}
		out[i] = dombatch.NewOK(id, instruction.Output{Instruction: "Input: " + q.Text})
	}
	return out
}

type mockIngester struct {
	reports []ingestion.Report
	err     error
	gotEnt  dataset.Entities
	gotSent dataset.Sentences
}

func (m *mockIngester) IngestEntities(
	_ context.Context, doc dataset.Entities, _ ingestion.ProgressFunc,
) ([]ingestion.Report, error) {
	m.gotEnt = doc
	return m.reports, m.err
}

func (m *mockIngester) IngestSentences(
	_ context.Context, doc dataset.Sentences, _ ingestion.ProgressFunc,
) ([]ingestion.Report, error) {
	m.gotSent = doc
	return m.reports, m.err
}

type mockAdmin struct {
	langs []domain.Language
	err   error
}

func (m *mockAdmin) Stats(_ context.Context, langs []domain.Language) (collectionuc.Stats, error) {
	m.langs = langs
	return collectionuc.Stats{TotalEntities: 7}, m.err
}

func (m *mockAdmin) Cleanup(_ context.Context, langs []domain.Language) (collectionuc.CleanupReport, error) {
	m.langs = langs
	return collectionuc.CleanupReport{Dropped: []string{"entity_en"}, Skipped: []string{}}, m.err
}

type mockHealth struct {
	status healthuc.Status
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report {
	return healthuc.Report{Status: m.status, Checks: map[string]healthuc.CheckResult{}}
}

type testAPI struct {
	builder *mockBuilder
	batch   *mockBatch
	ingest  *mockIngester
	admin   *mockAdmin
	health  *mockHealth
	server  *Server
	handler http.Handler
}

func newTestAPI(apiKeys ...string) *testAPI {
	a := &testAPI{
		builder: &mockBuilder{},
		batch:   &mockBatch{},
		ingest:  &mockIngester{},
		admin:   &mockAdmin{},
		health:  &mockHealth{status: healthuc.Healthy},
	}
	a.server = NewServer(a.builder, a.batch, a.ingest, a.admin, a.health, zap.NewNop())
	a.handler = NewRouter(a.server, apiKeys, zap.NewNop())
	return a
}

func (a *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func readError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return e
}

// --- Query ---

func TestQuery_OK(t *testing.T) {
	a := newTestAPI()
	a.builder.tokens = 12

	rr := a.do("POST", "/v1/query", `{"text": "Obama visited Paris", "language": "en", "top_k_entities": 3}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	var out instruction.Output
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Instruction != "Input: Obama visited Paris" {
		t.Errorf("instruction = %q", out.Instruction)
	}
	if a.builder.last.TopKEntities != 3 || a.builder.last.TopKSentences != 0 {
		t.Errorf("query = %+v", a.builder.last)
	}
	if rr.Header().Get("X-Embedding-Tokens") != "12" {
		t.Errorf("X-Embedding-Tokens = %q", rr.Header().Get("X-Embedding-Tokens"))
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestQuery_TopKOutOfRange(t *testing.T) {
	a := newTestAPI()
	rr := a.do("POST", "/v1/query", `{"text": "x", "language": "en", "top_k_sentences": 0}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if e := readError(t, rr); e.Code != domain.KindInvalidInput {
		t.Errorf("code = %s", e.Code)
	}
	if a.builder.calls != 0 {
		t.Error("builder must not be called")
	}
}

func TestQuery_BadBody(t *testing.T) {
	a := newTestAPI()
	for _, body := range []string{`{`, `{"text": "x", "lang": "en"}`} {
		rr := a.do("POST", "/v1/query", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d", body, rr.Code)
		}
		if e := readError(t, rr); e.Code != codeBadRequest {
			t.Errorf("body %q: code = %s", body, e.Code)
		}
	}
}

func TestQuery_BodyTooLarge(t *testing.T) {
	a := newTestAPI()
	a.server.WithMaxBodyBytes(16)
	rr := a.do("POST", "/v1/query", `{"text": "a very long query text", "language": "en"}`)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestQuery_DomainErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    domain.ErrorKind
		message string
	}{
		{"invalid", domain.NewInvalidInput("language", "unsupported language \"pt\""),
			http.StatusBadRequest, domain.KindInvalidInput, ""},
		{"not found", fmt.Errorf("%w: sentence_en", domain.ErrCollectionNotFound),
			http.StatusNotFound, domain.KindCollectionNotFound, ""},
		{"embedding", fmt.Errorf("embed query: %w: upstream said secret", domain.ErrEmbeddingFailure),
			http.StatusBadGateway, domain.KindEmbeddingFailure, "embedding failure"},
		{"rate limited", fmt.Errorf("%w: %w", domain.ErrRateLimited, domain.ErrEmbeddingFailure),
			http.StatusTooManyRequests, domain.KindRateLimited, "rate limited"},
		{"timeout", fmt.Errorf("search: %w", context.DeadlineExceeded),
			http.StatusGatewayTimeout, domain.KindTimeout, "deadline exceeded"},
		{"internal", errors.New("disk on fire"),
			http.StatusInternalServerError, domain.KindInternal, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI()
			a.builder.err = tt.err
			rr := a.do("POST", "/v1/query", `{"text": "x", "language": "en"}`)
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			e := readError(t, rr)
			if e.Code != tt.code {
				t.Errorf("code = %s, want %s", e.Code, tt.code)
			}
			if tt.message != "" && e.Message != tt.message {
				t.Errorf("message = %q, want %q", e.Message, tt.message)
			}
		})
	}
}

// --- Batch ---

func TestQueryBatch_PerItem(t *testing.T) {
	a := newTestAPI()
	rr := a.do("POST", "/v1/query/batch", `{"queries": [
		{"text": "one", "language": "en"},
		{"text": "bad", "language": "en", "top_k_entities": 1000},
		{"text": "fail", "language": "en"},
		{"text": "four", "language": "de"}
	]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	var resp BatchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Succeeded != 2 || resp.Failed != 2 {
		t.Errorf("succeeded/failed = %d/%d", resp.Succeeded, resp.Failed)
	}
	if len(a.batch.got) != 3 {
		t.Errorf("runner got %d queries, want 3", len(a.batch.got))
	}
	if it := resp.Items[1]; it.ID != "1" || it.Error == nil || it.Error.Code != domain.KindInvalidInput {
		t.Errorf("item 1 = %+v", it)
	}
	if it := resp.Items[2]; it.ID != "2" || it.Error == nil || it.Error.Code != domain.KindEmbeddingFailure {
		t.Errorf("item 2 = %+v", it)
	}
	if it := resp.Items[3]; it.ID != "3" || it.Result == nil || it.Result.Instruction != "Input: four" {
		t.Errorf("item 3 = %+v", it)
	}
}

func TestQueryBatch_Empty(t *testing.T) {
	a := newTestAPI()
	if rr := a.do("POST", "/v1/query/batch", `{"queries": []}`); rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}

// --- Ingest ---

func TestIngestEntities_OK(t *testing.T) {
	a := newTestAPI()
	a.ingest.reports = []ingestion.Report{{Language: domain.LangEN, Kind: domain.KindEntity, Received: 2, Inserted: 2}}

	rr := a.do("POST", "/v1/ingest/entities", `{"en": {"PERSON": ["Obama", "Merkel"]}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	if len(a.ingest.gotEnt.Items) != 2 {
		t.Errorf("ingester got %d items", len(a.ingest.gotEnt.Items))
	}
	var resp IngestResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Inserted != 2 || resp.Failed != 0 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestIngestSentences_PartialFailure(t *testing.T) {
	a := newTestAPI()
	a.ingest.reports = []ingestion.Report{{
		Language: domain.LangEN, Kind: domain.KindSentence, Received: 2, Inserted: 1, Failed: 1,
		Failures: []dataset.Failure{{Language: "en", Ref: "en[1]", Reason: "empty text"}},
	}}

	rr := a.do("POST", "/v1/ingest/sentences", `{"en": [{"sentence": "Obama spoke.", "ner_labels": {"PERSON": ["Obama"]}}]}`)
	if rr.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207", rr.Code)
	}
	if len(a.ingest.gotSent.Items) != 1 {
		t.Errorf("ingester got %d sentences", len(a.ingest.gotSent.Items))
	}
}

func TestIngest_Errors(t *testing.T) {
	a := newTestAPI()
	if rr := a.do("POST", "/v1/ingest/entities", `[1, 2]`); rr.Code != http.StatusBadRequest {
		t.Errorf("malformed document: status = %d", rr.Code)
	}

	a.ingest.err = &domain.SchemaMismatchError{Collection: "entity_en", Expected: "dim 256", Actual: "dim 8"}
	rr := a.do("POST", "/v1/ingest/entities", `{"en": {"PERSON": ["Obama"]}}`)
	if rr.Code != http.StatusConflict {
		t.Errorf("schema mismatch: status = %d", rr.Code)
	}
	if e := readError(t, rr); e.Code != domain.KindSchemaMismatch {
		t.Errorf("code = %s", e.Code)
	}
}

// --- Collections ---

func TestCollectionStats_Languages(t *testing.T) {
	a := newTestAPI()
	rr := a.do("GET", "/v1/collections?language=en,de&language=zh", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	want := []domain.Language{domain.LangDE, domain.LangEN, domain.LangZH}
	got := slices.Clone(a.admin.langs)
	slices.Sort(got)
	if !slices.Equal(got, want) {
		t.Errorf("languages = %v", a.admin.langs)
	}
}

func TestCollectionStats_BadLanguage(t *testing.T) {
	a := newTestAPI()
	rr := a.do("GET", "/v1/collections?language=pt", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCleanupCollections(t *testing.T) {
	a := newTestAPI()
	rr := a.do("DELETE", "/v1/collections?language=en", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var rep collectionuc.CleanupReport
	if err := json.NewDecoder(rr.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(rep.Dropped, []string{"entity_en"}) {
		t.Errorf("dropped = %v", rep.Dropped)
	}
}

// --- Health, routing, middleware ---

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		code   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusOK},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		a := newTestAPI("secret")
		a.health.status = tt.status
		rr := a.do("GET", "/health", "")
		if rr.Code != tt.code {
			t.Errorf("%s: status = %d, want %d", tt.status, rr.Code, tt.code)
		}
	}
}

func TestRouter_AuthRequired(t *testing.T) {
	a := newTestAPI("secret")
	rr := a.do("POST", "/v1/query", `{"text": "x", "language": "en"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	a := newTestAPI()
	if rr := a.do("GET", "/v1/nope", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown route: %d", rr.Code)
	}
	if rr := a.do("GET", "/v1/query", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method: %d", rr.Code)
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := jsonRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if e := readError(t, rr); e.Code != domain.KindInternal {
		t.Errorf("code = %s", e.Code)
	}
}

func TestStatusOf(t *testing.T) {
	if got := StatusOf(fmt.Errorf("%w: x", domain.ErrPartialIngestionFailure)); got != http.StatusMultiStatus {
		t.Errorf("partial ingestion = %d", got)
	}
	if got := StatusOf(errors.New("x")); got != http.StatusInternalServerError {
		t.Errorf("unknown = %d", got)
	}
}
