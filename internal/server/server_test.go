// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jeranaias/cortexpipe/internal/analytics"
	"github.com/jeranaias/cortexpipe/internal/cortex"
	"github.com/jeranaias/cortexpipe/internal/ingest"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeQuerier struct {
	err       error
	gotQuery  string
	gotOpts   cortex.QueryOptions
	gotSearch bool
	panicOn   string
}

func (f *fakeQuerier) Query(_ context.Context, q string, opts cortex.QueryOptions) (*cortex.Response, error) {
	if q == f.panicOn {
		panic("handler exploded")
	}
	f.gotQuery, f.gotOpts = q, opts
	if f.err != nil {
		return nil, f.err
	}
	return &cortex.Response{Query: q, Answer: "answer to " + q, ContextUsed: opts.UseSearch}, nil
}

func (f *fakeQuerier) Batch(_ context.Context, qs []string, useSearch bool) ([]cortex.BatchResult, error) {
	f.gotSearch = useSearch
	if f.err != nil {
		return nil, f.err
	}
	out := make([]cortex.BatchResult, len(qs))
	for i, q := range qs {
		out[i] = cortex.BatchResult{Response: cortex.Response{Query: q}, BatchIndex: i}
		if strings.Contains(q, "fail") {
			out[i].Error = "boom"
		}
	}
	return out, nil
}

func (f *fakeQuerier) Suggestions(_ context.Context, partial string) []string {
	if len(partial) < 3 {
		return []string{}
	}
	return []string{"What is " + partial + "?"}
}

type fakeReporter struct {
	err      error
	gotHours int
}

func (f *fakeReporter) Performance(_ context.Context, hours int) (*analytics.PerformanceReport, error) {
	f.gotHours = hours
	if f.err != nil {
		return nil, f.err
	}
	return &analytics.PerformanceReport{TimeWindowHours: hours, Summary: analytics.Summary{TotalOperations: 9}}, nil
}

func (f *fakeReporter) Errors(_ context.Context, hours int) (*analytics.ErrorReport, error) {
	f.gotHours = hours
	return &analytics.ErrorReport{TimeWindowHours: hours, TotalErrors: 3}, f.err
}

func (f *fakeReporter) Costs(_ context.Context, hours int) (*analytics.CostReport, error) {
	f.gotHours = hours
	return &analytics.CostReport{TimeWindowHours: hours, TotalCostUSD: 0.04}, f.err
}

type fakeDocs struct{}

func (fakeDocs) Stats(context.Context) (*ingest.DocumentStats, error) {
	return &ingest.DocumentStats{TotalDocuments: 3}, nil
}

func (fakeDocs) EmbeddingStats(context.Context) (*ingest.EmbeddingStats, error) {
	return &ingest.EmbeddingStats{TotalEmbeddings: 7}, nil
}

func newTestServer(token string) (*Server, *fakeQuerier, *fakeReporter, *bytes.Buffer) {
	logs := &bytes.Buffer{}
	q := &fakeQuerier{}
	r := &fakeReporter{}
	s := New(Config{
		AuthToken: token,
		Version:   "test",
		Gatherer:  prometheus.NewRegistry(),
		Logger:    log.New(logs, "", 0),
	}, q, r, fakeDocs{})
	return s, q, r, logs
}

func do(t *testing.T, s *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not JSON: %v (%s)", err, w.Body.String())
	}
	return resp.Error
}

// =============================================================================
// HEALTH AND METRICS
// =============================================================================

func TestHealth(t *testing.T) {
	s, _, _, _ := newTestServer("secret")
	w := do(t, s, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var h HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.Version != "test" {
		t.Errorf("health = %+v", h)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "cortexpipe_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(2)

	s := New(Config{Gatherer: reg, Logger: log.New(io.Discard, "", 0)}, &fakeQuerier{}, &fakeReporter{}, nil)
	w := do(t, s, http.MethodGet, "/metrics", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "cortexpipe_test_total 2") {
		t.Errorf("metrics body missing counter:\n%s", w.Body.String())
	}
}

// =============================================================================
// REPORTS
// =============================================================================

func TestReports_HoursParam(t *testing.T) {
	tests := []struct {
		path      string
		wantCode  int
		wantHours int
	}{
		{"/api/v1/metrics", 200, DefaultHours},
		{"/api/v1/metrics?hours=6", 200, 6},
		{"/api/v1/errors?hours=168", 200, 168},
		{"/api/v1/costs?hours=1", 200, 1},
		{"/api/v1/metrics?hours=0", 400, 0},
		{"/api/v1/metrics?hours=-3", 400, 0},
		{"/api/v1/errors?hours=abc", 400, 0},
		{"/api/v1/costs?hours=999999", 400, 0},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			s, _, r, _ := newTestServer("")
			w := do(t, s, http.MethodGet, tt.path, "")
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
			if r.gotHours != tt.wantHours {
				t.Errorf("hours = %d, want %d", r.gotHours, tt.wantHours)
			}
		})
	}
}

func TestMetrics_Body(t *testing.T) {
	s, _, _, _ := newTestServer("")
	w := do(t, s, http.MethodGet, "/api/v1/metrics?hours=6", "")

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["time_window_hours"] != float64(6) {
		t.Errorf("time_window_hours = %v", body["time_window_hours"])
	}
	if _, ok := body["summary"]; !ok {
		t.Error("missing summary")
	}
}

func TestReports_BackendErrors(t *testing.T) {
	s, _, r, logs := newTestServer("")

	r.err = errors.New("warehouse down")
	w := do(t, s, http.MethodGet, "/api/v1/metrics", "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
	if msg := decodeError(t, w).Message; strings.Contains(msg, "warehouse down") {
		t.Errorf("internal error leaked to client: %q", msg)
	}
	if !strings.Contains(logs.String(), "REQUEST_ERROR") {
		t.Error("backend failure was not logged")
	}

	r.err = analytics.ErrInvalidWindow
	w = do(t, s, http.MethodGet, "/api/v1/costs", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// =============================================================================
// QUERIES
// =============================================================================

func TestQuery(t *testing.T) {
	s, q, _, _ := newTestServer("")
	w := do(t, s, http.MethodPost, "/api/v1/query", `{"query":"What is Cortex?","top_k":3,"temperature":0}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if q.gotQuery != "What is Cortex?" || q.gotOpts.TopK != 3 || !q.gotOpts.UseSearch {
		t.Errorf("got query=%q opts=%+v", q.gotQuery, q.gotOpts)
	}
	if q.gotOpts.Temperature == nil || *q.gotOpts.Temperature != 0 {
		t.Errorf("temperature 0 was not passed through: %v", q.gotOpts.Temperature)
	}

	var resp cortex.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "answer to What is Cortex?" {
		t.Errorf("answer = %q", resp.Answer)
	}
}

func TestQuery_NoSearch(t *testing.T) {
	s, q, _, _ := newTestServer("")
	w := do(t, s, http.MethodPost, "/api/v1/query", `{"query":"hi there","use_search":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if q.gotOpts.UseSearch {
		t.Error("use_search=false was ignored")
	}
	if q.gotOpts.Temperature != nil {
		t.Error("absent temperature should stay nil")
	}
}

func TestQuery_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed", `{"query":`, 400},
		{"unknown field", `{"query":"x","bogus":1}`, 400},
		{"empty", `{"query":"   "}`, 400},
		{"too long", `{"query":"` + strings.Repeat("a", MaxQueryLength+1) + `"}`, 400},
		{"negative top_k", `{"query":"x","top_k":-1}`, 400},
		{"large top_k", `{"query":"x","top_k":51}`, 400},
		{"hot temperature", `{"query":"x","temperature":1.5}`, 400},
		{"too large", `{"query":"` + strings.Repeat("a", MaxRequestBodySize) + `"}`, 413},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _, _ := newTestServer("")
			w := do(t, s, http.MethodPost, "/api/v1/query", tt.body)
			if w.Code != tt.code {
				t.Errorf("status = %d, want %d", w.Code, tt.code)
			}
			if d := decodeError(t, w); d.Code != tt.code || d.Message == "" {
				t.Errorf("error detail = %+v", d)
			}
		})
	}
}

func TestQuery_BackendErrors(t *testing.T) {
	s, q, _, _ := newTestServer("")

	q.err = cortex.ErrEmptyQuery
	if w := do(t, s, http.MethodPost, "/api/v1/query", `{"query":"x"}`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	q.err = errors.New("COMPLETE failed")
	if w := do(t, s, http.MethodPost, "/api/v1/query", `{"query":"x"}`); w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestBatch(t *testing.T) {
	s, q, _, _ := newTestServer("")
	w := do(t, s, http.MethodPost, "/api/v1/batch", `{"queries":["one","please fail","three"],"use_search":false}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if q.gotSearch {
		t.Error("use_search=false was ignored")
	}

	var resp BatchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 3 || resp.Successful != 2 {
		t.Errorf("total=%d successful=%d, want 3/2", resp.Total, resp.Successful)
	}
	if resp.Results[1].Error != "boom" || resp.Results[1].BatchIndex != 1 {
		t.Errorf("result[1] = %+v", resp.Results[1])
	}
}

func TestBatch_Validation(t *testing.T) {
	many := make([]string, MaxBatchSize+1)
	for i := range many {
		many[i] = `"q"`
	}

	for name, body := range map[string]string{
		"empty":       `{"queries":[]}`,
		"blank entry": `{"queries":["ok",""]}`,
		"too many":    `{"queries":[` + strings.Join(many, ",") + `]}`,
	} {
		t.Run(name, func(t *testing.T) {
			s, _, _, _ := newTestServer("")
			if w := do(t, s, http.MethodPost, "/api/v1/batch", body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestSuggestions(t *testing.T) {
	s, _, _, _ := newTestServer("")
	w := do(t, s, http.MethodGet, "/api/v1/suggestions?q=cortex", "")

	var body map[string][]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body["suggestions"]) != 1 || body["suggestions"][0] != "What is cortex?" {
		t.Errorf("suggestions = %v", body["suggestions"])
	}

	w = do(t, s, http.MethodGet, "/api/v1/suggestions?q=ab", "")
	if !strings.Contains(w.Body.String(), `"suggestions":[]`) {
		t.Errorf("short input should give an empty list, got %s", w.Body.String())
	}
}

func TestDocumentStats(t *testing.T) {
	s, _, _, _ := newTestServer("")
	w := do(t, s, http.MethodGet, "/api/v1/documents/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp DocumentStatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Documents.TotalDocuments != 3 || resp.Embeddings.TotalEmbeddings != 7 {
		t.Errorf("stats = %+v %+v", resp.Documents, resp.Embeddings)
	}

	s = New(Config{Logger: log.New(io.Discard, "", 0), Gatherer: prometheus.NewRegistry()}, &fakeQuerier{}, &fakeReporter{}, nil)
	if w := do(t, s, http.MethodGet, "/api/v1/documents/stats", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status without docs = %d, want 503", w.Code)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestAuth(t *testing.T) {
	s, _, _, logs := newTestServer("secret")

	tests := []struct {
		name   string
		header []string
		code   int
	}{
		{"missing", nil, 401},
		{"wrong scheme", []string{"Authorization", "Basic secret"}, 401},
		{"wrong token", []string{"Authorization", "Bearer nope"}, 401},
		{"valid", []string{"Authorization", "Bearer secret"}, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodGet, "/api/v1/costs", "", tt.header...)
			if w.Code != tt.code {
				t.Errorf("status = %d, want %d", w.Code, tt.code)
			}
		})
	}

	if !strings.Contains(logs.String(), "AUTH_DENIED") {
		t.Error("denied requests were not logged")
	}
	if w := do(t, s, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("/health should not require auth, got %d", w.Code)
	}
}

func TestValidateBearerToken(t *testing.T) {
	if ValidateBearerToken("", "") {
		t.Error("empty tokens must not match")
	}
	if ValidateBearerToken("a", "b") {
		t.Error("different tokens matched")
	}
	if !ValidateBearerToken("abc", "abc") {
		t.Error("equal tokens did not match")
	}
}

func TestRecovery(t *testing.T) {
	s, q, _, logs := newTestServer("")
	q.panicOn = "explode"

	w := do(t, s, http.MethodPost, "/api/v1/query", `{"query":"explode"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(logs.String(), "PANIC_RECOVERED") {
		t.Error("panic was not logged")
	}
}

func TestLoggingIncludesRequestID(t *testing.T) {
	s, _, _, logs := newTestServer("")
	do(t, s, http.MethodGet, "/health", "")

	line := logs.String()
	if !strings.Contains(line, "HTTP_REQUEST | id=") || !strings.Contains(line, "GET /health | 200") {
		t.Errorf("unexpected log line: %q", line)
	}
	if strings.Contains(line, "id= |") {
		t.Error("request id is empty")
	}
}

func TestNotFoundIsJSON(t *testing.T) {
	s, _, _, _ := newTestServer("")
	w := do(t, s, http.MethodGet, "/api/v1/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if d := decodeError(t, w); d.Code != 404 {
		t.Errorf("code = %d", d.Code)
	}

	w = do(t, s, http.MethodGet, "/api/v1/query", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /query status = %d, want 405", w.Code)
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s, _, _, _ := newTestServer("")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + ln.Addr().String() + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never answered: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
