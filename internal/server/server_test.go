package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yycnik/json-log-parser/internal/hub"
	"github.com/yycnik/json-log-parser/internal/metrics"
	"github.com/yycnik/json-log-parser/internal/model"
	"github.com/yycnik/json-log-parser/internal/parser"
	"github.com/yycnik/json-log-parser/internal/runner"
)

const template = `{"ts":1551140352,"pt":55,"si":"3380fb19-0bdb-46ab-8781-e4c5cd448074","uu":"0dd24034-36d6-4b1e-a6c1-a52cc984f105","bg":"77e28e28-745a-474b-a496-3c0e086eaec0","sha":"abb3ec1b8174043d5cd21d21fbe3c3fb3e9a11c7ceff3314a3222404feedda52","nm":"NAME","ph":"/efvrfutgp/expgh/phkkrw","dp":2}`

func logLine(name string) string { return strings.Replace(template, "NAME", name, 1) }

type fixture struct {
	input   chan model.Report
	hub     *hub.Hub
	metrics *metrics.Metrics
	server  *Server
	cancel  context.CancelFunc
}

func newFixture(t *testing.T, a Analyzer) *fixture {
	t.Helper()
	if a == nil {
		p, err := parser.New()
		require.NoError(t, err)
		a = runner.New(p)
	}

	f := &fixture{input: make(chan model.Report, 4), metrics: metrics.New()}
	f.hub = hub.New(f.input, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	t.Cleanup(cancel)
	go f.hub.Start(ctx)

	f.server = New(f.hub, a, f.metrics.Handler(), zerolog.Nop(), ":0", []string{"app.json"})
	return f
}

func (f *fixture) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, body))
	return rec
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["report_ready"])
	assert.Equal(t, []any{"app.json"}, body["inputs"])
}

func TestReportBeforeFirstRun(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/report", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReportLatest(t *testing.T) {
	f := newFixture(t, nil)
	sub := f.hub.Subscribe()
	f.input <- model.Report{UniqueFiles: 2, Extensions: model.ExtensionCounts{"pdf": 2}}
	<-sub

	rec := f.do(http.MethodGet, "/api/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.UniqueFiles)
	assert.Equal(t, model.ExtensionCounts{"pdf": 2}, got.Extensions)
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t, nil)
	body := strings.Join([]string{logLine("file1.txt"), logLine("file2.ext"), logLine("file3.pdf"), "{bad"}, "\n")

	rec := f.do(http.MethodPost, "/api/analyze?name=upload.json", strings.NewReader(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got model.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.ExtensionCounts{"ext": 1, "pdf": 1, "txt": 1}, got.Extensions)
	assert.Equal(t, []string{"upload.json"}, got.Sources)
	assert.Equal(t, 1, got.InvalidLines)
}

type failingAnalyzer struct{ err error }

func (a failingAnalyzer) AnalyzeReader(string, io.Reader) (model.Report, error) {
	return model.Report{}, a.err
}

func TestAnalyzeFailure(t *testing.T) {
	f := newFixture(t, failingAnalyzer{errors.New("read request: unexpected EOF")})

	rec := f.do(http.MethodPost, "/api/analyze", strings.NewReader("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unexpected EOF")
}

func TestAnalyzeTooLarge(t *testing.T) {
	f := newFixture(t, failingAnalyzer{&http.MaxBytesError{Limit: MaxAnalyzeBody}})

	rec := f.do(http.MethodPost, "/api/analyze", strings.NewReader("x"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.metrics.ObserveReport(model.Report{UniqueFiles: 5}, time.Millisecond)

	rec := f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jlp_unique_files 5")
}

func TestWebSocketStreamsReports(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	// The first report is already published; new clients start with it.
	sub := f.hub.Subscribe()
	f.input <- model.Report{UniqueFiles: 7}
	<-sub

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got model.Report
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 7, got.UniqueFiles)

	// Later reports follow on the same connection.
	f.input <- model.Report{UniqueFiles: 8}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 8, got.UniqueFiles)
}

func TestStartShutsDown(t *testing.T) {
	f := newFixture(t, nil)
	f.server.addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
