package inbound

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
	"github.com/abdul-hamid-achik/callspec/packages/core/runner"
	"github.com/abdul-hamid-achik/callspec/packages/correlator"
)

type signal struct {
	counterpart string
	method      string
	url         string
	headers     map[string]string
	body        any
}

type fakeSignaler struct {
	mu      sync.Mutex
	signals []signal
}

func (f *fakeSignaler) Signal(counterpart, method, url string, headers map[string]string, body any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, signal{counterpart, method, url, headers, body})
	return false
}

type fakeController struct {
	started    []*plan.TestPlan
	traceIDs   []string
	dfsps      []string
	terminated []string
	startErr   error
	statuses   map[string]runner.RunStatus
}

func (f *fakeController) Start(p *plan.TestPlan, traceID, counterpart string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, p)
	f.traceIDs = append(f.traceIDs, traceID)
	f.dfsps = append(f.dfsps, counterpart)
	return nil
}

func (f *fakeController) Terminate(traceID string) bool {
	f.terminated = append(f.terminated, traceID)
	return true
}

func (f *fakeController) Status(traceID string) (runner.RunStatus, bool) {
	s, ok := f.statuses[traceID]
	return s, ok
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReceiveCallback(t *testing.T) {
	signaler := &fakeSignaler{}
	s := NewServer(signaler)

	rec := do(t, s.Handler(), http.MethodPut, "/parties/MSISDN/123", `{"party":{"name":"Alice"}}`,
		map[string]string{"FSPIOP-Source": "payeefsp", "Content-Type": "application/json"})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, signaler.signals, 1)
	got := signaler.signals[0]
	assert.Equal(t, "", got.counterpart)
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/parties/MSISDN/123", got.url)
	assert.Equal(t, "payeefsp", got.headers["fspiop-source"])
	assert.Equal(t, map[string]any{"party": map[string]any{"name": "Alice"}}, got.body)
}

func TestReceiveCallbackHosting(t *testing.T) {
	signaler := &fakeSignaler{}
	s := NewServer(signaler, WithHosting(true, "X-Tenant"))

	do(t, s.Handler(), http.MethodPost, "/quotes/q-1", "not json", map[string]string{"X-Tenant": "fspB"})

	require.Len(t, signaler.signals, 1)
	assert.Equal(t, "fspB", signaler.signals[0].counterpart)
	assert.Equal(t, "not json", signaler.signals[0].body)
}

func TestHealth(t *testing.T) {
	s := NewServer(&fakeSignaler{})
	rec := do(t, s.Handler(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
}

func TestStartRun(t *testing.T) {
	controller := &fakeController{}
	s := NewServer(&fakeSignaler{}, WithController(controller))

	body := `{"name":"p2p","test_cases":[{"id":"1","requests":[{"id":"1","method":"get","operationPath":"/parties/{Type}/{ID}"}]}]}`
	rec := do(t, s.Handler(), http.MethodPost, "/api/outbound/template/trace-1?dfspId=fspA", body, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, controller.started, 1)
	assert.Equal(t, "p2p", controller.started[0].Name)
	assert.Equal(t, []string{"trace-1"}, controller.traceIDs)
	assert.Equal(t, []string{"fspA"}, controller.dfsps)
}

func TestStartRunErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		status   int
	}{
		{"malformed", `{`, nil, http.StatusBadRequest},
		{"invalid plan", `{"test_cases":[{"id":"1","requests":[{"method":"get","operationPath":"/x"}]}]}`, nil, http.StatusBadRequest},
		{"in progress", `{"test_cases":[]}`, runner.ErrRunInProgress, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&fakeSignaler{}, WithController(&fakeController{startErr: tt.startErr}))
			rec := do(t, s.Handler(), http.MethodPost, "/api/outbound/template/trace-1", tt.body, nil)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestTerminateRun(t *testing.T) {
	controller := &fakeController{}
	s := NewServer(&fakeSignaler{}, WithController(controller))

	rec := do(t, s.Handler(), http.MethodDelete, "/api/outbound/template/trace-9", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"trace-9"}, controller.terminated)
}

func TestRunStatus(t *testing.T) {
	controller := &fakeController{statuses: map[string]runner.RunStatus{
		"trace-1": {TraceID: "trace-1", State: runner.StateRunning, Executed: 2, Total: 5},
	}}
	s := NewServer(&fakeSignaler{}, WithController(controller))

	rec := do(t, s.Handler(), http.MethodGet, "/api/outbound/status/trace-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status runner.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, runner.StateRunning, status.State)
	assert.Equal(t, 2, status.Executed)

	rec = do(t, s.Handler(), http.MethodGet, "/api/outbound/status/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestControlAPIDisabled(t *testing.T) {
	s := NewServer(&fakeSignaler{})
	rec := do(t, s.Handler(), http.MethodDelete, "/api/outbound/template/trace-1", "", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = do(t, s.Handler(), http.MethodGet, "/api/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeDeliversToBroker(t *testing.T) {
	broker := correlator.NewBroker()
	s := NewServer(broker)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	wait := broker.Register("",
		correlator.Endpoint{Method: "PUT", URL: "/transfers/t-1"},
		correlator.Endpoint{Method: "PUT", URL: "/transfers/t-1/error"},
		2*time.Second)

	req, err := http.NewRequest(http.MethodPut, "http://"+ln.Addr().String()+"/transfers/t-1", strings.NewReader(`{"transferState":"COMMITTED"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	msg, err := wait.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"transferState": "COMMITTED"}, msg.Body)

	cancel()
	assert.NoError(t, <-done)
}
