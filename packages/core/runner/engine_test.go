package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/callspec/packages/apidef"
	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
	"github.com/abdul-hamid-achik/callspec/packages/correlator"
	"github.com/abdul-hamid-achik/callspec/packages/dispatch"
	"github.com/abdul-hamid-achik/callspec/packages/notify"
)

// recordingSink keeps every published event.
type recordingSink struct {
	mu       sync.Mutex
	events   []*notify.Event
	sessions []string
}

func (s *recordingSink) Publish(event *notify.Event, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.sessions = append(s.sessions, sessionID)
}

func (s *recordingSink) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		out = append(out, e.Status)
	}
	return out
}

type upsert struct {
	collection string
	document   any
	selector   map[string]any
}

type memoryStore struct {
	mu      sync.Mutex
	upserts []upsert
}

func (m *memoryStore) Upsert(_ context.Context, collection string, document any, selector map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, upsert{collection, document, selector})
	return nil
}

// senderFunc adapts a function to Sender.
type senderFunc func(ctx context.Context, call *dispatch.Call) (*dispatch.Result, error)

func (f senderFunc) Send(ctx context.Context, call *dispatch.Call) (*dispatch.Result, error) {
	return f(ctx, call)
}

func okSender(calls *[]*dispatch.Call) senderFunc {
	var mu sync.Mutex
	return func(_ context.Context, call *dispatch.Call) (*dispatch.Result, error) {
		mu.Lock()
		*calls = append(*calls, call)
		mu.Unlock()
		return &dispatch.Result{
			SyncResponse: &plan.SyncResponse{Status: 200, StatusText: "OK", Body: map[string]any{"status": "ok"}},
			CurlRequest:  "curl -X " + call.Method,
			Duration:     5 * time.Millisecond,
		}, nil
	}
}

func request(id, path string) *plan.Request {
	return &plan.Request{
		ID:            id,
		OperationPath: path,
		Method:        "get",
		APIVersion:    plan.APIVersion{Type: "fspiop", MajorVersion: 1, MinorVersion: 1},
	}
}

func singleCase(requests ...*plan.Request) *plan.TestPlan {
	return &plan.TestPlan{
		Name:      "plan",
		TestCases: []*plan.TestCase{{ID: "tc1", Requests: requests}},
	}
}

func TestRunExecutesRequestsInIDOrder(t *testing.T) {
	var calls []*dispatch.Call
	engine := NewEngine(okSender(&calls))

	p := singleCase(request("b", "/second"), request("a", "/first"))
	rep, err := engine.Run(context.Background(), p, "trace-1", "")
	require.NoError(t, err)

	require.Len(t, calls, 2)
	assert.Equal(t, "/first", calls[0].Path)
	assert.Equal(t, "/second", calls[1].Path)

	// report keeps declaration order
	require.Len(t, rep.TestCases[0].Requests, 2)
	assert.Equal(t, "b", rep.TestCases[0].Requests[0].Request.ID)
	assert.Equal(t, plan.StatusSuccess, rep.TestCases[0].Requests[0].Status)

	// the caller's plan is not modified
	assert.Nil(t, p.TestCases[0].Requests[0].Appended)
}

func TestRunResolvesPathFromInputs(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	broker := correlator.NewBroker()
	engine := NewEngine(dispatch.New(dispatch.Config{CallbackEndpoint: server.URL}, broker))

	req := request("1", "/echo/{x}")
	req.Params = map[string]any{"x": "{$inputs.val}"}
	p := singleCase(req)
	p.InputValues = map[string]any{"val": "42"}

	rep, err := engine.Run(context.Background(), p, "trace-1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/echo/42"}, paths)
	assert.Equal(t, "/echo/42", rep.TestCases[0].Requests[0].Request.Path)
}

func TestRunAssertions(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]any
		status   string
		passed   int
		hasError bool
	}{
		{"passing", map[string]any{"status": "ok"}, plan.AssertionSuccess, 1, false},
		{"failing", map[string]any{"status": "fail"}, plan.AssertionFailed, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := senderFunc(func(_ context.Context, _ *dispatch.Call) (*dispatch.Result, error) {
				return &dispatch.Result{SyncResponse: &plan.SyncResponse{Status: 200, StatusText: "OK", Body: tt.body}}, nil
			})
			engine := NewEngine(sender)

			req := request("1", "/status")
			req.Tests = &plan.Tests{Assertions: []*plan.Assertion{
				{ID: "1", Exec: []string{"expect(response.body.status).to.equal('ok')"}},
			}}

			rep, err := engine.Run(context.Background(), singleCase(req), "trace-1", "")
			require.NoError(t, err)

			sent := rep.TestCases[0].Requests[0].Request
			require.NotNil(t, sent.Tests.Assertions[0].ResultStatus)
			assert.Equal(t, tt.status, sent.Tests.Assertions[0].ResultStatus.Status)
			assert.Equal(t, tt.hasError, sent.Tests.Assertions[0].ResultStatus.Message != "")
			assert.Equal(t, tt.passed, sent.Tests.PassedAssertionsCount)
			assert.Equal(t, 1, rep.RuntimeInformation.TotalAssertions)
			assert.Equal(t, tt.passed, rep.RuntimeInformation.TotalPassedAssertions)
		})
	}
}

func TestTerminateBetweenRequests(t *testing.T) {
	sink := &recordingSink{}
	var engine *Engine
	sent := 0
	sender := senderFunc(func(_ context.Context, call *dispatch.Call) (*dispatch.Result, error) {
		sent++
		if sent == 2 {
			engine.Terminate("trace-1")
		}
		return &dispatch.Result{SyncResponse: &plan.SyncResponse{Status: 200, StatusText: "OK"}}, nil
	})
	engine = NewEngine(sender, WithSink(sink))

	p := singleCase(request("1", "/a"), request("2", "/b"), request("3", "/c"), request("4", "/d"), request("5", "/e"))
	rep, err := engine.Run(context.Background(), p, "trace-1", "")

	assert.ErrorIs(t, err, ErrTerminated)
	assert.Nil(t, rep)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"SUCCESS", "SUCCESS", notify.StatusTerminated}, sink.statuses())

	status, ok := engine.Status("trace-1")
	require.True(t, ok)
	assert.Equal(t, StateTerminated, status.State)
	assert.Equal(t, 2, status.Executed)

	// the flag was consumed and the run is over
	assert.False(t, engine.Terminate("trace-1"))
}

func TestTerminateUnknownRun(t *testing.T) {
	engine := NewEngine(senderFunc(nil))
	assert.False(t, engine.Terminate("nope"))
}

func TestDispatchFailureDoesNotStopRun(t *testing.T) {
	sink := &recordingSink{}
	calls := 0
	sender := senderFunc(func(_ context.Context, call *dispatch.Call) (*dispatch.Result, error) {
		calls++
		if calls == 1 {
			return nil, &dispatch.Error{
				Code:    dispatch.CodeTransport,
				Message: "connection refused",
				Result:  &dispatch.Result{SyncResponse: &plan.SyncResponse{Status: 500, StatusText: "connection refused"}},
				Err:     errors.New("connection refused"),
			}
		}
		return &dispatch.Result{SyncResponse: &plan.SyncResponse{Status: 200, StatusText: "OK"}}, nil
	})
	engine := NewEngine(sender, WithSink(sink))

	rep, err := engine.Run(context.Background(), singleCase(request("1", "/a"), request("2", "/b")), "trace-1", "")
	require.NoError(t, err)

	first := rep.TestCases[0].Requests[0]
	assert.Equal(t, plan.StatusError, first.Status)
	assert.Equal(t, dispatch.CodeTransport, first.Error.Code)
	assert.Equal(t, 500, first.Response.Status)
	assert.Equal(t, plan.StatusSuccess, rep.TestCases[0].Requests[1].Status)
	assert.Equal(t, 1, rep.RuntimeInformation.FailedRequests)
	assert.Equal(t, []string{"ERROR", "SUCCESS", notify.StatusFinished}, sink.statuses())
}

func callbackDefinitions() *apidef.Static {
	return &apidef.Static{
		Defs: []apidef.Definition{{Type: "fspiop", MajorVersion: 1, MinorVersion: 1, CallbackMapFile: "fspiop"}},
		Maps: map[string]apidef.CallbackMap{
			"fspiop": {
				"/parties/{Type}/{ID}": {
					"get": {
						SuccessCallback: &apidef.Callback{Method: "put", PathPattern: "/parties/{$request.params.Type}/{$request.params.ID}"},
						ErrorCallback:   &apidef.Callback{Method: "put", PathPattern: "/parties/{$request.params.Type}/{$request.params.ID}/error"},
					},
				},
			},
		},
	}
}

func partiesRequest() *plan.Request {
	req := request("1", "/parties/{Type}/{ID}")
	req.APIVersion.Asynchronous = true
	req.Params = map[string]any{"Type": "MSISDN", "ID": "{$inputs.msisdn}"}
	return req
}

func TestRunCorrelatesCallback(t *testing.T) {
	broker := correlator.NewBroker()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/parties/MSISDN/123", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		go func() {
			time.Sleep(20 * time.Millisecond)
			broker.Signal("", "PUT", "/parties/MSISDN/123", map[string]string{"FSPIOP-Source": "payeefsp"}, map[string]any{"party": map[string]any{"name": "Alice"}})
		}()
	}))
	defer server.Close()

	engine := NewEngine(
		dispatch.New(dispatch.Config{CallbackEndpoint: server.URL, CallbackTimeout: 2 * time.Second}, broker),
		WithDefinitions(callbackDefinitions()),
	)

	req := partiesRequest()
	req.Tests = &plan.Tests{Assertions: []*plan.Assertion{
		{ID: "name", Exec: []string{"expect(callback.body.party.name).to.equal('Alice')"}},
	}}
	p := singleCase(req)
	p.InputValues = map[string]any{"msisdn": "123"}

	rep, err := engine.Run(context.Background(), p, "trace-1", "")
	require.NoError(t, err)

	result := rep.TestCases[0].Requests[0]
	assert.Equal(t, plan.StatusSuccess, result.Status)
	require.NotNil(t, result.Callback)
	assert.Equal(t, "/parties/MSISDN/123", result.Callback.URL)
	assert.Equal(t, 1, rep.RuntimeInformation.TotalPassedAssertions)
	assert.Equal(t, 0, broker.Pending())
}

func TestRunIgnoreCallbacksNeverWaits(t *testing.T) {
	var calls []*dispatch.Call
	engine := NewEngine(okSender(&calls), WithDefinitions(callbackDefinitions()))

	req := partiesRequest()
	req.IgnoreCallbacks = true
	_, err := engine.Run(context.Background(), singleCase(req), "trace-1", "")
	require.NoError(t, err)

	require.Len(t, calls, 1)
	assert.True(t, calls[0].IgnoreCallbacks)
	assert.Empty(t, calls[0].SuccessCallback.URL)
	assert.Empty(t, calls[0].ErrorCallback.URL)
}

func TestRunCallbackEndpointsFromDefinitions(t *testing.T) {
	var calls []*dispatch.Call
	engine := NewEngine(okSender(&calls), WithDefinitions(callbackDefinitions()))

	p := singleCase(partiesRequest())
	p.InputValues = map[string]any{"msisdn": "987"}
	_, err := engine.Run(context.Background(), p, "trace-1", "")
	require.NoError(t, err)

	require.Len(t, calls, 1)
	assert.Equal(t, correlator.Endpoint{Method: "put", URL: "/parties/MSISDN/987"}, calls[0].SuccessCallback)
	assert.Equal(t, correlator.Endpoint{Method: "put", URL: "/parties/MSISDN/987/error"}, calls[0].ErrorCallback)
}

func TestRunSynchronousRequestNeverWaits(t *testing.T) {
	broker := correlator.NewBroker()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine := NewEngine(
		dispatch.New(dispatch.Config{CallbackEndpoint: server.URL, CallbackTimeout: 5 * time.Second}, broker),
		WithDefinitions(callbackDefinitions()),
	)

	req := partiesRequest()
	req.APIVersion.Asynchronous = false
	p := singleCase(req)
	p.InputValues = map[string]any{"msisdn": "987"}

	started := time.Now()
	rep, err := engine.Run(context.Background(), p, "trace-1", "")
	require.NoError(t, err)

	assert.Less(t, time.Since(started), 2*time.Second)
	result := rep.TestCases[0].Requests[0]
	assert.Equal(t, plan.StatusSuccess, result.Status)
	assert.Nil(t, result.Callback)
	assert.Equal(t, 0, broker.Pending())
}

func TestRunSynchronousRequestHasNoCallbackEndpoints(t *testing.T) {
	var calls []*dispatch.Call
	engine := NewEngine(okSender(&calls), WithDefinitions(callbackDefinitions()))

	req := partiesRequest()
	req.APIVersion.Asynchronous = false
	p := singleCase(req)
	p.InputValues = map[string]any{"msisdn": "987"}
	_, err := engine.Run(context.Background(), p, "trace-1", "")
	require.NoError(t, err)

	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].SuccessCallback.URL)
	assert.Empty(t, calls[0].ErrorCallback.URL)
}

func TestRunSkipsNullRequests(t *testing.T) {
	var calls []*dispatch.Call
	engine := NewEngine(okSender(&calls))

	p := singleCase(nil, request("1", "/one"))
	rep, err := engine.Run(context.Background(), p, "trace-1", "")
	require.NoError(t, err)

	require.Len(t, calls, 1)
	require.Len(t, rep.TestCases[0].Requests, 1)
	assert.Equal(t, plan.StatusSuccess, rep.TestCases[0].Requests[0].Status)
	assert.Equal(t, 1, rep.RuntimeInformation.TotalRequests)
}

func TestRunScriptsAndPreviousScope(t *testing.T) {
	var calls []*dispatch.Call
	sender := senderFunc(func(_ context.Context, call *dispatch.Call) (*dispatch.Result, error) {
		calls = append(calls, call)
		return &dispatch.Result{SyncResponse: &plan.SyncResponse{
			Status: 200, StatusText: "OK", Body: map[string]any{"id": "quote-" + call.Path[1:]},
		}}, nil
	})
	engine := NewEngine(sender)

	first := request("1", "/one")
	first.Scripts = &plan.Scripts{PostRequest: &plan.Script{Exec: []string{
		`environment.set("firstCode", response.code)`,
	}}}

	second := request("2", "/two")
	second.Scripts = &plan.Scripts{PreRequest: &plan.Script{Exec: []string{
		`environment.set("token", "abc")`,
	}}, PostRequest: &plan.Script{Exec: []string{
		`environment.set("seen", len(requestsHistory))`,
	}}}
	second.Headers = map[string]string{
		"Authorization": "Bearer {$environment.token}",
		"X-Quote":       "{$prev.1.response.body.id}",
		"X-Method":      "{$request.method}",
	}
	second.Tests = &plan.Tests{Assertions: []*plan.Assertion{
		{ID: "env", Exec: []string{"expect(environment.firstCode).to.equal(200)", "expect(environment.seen).to.equal(1)"}},
	}}

	rep, err := engine.Run(context.Background(), singleCase(first, second), "trace-1", "")
	require.NoError(t, err)

	require.Len(t, calls, 2)
	assert.Equal(t, "Bearer abc", calls[1].Headers["Authorization"])
	assert.Equal(t, "quote-one", calls[1].Headers["X-Quote"])
	assert.Equal(t, "get", calls[1].Headers["X-Method"])
	assert.Equal(t, 1, rep.RuntimeInformation.TotalPassedAssertions)
}

func TestRunHostingPersistsReport(t *testing.T) {
	var calls []*dispatch.Call
	sink := &recordingSink{}
	store := &memoryStore{}
	engine := NewEngine(okSender(&calls), WithHosting(true), WithStore(store), WithSink(sink))

	traceID := "aabb0123456789abcdef01234567abcd"
	rep, err := engine.Run(context.Background(), singleCase(request("1", "/a")), traceID, "fspA")
	require.NoError(t, err)

	require.Len(t, store.upserts, 1)
	assert.Equal(t, ReportsCollection, store.upserts[0].collection)
	assert.Equal(t, map[string]any{"dfspId": "fspA"}, store.upserts[0].selector)
	assert.NotSame(t, rep, store.upserts[0].document)

	assert.Equal(t, "00-"+traceID+"-0123456789abcdef0-00", calls[0].Headers["traceparent"])
	for _, session := range sink.sessions {
		assert.Equal(t, "fspA", session)
	}

	last := sink.events[len(sink.events)-1]
	assert.Equal(t, notify.StatusFinished, last.Status)
	assert.Equal(t, traceID[24:], last.OutboundID)
	require.NotNil(t, last.Summary)
	assert.Equal(t, 1, last.Summary.TotalRequests)
}

func TestRunWithoutHostingDoesNotPersist(t *testing.T) {
	var calls []*dispatch.Call
	store := &memoryStore{}
	engine := NewEngine(okSender(&calls), WithStore(store))

	_, err := engine.Run(context.Background(), singleCase(request("1", "/a")), "trace-1", "fspA")
	require.NoError(t, err)
	assert.Empty(t, store.upserts)
	assert.NotContains(t, calls[0].Headers, "traceparent")
}

func TestStartNotifiesCompletion(t *testing.T) {
	var calls []*dispatch.Call
	channel := notify.NewChannelNotifier()
	deliveries, cancel := channel.Subscribe(8)
	defer cancel()

	engine := NewEngine(okSender(&calls), WithSink(notify.NewManager([]notify.Notifier{channel})))
	require.NoError(t, engine.Start(singleCase(request("1", "/a")), "trace-1", ""))

	timeout := time.After(2 * time.Second)
	for {
		select {
		case d := <-deliveries:
			if d.Event.Status != notify.StatusFinished {
				continue
			}
			data, err := json.Marshal(d.Event.TotalResult)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"runtimeInformation"`)
			return
		case <-timeout:
			t.Fatal("no FINISHED event")
		}
	}
}

func TestRunRejectsDuplicateTrace(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	sender := senderFunc(func(_ context.Context, call *dispatch.Call) (*dispatch.Result, error) {
		close(started)
		<-release
		return &dispatch.Result{SyncResponse: &plan.SyncResponse{Status: 200}}, nil
	})
	engine := NewEngine(sender)

	require.NoError(t, engine.Start(singleCase(request("1", "/a")), "trace-1", ""))
	<-started
	_, err := engine.Run(context.Background(), singleCase(request("1", "/a")), "trace-1", "")
	assert.ErrorIs(t, err, ErrRunInProgress)
	close(release)
}

func TestNewTrace(t *testing.T) {
	tests := []struct {
		name       string
		traceID    string
		dfsp       string
		hosting    bool
		outboundID string
		sessionID  string
	}{
		{"plain", "trace-1", "fspA", false, "trace-1", ""},
		{"plain hosting", "trace-1", "fspA", true, "trace-1", "fspA"},
		{"custom", "aabb0123456789abcdef01234567abcd", "", false, "4567abcd", "0123456789abcdef0123"},
		{"custom hosting", "aabb0123456789abcdef01234567abcd", "fspA", true, "4567abcd", "fspA"},
		{"wrong prefix", "ccdd0123456789abcdef01234567abcd", "", false, "ccdd0123456789abcdef01234567abcd", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trace := NewTrace(tt.traceID, tt.dfsp, tt.hosting)
			assert.Equal(t, tt.outboundID, trace.OutboundID)
			assert.Equal(t, tt.sessionID, trace.SessionID)
		})
	}
}

func TestNewTraceIDIsCustom(t *testing.T) {
	id := NewTraceID()
	require.Len(t, id, 32)
	trace := NewTrace(id, "", false)
	assert.Equal(t, id[24:], trace.OutboundID)
	assert.NotEmpty(t, trace.SessionID)
	assert.NotEqual(t, id, NewTraceID())
}
