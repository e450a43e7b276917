package runner

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/callspec/packages/apidef"
	"github.com/abdul-hamid-achik/callspec/packages/assertions"
	"github.com/abdul-hamid-achik/callspec/packages/core/env"
	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
	"github.com/abdul-hamid-achik/callspec/packages/db"
	"github.com/abdul-hamid-achik/callspec/packages/dispatch"
	"github.com/abdul-hamid-achik/callspec/packages/hooks"
	"github.com/abdul-hamid-achik/callspec/packages/notify"
	"github.com/abdul-hamid-achik/callspec/packages/report"
	"github.com/abdul-hamid-achik/callspec/packages/resolver"
	"github.com/abdul-hamid-achik/callspec/packages/sandbox"
)

// ReportsCollection is where finished reports are persisted.
const ReportsCollection = "reports"

// ErrTerminated is returned by Run when the run was terminated.
var ErrTerminated = errors.New("run terminated")

// Sender dispatches one resolved request.
type Sender interface {
	Send(ctx context.Context, call *dispatch.Call) (*dispatch.Result, error)
}

type Option func(*Engine)

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithResolver replaces the default variable resolver
func WithResolver(r *resolver.Resolver) Option {
	return func(e *Engine) {
		e.resolver = r
	}
}

// WithExecutor sets the script executor used by hooks and assertions
func WithExecutor(x sandbox.Executor) Option {
	return func(e *Engine) {
		e.executor = x
	}
}

// WithDefinitions sets the source of callback maps. Without one no
// request waits for a callback.
func WithDefinitions(p apidef.Provider) Option {
	return func(e *Engine) {
		e.definitions = p
	}
}

func WithSink(s notify.Sink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithStore persists finished reports in hosting mode
func WithStore(s db.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

func WithRegistry(r *RunRegistry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithHosting makes the counterpart id the session of every run and
// enables report persistence.
func WithHosting(enabled bool) Option {
	return func(e *Engine) {
		e.hosting = enabled
	}
}

// Engine executes test plans. Runs are independent of each other; the
// requests of one run execute strictly in order.
type Engine struct {
	sender      Sender
	resolver    *resolver.Resolver
	executor    sandbox.Executor
	hooks       *hooks.Runner
	evaluator   *assertions.Evaluator
	definitions apidef.Provider
	sink        notify.Sink
	store       db.Store
	registry    *RunRegistry
	hosting     bool
	logger      zerolog.Logger
}

func NewEngine(sender Sender, opts ...Option) *Engine {
	e := &Engine{
		sender:   sender,
		registry: NewRunRegistry(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.resolver == nil {
		e.resolver = resolver.NewResolver()
		logger := e.logger
		e.resolver.SetWarnFunc(func(format string, args ...any) {
			logger.Warn().Msgf(format, args...)
		})
	}
	if e.executor == nil {
		e.executor = sandbox.NewExprExecutor()
	}
	e.hooks = hooks.NewRunner(e.executor, hooks.WithLogger(e.logger))
	e.evaluator = assertions.NewEvaluator(e.executor, assertions.WithLogger(e.logger))
	return e
}

// Registry returns the registry holding the engine's runs.
func (e *Engine) Registry() *RunRegistry {
	return e.registry
}

// Start begins executing p in the background. Completion is signalled
// through the notification sink.
func (e *Engine) Start(p *plan.TestPlan, traceID, counterpart string) error {
	r, err := e.prepare(p, traceID, counterpart)
	if err != nil {
		return err
	}
	go func() {
		if _, err := e.execute(context.Background(), r); err != nil && !errors.Is(err, ErrTerminated) {
			r.logger.Error().Err(err).Msg("run failed")
		}
	}()
	return nil
}

// Run executes p and returns its report. A terminated run returns
// ErrTerminated and no report.
func (e *Engine) Run(ctx context.Context, p *plan.TestPlan, traceID, counterpart string) (*report.Report, error) {
	r, err := e.prepare(p, traceID, counterpart)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, r)
}

// Terminate asks a run to stop before its next request. Unknown and
// completed trace ids are ignored.
func (e *Engine) Terminate(traceID string) bool {
	ok := e.registry.RequestTermination(traceID)
	if ok {
		e.logger.Info().Str("traceId", traceID).Msg("termination requested")
	}
	return ok
}

// Status returns a snapshot of a run.
func (e *Engine) Status(traceID string) (RunStatus, bool) {
	return e.registry.Status(traceID)
}

// execution is the state of one run.
type execution struct {
	trace       *Trace
	counterpart string
	plan        *plan.TestPlan
	environment *env.Environment
	history     hooks.History
	logger      zerolog.Logger
}

func (e *Engine) prepare(p *plan.TestPlan, traceID, counterpart string) (*execution, error) {
	if p == nil {
		return nil, errors.New("no test plan")
	}
	if traceID == "" {
		return nil, errors.New("missing trace id")
	}
	executed, err := p.Clone()
	if err != nil {
		return nil, errors.Wrap(err, "copying test plan")
	}

	trace := NewTrace(traceID, counterpart, e.hosting)
	total := 0
	for _, tc := range executed.TestCases {
		if tc != nil {
			total += len(tc.SortedRequests())
		}
	}
	if err := e.registry.begin(trace, counterpart, total); err != nil {
		return nil, err
	}

	return &execution{
		trace:       trace,
		counterpart: counterpart,
		plan:        executed,
		environment: env.FromInputs(executed.InputValues),
		logger: e.logger.With().
			Str("outboundID", trace.OutboundID).
			Str("counterpart", counterpart).
			Logger(),
	}, nil
}

func (e *Engine) execute(ctx context.Context, x *execution) (*report.Report, error) {
	started := time.Now()
	e.registry.update(x.trace.TraceID, func(s *RunStatus) {
		s.State = StateRunning
		s.StartedAt = started
	})
	x.logger.Info().Str("plan", x.plan.Name).Msg("run started")

	for _, tc := range x.plan.TestCases {
		if tc == nil {
			continue
		}
		byID := tc.RequestsByID()
		for _, req := range tc.SortedRequests() {
			if e.registry.consumeTermination(x.trace.TraceID) {
				return nil, e.terminate(x, ErrTerminated)
			}
			if err := ctx.Err(); err != nil {
				return nil, e.terminate(x, err)
			}

			e.executeRequest(ctx, x, tc, req, byID)
			e.registry.update(x.trace.TraceID, func(s *RunStatus) { s.Executed++ })
		}
	}

	completed := time.Now()
	rep, err := report.Generate(x.plan, started, completed)
	if err != nil {
		return nil, e.terminate(x, err)
	}

	if e.hosting && e.store != nil {
		e.persist(ctx, x, rep)
	}

	e.registry.update(x.trace.TraceID, func(s *RunStatus) {
		s.State = StateFinished
		s.CompletedAt = completed
	})
	e.publish(x, &notify.Event{
		OutboundID:  x.trace.OutboundID,
		Status:      notify.StatusFinished,
		TotalResult: rep,
		Summary:     summarize(rep),
	})
	x.logger.Info().
		Int("totalAssertions", rep.RuntimeInformation.TotalAssertions).
		Int("passedAssertions", rep.RuntimeInformation.TotalPassedAssertions).
		Int64("runDurationMs", rep.RuntimeInformation.RunDurationMs).
		Msg("run finished")
	return rep, nil
}

func (e *Engine) terminate(x *execution, cause error) error {
	e.registry.update(x.trace.TraceID, func(s *RunStatus) {
		s.State = StateTerminated
		s.CompletedAt = time.Now()
	})
	e.publish(x, &notify.Event{
		OutboundID: x.trace.OutboundID,
		Status:     notify.StatusTerminated,
	})
	x.logger.Info().Err(cause).Msg("run terminated")
	return cause
}

// persist stores a copy of the report. Failures are logged only.
func (e *Engine) persist(ctx context.Context, x *execution, rep *report.Report) {
	stored, err := rep.Clone()
	if err != nil {
		x.logger.Error().Err(err).Msg("copying report for storage")
		return
	}
	if err := e.store.Upsert(ctx, ReportsCollection, stored, map[string]any{"dfspId": x.counterpart}); err != nil {
		x.logger.Error().Err(err).Msg("storing report")
	}
}

func (e *Engine) publish(x *execution, event *notify.Event) {
	if e.sink == nil {
		return
	}
	e.sink.Publish(event, x.trace.SessionID)
}

func summarize(rep *report.Report) *notify.Summary {
	info := rep.RuntimeInformation
	return &notify.Summary{
		Name:                  rep.Name,
		TotalRequests:         info.TotalRequests,
		FailedRequests:        info.FailedRequests,
		TotalAssertions:       info.TotalAssertions,
		TotalPassedAssertions: info.TotalPassedAssertions,
		RunDurationMs:         info.RunDurationMs,
	}
}
