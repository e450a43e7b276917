package assertions

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/callspec/packages/core/env"
	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
	"github.com/abdul-hamid-achik/callspec/packages/sandbox"
)

// Subject is what assertions are evaluated against.
type Subject struct {
	Request          *plan.Request
	Response         *plan.SyncResponse
	Callback         *plan.Callback
	Environment      []env.Item
	RequestsHistory  []any
	CallbacksHistory []any
}

// EvaluatorOption is a functional option for configuring an Evaluator.
type EvaluatorOption func(*Evaluator)

func WithLogger(logger zerolog.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

type Evaluator struct {
	executor sandbox.Executor
	logger   zerolog.Logger
}

func NewEvaluator(executor sandbox.Executor, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		executor: executor,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every assertion of tests. It returns an empty result when
// there are none, and nil only when the evaluator itself cannot run.
func (e *Evaluator) Evaluate(ctx context.Context, tests *plan.Tests, subject Subject) *plan.TestResult {
	result := plan.NewTestResult()
	if tests == nil || len(tests.Assertions) == 0 {
		return result
	}

	sc, err := e.executor.NewContext(sandbox.Bundle{
		Environment:      subject.Environment,
		Request:          toData(subject.Request),
		Response:         toData(subject.Response),
		Callback:         toData(subject.Callback),
		RequestsHistory:  subject.RequestsHistory,
		CallbacksHistory: subject.CallbacksHistory,
		PlainEnvironment: true,
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("cannot create assertion context")
		return nil
	}
	defer sc.Dispose()

	for _, assertion := range tests.Assertions {
		if assertion == nil {
			continue
		}
		if _, err := sc.Execute(ctx, assertion.Exec); err != nil {
			result.Results[assertion.ID] = &plan.AssertionResult{
				Status:  plan.AssertionFailed,
				Message: err.Error(),
			}
			e.logger.Debug().Str("assertion", assertion.ID).Err(err).Msg("assertion failed")
			continue
		}
		result.Results[assertion.ID] = &plan.AssertionResult{Status: plan.AssertionSuccess}
		result.PassedCount++
	}
	return result
}

func toData(v any) any {
	switch val := v.(type) {
	case *plan.Request:
		if val == nil {
			return nil
		}
	case *plan.SyncResponse:
		if val == nil {
			return nil
		}
	case *plan.Callback:
		if val == nil {
			return nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
