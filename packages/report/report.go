package report

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
)

const notAvailable = "NA"

type RuntimeInformation struct {
	CompletedTimeISO      string `json:"completedTimeISO"`
	StartedTime           string `json:"startedTime"`
	CompletedTime         string `json:"completedTime"`
	RunDurationMs         int64  `json:"runDurationMs"`
	AvgResponseTime       string `json:"avgResponseTime"`
	P95ResponseTime       string `json:"p95ResponseTime,omitempty"`
	TotalRequests         int    `json:"totalRequests"`
	FailedRequests        int    `json:"failedRequests"`
	TotalAssertions       int    `json:"totalAssertions"`
	TotalPassedAssertions int    `json:"totalPassedAssertions"`
}

// RequestResult is one executed request in the report.
type RequestResult struct {
	Request        *plan.Request        `json:"request"`
	Status         plan.Status          `json:"status,omitempty"`
	Response       *plan.SyncResponse   `json:"response,omitempty"`
	Callback       *plan.Callback       `json:"callback,omitempty"`
	Error          *plan.ErrorInfo      `json:"error,omitempty"`
	AdditionalInfo *plan.AdditionalInfo `json:"additionalInfo,omitempty"`
}

type TestCaseResult struct {
	ID       string           `json:"id"`
	Name     string           `json:"name,omitempty"`
	Requests []*RequestResult `json:"requests"`
}

type Report struct {
	Name               string              `json:"name,omitempty"`
	InputValues        map[string]any      `json:"inputValues,omitempty"`
	TestCases          []*TestCaseResult   `json:"test_cases"`
	RuntimeInformation *RuntimeInformation `json:"runtimeInformation"`
}

// Failed reports whether any request errored or any assertion failed.
func (r *Report) Failed() bool {
	info := r.RuntimeInformation
	return info.FailedRequests > 0 || info.TotalPassedAssertions < info.TotalAssertions
}

// Clone returns a deep copy of the report.
func (r *Report) Clone() (*Report, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling report")
	}
	clone := &Report{}
	if err := json.Unmarshal(data, clone); err != nil {
		return nil, errors.Wrap(err, "unmarshalling report")
	}
	return clone, nil
}

// Generate builds the report for an executed plan. The plan is not
// modified.
func Generate(executed *plan.TestPlan, started, completed time.Time) (*Report, error) {
	p, err := executed.Clone()
	if err != nil {
		return nil, err
	}

	info := &RuntimeInformation{
		CompletedTimeISO: completed.UTC().Format("2006-01-02T15:04:05.000Z"),
		StartedTime:      started.UTC().Format(time.RFC1123),
		CompletedTime:    completed.UTC().Format(time.RFC1123),
		RunDurationMs:    completed.Sub(started).Milliseconds(),
		AvgResponseTime:  notAvailable,
	}
	times := NewResponseTimes()

	r := &Report{
		Name:               p.Name,
		InputValues:        p.InputValues,
		TestCases:          make([]*TestCaseResult, 0, len(p.TestCases)),
		RuntimeInformation: info,
	}

	for _, tc := range p.TestCases {
		if tc == nil {
			continue
		}
		tcr := &TestCaseResult{ID: tc.ID, Name: tc.Name, Requests: make([]*RequestResult, 0, len(tc.Requests))}
		for _, req := range tc.Requests {
			if req == nil {
				continue
			}
			tcr.Requests = append(tcr.Requests, fold(req, info, times))
		}
		r.TestCases = append(r.TestCases, tcr)
	}

	if times.Count() > 0 {
		info.AvgResponseTime = formatMs(times.Mean())
		info.P95ResponseTime = formatMs(times.Percentile(95))
	}
	return r, nil
}

func fold(req *plan.Request, info *RuntimeInformation, times *ResponseTimes) *RequestResult {
	outcome := req.Appended
	if outcome == nil {
		declared := *req
		return &RequestResult{Request: &declared}
	}

	sent := outcome.Request
	if sent == nil {
		declared := *req
		declared.Appended = nil
		sent = &declared
	}

	info.TotalRequests++
	if outcome.Status == plan.StatusError {
		info.FailedRequests++
	}

	if sent.Tests != nil && sent.Tests.Assertions != nil {
		results := outcome.TestResult
		if results == nil {
			results = plan.NewTestResult()
		}
		for _, assertion := range sent.Tests.Assertions {
			if assertion == nil {
				continue
			}
			assertion.ResultStatus = results.Results[assertion.ID]
		}
		sent.Tests.PassedAssertionsCount = results.PassedCount
		info.TotalAssertions += len(sent.Tests.Assertions)
		info.TotalPassedAssertions += results.PassedCount
	}

	if outcome.AdditionalInfo != nil && outcome.AdditionalInfo.ResponseTimeMs > 0 {
		times.Record(time.Duration(outcome.AdditionalInfo.ResponseTimeMs) * time.Millisecond)
	}

	return &RequestResult{
		Request:        sent,
		Status:         outcome.Status,
		Response:       outcome.Response,
		Callback:       outcome.Callback,
		Error:          outcome.Error,
		AdditionalInfo: outcome.AdditionalInfo,
	}
}
