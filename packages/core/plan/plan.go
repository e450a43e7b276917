package plan

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// TestPlan is a full conformance scenario.
type TestPlan struct {
	Name        string         `json:"name,omitempty"`
	InputValues map[string]any `json:"inputValues,omitempty"`
	TestCases   []*TestCase    `json:"test_cases"`
}

type TestCase struct {
	ID       string     `json:"id"`
	Name     string     `json:"name,omitempty"`
	Requests []*Request `json:"requests"`
}

// APIVersion identifies the API definition a request targets.
type APIVersion struct {
	MajorVersion int    `json:"majorVersion"`
	MinorVersion int    `json:"minorVersion"`
	Type         string `json:"type"`
	Asynchronous bool   `json:"asynchronous,omitempty"`
}

// Request is a request template. After execution Appended holds its outcome.
type Request struct {
	ID              string            `json:"id"`
	Description     string            `json:"description,omitempty"`
	APIVersion      APIVersion        `json:"apiVersion"`
	OperationPath   string            `json:"operationPath"`
	Path            string            `json:"path,omitempty"`
	Method          string            `json:"method"`
	URL             string            `json:"url,omitempty"`
	Params          map[string]any    `json:"params,omitempty"`
	QueryParams     map[string]any    `json:"queryParams,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            any               `json:"body,omitempty"`
	Delay           int               `json:"delay,omitempty"`
	Scripts         *Scripts          `json:"scripts,omitempty"`
	Tests           *Tests            `json:"tests,omitempty"`
	IgnoreCallbacks bool              `json:"ignoreCallbacks,omitempty"`
	Appended        *Outcome          `json:"appended,omitempty"`
}

type Scripts struct {
	PreRequest  *Script `json:"preRequest,omitempty"`
	PostRequest *Script `json:"postRequest,omitempty"`
}

type Script struct {
	Exec []string `json:"exec"`
}

// HasCode reports whether the script has at least one non-blank line.
func (s *Script) HasCode() bool {
	if s == nil {
		return false
	}
	for _, line := range s.Exec {
		for _, ch := range line {
			if ch != ' ' && ch != '\t' && ch != '\r' && ch != '\n' {
				return true
			}
		}
	}
	return false
}

// PreRequestScript returns the pre-request script or nil.
func (r *Request) PreRequestScript() *Script {
	if r.Scripts == nil {
		return nil
	}
	return r.Scripts.PreRequest
}

// PostRequestScript returns the post-request script or nil.
func (r *Request) PostRequestScript() *Script {
	if r.Scripts == nil {
		return nil
	}
	return r.Scripts.PostRequest
}

type Tests struct {
	Assertions            []*Assertion `json:"assertions"`
	PassedAssertionsCount int          `json:"passedAssertionsCount,omitempty"`
}

type Assertion struct {
	ID           string           `json:"id"`
	Description  string           `json:"description,omitempty"`
	Exec         []string         `json:"exec"`
	ResultStatus *AssertionResult `json:"resultStatus,omitempty"`
}

// SortedRequests returns the requests of the test case ordered by id.
// Declaration order is not execution order. Empty entries are skipped.
func (tc *TestCase) SortedRequests() []*Request {
	sorted := make([]*Request, 0, len(tc.Requests))
	for _, req := range tc.Requests {
		if req != nil {
			sorted = append(sorted, req)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// RequestsByID indexes the test case's requests by id.
func (tc *TestCase) RequestsByID() map[string]*Request {
	byID := make(map[string]*Request, len(tc.Requests))
	for _, req := range tc.Requests {
		if req != nil {
			byID[req.ID] = req
		}
	}
	return byID
}

// Clone returns a deep copy of the plan.
func (p *TestPlan) Clone() (*TestPlan, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling plan")
	}
	clone := &TestPlan{}
	if err := json.Unmarshal(data, clone); err != nil {
		return nil, errors.Wrap(err, "unmarshalling plan")
	}
	return clone, nil
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() (*Request, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling request")
	}
	clone := &Request{}
	if err := json.Unmarshal(data, clone); err != nil {
		return nil, errors.Wrap(err, "unmarshalling request")
	}
	return clone, nil
}
