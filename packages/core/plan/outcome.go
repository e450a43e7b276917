package plan

// Status is the result of dispatching one request.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// AssertionStatus values recorded per assertion.
const (
	AssertionSuccess = "SUCCESS"
	AssertionFailed  = "FAILED"
)

// Outcome is appended to a request after it has been executed.
type Outcome struct {
	Status         Status          `json:"status"`
	TestResult     *TestResult     `json:"testResult,omitempty"`
	Response       *SyncResponse   `json:"response,omitempty"`
	Callback       *Callback       `json:"callback,omitempty"`
	Request        *Request        `json:"request,omitempty"`
	Error          *ErrorInfo      `json:"error,omitempty"`
	AdditionalInfo *AdditionalInfo `json:"additionalInfo,omitempty"`
}

// SyncResponse is the synchronous HTTP response to a dispatched request.
type SyncResponse struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       any               `json:"body,omitempty"`
}

// Callback is an asynchronous request delivered by the counterpart.
type Callback struct {
	Method  string            `json:"method,omitempty"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

type ErrorInfo struct {
	Code    int    `json:"errorCode,omitempty"`
	Message string `json:"errorMessage"`
}

type AdditionalInfo struct {
	CurlRequest    string `json:"curlRequest,omitempty"`
	ResponseTimeMs int64  `json:"responseTimeMs,omitempty"`
}

type AssertionResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// TestResult maps assertion ids to their results.
type TestResult struct {
	Results     map[string]*AssertionResult `json:"results"`
	PassedCount int                         `json:"passedCount"`
}

// NewTestResult returns an empty, non-nil result set.
func NewTestResult() *TestResult {
	return &TestResult{Results: make(map[string]*AssertionResult)}
}
