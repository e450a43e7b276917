// Package notify delivers run progress and completion events to observers.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
)

// Event statuses. Progress events carry the request status instead.
const (
	StatusFinished   = "FINISHED"
	StatusTerminated = "TERMINATED"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends every event, including per-request progress
	NotifyAlways NotifyOn = "always"
	// NotifyCompletion sends only FINISHED and TERMINATED events
	NotifyCompletion NotifyOn = "completion"
	// NotifyFailure sends completion events of failed or terminated runs
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends completion events of passing runs
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery sends failures and the first passing run after one
	NotifyRecovery NotifyOn = "recovery"
)

// Summary condenses a finished report for notifiers that do not need it
// in full.
type Summary struct {
	Name                  string `json:"name,omitempty"`
	TotalRequests         int    `json:"totalRequests"`
	FailedRequests        int    `json:"failedRequests"`
	TotalAssertions       int    `json:"totalAssertions"`
	TotalPassedAssertions int    `json:"totalPassedAssertions"`
	RunDurationMs         int64  `json:"runDurationMs"`
	IsRecovery            bool   `json:"isRecovery,omitempty"`
}

func (s *Summary) Failed() bool {
	return s.FailedRequests > 0 || s.TotalPassedAssertions < s.TotalAssertions
}

// ProgressInfo is diagnostic data attached to a progress event.
type ProgressInfo struct {
	CurlRequest      string `json:"curlRequest,omitempty"`
	ScriptsExecution any    `json:"scriptsExecution,omitempty"`
}

// Event is one notification. Progress events describe a single executed
// request; completion events carry the report.
type Event struct {
	OutboundID     string             `json:"outboundID"`
	Status         string             `json:"status"`
	TestCaseID     string             `json:"testCaseId,omitempty"`
	RequestID      string             `json:"requestId,omitempty"`
	RequestSent    *plan.Request      `json:"requestSent,omitempty"`
	Response       *plan.SyncResponse `json:"response,omitempty"`
	Callback       *plan.Callback     `json:"callback,omitempty"`
	AdditionalInfo *ProgressInfo      `json:"additionalInfo,omitempty"`
	TestResult     *plan.TestResult   `json:"testResult,omitempty"`
	TotalResult    any                `json:"totalResult,omitempty"`
	Summary        *Summary           `json:"summary,omitempty"`
}

// IsCompletion reports whether the event ends a run.
func (e *Event) IsCompletion() bool {
	return e.Status == StatusFinished || e.Status == StatusTerminated
}

// Sink receives events. Publishing never fails the caller.
type Sink interface {
	Publish(event *Event, sessionID string)
}

// Notifier is the interface for notification services
type Notifier interface {
	// Notify delivers an event
	Notify(ctx context.Context, event *Event, sessionID string) error

	// Name returns the name of the notifier
	Name() string
}

// Manager fans events out to multiple notifiers
type Manager struct {
	mu        sync.RWMutex
	notifiers []Notifier
	timeout   time.Duration
	logger    zerolog.Logger
}

type ManagerOption func(*Manager)

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTimeout bounds each notifier call
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = d
	}
}

// NewManager creates a new notification manager
func NewManager(notifiers []Notifier, opts ...ManagerOption) *Manager {
	m := &Manager{
		notifiers: notifiers,
		timeout:   10 * time.Second,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddNotifier adds a notifier to the manager
func (m *Manager) AddNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// Publish delivers event to every notifier. Failures are logged.
func (m *Manager) Publish(event *Event, sessionID string) {
	m.mu.RLock()
	notifiers := append([]Notifier(nil), m.notifiers...)
	m.mu.RUnlock()

	for _, n := range notifiers {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		if err := n.Notify(ctx, event, sessionID); err != nil {
			m.logger.Warn().Err(err).Str("notifier", n.Name()).Str("status", event.Status).Msg("notification failed")
		}
		cancel()
	}
}

// policy decides which events a notifier forwards.
type policy struct {
	mu        sync.Mutex
	notifyOn  NotifyOn
	lastState bool // true if last run was successful
}

func newPolicy(notifyOn NotifyOn) *policy {
	if notifyOn == "" {
		notifyOn = NotifyCompletion
	}
	return &policy{notifyOn: notifyOn, lastState: true}
}

func (p *policy) allow(event *Event) bool {
	if p.notifyOn == NotifyAlways {
		return true
	}
	if !event.IsCompletion() {
		return false
	}
	if p.notifyOn == NotifyCompletion {
		return true
	}

	failed := event.Status == StatusTerminated || (event.Summary != nil && event.Summary.Failed())
	currentSuccess := !failed

	p.mu.Lock()
	defer p.mu.Unlock()
	shouldNotify := false
	switch p.notifyOn {
	case NotifyFailure:
		shouldNotify = failed
	case NotifySuccess:
		shouldNotify = currentSuccess
	case NotifyRecovery:
		// Notify if recovering from failure
		if !p.lastState && currentSuccess {
			shouldNotify = true
			if event.Summary != nil {
				event.Summary.IsRecovery = true
			}
		}
		// Also notify on failure
		if failed {
			shouldNotify = true
		}
	}
	p.lastState = currentSuccess
	return shouldNotify
}
