package runner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// customTracePattern matches trace ids minted by the test platform:
// "aabb", a 20 hex digit session id and an 8 hex digit end-to-end id.
var customTracePattern = regexp.MustCompile(`^aabb[0-9a-fA-F]{28}$`)

// NewTraceID mints a custom trace id with a fresh session and
// end-to-end id.
func NewTraceID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "aabb" + hex[:28]
}

// Trace identifies one execution.
type Trace struct {
	TraceID    string
	OutboundID string
	SessionID  string
	EndToEndID string
}

// NewTrace derives the ids of a run. In hosting mode the counterpart is
// the session.
func NewTrace(traceID, counterpart string, hosting bool) *Trace {
	t := &Trace{TraceID: traceID, OutboundID: traceID}
	if customTracePattern.MatchString(traceID) {
		t.SessionID = traceID[4:24]
		t.EndToEndID = traceID[24:32]
		t.OutboundID = t.EndToEndID
	}
	if hosting && counterpart != "" {
		t.SessionID = counterpart
	}
	return t
}

// Traceparent is the W3C trace context header sent with every request of
// a traced session.
func (t *Trace) Traceparent() string {
	return fmt.Sprintf("00-%s-0123456789abcdef0-00", t.TraceID)
}
