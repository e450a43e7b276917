package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes events to a zerolog logger.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Name() string {
	return "log"
}

func (l *LogNotifier) Notify(_ context.Context, event *Event, sessionID string) error {
	ev := l.logger.Info()
	if event.Status == StatusTerminated || event.Status == "ERROR" {
		ev = l.logger.Warn()
	}
	ev = ev.Str("outboundID", event.OutboundID).Str("status", event.Status)
	if sessionID != "" {
		ev = ev.Str("sessionID", sessionID)
	}
	if event.RequestID != "" {
		ev = ev.Str("testCaseId", event.TestCaseID).Str("requestId", event.RequestID)
		if event.TestResult != nil {
			ev = ev.Int("passedAssertions", event.TestResult.PassedCount).Int("assertions", len(event.TestResult.Results))
		}
		ev.Msg("request executed")
		return nil
	}
	if event.Summary != nil {
		ev = ev.Int("totalAssertions", event.Summary.TotalAssertions).
			Int("passedAssertions", event.Summary.TotalPassedAssertions).
			Int64("runDurationMs", event.Summary.RunDurationMs)
	}
	ev.Msg("run " + event.Status)
	return nil
}
