package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// SlackNotifier posts run completion summaries to Slack via webhook
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	client     *http.Client
	policy     *policy
}

// SlackOption is a functional option for SlackNotifier
type SlackOption func(*SlackNotifier)

// WithSlackChannel sets the Slack channel
func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) {
		s.channel = channel
	}
}

// WithSlackUsername sets the Slack bot username
func WithSlackUsername(username string) SlackOption {
	return func(s *SlackNotifier) {
		s.username = username
	}
}

// WithSlackNotifyOn sets which runs are reported
func WithSlackNotifyOn(on NotifyOn) SlackOption {
	return func(s *SlackNotifier) {
		s.policy = newPolicy(on)
	}
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
		username:   "callspec",
		iconEmoji:  ":satellite_antenna:",
		client:     &http.Client{Timeout: 10 * time.Second},
		policy:     newPolicy(NotifyCompletion),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the name of the notifier
func (s *SlackNotifier) Name() string {
	return "slack"
}

// slackMessage represents a Slack webhook message
type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

// slackAttachment represents a Slack message attachment
type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	TS     int64        `json:"ts,omitempty"`
}

// slackField represents a field in a Slack attachment
type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Notify sends a completion summary to Slack. Progress events are skipped.
func (s *SlackNotifier) Notify(ctx context.Context, event *Event, _ string) error {
	if !event.IsCompletion() || !s.policy.allow(event) {
		return nil
	}

	msg := slackMessage{
		Channel:     s.channel,
		Username:    s.username,
		IconEmoji:   s.iconEmoji,
		Attachments: []slackAttachment{buildAttachment(event)},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal Slack message")
	}
	return postJSON(ctx, s.client, s.webhookURL, nil, data)
}

func buildAttachment(event *Event) slackAttachment {
	attachment := slackAttachment{
		Footer: "callspec " + event.OutboundID,
		TS:     time.Now().Unix(),
	}

	if event.Status == StatusTerminated {
		attachment.Color = "warning"
		attachment.Title = ":octagonal_sign: Run terminated"
		return attachment
	}

	summary := event.Summary
	if summary == nil {
		summary = &Summary{}
	}

	attachment.Color = "good" // green
	attachment.Title = ":white_check_mark: All assertions passed!"
	if summary.Failed() {
		attachment.Color = "danger" // red
		attachment.Title = fmt.Sprintf(":x: %d assertion(s) failed, %d request(s) errored",
			summary.TotalAssertions-summary.TotalPassedAssertions, summary.FailedRequests)
	} else if summary.IsRecovery {
		attachment.Title = ":tada: Run recovered!"
	}

	attachment.Fields = []slackField{
		{Title: "Requests", Value: fmt.Sprintf("%d", summary.TotalRequests), Short: true},
		{Title: "Assertions", Value: fmt.Sprintf("%d/%d", summary.TotalPassedAssertions, summary.TotalAssertions), Short: true},
		{Title: "Duration", Value: (time.Duration(summary.RunDurationMs) * time.Millisecond).String(), Short: true},
	}
	if summary.Name != "" {
		attachment.Fields = append(attachment.Fields, slackField{Title: "Plan", Value: summary.Name, Short: true})
	}
	return attachment
}
