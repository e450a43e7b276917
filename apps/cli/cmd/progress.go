package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/callspec/packages/notify"
)

// progressStream prints one line per executed request while a run is in
// flight. Stop closes the subscription and waits for pending lines.
type progressStream struct {
	channel *notify.ChannelNotifier
	cancel  func()
	done    chan struct{}
}

func startProgress(w io.Writer) *progressStream {
	p := &progressStream{channel: notify.NewChannelNotifier(), done: make(chan struct{})}
	deliveries, cancel := p.channel.Subscribe(256)
	p.cancel = cancel
	go func() {
		defer close(p.done)
		for d := range deliveries {
			writeProgress(w, d.Event)
		}
	}()
	return p
}

func (p *progressStream) Stop() {
	p.cancel()
	<-p.done
}

func writeProgress(w io.Writer, event *notify.Event) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	status := event.Status
	switch status {
	case "SUCCESS", notify.StatusFinished:
		status = green(status)
	case "ERROR", notify.StatusTerminated:
		status = red(status)
	}

	if event.RequestID == "" {
		fmt.Fprintf(w, "run %s %s\n", event.OutboundID, status)
		return
	}
	line := fmt.Sprintf("%s/%s %s", event.TestCaseID, event.RequestID, status)
	if event.TestResult != nil {
		line += fmt.Sprintf(" (%d/%d assertions)", event.TestResult.PassedCount, len(event.TestResult.Results))
	}
	fmt.Fprintln(w, line)
}
