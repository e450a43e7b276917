package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
	"github.com/abdul-hamid-achik/callspec/packages/report"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case map[string]string:
		return fmt.Sprintf("{map with %d entries}", len(val))
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatReport(rep *report.Report) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	name := rep.Name
	if name == "" {
		name = "test plan"
	}
	fmt.Fprintf(f.writer, "\n%s\n", bold("Running: "+name))

	for _, tc := range rep.TestCases {
		title := tc.ID
		if tc.Name != "" {
			title = tc.ID + " " + tc.Name
		}
		fmt.Fprintf(f.writer, "\n  %s\n", bold(title))

		for _, r := range tc.Requests {
			label := requestLabel(r.Request)
			if r.Status == "" {
				fmt.Fprintf(f.writer, "    %s %s\n", yellow("-"), label)
				continue
			}

			passed, total := assertionCounts(r.Request)
			symbol := green("✓")
			if r.Status == plan.StatusError || passed < total {
				symbol = red("✗")
			}

			timing := ""
			if r.AdditionalInfo != nil && r.AdditionalInfo.ResponseTimeMs > 0 {
				timing = " " + cyan(fmt.Sprintf("(%dms)", r.AdditionalInfo.ResponseTimeMs))
			}
			fmt.Fprintf(f.writer, "    %s %s%s\n", symbol, label, timing)

			if r.Error != nil {
				fmt.Fprintf(f.writer, "      %s\n", red(r.Error.Message))
			}
			if f.verbose && r.Response != nil {
				fmt.Fprintf(f.writer, "      Status: %d %s\n", r.Response.Status, r.Response.StatusText)
			}
			if f.verbose && r.Callback != nil {
				fmt.Fprintf(f.writer, "      Callback: %s %s %s\n", r.Callback.Method, r.Callback.URL, formatValue(r.Callback.Body, 100))
			}

			if r.Request != nil && r.Request.Tests != nil {
				for _, a := range r.Request.Tests.Assertions {
					if a.ResultStatus != nil && a.ResultStatus.Status == plan.AssertionSuccess && !f.verbose {
						continue
					}
					mark := red("→")
					if a.ResultStatus != nil && a.ResultStatus.Status == plan.AssertionSuccess {
						mark = green("→")
					}
					fmt.Fprintf(f.writer, "      %s %s\n", mark, assertionLabel(a))
					if a.ResultStatus != nil && a.ResultStatus.Message != "" {
						fmt.Fprintf(f.writer, "        %s\n", a.ResultStatus.Message)
					}
				}
			}
		}
	}

	info := rep.RuntimeInformation
	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Requests:   ")
	if failed := info.FailedRequests; failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", failed)))
	}
	fmt.Fprintf(f.writer, "%d total\n", info.TotalRequests)
	fmt.Fprintf(f.writer, "Assertions: ")
	if info.TotalPassedAssertions > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", info.TotalPassedAssertions)))
	}
	if failed := info.TotalAssertions - info.TotalPassedAssertions; failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", failed)))
	}
	fmt.Fprintf(f.writer, "%d total\n", info.TotalAssertions)
	fmt.Fprintf(f.writer, "Time:       %dms (avg response %s)\n", info.RunDurationMs, info.AvgResponseTime)
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("callspec"), version)
}

func requestLabel(req *plan.Request) string {
	if req == nil {
		return "?"
	}
	path := req.Path
	if path == "" {
		path = req.OperationPath
	}
	label := fmt.Sprintf("[%s] %s %s", req.ID, strings.ToUpper(req.Method), path)
	if req.Description != "" {
		label += " - " + req.Description
	}
	return label
}

func assertionLabel(a *plan.Assertion) string {
	if a.Description != "" {
		return a.Description
	}
	if len(a.Exec) > 0 {
		return a.Exec[0]
	}
	return a.ID
}

// assertionCounts returns passed and declared assertions of an executed
// request.
func assertionCounts(req *plan.Request) (int, int) {
	if req == nil || req.Tests == nil {
		return 0, 0
	}
	return req.Tests.PassedAssertionsCount, len(req.Tests.Assertions)
}

// failedAssertions lists failing assertion ids in a stable order.
func failedAssertions(req *plan.Request) []*plan.Assertion {
	if req == nil || req.Tests == nil {
		return nil
	}
	var out []*plan.Assertion
	for _, a := range req.Tests.Assertions {
		if a.ResultStatus == nil || a.ResultStatus.Status != plan.AssertionSuccess {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
