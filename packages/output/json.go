package output

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/abdul-hamid-achik/callspec/packages/report"
)

// JSONFormatter writes reports in their wire format
type JSONFormatter struct {
	writer  io.Writer
	reports []*report.Report
	errors  []string
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatReport(rep *report.Report) {
	f.reports = append(f.reports, rep)
}

func (f *JSONFormatter) FormatError(err error) {
	f.errors = append(f.errors, err.Error())
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output. A single report is written
// as is; several are written as an array.
func (f *JSONFormatter) Flush() error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")

	switch {
	case len(f.reports) == 1 && len(f.errors) == 0:
		return encoder.Encode(f.reports[0])
	case len(f.errors) > 0:
		return encoder.Encode(map[string]any{"reports": f.reports, "errors": f.errors})
	case len(f.reports) == 0:
		return errors.New("no report to write")
	default:
		return encoder.Encode(f.reports)
	}
}
