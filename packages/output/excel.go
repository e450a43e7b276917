package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
	"github.com/abdul-hamid-achik/callspec/packages/report"
)

const (
	excelResultsSheet = "Results"
	excelSummarySheet = "Summary"
	errorBgColor      = "FFC7CE"
	slowBgColor       = "FFEB9C"
	excelColumnWidth  = 24
)

var excelHeaders = []string{
	"Test Case", "Request", "Method", "Path", "Status", "HTTP Status",
	"Callback", "Assertions", "Failed Assertions", "Response Time (ms)", "Error", "Curl",
}

// ExcelFormatter writes reports to a spreadsheet
type ExcelFormatter struct {
	path          string
	slowThreshold int64
	reports       []*report.Report
}

type ExcelOption func(*ExcelFormatter)

// ExcelWithSlowThreshold highlights requests slower than ms
func ExcelWithSlowThreshold(ms int64) ExcelOption {
	return func(f *ExcelFormatter) {
		f.slowThreshold = ms
	}
}

func NewExcelFormatter(path string, opts ...ExcelOption) *ExcelFormatter {
	f := &ExcelFormatter{
		path:          path,
		slowThreshold: 1000,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *ExcelFormatter) FormatReport(rep *report.Report) {
	f.reports = append(f.reports, rep)
}

func (f *ExcelFormatter) FormatError(err error) {
	// Errors are included in individual rows
}

func (f *ExcelFormatter) FormatHeader(version string) {
	// No header needed for spreadsheets
}

// Flush writes the workbook to the configured path
func (f *ExcelFormatter) Flush() error {
	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName("Sheet1", excelResultsSheet); err != nil {
		return errors.Wrap(err, "naming results sheet")
	}
	if _, err := book.NewSheet(excelSummarySheet); err != nil {
		return errors.Wrap(err, "creating summary sheet")
	}

	errorStyle, err := book.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{errorBgColor}},
	})
	if err != nil {
		return errors.Wrap(err, "creating error style")
	}
	slowStyle, err := book.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{slowBgColor}},
	})
	if err != nil {
		return errors.Wrap(err, "creating slow style")
	}
	headerStyle, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}

	lastCol, _ := excelize.ColumnNumberToName(len(excelHeaders))
	if err := book.SetColWidth(excelResultsSheet, "A", lastCol, excelColumnWidth); err != nil {
		return errors.Wrap(err, "setting column width")
	}
	for i, header := range excelHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := book.SetCellValue(excelResultsSheet, cell, header); err != nil {
			return errors.Wrap(err, "writing header")
		}
	}
	if err := book.SetCellStyle(excelResultsSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return errors.Wrap(err, "styling header")
	}

	row := 2
	for _, rep := range f.reports {
		for _, tc := range rep.TestCases {
			for _, r := range tc.Requests {
				if err := f.writeRequest(book, row, tc, r, errorStyle, slowStyle); err != nil {
					return err
				}
				row++
			}
		}
	}

	if err := f.writeSummary(book); err != nil {
		return err
	}

	if err := book.SaveAs(f.path); err != nil {
		return errors.Wrapf(err, "saving %s", f.path)
	}
	return nil
}

func (f *ExcelFormatter) writeRequest(book *excelize.File, row int, tc *report.TestCaseResult, r *report.RequestResult, errorStyle, slowStyle int) error {
	req := r.Request
	if req == nil {
		req = &plan.Request{}
	}
	passed, total := assertionCounts(req)

	var failedIDs []string
	for _, a := range failedAssertions(req) {
		failedIDs = append(failedIDs, a.ID)
	}
	sort.Strings(failedIDs)

	httpStatus := ""
	if r.Response != nil {
		httpStatus = fmt.Sprintf("%d %s", r.Response.Status, r.Response.StatusText)
	}
	callback := ""
	if r.Callback != nil {
		callback = strings.TrimSpace(strings.ToUpper(r.Callback.Method) + " " + r.Callback.URL)
	}
	errMsg := ""
	if r.Error != nil {
		errMsg = r.Error.Message
	}
	var responseMs int64
	curl := ""
	if r.AdditionalInfo != nil {
		responseMs = r.AdditionalInfo.ResponseTimeMs
		curl = r.AdditionalInfo.CurlRequest
	}
	path := req.Path
	if path == "" {
		path = req.OperationPath
	}

	cells := []any{
		tc.ID,
		req.ID,
		strings.ToUpper(req.Method),
		path,
		string(r.Status),
		httpStatus,
		callback,
		fmt.Sprintf("%d/%d", passed, total),
		strings.Join(failedIDs, ", "),
		responseMs,
		errMsg,
		curl,
	}

	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(cells), row)
	for i, value := range cells {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		if err := book.SetCellValue(excelResultsSheet, cell, value); err != nil {
			return errors.Wrapf(err, "writing cell %s", cell)
		}
	}

	switch {
	case r.Status == plan.StatusError || passed < total:
		return book.SetCellStyle(excelResultsSheet, first, last, errorStyle)
	case f.slowThreshold > 0 && responseMs > f.slowThreshold:
		return book.SetCellStyle(excelResultsSheet, first, last, slowStyle)
	}
	return nil
}

func (f *ExcelFormatter) writeSummary(book *excelize.File) error {
	rows := [][]any{{"Plan", "Started", "Completed", "Duration (ms)", "Requests", "Failed Requests", "Assertions", "Passed Assertions", "Avg Response", "Input Values"}}
	for _, rep := range f.reports {
		info := rep.RuntimeInformation
		inputs, _ := json.Marshal(rep.InputValues)
		rows = append(rows, []any{
			rep.Name,
			info.StartedTime,
			info.CompletedTime,
			info.RunDurationMs,
			info.TotalRequests,
			info.FailedRequests,
			info.TotalAssertions,
			info.TotalPassedAssertions,
			info.AvgResponseTime,
			string(inputs),
		})
	}

	for i, values := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := book.SetSheetRow(excelSummarySheet, cell, &values); err != nil {
			return errors.Wrap(err, "writing summary")
		}
	}
	return nil
}
