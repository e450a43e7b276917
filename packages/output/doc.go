// Package output provides formatters for displaying run reports.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output
//   - JSON: the report in its wire format
//   - JUnit: JUnit XML format for CI integration
//   - Excel: a spreadsheet with one row per executed request
//
// Formatters that need a destination file or accumulate output implement
// Flush.
package output
