// Package plan defines the test plan data model used by callspec.
//
// A TestPlan is an ordered list of TestCases, each holding request
// templates that reference the counterpart's API operations. Requests are
// executed in ascending order of their identifier within a test case and
// each executed request is annotated with its Outcome.
//
// Plans can be loaded from JSON or YAML files.
package plan
