// Package report folds executed requests into the final run report.
//
// The report mirrors the test plan. Each request is replaced by its
// result: the request as it was sent, with every assertion annotated
// with its resultStatus, next to the status, response, callback and
// diagnostic information of the dispatch.
package report
