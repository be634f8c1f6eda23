// Package errors standardizes error handling across opsgraph.
//
// Errors are classified into three classes that drive propagation policy:
//
//   - Transient: store or network failures; ingestion swallows them, the
//     query path surfaces them as 5xx.
//   - Invalid: malformed ingestion records or validator-rejected queries;
//     always surfaced to callers on the query path with the specific reason.
//   - Fatal: configuration or lifecycle errors that should stop the process.
//
// Components wrap errors with WrapTransient, WrapInvalid, or WrapFatal so the
// HTTP gateway can map any error in the chain to a status code without
// inspecting message text.
package errors
