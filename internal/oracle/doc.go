// Package oracle talks to the external reasoning oracle that judges rubric
// steps against a conversation timeline.
//
// The client wraps an OpenRouter-compatible chat completion API in JSON-only
// mode. It performs exactly one HTTP attempt per call and classifies failures
// with the shared services error markers; retry policy belongs to the caller.
// Responses are decoded defensively because models wrap JSON in code fences
// or prose despite the response_format instruction.
package oracle
