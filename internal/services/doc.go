// Package services defines shared utilities consumed by the audit pipeline
// components and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp audit IDs, rubric step names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that let the pipeline
//     classify failures (abort the run vs record a partial step failure).
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform across the system.
package services
