// Package pipeline drives one audit run end to end: prerequisites, timeline
// construction, bounded-concurrency step evaluation through the reasoning
// oracle, citation resolution, scoring, and the terminal store transition.
//
// Step evaluations are independent and run concurrently under a semaphore.
// Each step's result is persisted as soon as it lands, so a crash mid-run can
// replay without duplicating rows. Individual step failures degrade to run
// statistics; only pipeline-level failures (missing prerequisites, a
// non-retriable oracle error) abort the run.
package pipeline
