// Package scoring reduces per-step audit outcomes into a single weighted
// compliance verdict. The scorer is a pure function of the step outcomes and
// the rubric snapshot; it performs no I/O and is safe to re-run.
package scoring
