// Package timeline reconstructs a chronological, speaker-attributed
// conversation timeline from raw transcript word streams.
//
// Consecutive words from the same speaker are merged into messages, messages
// are grouped into size-bounded chunks, and multiple recordings of one case
// are merged into a single ordered timeline. Recordings without word-level
// timing fall back to a synthesized word stream so the rest of the pipeline
// (chunking, citation indices) stays uniform for degraded input.
//
// The builder is a pure transformation: it never fails on malformed per-word
// data, it skips invalid words individually.
package timeline
