package pipeline

import (
	"callaudit/internal/audit"
	"callaudit/internal/timeline"
)

// citationUnresolved is stamped on citations whose recording index has no
// match in the timeline, so no citation silently disappears.
const citationUnresolved = "N/A"

// resolveCitations attaches recording metadata to every citation in the
// control points, against the same timeline snapshot the steps were judged
// on. Indices with no match are stamped rather than dropped.
func resolveCitations(points []audit.ControlPoint, tl *timeline.Timeline) {
	for pi := range points {
		for ci := range points[pi].Citations {
			citation := &points[pi].Citations[ci]
			rec, ok := tl.Resolve(citation.RecordingIndex)
			if !ok {
				citation.RecordingDate = citationUnresolved
				citation.RecordingTime = citationUnresolved
				citation.RecordingURL = citationUnresolved
				continue
			}
			if rec.StartTime.IsZero() {
				citation.RecordingDate = citationUnresolved
				citation.RecordingTime = citationUnresolved
			} else {
				citation.RecordingDate = rec.StartTime.UTC().Format("2006-01-02")
				citation.RecordingTime = rec.StartTime.UTC().Format("15:04:05")
			}
			if rec.RecordingURL != "" {
				citation.RecordingURL = rec.RecordingURL
			} else {
				citation.RecordingURL = citationUnresolved
			}
		}
	}
}
