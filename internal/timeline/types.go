package timeline

import (
	"fmt"
	"strings"
	"time"
)

// Word is a single transcribed token with timing and speaker attribution.
type Word struct {
	Text      string  `json:"text"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Type      string  `json:"type"`
	SpeakerID string  `json:"speaker_id,omitempty"`
}

// Message is one merged speaker turn.
type Message struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Chunk is a size-bounded slice of the conversation.
type Chunk struct {
	ChunkIndex   int      `json:"chunk_index"`
	StartTS      float64  `json:"start_ts"`
	EndTS        float64  `json:"end_ts"`
	MessageCount int      `json:"message_count"`
	Speakers     []string `json:"speakers"`
	FullText     string   `json:"full_text"`
}

// Recording is the chunked timeline of one call recording.
type Recording struct {
	RecordingIndex int       `json:"recording_index"`
	CallID         string    `json:"call_id"`
	RecordingURL   string    `json:"recording_url"`
	StartTime      time.Time `json:"start_time"`
	Duration       float64   `json:"duration"`
	TotalChunks    int       `json:"total_chunks"`
	Chunks         []Chunk   `json:"chunks"`
}

// Timeline is the merged, ordered set of a case's recordings.
type Timeline struct {
	Recordings []Recording `json:"recordings"`
}

// Source is one recording's raw transcript input. Exactly one of Words,
// Turns, or Text is expected; when several are present the richest wins
// (words, then pre-segmented turns, then plain text).
type Source struct {
	CallID       string
	RecordingURL string
	StartTime    time.Time
	Duration     float64
	Words        []Word
	Turns        []Message
	Text         string
}

// Empty reports whether the timeline carries no conversation at all.
func (t *Timeline) Empty() bool {
	if t == nil {
		return true
	}
	for _, rec := range t.Recordings {
		if len(rec.Chunks) > 0 {
			return false
		}
	}
	return true
}

// Resolve returns the recording carrying the given index, if any. Citations
// use recording_index as their stable cross-reference key.
func (t *Timeline) Resolve(recordingIndex int) (Recording, bool) {
	if t == nil {
		return Recording{}, false
	}
	for _, rec := range t.Recordings {
		if rec.RecordingIndex == recordingIndex {
			return rec, true
		}
	}
	return Recording{}, false
}

// FullText renders the whole timeline as oracle prompt input, with recording
// headers so citations can point back into specific recordings.
func (t *Timeline) FullText() string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	for i, rec := range t.Recordings {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== Enregistrement %d", rec.RecordingIndex)
		if !rec.StartTime.IsZero() {
			fmt.Fprintf(&b, " (%s)", rec.StartTime.UTC().Format("2006-01-02 15:04"))
		}
		b.WriteString(" ===")
		for _, chunk := range rec.Chunks {
			b.WriteString("\n")
			b.WriteString(chunk.FullText)
		}
	}
	return b.String()
}

// TotalChunks returns the chunk count across all recordings.
func (t *Timeline) TotalChunks() int {
	if t == nil {
		return 0
	}
	total := 0
	for _, rec := range t.Recordings {
		total += len(rec.Chunks)
	}
	return total
}
