package timeline

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"

	"callaudit/internal/config"
)

const (
	wordTypeSpacing = "spacing"
	// fallbackSpeakerRun is how many synthesized words share a speaker before
	// the default two-speaker assignment alternates.
	fallbackSpeakerRun = 10

	fallbackSpeakerA = "speaker_0"
	fallbackSpeakerB = "speaker_1"
)

// Builder turns per-recording transcripts into a merged timeline.
type Builder struct {
	chunkMessages          int
	fallbackSecondsPerWord float64
}

// NewBuilder constructs a Builder from timeline configuration.
func NewBuilder(cfg config.Timeline) *Builder {
	chunk := cfg.ChunkMessages
	if chunk <= 0 {
		chunk = 20
	}
	perWord := cfg.FallbackSecondsPerWord
	if perWord <= 0 {
		perWord = 0.5
	}
	return &Builder{chunkMessages: chunk, fallbackSecondsPerWord: perWord}
}

// Build merges the supplied recordings into a single ordered timeline.
// Recording indices are assigned by stable append order across the emitted
// recordings; sources that yield zero chunks are dropped, not emitted as
// empty entries.
func (b *Builder) Build(sources []Source) *Timeline {
	tl := &Timeline{}
	for _, src := range sources {
		messages := b.messagesFor(src)
		chunks := b.chunkMessagesList(messages)
		if len(chunks) == 0 {
			continue
		}
		tl.Recordings = append(tl.Recordings, Recording{
			RecordingIndex: len(tl.Recordings),
			CallID:         strings.TrimSpace(src.CallID),
			RecordingURL:   strings.TrimSpace(src.RecordingURL),
			StartTime:      src.StartTime,
			Duration:       src.Duration,
			TotalChunks:    len(chunks),
			Chunks:         chunks,
		})
	}
	return tl
}

func (b *Builder) messagesFor(src Source) []Message {
	if msgs := MergeWords(src.Words); len(msgs) > 0 {
		return msgs
	}
	if len(src.Turns) > 0 {
		return sanitizeTurns(src.Turns)
	}
	if text := strings.TrimSpace(src.Text); text != "" {
		return MergeWords(b.synthesizeWords(text, src.Duration))
	}
	return nil
}

// MergeWords folds consecutive words with the same speaker into messages.
// Spacing tokens are dropped without breaking a merge; invalid words are
// skipped individually so malformed transcripts never fail the build.
func MergeWords(words []Word) []Message {
	var messages []Message
	currentSpeaker := ""

	for _, word := range words {
		if strings.EqualFold(strings.TrimSpace(word.Type), wordTypeSpacing) {
			continue
		}
		text := norm.NFC.String(strings.TrimSpace(word.Text))
		if text == "" {
			continue
		}
		if !validTiming(word.Start, word.End) {
			continue
		}

		speaker := strings.TrimSpace(word.SpeakerID)
		if speaker == "" {
			// ASR gaps without diarization inherit the running speaker.
			speaker = currentSpeaker
			if speaker == "" {
				speaker = fallbackSpeakerA
			}
		}

		if len(messages) > 0 && speaker == currentSpeaker {
			last := &messages[len(messages)-1]
			last.Text += " " + text
			if word.End > last.End {
				last.End = word.End
			}
			continue
		}

		currentSpeaker = speaker
		messages = append(messages, Message{
			Speaker: speaker,
			Text:    text,
			Start:   word.Start,
			End:     word.End,
		})
	}
	return messages
}

func validTiming(start, end float64) bool {
	if math.IsNaN(start) || math.IsNaN(end) || math.IsInf(start, 0) || math.IsInf(end, 0) {
		return false
	}
	if start < 0 || end < start {
		return false
	}
	return true
}

func sanitizeTurns(turns []Message) []Message {
	out := make([]Message, 0, len(turns))
	for _, turn := range turns {
		text := norm.NFC.String(strings.TrimSpace(turn.Text))
		if text == "" {
			continue
		}
		if !validTiming(turn.Start, turn.End) {
			continue
		}
		speaker := strings.TrimSpace(turn.Speaker)
		if speaker == "" {
			speaker = fallbackSpeakerA
		}
		out = append(out, Message{Speaker: speaker, Text: text, Start: turn.Start, End: turn.End})
	}
	return out
}

// synthesizeWords rebuilds a word stream from plain text by distributing words
// evenly across the recording's known (or estimated) duration, alternating a
// default two-speaker assignment every few words.
func (b *Builder) synthesizeWords(text string, duration float64) []Word {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}

	perWord := b.fallbackSecondsPerWord
	if duration > 0 {
		perWord = duration / float64(len(fields))
	}

	words := make([]Word, 0, len(fields))
	for i, field := range fields {
		speaker := fallbackSpeakerA
		if (i/fallbackSpeakerRun)%2 == 1 {
			speaker = fallbackSpeakerB
		}
		words = append(words, Word{
			Text:      field,
			Start:     float64(i) * perWord,
			End:       float64(i+1) * perWord,
			Type:      "word",
			SpeakerID: speaker,
		})
	}
	return words
}

func (b *Builder) chunkMessagesList(messages []Message) []Chunk {
	if len(messages) == 0 {
		return nil
	}

	var chunks []Chunk
	for start := 0; start < len(messages); start += b.chunkMessages {
		end := start + b.chunkMessages
		if end > len(messages) {
			end = len(messages)
		}
		group := messages[start:end]

		var lines []string
		var speakers []string
		seen := make(map[string]struct{}, 2)
		for _, msg := range group {
			lines = append(lines, msg.Speaker+": "+msg.Text)
			if _, ok := seen[msg.Speaker]; !ok {
				seen[msg.Speaker] = struct{}{}
				speakers = append(speakers, msg.Speaker)
			}
		}

		chunks = append(chunks, Chunk{
			ChunkIndex:   len(chunks),
			StartTS:      group[0].Start,
			EndTS:        group[len(group)-1].End,
			MessageCount: len(group),
			Speakers:     speakers,
			FullText:     strings.Join(lines, "\n"),
		})
	}
	return chunks
}
