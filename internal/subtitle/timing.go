// Package subtitle splits narration text into timed caption chunks.
package subtitle

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// sentenceBonus is the extra weight of a segment that ends a sentence
	// or contains a line break.
	sentenceBonus = 15
	// clauseBonus is the extra weight of a segment ending in a comma or semicolon.
	clauseBonus = 6
	// sentenceGapRatio is the share of the sentence bonus shown as blank screen.
	sentenceGapRatio = 0.4
	// clauseGap is the fixed trailing gap in seconds after other segments.
	clauseGap = 0.05
)

var segmentPattern = regexp.MustCompile(`[^.?!;,\n]+[.?!;,\n]*`)

// Chunk is a caption with its display window in seconds.
type Chunk struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type segment struct {
	text     string
	weight   float64
	sentence bool
}

// ComputeTimings splits text at sentence and clause punctuation and spreads
// the segments over duration seconds in proportion to their length plus a
// pause bonus. The result is deterministic, sorted, and non-overlapping.
// Empty text or a non-positive duration yields no chunks.
func ComputeTimings(text string, duration float64) []Chunk {
	if duration <= 0 {
		return nil
	}

	segments := split(text)
	var total float64
	for _, s := range segments {
		total += s.weight
	}
	if len(segments) == 0 || total == 0 {
		return nil
	}

	perUnit := duration / total
	chunks := make([]Chunk, 0, len(segments))
	current := 0.0
	for _, s := range segments {
		segDuration := s.weight * perUnit
		gap := clauseGap
		if s.sentence {
			gap = sentenceGapRatio * sentenceBonus * perUnit
		}

		start := current
		end := start + segDuration - gap
		if end < start {
			end = start
		}
		chunks = append(chunks, Chunk{Text: s.text, Start: start, End: end})

		// Advance by the full duration: the gap is blank screen, not skipped audio.
		current += segDuration
	}

	return chunks
}

func split(text string) []segment {
	text = norm.NFC.String(text)

	var out []segment
	for _, raw := range segmentPattern.FindAllString(text, -1) {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}

		weight := float64(utf8.RuneCountInString(trimmed))
		sentence := false
		switch {
		case strings.ContainsRune(raw, '\n') || strings.ContainsAny(trimmed[len(trimmed)-1:], ".?!"):
			weight += sentenceBonus
			sentence = true
		case strings.ContainsAny(trimmed[len(trimmed)-1:], ",;"):
			weight += clauseBonus
		}

		out = append(out, segment{text: trimmed, weight: weight, sentence: sentence})
	}
	return out
}

// ActiveAt returns the chunk whose window contains t.
func ActiveAt(chunks []Chunk, t float64) (Chunk, bool) {
	// First chunk that has not ended yet; windows never overlap.
	i := sort.Search(len(chunks), func(i int) bool { return chunks[i].End >= t })
	if i < len(chunks) && chunks[i].Start <= t {
		return chunks[i], true
	}
	return Chunk{}, false
}
