package subtitle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const story = "Once upon a time, in a quiet valley, there lived a fox.\n" +
	"She was curious; she was brave! Would she find the river? Nobody knew"

func gapAfter(chunk Chunk, next float64) float64 {
	return next - chunk.End
}

func TestComputeTimings_Segments(t *testing.T) {
	chunks := ComputeTimings(story, 20)

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	assert.Equal(t, []string{
		"Once upon a time,",
		"in a quiet valley,",
		"there lived a fox.",
		"She was curious;",
		"she was brave!",
		"Would she find the river?",
		"Nobody knew",
	}, texts)
}

func TestComputeTimings_Coverage(t *testing.T) {
	inputs := []struct {
		text     string
		duration float64
	}{
		{story, 20},
		{story, 0.5},
		{"one", 3},
		{"a, b, c, d, e, f, g, h, i, j, k, l, m, n, o, p", 0.2},
		{"Line one\nLine two\n\nLine three.", 9.75},
	}

	for _, in := range inputs {
		chunks := ComputeTimings(in.text, in.duration)
		require.NotEmpty(t, chunks, in.text)

		for i, c := range chunks {
			assert.NotEmpty(t, c.Text)
			assert.GreaterOrEqual(t, c.Start, 0.0)
			assert.GreaterOrEqual(t, c.End, c.Start)
			if i > 0 {
				prev := chunks[i-1]
				assert.GreaterOrEqual(t, c.Start, prev.Start, "sorted by start")
				assert.GreaterOrEqual(t, c.Start, prev.End, "chunks must not overlap")
			}
		}
		assert.LessOrEqual(t, chunks[len(chunks)-1].End, in.duration+1e-9)
	}
}

func TestComputeTimings_Degenerate(t *testing.T) {
	assert.Empty(t, ComputeTimings("", 10))
	assert.Empty(t, ComputeTimings("   \n  ", 10))
	assert.Empty(t, ComputeTimings(",,,...!!!", 10))
	assert.Empty(t, ComputeTimings("Hello there.", 0))
	assert.Empty(t, ComputeTimings("Hello there.", -1))
}

func TestComputeTimings_SentenceGapExceedsClauseGap(t *testing.T) {
	const duration = 10.0

	period := ComputeTimings("Hello there.", duration)
	comma := ComputeTimings("Hello there,", duration)
	require.Len(t, period, 1)
	require.Len(t, comma, 1)

	periodGap := gapAfter(period[0], duration)
	commaGap := gapAfter(comma[0], duration)
	assert.Greater(t, periodGap, commaGap)
	assert.InDelta(t, clauseGap, commaGap, 1e-9)
	// 12 chars + 15 bonus = 27 units; gap = 0.4 * 15 units
	assert.InDelta(t, 6*duration/27, periodGap, 1e-9)
}

func TestComputeTimings_Weights(t *testing.T) {
	// "Hi." = 3+15, "you," = 4+6, "there" = 5 => 33 units over 3.3s
	chunks := ComputeTimings("Hi. you, there", 3.3)
	require.Len(t, chunks, 3)

	assert.InDelta(t, 0.0, chunks[0].Start, 1e-9)
	assert.InDelta(t, 1.8-0.6, chunks[0].End, 1e-9)
	assert.InDelta(t, 1.8, chunks[1].Start, 1e-9)
	assert.InDelta(t, 2.8-0.05, chunks[1].End, 1e-9)
	assert.InDelta(t, 2.8, chunks[2].Start, 1e-9)
	assert.InDelta(t, 3.3-0.05, chunks[2].End, 1e-9)
}

func TestComputeTimings_NewlineIsSentenceBreak(t *testing.T) {
	chunks := ComputeTimings("first line\nsecond line", 10)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first line", chunks[0].Text)

	// first: 10+15, second: 11 => 36 units
	perUnit := 10.0 / 36
	assert.InDelta(t, 25*perUnit-6*perUnit, chunks[0].End, 1e-9)
}

func TestComputeTimings_Deterministic(t *testing.T) {
	assert.Equal(t, ComputeTimings(story, 42.5), ComputeTimings(story, 42.5))
}

func TestComputeTimings_NormalizesText(t *testing.T) {
	composed := ComputeTimings("caf\u00e9 time.", 5)
	decomposed := ComputeTimings("cafe\u0301 time.", 5)
	assert.Equal(t, composed, decomposed)
	require.Len(t, decomposed, 1)
	assert.Equal(t, "caf\u00e9 time.", decomposed[0].Text)
}

func TestActiveAt(t *testing.T) {
	chunks := []Chunk{
		{Text: "a", Start: 0, End: 1},
		{Text: "b", Start: 1.5, End: 2.5},
		{Text: "c", Start: 3, End: 3},
	}

	tests := []struct {
		t    float64
		want string
		ok   bool
	}{
		{0, "a", true},
		{0.5, "a", true},
		{1, "a", true},
		{1.2, "", false},
		{1.5, "b", true},
		{2.5, "b", true},
		{3, "c", true},
		{3.1, "", false},
		{-1, "", false},
	}

	for _, tt := range tests {
		got, ok := ActiveAt(chunks, tt.t)
		assert.Equal(t, tt.ok, ok, "t=%v", tt.t)
		assert.Equal(t, tt.want, got.Text, "t=%v", tt.t)
	}

	_, ok := ActiveAt(nil, 0)
	assert.False(t, ok)
}
