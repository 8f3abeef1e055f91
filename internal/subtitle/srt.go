package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var srtTimePattern = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2}),(\d{3}) --> (\d{2}):(\d{2}):(\d{2}),(\d{3})`)

// FormatSRT renders chunks as a numbered SRT document.
func FormatSRT(chunks []Chunk) string {
	var b strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatTimestamp(c.Start), formatTimestamp(c.End))
		fmt.Fprintf(&b, "%s\n\n", c.Text)
	}
	return b.String()
}

// formatTimestamp formats seconds as HH:MM:SS,mmm.
func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	hours := ms / 3_600_000
	minutes := ms / 60_000 % 60
	secs := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, ms%1000)
}

// ParseSRT reads an SRT document back into chunks. Blocks without an index
// line are skipped; a malformed timing line is an error.
func ParseSRT(data []byte) ([]Chunk, error) {
	var chunks []Chunk
	scanner := bufio.NewScanner(bytes.NewReader(data))

	var current Chunk
	state := "index" // index, time, text
	var textLines []string

	flush := func() {
		if len(textLines) > 0 {
			current.Text = strings.Join(textLines, "\n")
			chunks = append(chunks, current)
		}
		current = Chunk{}
		textLines = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))

		switch state {
		case "index":
			if line == "" {
				continue
			}
			if _, err := strconv.Atoi(line); err != nil {
				continue
			}
			state = "time"

		case "time":
			if line == "" {
				continue
			}
			start, end, err := parseTimeLine(line)
			if err != nil {
				return nil, err
			}
			current.Start, current.End = start, end
			state = "text"

		case "text":
			if line == "" {
				flush()
				state = "index"
				continue
			}
			textLines = append(textLines, line)
		}
	}
	if state == "text" {
		flush()
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle data: %w", err)
	}
	return chunks, nil
}

func parseTimeLine(line string) (float64, float64, error) {
	m := srtTimePattern.FindStringSubmatch(line)
	if len(m) != 9 {
		return 0, 0, fmt.Errorf("invalid time format: %s", line)
	}

	seconds := func(h, mi, s, ms string) float64 {
		hv, _ := strconv.Atoi(h)
		mv, _ := strconv.Atoi(mi)
		sv, _ := strconv.Atoi(s)
		msv, _ := strconv.Atoi(ms)
		return float64(hv*3600+mv*60+sv) + float64(msv)/1000
	}

	return seconds(m[1], m[2], m[3], m[4]), seconds(m[5], m[6], m[7], m[8]), nil
}
