// Package webvtt parses, edits and writes WebVTT caption tracks.
package webvtt

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned for input that is not a WebVTT track.
var ErrInvalid = errors.New("invalid webvtt")

// Cue is one timed caption block.
type Cue struct {
	ID       string
	Start    time.Duration
	End      time.Duration
	Settings string // cue settings after the end timestamp
	Text     string
}

// Duration returns End-Start.
func (c Cue) Duration() time.Duration {
	return c.End - c.Start
}

// Track is a parsed WebVTT file.
type Track struct {
	Header string   // first line, "WEBVTT" plus optional text
	Blocks []string // STYLE and REGION blocks, kept verbatim
	Cues   []Cue
}

// Parse reads a WebVTT document. NOTE blocks are dropped.
func Parse(data []byte) (*Track, error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "WEBVTT") {
		return nil, fmt.Errorf("%w: missing WEBVTT header", ErrInvalid)
	}

	blocks := strings.Split(content, "\n\n")
	headerLines := strings.Split(blocks[0], "\n")
	track := &Track{Header: headerLines[0]}

	for _, block := range blocks[1:] {
		block = strings.Trim(block, "\n")
		if strings.TrimSpace(block) == "" {
			continue
		}
		switch {
		case strings.HasPrefix(block, "NOTE"):
			continue
		case strings.HasPrefix(block, "STYLE"), strings.HasPrefix(block, "REGION"):
			track.Blocks = append(track.Blocks, block)
			continue
		}
		cue, err := parseCue(block)
		if err != nil {
			return nil, err
		}
		track.Cues = append(track.Cues, cue)
	}
	return track, nil
}

func parseCue(block string) (Cue, error) {
	lines := strings.Split(block, "\n")
	var cue Cue
	if !strings.Contains(lines[0], "-->") {
		cue.ID = strings.TrimSpace(lines[0])
		lines = lines[1:]
	}
	if len(lines) == 0 || !strings.Contains(lines[0], "-->") {
		return Cue{}, fmt.Errorf("%w: cue %q has no timing line", ErrInvalid, cue.ID)
	}

	startText, rest, _ := strings.Cut(lines[0], "-->")
	rest = strings.TrimSpace(rest)
	endText, settings, _ := strings.Cut(rest, " ")

	start, err := ParseTimestamp(startText)
	if err != nil {
		return Cue{}, err
	}
	end, err := ParseTimestamp(endText)
	if err != nil {
		return Cue{}, err
	}
	cue.Start = start
	cue.End = end
	cue.Settings = strings.TrimSpace(settings)
	cue.Text = strings.Join(lines[1:], "\n")
	return cue, nil
}

// ParseTimestamp parses "hh:mm:ss.mmm" or "mm:ss.mmm".
func ParseTimestamp(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: empty timestamp", ErrInvalid)
	}
	clock, fraction, ok := strings.Cut(value, ".")
	if !ok || len(fraction) != 3 {
		return 0, fmt.Errorf("%w: invalid timestamp %q", ErrInvalid, value)
	}
	parts := strings.Split(clock, ":")
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: invalid timestamp %q", ErrInvalid, value)
	}
	hours, errH := strconv.Atoi(parts[0])
	minutes, errM := strconv.Atoi(parts[1])
	seconds, errS := strconv.Atoi(parts[2])
	millis, errMS := strconv.Atoi(fraction)
	if errH != nil || errM != nil || errS != nil || errMS != nil || minutes > 59 || seconds > 59 {
		return 0, fmt.Errorf("%w: invalid timestamp %q", ErrInvalid, value)
	}
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond, nil
}

// FormatTimestamp renders d as "hh:mm:ss.mmm".
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}

// SortByStart orders cues by start, then end.
func (t *Track) SortByStart() {
	sort.SliceStable(t.Cues, func(i, j int) bool {
		if t.Cues[i].Start != t.Cues[j].Start {
			return t.Cues[i].Start < t.Cues[j].Start
		}
		return t.Cues[i].End < t.Cues[j].End
	})
}

// Resequence numbers the cues from 1.
func (t *Track) Resequence() {
	for i := range t.Cues {
		t.Cues[i].ID = strconv.Itoa(i + 1)
	}
}

// RepairShort extends every cue lasting at most minDuration by extension and
// returns the number of repaired cues.
func (t *Track) RepairShort(minDuration, extension time.Duration) int {
	repaired := 0
	for i := range t.Cues {
		if t.Cues[i].Duration() <= minDuration {
			t.Cues[i].End += extension
			repaired++
		}
	}
	return repaired
}

// Compile renders the track.
func (t *Track) Compile() []byte {
	var b strings.Builder
	header := t.Header
	if header == "" {
		header = "WEBVTT"
	}
	b.WriteString(header)
	b.WriteString("\n\n")
	for _, block := range t.Blocks {
		b.WriteString(block)
		b.WriteString("\n\n")
	}
	for _, cue := range t.Cues {
		if cue.ID != "" {
			b.WriteString(cue.ID)
			b.WriteString("\n")
		}
		b.WriteString(FormatTimestamp(cue.Start))
		b.WriteString(" --> ")
		b.WriteString(FormatTimestamp(cue.End))
		if cue.Settings != "" {
			b.WriteString(" ")
			b.WriteString(cue.Settings)
		}
		b.WriteString("\n")
		if cue.Text != "" {
			b.WriteString(cue.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}
