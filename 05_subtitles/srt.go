package subtitles

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strings"
)

// minCueSec keeps a cue visible when the transcriber reports a zero-length word
const minCueSec = 0.1

// Cue is one subtitle entry
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// GroupCues packs consecutive words into cues of at most wordsPerCue words.
// A silence longer than maxGapSec between two words always starts a new cue.
func GroupCues(words []Word, wordsPerCue int, maxGapSec float64) []Cue {
	if wordsPerCue < 1 {
		wordsPerCue = 1
	}
	var cues []Cue
	var group []Word

	flush := func() {
		if len(group) == 0 {
			return
		}
		texts := make([]string, len(group))
		for i, w := range group {
			texts[i] = w.Text
		}
		c := Cue{Start: group[0].Start, End: group[len(group)-1].End, Text: strings.Join(texts, " ")}
		if c.End-c.Start < minCueSec {
			c.End = c.Start + minCueSec
		}
		cues = append(cues, c)
		group = group[:0]
	}

	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		if len(group) == wordsPerCue || (len(group) > 0 && w.Start-group[len(group)-1].End > maxGapSec) {
			flush()
		}
		group = append(group, w)
	}
	flush()
	return cues
}

// WriteSRT writes cues in SubRip format
func WriteSRT(cues []Cue, path string) error {
	var b strings.Builder
	for i, c := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTimestamp(c.Start), srtTimestamp(c.End), c.Text)
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// srtTimestamp formats seconds as HH:MM:SS,mmm
func srtTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int64(math.Round(sec * 1000))
	h := ms / 3600000
	m := ms / 60000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

// ValidateSRT checks that the SRT file is valid and non-empty
func ValidateSRT(srtFile string) error {
	f, err := os.Open(srtFile)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineCount := 0
	for scanner.Scan() {
		lineCount++
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if lineCount < 4 {
		return fmt.Errorf("SRT file appears empty or malformed (%d lines)", lineCount)
	}
	return nil
}
