package subtitles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(triples ...any) []Word {
	var out []Word
	for i := 0; i < len(triples); i += 3 {
		out = append(out, Word{Text: triples[i].(string), Start: triples[i+1].(float64), End: triples[i+2].(float64)})
	}
	return out
}

func TestGroupCuesPairsWords(t *testing.T) {
	in := words(
		"The", 0.0, 0.2,
		"quick", 0.2, 0.5,
		"brown", 0.5, 0.8,
		"fox", 0.8, 1.0,
		"jumps", 1.0, 1.4,
	)
	cues := GroupCues(in, 2, 0.6)
	require.Len(t, cues, 3)
	assert.Equal(t, Cue{Start: 0, End: 0.5, Text: "The quick"}, cues[0])
	assert.Equal(t, Cue{Start: 0.5, End: 1.0, Text: "brown fox"}, cues[1])
	assert.Equal(t, Cue{Start: 1.0, End: 1.4, Text: "jumps"}, cues[2])
}

func TestGroupCuesBreaksOnSilence(t *testing.T) {
	in := words(
		"Hello", 0.0, 0.5,
		"World", 1.5, 2.0,
		"again", 2.1, 2.4,
	)
	cues := GroupCues(in, 2, 0.6)
	require.Len(t, cues, 2)
	assert.Equal(t, "Hello", cues[0].Text)
	assert.Equal(t, "World again", cues[1].Text)
}

func TestGroupCuesEdgeCases(t *testing.T) {
	assert.Empty(t, GroupCues(nil, 2, 0.6))
	assert.Empty(t, GroupCues(words(" ", 0.0, 1.0), 2, 0.6))

	cues := GroupCues(words("blip", 3.0, 3.0), 2, 0.6)
	require.Len(t, cues, 1)
	assert.InDelta(t, 3.1, cues[0].End, 1e-9)
}

func TestWriteSRT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.srt")
	cues := []Cue{
		{Start: 0, End: 1.25, Text: "Hello World"},
		{Start: 3661.5, End: 3662.0004, Text: "later"},
	}
	require.NoError(t, WriteSRT(cues, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "1\n00:00:00,000 --> 00:00:01,250\nHello World\n\n" +
		"2\n01:01:01,500 --> 01:01:02,000\nlater\n\n"
	assert.Equal(t, want, string(data))
	assert.NoError(t, ValidateSRT(path))
}

func TestValidateSRTRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.srt")
	require.NoError(t, WriteSRT(nil, path))
	assert.ErrorContains(t, ValidateSRT(path), "empty or malformed")
}

func TestSRTTimestamp(t *testing.T) {
	assert.Equal(t, "00:00:00,000", srtTimestamp(-1))
	assert.Equal(t, "00:00:59,999", srtTimestamp(59.999))
	assert.Equal(t, "00:01:00,000", srtTimestamp(59.9996))
}
