package subtitles

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"json2video/config"
	"json2video/lifecycle"
	"json2video/types"
)

type fakeSTT struct {
	words []Word
	err   error
	seen  string
}

func (f *fakeSTT) Transcribe(ctx context.Context, audioFile string, tracker *lifecycle.Tracker) ([]Word, error) {
	f.seen = audioFile
	return f.words, f.err
}

type fakeMixer struct{ calls int }

func (m *fakeMixer) MixNarration(ctx context.Context, script []types.NarrationSegment, outFile string) error {
	m.calls++
	return os.WriteFile(outFile, []byte("RIFF"), 0644)
}

func captionDoc(enabled bool) *types.Document {
	return &types.Document{
		Canvas:   types.Canvas{Width: 1920, Height: 1080},
		Captions: types.CaptionSettings{Enabled: enabled, Color: "yellow"},
		Script: []types.NarrationSegment{
			{ID: "s1", Text: "Hello world again", Timing: &types.SegmentTiming{EndTime: 2, AudioFile: "voice.mp3"}},
		},
	}
}

func newCaptionTracker(t *testing.T) *lifecycle.Tracker {
	tr, err := lifecycle.New(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return tr
}

func TestCaptionerBuildsEntriesAndSRT(t *testing.T) {
	stt := &fakeSTT{words: []Word{
		{Text: "Hello", Start: 0, End: 0.4},
		{Text: "world", Start: 0.4, End: 0.9},
		{Text: "again", Start: 1.0, End: 1.6},
	}}
	mixer := &fakeMixer{}
	tracker := newCaptionTracker(t)
	c := NewCaptioner(config.Default(), stt, mixer, zaptest.NewLogger(t))

	got, err := c.Build(context.Background(), captionDoc(true), tracker)
	require.NoError(t, err)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, 1, mixer.calls)
	assert.Contains(t, tracker.Paths(), stt.seen)
	assert.Contains(t, tracker.Paths(), got.SRTFile)
	assert.NoError(t, ValidateSRT(got.SRTFile))

	first := got.Entries[0]
	assert.Equal(t, "captions[0]", first.LayerID)
	assert.Equal(t, types.KindCaption, first.Kind)
	assert.Equal(t, CaptionZIndex, first.ZIndex)
	assert.Equal(t, 0.0, first.Start)
	assert.Equal(t, 0.9, first.End)
	assert.Equal(t, "Hello world", first.Text.Content)
	assert.Equal(t, "yellow", first.Text.Color)
	assert.Equal(t, "black", first.Text.StrokeColor)
	assert.Equal(t, 64.0, first.Text.FontSize)
	// centred horizontally, 40% down the canvas
	assert.Equal(t, types.Box{X: 192, Y: 393.5, Width: 1536, Height: 77}, first.Box)
}

func TestCaptionerDisabled(t *testing.T) {
	mixer := &fakeMixer{}
	c := NewCaptioner(config.Default(), &fakeSTT{}, mixer, zaptest.NewLogger(t))

	got, err := c.Build(context.Background(), captionDoc(false), newCaptionTracker(t))
	require.NoError(t, err)
	assert.Empty(t, got.Entries)
	assert.Zero(t, mixer.calls)
}

func TestCaptionerFailures(t *testing.T) {
	c := NewCaptioner(config.Default(), &fakeSTT{err: errors.New("model missing")}, &fakeMixer{}, zaptest.NewLogger(t))
	_, err := c.Build(context.Background(), captionDoc(true), newCaptionTracker(t))
	assert.ErrorContains(t, err, "model missing")

	c = NewCaptioner(config.Default(), &fakeSTT{}, &fakeMixer{}, zaptest.NewLogger(t))
	_, err = c.Build(context.Background(), captionDoc(true), newCaptionTracker(t))
	assert.ErrorContains(t, err, "no words")

	c = NewCaptioner(config.Default(), nil, &fakeMixer{}, zaptest.NewLogger(t))
	_, err = c.Build(context.Background(), captionDoc(true), newCaptionTracker(t))
	assert.Error(t, err)

	c = NewCaptioner(config.Default(), &fakeSTT{}, nil, zaptest.NewLogger(t))
	_, err = c.Build(context.Background(), captionDoc(true), newCaptionTracker(t))
	assert.ErrorContains(t, err, "no narration mixer")
}
