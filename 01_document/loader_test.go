package document

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"json2video/config"
	"json2video/types"
)

const sampleDoc = `{
  "script": [
    {"id": "scr_0", "text": "Hello"},
    {"id": "scr_1", "text": "World", "voice_start_time": 0.25, "post_pause_duration": 0.5}
  ],
  "images": [
    {
      "start_time": "scr_0.start_time",
      "end_time": "scr_0.end_time",
      "source_type": "prompt",
      "source_content": "a lighthouse at dusk",
      "z_index": 2,
      "position": [50, 25],
      "max_width": "full",
      "max_height": 600,
      "opacity": 0.8,
      "rotation": 5
    }
  ],
  "videos": [
    {"video_path": "clip.mp4", "start_time": 0, "end_time": "2.5", "volume": 0.3}
  ],
  "audio": [
    {"audio_path": "music.mp3", "start_time": 0, "end_time": "scr_1.end_time", "volume": 0.2, "is_temp": true}
  ],
  "text": [
    {"content": "Title", "start_time": 0, "end_time": 1, "font_size": 40}
  ],
  "extra_args": {
    "resolution": {"width": 1080, "height": 1920},
    "background_color": "white",
    "captions": {"enabled": true, "color": "yellow"}
  }
}`

func newLoader(t *testing.T) *Loader {
	return NewLoader(config.Default(), zaptest.NewLogger(t))
}

func TestLoadBuildsTypedDocument(t *testing.T) {
	doc, err := newLoader(t).Load([]byte(sampleDoc), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, types.Canvas{Width: 1080, Height: 1920}, doc.Canvas)
	assert.Equal(t, types.RGB{255, 255, 255}, doc.BackgroundColor)
	assert.True(t, doc.Captions.Enabled)
	assert.Equal(t, "yellow", doc.Captions.Color)
	assert.InDelta(t, 96.0, doc.Captions.FontSize, 1e-9)

	require.Len(t, doc.Script, 2)
	assert.Equal(t, 0.25, doc.Script[1].VoiceStartOffset)
	assert.Equal(t, 0.5, doc.Script[1].PostPauseDuration)
	assert.Nil(t, doc.Script[0].Timing)

	require.Len(t, doc.Images, 1)
	img := doc.Images[0]
	assert.Equal(t, types.Expr("scr_0.start_time"), img.Start)
	assert.Equal(t, types.SourcePrompt, img.SourceType)
	require.NotNil(t, img.ZIndex)
	assert.Equal(t, 2, *img.ZIndex)
	assert.Equal(t, &[2]float64{50, 25}, img.Position)
	assert.True(t, img.MaxWidth.Full)
	assert.Equal(t, 600, img.MaxHeight.Limit(1920))
	assert.Equal(t, "images[0]", img.ID())

	require.Len(t, doc.Videos, 1)
	assert.Equal(t, types.Seconds(2.5), doc.Videos[0].End)
	assert.Equal(t, 0.3, doc.Videos[0].Volume)

	require.Len(t, doc.Audio, 1)
	assert.True(t, doc.Audio[0].IsTemp)
	assert.Nil(t, doc.Audio[0].ZIndex)

	require.Len(t, doc.Texts, 1)
	assert.Equal(t, "Arial", doc.Texts[0].Font)
}

func TestLoadRejectsStructuralProblems(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"root not object", `[1, 2]`, "$"},
		{"script not array", `{"script": {"id": "a"}}`, "script"},
		{"missing text", `{"script": [{"id": "a"}]}`, "script[0].text"},
		{"missing id", `{"script": [{"text": "hi"}]}`, "script[0].id"},
		{"duplicate id", `{"script": [{"id": "a", "text": "x"}, {"id": "a", "text": "y"}]}`, "script[1].id"},
		{"opacity out of range", `{"images": [{"source_content": "x", "opacity": 2}]}`, "images[0].opacity"},
		{"fractional z_index", `{"images": [{"source_content": "x", "z_index": 1.5}]}`, "images[0].z_index"},
		{"bad source type", `{"images": [{"source_content": "x", "source_type": "ftp"}]}`, "images[0].source_type"},
		{"bad bound", `{"images": [{"source_content": "x", "max_width": "half"}]}`, "images[0].max_width"},
		{"missing video path", `{"videos": [{"start_time": 0}]}`, "videos[0].video_path"},
		{"time ref wrong type", `{"text": [{"content": "x", "start_time": true}]}`, "text[0].start_time"},
		{"negative time", `{"text": [{"content": "x", "start_time": -1}]}`, "text[0].start_time"},
		{"bad resolution", `{"extra_args": {"resolution": {"width": 0, "height": 10}}}`, "extra_args.resolution.width"},
		{"bad colour", `{"extra_args": {"background_color": [1, 2]}}`, "extra_args.background_color"},
		{"position element", `{"text": [{"content": "x", "position": ["left", 2]}]}`, "text[0].position[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newLoader(t).Load([]byte(tt.doc), FormatJSON)
			require.Error(t, err)
			var verr types.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.path, verr.Path)
		})
	}
}

func TestLoadDefersSemanticProblems(t *testing.T) {
	doc, err := newLoader(t).Load([]byte(`{
		"images": [{"source_content": "x", "start_time": "nodot", "position": "center"}],
		"videos": [{"video_path": "clip.avi"}]
	}`), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, types.Expr("nodot"), doc.Images[0].Start)
	assert.True(t, doc.Images[0].End.Missing())
	assert.Nil(t, doc.Images[0].Position)
	assert.Equal(t, "clip.avi", doc.Videos[0].Path)
}

func TestLoadAcceptsLegacyIDKeyAndDefaults(t *testing.T) {
	doc, err := newLoader(t).Load([]byte(`{"script": [{"_id": "intro", "text": "hi"}]}`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "intro", doc.Script[0].ID)
	assert.Equal(t, types.Canvas{Width: 1920, Height: 1080}, doc.Canvas)
	assert.Equal(t, types.RGB{249, 249, 249}, doc.BackgroundColor)
}

func TestLoadFileYAMLAndMalformed(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "doc.yaml")
	require.NoError(t, os.WriteFile(yml, []byte(`
script:
  - id: a
    text: hello
text:
  - content: hi
    start_time: a.start_time
    end_time: a.end_time
    z_index: 3
extra_args:
  background_color: "#102030"
`), 0644))

	doc, err := newLoader(t).LoadFile(yml)
	require.NoError(t, err)
	assert.Equal(t, types.RGB{0x10, 0x20, 0x30}, doc.BackgroundColor)
	require.NotNil(t, doc.Texts[0].ZIndex)
	assert.Equal(t, 3, *doc.Texts[0].ZIndex)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"script": [`), 0644))
	_, err = newLoader(t).LoadFile(bad)
	var verr types.ValidationError
	require.True(t, errors.As(err, &verr))

	_, err = newLoader(t).LoadFile(filepath.Join(dir, "missing.json"))
	require.True(t, errors.As(err, &verr))
}
