package audio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/option"

	"json2video/config"
	"json2video/types"
)

// wavBytes builds a mono 16-bit WAV of the given length
func wavBytes(t *testing.T, seconds float64, rate int) []byte {
	path := filepath.Join(t.TempDir(), "tone.wav")
	pcm := make([]byte, int(seconds*float64(rate))*2)
	require.NoError(t, writeWAV(path, pcm, rate, 1, 16))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestWAVDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.wav")
	require.NoError(t, writeWAV(path, make([]byte, 48000*2), 48000, 1, 16))

	d, err := wavDuration(path)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9)

	mp3 := filepath.Join(dir, "a.mp3")
	require.NoError(t, os.WriteFile(mp3, []byte("ID3\x03\x00not a wav file"), 0644))
	_, err = wavDuration(mp3)
	assert.ErrorIs(t, err, errNotWAV)
}

func TestOpenAISpeech(t *testing.T) {
	wav := wavBytes(t, 1.5, 24000)
	var got struct {
		Model          string `json:"model"`
		Input          string `json:"input"`
		Voice          string `json:"voice"`
		ResponseFormat string `json:"response_format"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write(wav)
	}))
	defer srv.Close()

	n := config.Default().Narration
	n.BaseURL = srv.URL
	svc, err := newOpenAIService(n, "sk-test", zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "voice.wav")
	d, err := svc.Synthesize(context.Background(), "Hello there", out)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, d, 1e-6)
	assert.Equal(t, "Hello there", got.Input)
	assert.Equal(t, "echo", got.Voice)
	assert.Equal(t, "tts-1", got.Model)
	assert.Equal(t, "wav", got.ResponseFormat)
}

func TestOpenAISpeechError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"unknown voice","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	n := config.Default().Narration
	n.BaseURL = srv.URL
	svc, err := newOpenAIService(n, "sk-test", zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	_, err = svc.Synthesize(context.Background(), "hi", filepath.Join(t.TempDir(), "x.wav"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "openai speech")
}

func TestAzureSpeechURL(t *testing.T) {
	wav := wavBytes(t, 0.5, 16000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/tts/audio/speech", r.URL.Path)
		assert.Equal(t, "2024-05-01-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "az-key", r.Header.Get("api-key"))
		var body struct {
			Model string `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tts", body.Model)
		w.Write(wav)
	}))
	defer srv.Close()

	n := config.Default().Narration
	n.Azure = &config.AzureConfig{Endpoint: srv.URL + "/", Deployment: "tts", APIVersion: "2024-05-01-preview"}
	svc, err := newAzureService(n, "az-key", zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	d, err := svc.Synthesize(context.Background(), "hi", filepath.Join(t.TempDir(), "x.wav"))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, d, 1e-6)
}

func TestElevenLabsWrapsPCM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/Brian", r.URL.Path)
		assert.Equal(t, "pcm_24000", r.URL.Query().Get("output_format"))
		assert.Equal(t, "el-key", r.Header.Get("xi-api-key"))
		w.Write(make([]byte, elevenLabsSampleRate*2*2))
	}))
	defer srv.Close()

	n := config.Default().Narration
	n.BaseURL = srv.URL
	svc, err := newElevenLabsService(n, "el-key", zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "x.wav")
	d, err := svc.Synthesize(context.Background(), "hi", out)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d, 1e-9)

	fromHeader, err := wavDuration(out)
	require.NoError(t, err)
	assert.InDelta(t, d, fromHeader, 1e-9)
}

func TestGoogleSpeech(t *testing.T) {
	wav := wavBytes(t, 0.75, 24000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/text:synthesize"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"audioEncoding":"LINEAR16"`)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"audioContent": base64.StdEncoding.EncodeToString(wav),
		})
	}))
	defer srv.Close()

	n := config.Default().Narration
	svc, err := newGoogleService(context.Background(), n, zaptest.NewLogger(t).Sugar(),
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)

	d, err := svc.Synthesize(context.Background(), "hi", filepath.Join(t.TempDir(), "x.wav"))
	require.NoError(t, err)
	assert.InDelta(t, 0.75, d, 1e-6)
}

func TestNewSpeechServiceRequiresKey(t *testing.T) {
	cfg := config.Default()
	cfg.Narration.Service = "openai"
	cfg.Narration.APIKeyEnv = "JSON2VIDEO_TEST_UNSET_KEY"
	_, err := NewSpeechService(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON2VIDEO_TEST_UNSET_KEY")
}

func TestMixArgs(t *testing.T) {
	script := []types.NarrationSegment{
		{ID: "a", Timing: &types.SegmentTiming{VoiceStartTime: 0, EndTime: 1, AudioFile: "a.wav"}},
		{ID: "b", Timing: &types.SegmentTiming{StartTime: 1, VoiceStartTime: 1.25, EndTime: 2.5, AudioFile: "b.wav"}},
	}
	args, err := mixArgs(script, "mix.wav")
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-t 2.500")
	assert.Contains(t, joined, "[2:a]adelay=1250|1250[v2]")
	assert.Contains(t, joined, "amix=inputs=3")
	assert.Equal(t, "mix.wav", args[len(args)-1])

	_, err = mixArgs([]types.NarrationSegment{{ID: "x"}}, "mix.wav")
	assert.Error(t, err)
}
