package subtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"json2video/config"
	"json2video/lifecycle"
)

// OpenAITranscriber sends audio to the transcription API and asks for
// word-level timestamps
type OpenAITranscriber struct {
	client   openai.Client
	model    string
	language string
}

func NewOpenAITranscriber(s config.SubtitlesConfig, key string) *OpenAITranscriber {
	base := "https://api.openai.com/v1/"
	if s.BaseURL != "" {
		base = strings.TrimSuffix(s.BaseURL, "/") + "/"
	}
	t := &OpenAITranscriber{
		client: openai.NewClient(
			option.WithAPIKey(key),
			option.WithBaseURL(base),
			option.WithHTTPClient(&http.Client{Timeout: config.Timeout(s.TimeoutSec)}),
		),
		model:    s.WhisperModel,
		language: s.Language,
	}
	// local model names mean nothing to the API
	if t.model == "" || !strings.Contains(t.model, "whisper") && !strings.Contains(t.model, "transcribe") {
		t.model = "whisper-1"
	}
	return t
}

// Transcribe creates nothing on disk, so the tracker is unused
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioFile string, _ *lifecycle.Tracker) ([]Word, error) {
	f, err := os.Open(audioFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:                   f,
		Model:                  openai.AudioModel(t.model),
		ResponseFormat:         openai.AudioResponseFormat("verbose_json"),
		TimestampGranularities: []string{"word"},
	}
	if t.language != "" {
		params.Language = openai.String(t.language)
	}
	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("transcription: %w", err)
	}

	// the typed response only carries the text; words come from verbose_json
	var result struct {
		Words []Word `json:"words"`
	}
	if err := json.Unmarshal([]byte(resp.RawJSON()), &result); err != nil {
		return nil, fmt.Errorf("parse transcription: %w", err)
	}
	words := result.Words[:0]
	for _, w := range result.Words {
		w.Text = strings.TrimSpace(w.Text)
		if w.Text != "" {
			words = append(words, w)
		}
	}
	return words, nil
}
