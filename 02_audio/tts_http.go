package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"json2video/config"
)

const elevenLabsSampleRate = 24000

// httpSpeech POSTs JSON and gets audio bytes back, for vendors without a Go SDK
type httpSpeech struct {
	httpClient *http.Client
	log        *zap.SugaredLogger
}

func newHTTPSpeech(n config.NarrationConfig, log *zap.SugaredLogger) httpSpeech {
	return httpSpeech{
		httpClient: &http.Client{Timeout: config.Timeout(n.TimeoutSec)},
		log:        log,
	}
}

func (h httpSpeech) post(ctx context.Context, endpoint string, headers map[string]string, body any) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(respBytes), 200))
	}
	if len(respBytes) == 0 {
		return nil, fmt.Errorf("empty audio response")
	}
	h.log.Debugf("speech response: %d bytes from %s", len(respBytes), req.URL.Host)
	return respBytes, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// elevenLabsService asks for raw 16-bit PCM and wraps it in a WAV header
type elevenLabsService struct {
	httpSpeech
	apiKey  string
	baseURL string
	voice   string
	model   string
}

func newElevenLabsService(n config.NarrationConfig, key string, log *zap.SugaredLogger) (*elevenLabsService, error) {
	if key == "" {
		return nil, fmt.Errorf("%s not set", n.APIKeyEnv)
	}
	s := &elevenLabsService{
		httpSpeech: newHTTPSpeech(n, log),
		apiKey:     key,
		baseURL:    strings.TrimSuffix(n.BaseURL, "/"),
		voice:      n.Voice,
		model:      n.Model,
	}
	if s.baseURL == "" {
		s.baseURL = "https://api.elevenlabs.io"
	}
	if s.voice == "" || isEdgeVoice(s.voice) {
		s.voice = "Brian"
	}
	if s.model == "" {
		s.model = "eleven_multilingual_v2"
	}
	return s, nil
}

func (s *elevenLabsService) Ext() string { return "wav" }

func (s *elevenLabsService) Synthesize(ctx context.Context, text, outFile string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=pcm_%d",
		s.baseURL, url.PathEscape(s.voice), elevenLabsSampleRate)
	pcm, err := s.post(ctx, endpoint,
		map[string]string{"xi-api-key": s.apiKey},
		elevenLabsRequest{Text: text, ModelID: s.model},
	)
	if err != nil {
		return 0, fmt.Errorf("elevenlabs speech: %w", err)
	}
	if err := writeWAV(outFile, pcm, elevenLabsSampleRate, 1, 16); err != nil {
		return 0, err
	}
	return float64(len(pcm)) / float64(elevenLabsSampleRate*2), nil
}
