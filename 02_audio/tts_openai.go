package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"json2video/config"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1/"
	defaultSpeechModel   = "tts-1"
	defaultSpeechVoice   = "echo"
)

// openAIService calls the speech endpoint through the OpenAI SDK and asks for
// WAV so the duration can be read from the header. The Azure variant is the
// same client pointed at a deployment.
type openAIService struct {
	client openai.Client
	name   string
	model  string
	voice  string
	log    *zap.SugaredLogger
}

func newOpenAIService(n config.NarrationConfig, key string, log *zap.SugaredLogger) (*openAIService, error) {
	if key == "" {
		return nil, fmt.Errorf("%s not set", n.APIKeyEnv)
	}
	base := strings.TrimSuffix(n.BaseURL, "/") + "/"
	if n.BaseURL == "" {
		base = defaultOpenAIBaseURL
	}
	client := openai.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(base),
		option.WithHTTPClient(&http.Client{Timeout: config.Timeout(n.TimeoutSec)}),
	)
	return &openAIService{
		client: client,
		name:   "openai",
		model:  orDefault(n.Model, defaultSpeechModel),
		voice:  speechVoice(n.Voice),
		log:    log,
	}, nil
}

func newAzureService(n config.NarrationConfig, key string, log *zap.SugaredLogger) (*openAIService, error) {
	if key == "" {
		return nil, fmt.Errorf("%s not set", n.APIKeyEnv)
	}
	if n.Azure == nil {
		return nil, fmt.Errorf("narration.azure is required for azure_openai")
	}
	client := openai.NewClient(
		azure.WithEndpoint(n.Azure.Endpoint, n.Azure.APIVersion),
		azure.WithAPIKey(key),
		option.WithHTTPClient(&http.Client{Timeout: config.Timeout(n.TimeoutSec)}),
	)
	// azure routes on the deployment, which travels as the model name
	return &openAIService{
		client: client,
		name:   "azure openai",
		model:  n.Azure.Deployment,
		voice:  speechVoice(n.Voice),
		log:    log,
	}, nil
}

func (s *openAIService) Ext() string { return "wav" }

func (s *openAIService) Synthesize(ctx context.Context, text, outFile string) (float64, error) {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat("wav"),
	})
	if err != nil {
		return 0, fmt.Errorf("%s speech: %w", s.name, err)
	}
	defer resp.Body.Close()

	f, err := os.Create(outFile)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("%s speech: %w", s.name, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%s speech: empty audio response", s.name)
	}
	s.log.Debugf("%s speech: %d bytes", s.name, n)
	return mediaDuration(ctx, outFile)
}

// speechVoice maps edge-tts voice names, which the config defaults to, onto
// an OpenAI voice
func speechVoice(v string) string {
	if v == "" || isEdgeVoice(v) {
		return defaultSpeechVoice
	}
	return v
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
