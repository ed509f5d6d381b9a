package audio

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/texttospeech/v1"

	"json2video/config"
)

// googleService calls Cloud Text-to-Speech. LINEAR16 responses carry a WAV
// header, so the duration comes straight from the file.
type googleService struct {
	svc          *texttospeech.Service
	languageCode string
	voice        string
	sampleRate   int64
	log          *zap.SugaredLogger
}

func newGoogleService(ctx context.Context, n config.NarrationConfig, log *zap.SugaredLogger, extra ...option.ClientOption) (*googleService, error) {
	opts := extra
	if len(opts) == 0 {
		auth, err := googleAuth(ctx, n.Google)
		if err != nil {
			return nil, err
		}
		opts = []option.ClientOption{auth}
	}
	svc, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create texttospeech client: %w", err)
	}

	s := &googleService{
		svc:          svc,
		languageCode: n.Google.LanguageCode,
		voice:        n.Voice,
		sampleRate:   n.Google.SampleRateHertz,
		log:          log,
	}
	if s.languageCode == "" {
		s.languageCode = "en-US"
	}
	return s, nil
}

// googleAuth prefers an explicit service account file, then a refresh token
// from the environment, then application default credentials
func googleAuth(ctx context.Context, g config.GoogleTTSConfig) (option.ClientOption, error) {
	if g.CredentialsFile != "" {
		data, err := os.ReadFile(g.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read google credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, texttospeech.CloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("parse google credentials: %w", err)
		}
		return option.WithCredentials(creds), nil
	}

	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	refreshToken := os.Getenv("GOOGLE_REFRESH_TOKEN")
	if clientID != "" && clientSecret != "" && refreshToken != "" {
		conf := &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{texttospeech.CloudPlatformScope},
		}
		token := &oauth2.Token{
			RefreshToken: refreshToken,
			Expiry:       time.Now().Add(-time.Hour), // force refresh
		}
		return option.WithTokenSource(conf.TokenSource(ctx, token)), nil
	}

	creds, err := google.FindDefaultCredentials(ctx, texttospeech.CloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("no google credentials: set narration.google.credentials_file, GOOGLE_REFRESH_TOKEN or application default credentials: %w", err)
	}
	return option.WithCredentials(creds), nil
}

func (s *googleService) Ext() string { return "wav" }

func (s *googleService) Synthesize(ctx context.Context, text, outFile string) (float64, error) {
	voice := &texttospeech.VoiceSelectionParams{LanguageCode: s.languageCode}
	if s.voice != "" && !isEdgeVoice(s.voice) {
		voice.Name = s.voice
	}
	resp, err := s.svc.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: voice,
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: s.sampleRate,
		},
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("google speech: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return 0, fmt.Errorf("google speech: decode audio: %w", err)
	}
	if err := os.WriteFile(outFile, audio, 0644); err != nil {
		return 0, err
	}
	s.log.Debugf("google speech: %d bytes for %d chars", len(audio), len(text))
	return mediaDuration(ctx, outFile)
}

// edge-tts voice names such as en-US-GuyNeural are not Cloud TTS voices
func isEdgeVoice(v string) bool {
	return len(v) > 6 && v[len(v)-6:] == "Neural"
}
