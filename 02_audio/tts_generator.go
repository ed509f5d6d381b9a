package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"json2video/config"
)

// SpeechService turns text into an audio file and reports its duration in
// seconds. outFile is chosen by the caller and already tracked for cleanup.
type SpeechService interface {
	Synthesize(ctx context.Context, text, outFile string) (float64, error)
	// Ext is the file extension the service writes, without the dot
	Ext() string
}

// NewSpeechService builds the service named by narration.service. API keys
// are read from the environment once, here.
func NewSpeechService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (SpeechService, error) {
	n := cfg.Narration
	log := logger.Named("audio").Sugar()

	switch n.Service {
	case "edge_tts":
		if _, err := exec.LookPath("edge-tts"); err != nil {
			return nil, fmt.Errorf("edge-tts not found, install it with: pip install edge-tts")
		}
		return &cliService{bin: "edge-tts", voice: n.Voice, log: log}, nil
	case "command":
		return &cliService{bin: strings.TrimSpace(n.Command), log: log}, nil
	case "openai":
		return newOpenAIService(n, apiKey(n.APIKeyEnv), log)
	case "azure_openai":
		return newAzureService(n, apiKey(n.APIKeyEnv), log)
	case "elevenlabs":
		return newElevenLabsService(n, apiKey(n.APIKeyEnv), log)
	case "google":
		return newGoogleService(ctx, n, log)
	}
	return nil, fmt.Errorf("unknown narration service %q", n.Service)
}

func apiKey(env string) string {
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

// cliService shells out to edge-tts or a custom TTS command that accepts
// --text "..." --output path
type cliService struct {
	bin   string
	voice string
	log   *zap.SugaredLogger
}

func (s *cliService) Ext() string { return "mp3" }

func (s *cliService) Synthesize(ctx context.Context, text, outFile string) (float64, error) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		cmd := s.command(ctx, text, outFile)
		var out []byte
		if out, err = cmd.CombinedOutput(); err == nil {
			return mediaDuration(ctx, outFile)
		}
		err = fmt.Errorf("%s: %w: %s", s.bin, err, strings.TrimSpace(string(out)))
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		s.log.Warnf("TTS attempt %d failed: %v, retrying", attempt, err)

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return 0, err
}

func (s *cliService) command(ctx context.Context, text, outFile string) *exec.Cmd {
	switch {
	case s.bin == "edge-tts":
		return exec.CommandContext(ctx, "edge-tts",
			"--voice", s.voice,
			"--text", text,
			"--write-media", outFile,
		)
	case strings.HasSuffix(s.bin, ".py"):
		return exec.CommandContext(ctx, "python3", s.bin,
			"--text", text,
			"--output", outFile,
		)
	default:
		return exec.CommandContext(ctx, s.bin,
			"--text", text,
			"--output", outFile,
		)
	}
}
