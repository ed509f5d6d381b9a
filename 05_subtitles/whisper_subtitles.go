package subtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"json2video/config"
	"json2video/lifecycle"
)

// Word is one transcribed word with its time span in seconds
type Word struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SpeechToText transcribes an audio file into timed words. Anything it
// writes to disk is tracked on tracker.
type SpeechToText interface {
	Transcribe(ctx context.Context, audioFile string, tracker *lifecycle.Tracker) ([]Word, error)
}

// NewSpeechToText builds the engine named by subtitles.engine
func NewSpeechToText(cfg *config.Config, logger *zap.Logger) (SpeechToText, error) {
	s := cfg.Subtitles
	log := logger.Named("subtitles").Sugar()

	switch s.Engine {
	case "whisper_cli":
		if _, err := exec.LookPath("whisper"); err != nil {
			return nil, fmt.Errorf("whisper not found, install it with: pip install openai-whisper")
		}
		return &WhisperCLI{bin: "whisper", model: s.WhisperModel, language: s.Language, log: log}, nil
	case "openai":
		key := os.Getenv(s.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("%s is not set", s.APIKeyEnv)
		}
		return NewOpenAITranscriber(s, key), nil
	}
	return nil, fmt.Errorf("unknown subtitles engine %q", s.Engine)
}

// WhisperCLI runs the local whisper command with word timestamps
type WhisperCLI struct {
	bin      string
	model    string
	language string
	log      *zap.SugaredLogger
}

// Transcribe writes whisper's JSON output next to the audio file, which is
// inside the compile's work directory, and reads the words back.
func (w *WhisperCLI) Transcribe(ctx context.Context, audioFile string, tracker *lifecycle.Tracker) ([]Word, error) {
	w.log.Infof("running whisper transcription (%s)...", w.model)
	outputDir := filepath.Dir(audioFile)

	// whisper saves as <audioFilename>.json
	base := strings.TrimSuffix(filepath.Base(audioFile), filepath.Ext(audioFile))
	jsonFile := filepath.Join(outputDir, base+".json")
	if err := tracker.Track(jsonFile); err != nil {
		return nil, err
	}

	// whisper audio.wav --model base --output_format json --output_dir /path/
	cmd := exec.CommandContext(ctx, w.bin, w.args(audioFile, outputDir)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("whisper failed: %w: %s", err, tail(string(out), 300))
	}

	data, err := os.ReadFile(jsonFile)
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}
	return parseWhisperJSON(data)
}

func (w *WhisperCLI) args(audioFile, outputDir string) []string {
	args := []string{
		audioFile,
		"--model", w.model,
		"--output_format", "json",
		"--output_dir", outputDir,
		"--word_timestamps", "True",
	}
	// without --language whisper detects it
	if w.language != "" {
		args = append(args, "--language", w.language)
	}
	return args
}

type whisperOutput struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []Word  `json:"words"`
	} `json:"segments"`
}

// parseWhisperJSON flattens segment words. A segment without word timestamps
// has its text spread evenly over its span.
func parseWhisperJSON(data []byte) ([]Word, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}

	var words []Word
	for _, seg := range out.Segments {
		if len(seg.Words) > 0 {
			for _, wd := range seg.Words {
				wd.Text = strings.TrimSpace(wd.Text)
				if wd.Text != "" {
					words = append(words, wd)
				}
			}
			continue
		}
		fields := strings.Fields(seg.Text)
		if len(fields) == 0 {
			continue
		}
		step := (seg.End - seg.Start) / float64(len(fields))
		for i, f := range fields {
			words = append(words, Word{
				Text:  f,
				Start: seg.Start + float64(i)*step,
				End:   seg.Start + float64(i+1)*step,
			})
		}
	}
	return words, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
