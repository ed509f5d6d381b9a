// Package subtitles turns the mixed narration into timed caption layers and an
// SRT file. Captions are best effort: the compiler logs a failure here and
// carries on without them.
package subtitles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"json2video/04_visuals"
	"json2video/config"
	"json2video/lifecycle"
	"json2video/types"
)

// CaptionZIndex keeps captions above every layer a document is likely to declare
const CaptionZIndex = 1000

// NarrationMixer renders the narration track captions are transcribed from
type NarrationMixer interface {
	MixNarration(ctx context.Context, script []types.NarrationSegment, outFile string) error
}

// Captions is the caption track of one compile
type Captions struct {
	Entries []types.VisualEntry
	SRTFile string
}

// Captioner transcribes narration and lays the cues out as caption layers
type Captioner struct {
	stt         SpeechToText
	mixer       NarrationMixer
	wordsPerCue int
	maxGap      float64
	positionY   float64
	timeout     time.Duration
	log         *zap.SugaredLogger
}

func NewCaptioner(cfg *config.Config, stt SpeechToText, mixer NarrationMixer, logger *zap.Logger) *Captioner {
	s := cfg.Subtitles
	return &Captioner{
		stt:         stt,
		mixer:       mixer,
		wordsPerCue: s.WordsPerCue,
		maxGap:      s.MaxGapSec,
		positionY:   s.PositionY,
		timeout:     config.Timeout(s.TimeoutSec),
		log:         logger.Named("subtitles").Sugar(),
	}
}

// Build returns no captions when they are disabled or there is no narration.
// Every file it writes is tracked.
func (c *Captioner) Build(ctx context.Context, doc *types.Document, tracker *lifecycle.Tracker) (Captions, error) {
	if !doc.Captions.Enabled || len(doc.Script) == 0 {
		return Captions{}, nil
	}
	if c.stt == nil {
		return Captions{}, errors.New("captions enabled but no speech-to-text engine configured")
	}
	if c.mixer == nil {
		return Captions{}, errors.New("captions enabled but no narration mixer configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	narration, err := tracker.NewFile("narration", ".wav")
	if err != nil {
		return Captions{}, err
	}
	if err := c.mixer.MixNarration(ctx, doc.Script, narration); err != nil {
		return Captions{}, fmt.Errorf("mix narration: %w", err)
	}

	words, err := c.stt.Transcribe(ctx, narration, tracker)
	if err != nil {
		return Captions{}, fmt.Errorf("transcribe narration: %w", err)
	}
	cues := GroupCues(words, c.wordsPerCue, c.maxGap)
	if len(cues) == 0 {
		return Captions{}, errors.New("transcription produced no words")
	}

	srtFile, err := tracker.NewFile("captions", ".srt")
	if err != nil {
		return Captions{}, err
	}
	if err := WriteSRT(cues, srtFile); err != nil {
		return Captions{}, fmt.Errorf("write srt: %w", err)
	}
	if err := ValidateSRT(srtFile); err != nil {
		return Captions{}, err
	}

	c.log.Infof("%d caption cue(s) from %d word(s) -> %s", len(cues), len(words), srtFile)
	return Captions{Entries: c.entries(doc, cues), SRTFile: srtFile}, nil
}

func (c *Captioner) entries(doc *types.Document, cues []Cue) []types.VisualEntry {
	style := doc.Captions
	color := style.Color
	if color == "" {
		color = "white"
	}
	stroke := style.BackgroundColor
	if stroke == "" {
		stroke = "black"
	}
	size := visuals.FontSize(doc.Canvas, style.FontSize)
	pos := [2]float64{50, c.positionY * 100}

	out := make([]types.VisualEntry, len(cues))
	for i, cue := range cues {
		w, h := visuals.TextBox(doc.Canvas, cue.Text, size)
		x, y := visuals.Place(doc.Canvas, &pos, w, h)
		out[i] = types.VisualEntry{
			LayerID: fmt.Sprintf("captions[%d]", i),
			Kind:    types.KindCaption,
			Start:   cue.Start,
			End:     cue.End,
			ZIndex:  CaptionZIndex,
			Opacity: 1,
			Box:     types.Box{X: x, Y: y, Width: w, Height: h},
			Text: &types.TextStyle{
				Content:     cue.Text,
				Font:        style.Font,
				FontSize:    size,
				Color:       color,
				StrokeColor: stroke,
				StrokeWidth: 2,
			},
		}
	}
	return out
}
