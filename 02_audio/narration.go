// Package audio synthesizes narration and lays it out on the timeline. Every
// segment starts where the previous one ended; measured durations, never
// estimates, drive the layout.
package audio

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"json2video/config"
	"json2video/lifecycle"
	"json2video/types"
)

// Resolver computes the timing of every narration segment
type Resolver struct {
	speech      SpeechService
	concurrency int
	timeout     time.Duration
	log         *zap.SugaredLogger
}

// NewResolver creates a Resolver around a speech service
func NewResolver(speech SpeechService, cfg *config.Config, logger *zap.Logger) *Resolver {
	return &Resolver{
		speech:      speech,
		concurrency: cfg.Narration.Concurrency,
		timeout:     config.Timeout(cfg.Narration.TimeoutSec),
		log:         logger.Named("audio").Sugar(),
	}
}

// Resolve synthesizes every segment and fills in its Timing. Synthesis runs
// ahead concurrently; layout is done afterwards, in declaration order. Any
// failure is fatal and names the segment.
func (r *Resolver) Resolve(ctx context.Context, doc *types.Document, tracker *lifecycle.Tracker) error {
	script := doc.Script
	if len(script) == 0 {
		r.log.Infof("no narration segments")
		return nil
	}
	r.log.Infof("generating TTS audio for %d segment(s)", len(script))

	files := make([]string, len(script))
	for i := range script {
		f, err := tracker.NewFile(fmt.Sprintf("voice_%03d", i), "."+r.speech.Ext())
		if err != nil {
			return types.SynthesisFailure{SegmentID: script[i].ID, Err: err}
		}
		files[i] = f
	}

	durations := make([]float64, len(script))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range script {
		i := i
		g.Go(func() error {
			seg := script[i]
			cctx, cancel := context.WithTimeout(gctx, r.timeout)
			defer cancel()

			d, err := r.speech.Synthesize(cctx, seg.Text, files[i])
			if err != nil {
				return types.SynthesisFailure{SegmentID: seg.ID, Err: err}
			}
			if d <= 0 {
				return types.SynthesisFailure{SegmentID: seg.ID, Err: fmt.Errorf("measured duration %.3fs is not positive", d)}
			}
			durations[i] = d
			r.log.Debugf("segment %s: %.2fs -> %s", seg.ID, d, files[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	total := Layout(script, durations, files)
	r.log.Infof("narration timeline ready (total: %.1fs)", total)
	return nil
}

// Layout assigns timings in order:
//
//	start      = previous end (0 for the first segment)
//	voiceStart = start + voice_start_time
//	voiceEnd   = voiceStart + duration
//	end        = voiceEnd + post_pause_duration
//
// and returns the end of the last segment.
func Layout(script []types.NarrationSegment, durations []float64, files []string) float64 {
	var elapsed float64
	for i := range script {
		seg := &script[i]
		t := &types.SegmentTiming{StartTime: elapsed, Duration: durations[i]}
		if files != nil {
			t.AudioFile = files[i]
		}
		t.VoiceStartTime = t.StartTime + seg.VoiceStartOffset
		t.VoiceEndTime = t.VoiceStartTime + t.Duration
		t.EndTime = t.VoiceEndTime + seg.PostPauseDuration
		seg.Timing = t
		elapsed = t.EndTime
	}
	return elapsed
}
