package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"json2video/types"
)

// Mixer places narration clips on one track with ffmpeg
type Mixer struct {
	log *zap.SugaredLogger
}

func NewMixer(logger *zap.Logger) *Mixer {
	return &Mixer{log: logger.Named("audio").Sugar()}
}

// MixNarration writes a single track where every clip starts at its
// voiceStartTime and the gaps are silence
func (m *Mixer) MixNarration(ctx context.Context, script []types.NarrationSegment, outFile string) error {
	args, err := mixArgs(script, outFile)
	if err != nil {
		return err
	}
	m.log.Infof("mixing %d narration clip(s) -> %s", len(script), outFile)

	out, err := exec.CommandContext(ctx, "ffmpeg", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg narration mix: %w: %s", err, truncate(string(out), 300))
	}
	return nil
}

func mixArgs(script []types.NarrationSegment, outFile string) ([]string, error) {
	var total float64
	for _, seg := range script {
		if seg.Timing == nil || seg.Timing.AudioFile == "" {
			return nil, fmt.Errorf("segment %q has no audio yet", seg.ID)
		}
		if seg.Timing.EndTime > total {
			total = seg.Timing.EndTime
		}
	}
	if total <= 0 {
		return nil, fmt.Errorf("nothing to mix")
	}

	// input 0 is a silent base as long as the whole narration
	args := []string{"-y",
		"-f", "lavfi", "-t", fmt.Sprintf("%.3f", total), "-i", "anullsrc=r=44100:cl=mono",
	}
	var filters []string
	mixInputs := []string{"[0:a]"}
	for i, seg := range script {
		args = append(args, "-i", seg.Timing.AudioFile)
		delayMs := int(seg.Timing.VoiceStartTime * 1000)
		filters = append(filters,
			fmt.Sprintf("[%d:a]adelay=%d|%d[v%d]", i+1, delayMs, delayMs, i+1),
		)
		mixInputs = append(mixInputs, fmt.Sprintf("[v%d]", i+1))
	}

	filterComplex := strings.Join(filters, ";")
	filterComplex += ";" + strings.Join(mixInputs, "") +
		fmt.Sprintf("amix=inputs=%d:duration=first:normalize=0[aout]", len(mixInputs))

	args = append(args,
		"-filter_complex", filterComplex,
		"-map", "[aout]",
		"-ac", "1",
		outFile,
	)
	return args, nil
}
