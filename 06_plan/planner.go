// Package plan merges resolved layers and narration into the composition plan.
package plan

import (
	"sort"

	"go.uber.org/zap"

	"json2video/config"
	"json2video/types"
)

// Planner builds the ordered visual plan and audio mix
type Planner struct {
	fillerDuration float64
	log            *zap.SugaredLogger
}

func NewPlanner(cfg *config.Config, logger *zap.Logger) *Planner {
	return &Planner{
		fillerDuration: cfg.Defaults.FillerDurationSec,
		log:            logger.Named("plan").Sugar(),
	}
}

// Build merges the assembler's outcomes, in sequence order, with the narration
// and any caption entries. Visual entries are stacked by z-index; entries with
// equal z-index keep their declaration order. Audio is ordered by start time.
func (p *Planner) Build(runID string, doc *types.Document, outcomes []types.LayerOutcome, captions []types.VisualEntry) *types.CompositionPlan {
	ordered := make([]types.LayerOutcome, len(outcomes))
	copy(ordered, outcomes)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	plan := &types.CompositionPlan{
		RunID:           runID,
		Canvas:          doc.Canvas,
		BackgroundColor: doc.BackgroundColor,
		Visual:          []types.VisualEntry{},
		Audio:           narrationClips(doc.Script),
		Narration:       append([]types.NarrationSegment(nil), doc.Script...),
	}

	for _, out := range ordered {
		if out.Skipped() {
			plan.Skipped = append(plan.Skipped, types.SkippedLayer{
				LayerID: out.LayerID,
				Kind:    out.Kind,
				Reason:  out.Err.Error(),
			})
			continue
		}
		if out.Visual != nil {
			plan.Visual = append(plan.Visual, *out.Visual)
		}
		if out.Audio != nil {
			plan.Audio = append(plan.Audio, *out.Audio)
		}
	}
	plan.Visual = append(plan.Visual, captions...)

	sort.SliceStable(plan.Visual, func(i, j int) bool { return plan.Visual[i].ZIndex < plan.Visual[j].ZIndex })
	sort.SliceStable(plan.Audio, func(i, j int) bool { return plan.Audio[i].Start < plan.Audio[j].Start })

	plan.TotalDuration = totalDuration(plan, doc.Script)
	if len(plan.Visual) == 0 {
		if plan.TotalDuration <= 0 {
			plan.TotalDuration = p.fillerDuration
		}
		plan.Visual = []types.VisualEntry{background(doc, plan.TotalDuration)}
		p.log.Infof("no visual layers, using a %.2fs background", plan.TotalDuration)
	}

	p.log.Infof("plan: %d visual, %d audio, %d skipped, %.2fs",
		len(plan.Visual), len(plan.Audio), len(plan.Skipped), plan.TotalDuration)
	return plan
}

// narrationClips places each clip at its voice start for its measured duration
func narrationClips(script []types.NarrationSegment) []types.AudioEntry {
	clips := []types.AudioEntry{}
	for _, seg := range script {
		if seg.Timing == nil {
			continue
		}
		clips = append(clips, types.AudioEntry{
			SourceID: seg.ID,
			Kind:     types.KindNarration,
			Path:     seg.Timing.AudioFile,
			Start:    seg.Timing.VoiceStartTime,
			End:      seg.Timing.VoiceEndTime,
			Volume:   1,
		})
	}
	return clips
}

func totalDuration(plan *types.CompositionPlan, script []types.NarrationSegment) float64 {
	var total float64
	for _, v := range plan.Visual {
		total = max(total, v.End)
	}
	for _, a := range plan.Audio {
		total = max(total, a.End)
	}
	for _, seg := range script {
		if seg.Timing != nil {
			total = max(total, seg.Timing.EndTime)
		}
	}
	return total
}

func background(doc *types.Document, duration float64) types.VisualEntry {
	color := doc.BackgroundColor
	return types.VisualEntry{
		LayerID: "background",
		Kind:    types.KindBackground,
		Start:   0,
		End:     duration,
		Opacity: 1,
		Box:     types.Box{Width: doc.Canvas.Width, Height: doc.Canvas.Height},
		Color:   &color,
	}
}
