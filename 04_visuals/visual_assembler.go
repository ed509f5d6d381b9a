// Package visuals resolves every non-narration layer into plan entries:
// time span, geometry and, for images, the asset itself. Layers are assembled
// concurrently and independently; a failing layer is skipped, never fatal.
package visuals

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"json2video/03_timeline"
	"json2video/config"
	"json2video/lifecycle"
	"json2video/types"
)

// Assembler coordinates the preparation of all layers of a document
type Assembler struct {
	cascade     *Cascade
	fetcher     Fetcher
	prober      Prober
	concurrency int
	log         *zap.SugaredLogger
}

func NewAssembler(cfg *config.Config, cascade *Cascade, fetcher Fetcher, prober Prober, logger *zap.Logger) *Assembler {
	return &Assembler{
		cascade:     cascade,
		fetcher:     fetcher,
		prober:      prober,
		concurrency: cfg.Assets.Concurrency,
		log:         logger.Named("visuals").Sugar(),
	}
}

// Assemble returns one outcome per layer, in declaration order: videos,
// images, audio, then text. Seq numbers follow that order.
func (a *Assembler) Assemble(ctx context.Context, doc *types.Document, tracker *lifecycle.Tracker) []types.LayerOutcome {
	var jobs []func(context.Context) types.LayerOutcome
	for _, l := range doc.Videos {
		l := l
		jobs = append(jobs, func(ctx context.Context) types.LayerOutcome { return a.video(ctx, doc, l, tracker) })
	}
	for _, l := range doc.Images {
		l := l
		jobs = append(jobs, func(ctx context.Context) types.LayerOutcome { return a.image(ctx, doc, l, tracker) })
	}
	for _, l := range doc.Audio {
		l := l
		jobs = append(jobs, func(ctx context.Context) types.LayerOutcome { return a.audio(ctx, doc, l, tracker) })
	}
	for _, l := range doc.Texts {
		l := l
		jobs = append(jobs, func(context.Context) types.LayerOutcome { return a.text(doc, l) })
	}

	a.log.Infof("preparing %d layer(s)", len(jobs))
	outcomes := make([]types.LayerOutcome, len(jobs))

	// a plain Group: one layer's failure must not cancel its siblings
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			out := job(ctx)
			if out.Err == nil && ctx.Err() != nil {
				out = types.LayerOutcome{LayerID: out.LayerID, Kind: out.Kind, Err: ctx.Err()}
			}
			out.Seq = i
			if out.Err != nil {
				a.log.Warnf("%s skipped: %v", out.LayerID, out.Err)
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (a *Assembler) video(ctx context.Context, doc *types.Document, l types.VideoLayer, tracker *lifecycle.Tracker) types.LayerOutcome {
	out := types.LayerOutcome{LayerID: l.ID(), Kind: types.KindVideo}
	span, err := timeline.ResolveSpan(out.LayerID, l.Start, l.End, doc)
	if err != nil {
		out.Err = err
		return out
	}

	if ext := strings.ToLower(filepath.Ext(urlPath(l.Path))); ext != ".mp4" {
		out.Err = fmt.Errorf("unsupported video format %q for %s, only .mp4 is supported", ext, l.Path)
		return out
	}
	path, err := a.localSource(ctx, out.LayerID, l.Path, tracker)
	if err != nil {
		out.Err = err
		return out
	}

	vw, vh, err := a.prober.VideoSize(ctx, path)
	if err != nil {
		a.log.Warnf("%s: %v, assuming canvas size", out.LayerID, err)
	}
	w, h := FitVideo(doc.Canvas, vw, vh)
	x, y := Place(doc.Canvas, l.Position, w, h)

	out.Visual = &types.VisualEntry{
		LayerID:  out.LayerID,
		Kind:     types.KindVideo,
		Source:   path,
		Start:    span.Start,
		End:      span.End,
		ZIndex:   zIndex(l.ZIndex),
		Opacity:  l.Opacity,
		Rotation: l.Rotation,
		Box:      types.Box{X: x, Y: y, Width: w, Height: h},
	}

	if l.Volume > 0 {
		hasAudio, err := a.prober.HasAudio(ctx, path)
		if err != nil {
			a.log.Warnf("%s: soundtrack not probed: %v", out.LayerID, err)
		}
		if hasAudio {
			out.Audio = &types.AudioEntry{
				SourceID: out.LayerID,
				Kind:     types.KindVideo,
				Path:     path,
				Start:    span.Start,
				End:      span.End,
				Volume:   l.Volume,
			}
		}
	}
	return out
}

func (a *Assembler) image(ctx context.Context, doc *types.Document, l types.ImageLayer, tracker *lifecycle.Tracker) types.LayerOutcome {
	out := types.LayerOutcome{LayerID: l.ID(), Kind: types.KindImage}
	span, err := timeline.ResolveSpan(out.LayerID, l.Start, l.End, doc)
	if err != nil {
		out.Err = err
		return out
	}
	targetW, targetH := TargetBox(doc.Canvas, l.MaxWidth, l.MaxHeight)

	var path string
	switch l.SourceType {
	case types.SourcePath, types.SourceURL:
		path, err = a.localSource(ctx, out.LayerID, l.SourceContent, tracker)
	default:
		path, err = a.cascade.Acquire(ctx, Request{
			RunID:   tracker.RunID(),
			LayerID: out.LayerID,
			Query:   l.SourceContent,
			Width:   targetW,
			Height:  targetH,
		}, tracker)
	}
	if err != nil {
		out.Err = err
		return out
	}

	w, h := targetW, targetH
	if iw, ih, err := a.prober.ImageSize(path); err != nil {
		a.log.Warnf("%s: %v, using the target box", out.LayerID, err)
	} else {
		w, h = FitImage(targetW, targetH, iw, ih)
	}
	x, y := Place(doc.Canvas, l.Position, w, h)

	out.Visual = &types.VisualEntry{
		LayerID:  out.LayerID,
		Kind:     types.KindImage,
		Source:   path,
		Start:    span.Start,
		End:      span.End,
		ZIndex:   zIndex(l.ZIndex),
		Opacity:  l.Opacity,
		Rotation: l.Rotation,
		Box:      types.Box{X: x, Y: y, Width: w, Height: h},
	}
	return out
}

func (a *Assembler) audio(ctx context.Context, doc *types.Document, l types.AudioLayer, tracker *lifecycle.Tracker) types.LayerOutcome {
	out := types.LayerOutcome{LayerID: l.ID(), Kind: types.KindAudio}
	span, err := timeline.ResolveSpan(out.LayerID, l.Start, l.End, doc)
	if err != nil {
		out.Err = err
		return out
	}
	path, err := a.localSource(ctx, out.LayerID, l.Path, tracker)
	if err != nil {
		out.Err = err
		return out
	}
	if l.IsTemp {
		if err := tracker.Track(path); err != nil {
			out.Err = err
			return out
		}
	}

	out.Audio = &types.AudioEntry{
		SourceID: out.LayerID,
		Kind:     types.KindAudio,
		Path:     path,
		Start:    span.Start,
		End:      span.End,
		Volume:   l.Volume,
	}
	return out
}

func (a *Assembler) text(doc *types.Document, l types.TextLayer) types.LayerOutcome {
	out := types.LayerOutcome{LayerID: l.ID(), Kind: types.KindText}
	span, err := timeline.ResolveSpan(out.LayerID, l.Start, l.End, doc)
	if err != nil {
		out.Err = err
		return out
	}

	size := FontSize(doc.Canvas, l.FontSize)
	w, h := TextBox(doc.Canvas, l.Content, size)
	x, y := Place(doc.Canvas, l.Position, w, h)

	out.Visual = &types.VisualEntry{
		LayerID:  out.LayerID,
		Kind:     types.KindText,
		Start:    span.Start,
		End:      span.End,
		ZIndex:   zIndex(l.ZIndex),
		Opacity:  l.Opacity,
		Rotation: l.Rotation,
		Box:      types.Box{X: x, Y: y, Width: w, Height: h},
		Text: &types.TextStyle{
			Content:     l.Content,
			Font:        l.Font,
			FontSize:    size,
			Color:       l.Color,
			ShadowColor: l.ShadowColor,
		},
	}
	return out
}

// localSource downloads URLs into the work dir and checks that paths exist
func (a *Assembler) localSource(ctx context.Context, layerID, src string, tracker *lifecycle.Tracker) (string, error) {
	if isURL(src) {
		path, err := a.fetcher.Fetch(ctx, src, tracker)
		if err != nil {
			return "", types.AcquisitionFailure{LayerID: layerID, Provider: "url", Err: err}
		}
		return path, nil
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", types.AcquisitionFailure{LayerID: layerID, Provider: "path", Err: err}
	}
	if info.IsDir() {
		return "", types.AcquisitionFailure{LayerID: layerID, Provider: "path", Err: errors.New(src + " is a directory")}
	}
	return src, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// urlPath strips a query string so extension checks see the file name
func urlPath(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 && isURL(s) {
		return s[:i]
	}
	return s
}

func zIndex(z *int) int {
	if z == nil {
		return 0
	}
	return *z
}
