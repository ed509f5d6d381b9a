// Package compiler runs a document through every stage and returns the
// composition plan. Whatever happens, every file a compile created is
// released before Compile returns.
package compiler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"json2video/01_document"
	"json2video/02_audio"
	"json2video/03_timeline"
	"json2video/04_visuals"
	"json2video/05_subtitles"
	"json2video/06_plan"
	"json2video/07_render"
	"json2video/config"
	"json2video/lifecycle"
	"json2video/types"
)

// Deps are the collaborators a Compiler drives. Renderer and SpeechToText may
// be nil: no render step and no captions, respectively. A nil Mixer gets the
// ffmpeg narration mixer.
type Deps struct {
	Speech       audio.SpeechService
	Sources      []visuals.Source
	Fetcher      visuals.Fetcher
	Prober       visuals.Prober
	SpeechToText subtitles.SpeechToText
	Mixer        subtitles.NarrationMixer
	Renderer     render.Renderer
}

// Options tune a Compiler
type Options struct {
	// StrictReferences makes any layer reference error fatal to the document
	StrictReferences bool
	// Render runs the configured renderer before cleanup
	Render bool
	// OnState observes every state transition
	OnState func(Transition)
}

// Compiler turns documents into composition plans. It is safe for
// concurrent use; every compile gets its own work directory.
type Compiler struct {
	workDir   string
	loader    *document.Loader
	narration *audio.Resolver
	cascade   *visuals.Cascade
	assembler *visuals.Assembler
	captioner *subtitles.Captioner
	planner   *plan.Planner
	renderer  render.Renderer
	opts      Options
	logger    *zap.Logger
	log       *zap.SugaredLogger
}

// New builds a Compiler with the collaborators named in cfg
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*Compiler, error) {
	speech, err := audio.NewSpeechService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("narration service: %w", err)
	}
	sources, err := visuals.NewSources(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("asset providers: %w", err)
	}
	deps := Deps{
		Speech:  speech,
		Sources: sources,
		Fetcher: visuals.NewDownloader(cfg, logger),
		Prober:  visuals.MediaProber{},
		Mixer:   audio.NewMixer(logger),
	}
	// captions are optional per document, so a missing engine is not fatal here
	if stt, err := subtitles.NewSpeechToText(cfg, logger); err != nil {
		logger.Named("compiler").Sugar().Warnf("captions unavailable: %v", err)
	} else {
		deps.SpeechToText = stt
	}
	if opts.Render {
		deps.Renderer = render.New(cfg, logger)
	}
	return NewWithDeps(cfg, deps, logger, opts), nil
}

// NewWithDeps builds a Compiler around the given collaborators
func NewWithDeps(cfg *config.Config, deps Deps, logger *zap.Logger, opts Options) *Compiler {
	if deps.Mixer == nil {
		deps.Mixer = audio.NewMixer(logger)
	}
	cascade := visuals.NewCascade(deps.Sources, deps.Fetcher, logger)
	return &Compiler{
		workDir:   cfg.Paths.Work,
		loader:    document.NewLoader(cfg, logger),
		narration: audio.NewResolver(deps.Speech, cfg, logger),
		cascade:   cascade,
		assembler: visuals.NewAssembler(cfg, cascade, deps.Fetcher, deps.Prober, logger),
		captioner: subtitles.NewCaptioner(cfg, deps.SpeechToText, deps.Mixer, logger),
		planner:   plan.NewPlanner(cfg, logger),
		renderer:  deps.Renderer,
		opts:      opts,
		logger:    logger,
		log:       logger.Named("compiler").Sugar(),
	}
}

// CompileFile loads a .json or .yaml document and compiles it
func (c *Compiler) CompileFile(ctx context.Context, path string) (*types.CompositionPlan, error) {
	doc, err := c.loader.LoadFile(path)
	if err != nil {
		return nil, failure(types.StageLoad, err)
	}
	return c.Compile(ctx, doc)
}

// Compile runs doc through narration, references, layers, captions, planning
// and, if configured, rendering. The only error it returns is a
// types.CompilationError. The plan's Resources lists what the compile
// created; all of it has been removed by the time Compile returns.
func (c *Compiler) Compile(ctx context.Context, doc *types.Document) (result *types.CompositionPlan, err error) {
	tracker, terr := lifecycle.New(c.workDir, c.logger)
	if terr != nil {
		return nil, failure(types.StageLoad, terr)
	}
	r := &run{id: tracker.RunID(), onState: c.opts.OnState}
	log := c.log.With("run", r.id)
	r.enter(StateLoaded)

	defer func() {
		var cerr types.CompilationError
		if errors.As(err, &cerr) {
			r.fail(cerr)
			log.Errorf("%v", cerr)
		}
		c.cascade.Forget(r.id)
		report := tracker.ReleaseAll()
		log.Infof("cleaned up %d path(s)", len(report.Removed))
		r.enter(StateCleaned)
	}()

	// narration
	if err := c.narration.Resolve(ctx, doc, tracker); err != nil {
		return nil, failure(types.StageNarration, err)
	}
	r.enter(StateNarrationResolved)

	// references
	refErrs := timeline.Check(doc)
	for _, rerr := range refErrs {
		if c.opts.StrictReferences {
			return nil, failure(types.StageReferences, rerr)
		}
		log.Warnf("%v", rerr)
	}
	if err := ctx.Err(); err != nil {
		return nil, failure(types.StageReferences, err)
	}
	r.enter(StateReferencesResolved)

	// layers
	outcomes := c.assembler.Assemble(ctx, doc, tracker)
	if err := ctx.Err(); err != nil {
		return nil, failure(types.StageLayers, err)
	}
	captions, cerr := c.captioner.Build(ctx, doc, tracker)
	if cerr != nil {
		log.Warnf("captions failed: %v, continuing without them", cerr)
	}
	r.enter(StateLayersAssembled)

	// plan
	result = c.planner.Build(r.id, doc, outcomes, captions.Entries)
	result.Subtitles = captions.SRTFile
	if err := ctx.Err(); err != nil {
		return nil, failure(types.StagePlan, err)
	}
	r.enter(StatePlanned)

	if c.renderer != nil {
		out, err := c.renderer.Render(ctx, result, tracker)
		if err != nil {
			return nil, failure(types.StageRender, err)
		}
		result.Output = out
		r.enter(StateRendered)
	}

	result.Resources = tracker.Paths()
	return result, nil
}

// failure wraps err in a CompilationError naming the entity involved
func failure(stage types.Stage, err error) error {
	cerr := types.CompilationError{Stage: stage, Reason: err.Error(), Err: err}

	var (
		verr types.ValidationError
		rerr types.ReferenceError
		serr types.SynthesisFailure
		aerr types.AcquisitionFailure
	)
	switch {
	case errors.As(err, &serr):
		cerr.EntityID = serr.SegmentID
	case errors.As(err, &rerr):
		cerr.EntityID = rerr.LayerID
	case errors.As(err, &aerr):
		cerr.EntityID = aerr.LayerID
	case errors.As(err, &verr):
		cerr.EntityID = verr.Path
	}
	return cerr
}
