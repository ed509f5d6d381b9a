package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"json2video/01_document"
	"json2video/04_visuals"
	"json2video/05_subtitles"
	"json2video/config"
	"json2video/lifecycle"
	"json2video/types"
)

type fakeSpeech struct {
	durations map[string]float64
	fail      map[string]error
}

func (f *fakeSpeech) Ext() string { return "wav" }

func (f *fakeSpeech) Synthesize(ctx context.Context, text, outFile string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := f.fail[text]; err != nil {
		return 0, err
	}
	if err := os.WriteFile(outFile, []byte("audio"), 0644); err != nil {
		return 0, err
	}
	return f.durations[text], nil
}

type urlProvider struct{}

func (urlProvider) Acquire(ctx context.Context, req visuals.Request) (visuals.Asset, error) {
	return visuals.Asset{URL: "https://img.example/" + req.LayerID + ".jpg"}, nil
}

type fileFetcher struct{}

func (fileFetcher) Fetch(ctx context.Context, rawURL string, tracker *lifecycle.Tracker) (string, error) {
	path, err := tracker.NewFile("asset", ".jpg")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte("jpeg"), 0644)
}

type sizeProber struct{}

func (sizeProber) ImageSize(string) (int, int, error) { return 800, 600, nil }
func (sizeProber) VideoSize(context.Context, string) (int, int, error) {
	return 1920, 1080, nil
}
func (sizeProber) HasAudio(context.Context, string) (bool, error) { return false, nil }

// checkingRenderer asserts the plan's files still exist when it runs
type checkingRenderer struct {
	t      *testing.T
	called bool
}

func (r *checkingRenderer) Render(ctx context.Context, plan *types.CompositionPlan, tracker *lifecycle.Tracker) (string, error) {
	r.called = true
	for _, a := range plan.Audio {
		_, err := os.Stat(a.Path)
		assert.NoError(r.t, err, "narration released before render")
	}
	return "/out/final.mp4", nil
}

const testDoc = `{
  "script": [
    {"id": "hello", "text": "Hello"},
    {"id": "world", "text": "World", "post_pause_duration": 0.5}
  ],
  "images": [
    {"start_time": "hello.start_time", "end_time": "world.end_time",
     "source_type": "prompt", "source_content": "sky", "z_index": 2},
    {"start_time": 0, "end_time": "world.voice_end_time",
     "source_type": "prompt", "source_content": "sea", "z_index": 1},
    {"start_time": "ghost.start_time", "end_time": 2,
     "source_type": "prompt", "source_content": "lost"}
  ],
  "text": [
    {"content": "Title", "start_time": 0, "end_time": 1}
  ]
}`

type harness struct {
	cfg      *config.Config
	speech   *fakeSpeech
	mu       sync.Mutex
	states   []State
	failures []*types.CompilationError
}

func newHarness(t *testing.T) *harness {
	cfg := config.Default()
	cfg.Paths.Work = t.TempDir()
	cfg.Paths.Output = t.TempDir()
	return &harness{
		cfg:    cfg,
		speech: &fakeSpeech{durations: map[string]float64{"Hello": 1.0, "World": 1.2}},
	}
}

func (h *harness) compiler(t *testing.T, opts Options, renderer *checkingRenderer) *Compiler {
	opts.OnState = func(tr Transition) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.states = append(h.states, tr.State)
		if tr.Err != nil {
			h.failures = append(h.failures, tr.Err)
		}
	}
	deps := Deps{
		Speech:  h.speech,
		Sources: []visuals.Source{{Name: "stub", Provider: urlProvider{}}},
		Fetcher: fileFetcher{},
		Prober:  sizeProber{},
	}
	if renderer != nil {
		deps.Renderer = renderer
	}
	return NewWithDeps(h.cfg, deps, zaptest.NewLogger(t), opts)
}

func (h *harness) doc(t *testing.T) *types.Document {
	doc, err := document.NewLoader(h.cfg, zaptest.NewLogger(t)).Load([]byte(testDoc), document.FormatJSON)
	require.NoError(t, err)
	return doc
}

func assertWorkDirEmpty(t *testing.T, root string) {
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCompileProducesPlanAndReleasesEverything(t *testing.T) {
	h := newHarness(t)
	plan, err := h.compiler(t, Options{}, nil).Compile(context.Background(), h.doc(t))
	require.NoError(t, err)

	require.Len(t, plan.Narration, 2)
	assert.Equal(t, 0.0, plan.Narration[0].Timing.StartTime)
	assert.Equal(t, 1.0, plan.Narration[0].Timing.EndTime)
	assert.Equal(t, 1.0, plan.Narration[1].Timing.StartTime)
	assert.InDelta(t, 2.7, plan.Narration[1].Timing.EndTime, 1e-9)
	assert.GreaterOrEqual(t, plan.TotalDuration, 2.7)

	// z 0 text, then z 1, then z 2 although declared first
	var order []string
	for _, v := range plan.Visual {
		order = append(order, v.LayerID)
	}
	assert.Equal(t, []string{"text[0]", "images[1]", "images[0]"}, order)

	require.Len(t, plan.Skipped, 1)
	assert.Equal(t, "images[2]", plan.Skipped[0].LayerID)

	require.NotEmpty(t, plan.Resources)
	for _, p := range plan.Resources {
		_, err := os.Stat(p)
		assert.True(t, errors.Is(err, os.ErrNotExist), "%s still exists", p)
	}
	assertWorkDirEmpty(t, h.cfg.Paths.Work)

	assert.Equal(t, []State{
		StateLoaded, StateNarrationResolved, StateReferencesResolved,
		StateLayersAssembled, StatePlanned, StateCleaned,
	}, h.states)
}

func TestCompileSynthesisFailureIsFatalAndCleansUp(t *testing.T) {
	h := newHarness(t)
	h.speech.fail = map[string]error{"World": errors.New("voice unavailable")}

	plan, err := h.compiler(t, Options{}, nil).Compile(context.Background(), h.doc(t))
	assert.Nil(t, plan)

	var cerr types.CompilationError
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.Equal(t, types.StageNarration, cerr.Stage)
	assert.Equal(t, "world", cerr.EntityID)
	assert.Contains(t, cerr.Error(), "voice unavailable")

	assertWorkDirEmpty(t, h.cfg.Paths.Work)
	assert.Equal(t, []State{StateLoaded, StateFailed, StateCleaned}, h.states)
	require.Len(t, h.failures, 1)
	assert.Equal(t, "world", h.failures[0].EntityID)
}

func TestCompileCancelledStillCleansUp(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.compiler(t, Options{}, nil).Compile(ctx, h.doc(t))
	assert.ErrorIs(t, err, context.Canceled)
	var cerr types.CompilationError
	require.True(t, errors.As(err, &cerr))
	assertWorkDirEmpty(t, h.cfg.Paths.Work)
	assert.Equal(t, StateCleaned, h.states[len(h.states)-1])
}

func TestCompileStrictReferences(t *testing.T) {
	h := newHarness(t)
	_, err := h.compiler(t, Options{StrictReferences: true}, nil).Compile(context.Background(), h.doc(t))

	var cerr types.CompilationError
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.Equal(t, types.StageReferences, cerr.Stage)
	assert.Equal(t, "images[2]", cerr.EntityID)
	var rerr types.ReferenceError
	assert.True(t, errors.As(err, &rerr))
	assertWorkDirEmpty(t, h.cfg.Paths.Work)
}

func TestCompileRendersBeforeRelease(t *testing.T) {
	h := newHarness(t)
	renderer := &checkingRenderer{t: t}
	plan, err := h.compiler(t, Options{}, renderer).Compile(context.Background(), h.doc(t))
	require.NoError(t, err)

	assert.True(t, renderer.called)
	assert.Equal(t, "/out/final.mp4", plan.Output)
	assert.Contains(t, h.states, StateRendered)
	assertWorkDirEmpty(t, h.cfg.Paths.Work)
}

func TestConcurrentCompilesDoNotCollide(t *testing.T) {
	h := newHarness(t)
	c := h.compiler(t, Options{}, nil)

	const n = 4
	plans := make([]*types.CompositionPlan, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Compile(context.Background(), h.doc(t))
			assert.NoError(t, err)
			plans[i] = p
		}()
	}
	wg.Wait()

	seenRun := map[string]bool{}
	seenPath := map[string]bool{}
	for _, p := range plans {
		require.NotNil(t, p)
		assert.False(t, seenRun[p.RunID], "run id %s reused", p.RunID)
		seenRun[p.RunID] = true
		for _, r := range p.Resources {
			assert.False(t, seenPath[r], "path %s shared", r)
			seenPath[r] = true
		}
	}
	assertWorkDirEmpty(t, h.cfg.Paths.Work)
}

func TestCompileFileValidationError(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"script": [{"text": "no id"}]}`), 0644))

	_, err := h.compiler(t, Options{}, nil).CompileFile(context.Background(), path)
	var cerr types.CompilationError
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.Equal(t, types.StageLoad, cerr.Stage)
	assert.Equal(t, "script[0].id", cerr.EntityID)
	// nothing ran, so nothing was created
	assert.Empty(t, h.states)
	assertWorkDirEmpty(t, h.cfg.Paths.Work)
}

func TestFailureNamesEntity(t *testing.T) {
	err := failure(types.StageLayers, fmt.Errorf("wrapped: %w", types.AcquisitionFailure{LayerID: "images[4]", Err: types.ErrNoAsset}))
	var cerr types.CompilationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "images[4]", cerr.EntityID)
	assert.ErrorIs(t, err, types.ErrNoAsset)
}

type silentSTT struct{}

func (silentSTT) Transcribe(context.Context, string, *lifecycle.Tracker) ([]subtitles.Word, error) {
	return nil, nil
}

func TestCompileCaptionsWithoutMixerFallsBack(t *testing.T) {
	h := newHarness(t)
	deps := Deps{
		Speech:       h.speech,
		Sources:      []visuals.Source{{Name: "stub", Provider: urlProvider{}}},
		Fetcher:      fileFetcher{},
		Prober:       sizeProber{},
		SpeechToText: silentSTT{},
	}
	c := NewWithDeps(h.cfg, deps, zaptest.NewLogger(t), Options{})

	doc := h.doc(t)
	doc.Captions.Enabled = true
	plan, err := c.Compile(context.Background(), doc)
	require.NoError(t, err)
	assert.Len(t, plan.Visual, 3)
	assertWorkDirEmpty(t, h.cfg.Paths.Work)
}
