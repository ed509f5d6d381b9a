package visuals

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"json2video/lifecycle"
	"json2video/types"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	c.calls = append(c.calls, name)
	c.mu.Unlock()
}

func (c *callLog) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type stubProvider struct {
	name  string
	log   *callLog
	asset Asset
	err   error
	block bool
}

func (s stubProvider) Acquire(ctx context.Context, req Request) (Asset, error) {
	s.log.add(s.name)
	if s.block {
		<-ctx.Done()
		return Asset{}, ctx.Err()
	}
	return s.asset, s.err
}

// stubFetcher writes a file for every URL except those listed as broken
type stubFetcher struct {
	broken map[string]bool
	mu     sync.Mutex
	urls   []string
}

func (f *stubFetcher) Fetch(ctx context.Context, rawURL string, tracker *lifecycle.Tracker) (string, error) {
	f.mu.Lock()
	f.urls = append(f.urls, rawURL)
	f.mu.Unlock()
	if f.broken[rawURL] {
		return "", errors.New("HTTP 404")
	}
	path, err := tracker.NewFile("asset", ".jpg")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte("jpeg"), 0644)
}

func newTracker(t *testing.T) *lifecycle.Tracker {
	tr, err := lifecycle.New(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return tr
}

func TestCascadeTriesInOrderAndStopsAtFirstSuccess(t *testing.T) {
	calls := &callLog{}
	sources := []Source{
		{Name: "A", Provider: stubProvider{name: "A", log: calls, err: errors.New("quota exceeded")}},
		{Name: "B", Provider: stubProvider{name: "B", log: calls, err: types.ErrNoAsset}},
		{Name: "C", Provider: stubProvider{name: "C", log: calls, asset: Asset{URL: "https://img.example/c.jpg"}}},
		{Name: "D", Provider: stubProvider{name: "D", log: calls, asset: Asset{URL: "https://img.example/d.jpg"}}},
	}
	fetcher := &stubFetcher{}
	c := NewCascade(sources, fetcher, zaptest.NewLogger(t))
	tracker := newTracker(t)

	path, err := c.Acquire(context.Background(), Request{LayerID: "images[0]", Query: "cat"}, tracker)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, calls.list())
	assert.Equal(t, []string{"https://img.example/c.jpg"}, fetcher.urls)
	assert.Equal(t, tracker.Dir(), filepath.Dir(path))
}

func TestCascadeEmptyResultFallsThrough(t *testing.T) {
	calls := &callLog{}
	sources := []Source{
		{Name: "empty", Provider: stubProvider{name: "empty", log: calls}},
		{Name: "local", Provider: stubProvider{name: "local", log: calls, asset: Asset{Path: "/library/cat.jpg"}}},
	}
	c := NewCascade(sources, &stubFetcher{}, zaptest.NewLogger(t))

	path, err := c.Acquire(context.Background(), Request{LayerID: "images[0]"}, newTracker(t))
	require.NoError(t, err)
	assert.Equal(t, "/library/cat.jpg", path)
	assert.Equal(t, []string{"empty", "local"}, calls.list())
}

func TestCascadeBrokenDownloadFallsThrough(t *testing.T) {
	calls := &callLog{}
	sources := []Source{
		{Name: "A", Provider: stubProvider{name: "A", log: calls, asset: Asset{URL: "https://dead.example/a.jpg"}}},
		{Name: "B", Provider: stubProvider{name: "B", log: calls, asset: Asset{URL: "https://ok.example/b.jpg"}}},
	}
	fetcher := &stubFetcher{broken: map[string]bool{"https://dead.example/a.jpg": true}}
	c := NewCascade(sources, fetcher, zaptest.NewLogger(t))

	_, err := c.Acquire(context.Background(), Request{LayerID: "images[0]"}, newTracker(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, calls.list())
}

func TestCascadeAllFail(t *testing.T) {
	calls := &callLog{}
	sources := []Source{
		{Name: "A", Provider: stubProvider{name: "A", log: calls, err: errors.New("down")}},
		{Name: "B", Provider: stubProvider{name: "B", log: calls, err: types.ErrNoAsset}},
	}
	c := NewCascade(sources, &stubFetcher{}, zaptest.NewLogger(t))

	_, err := c.Acquire(context.Background(), Request{LayerID: "images[3]"}, newTracker(t))
	var af types.AcquisitionFailure
	require.True(t, errors.As(err, &af), "got %v", err)
	assert.Equal(t, "images[3]", af.LayerID)
	assert.Equal(t, "B", af.Provider)
	assert.ErrorIs(t, err, types.ErrNoAsset)
}

func TestCascadePerProviderTimeout(t *testing.T) {
	calls := &callLog{}
	sources := []Source{
		{Name: "slow", Provider: stubProvider{name: "slow", log: calls, block: true}, Timeout: 30 * time.Millisecond},
		{Name: "fast", Provider: stubProvider{name: "fast", log: calls, asset: Asset{Path: "/library/x.png"}}},
	}
	c := NewCascade(sources, &stubFetcher{}, zaptest.NewLogger(t))

	start := time.Now()
	path, err := c.Acquire(context.Background(), Request{LayerID: "images[0]"}, newTracker(t))
	require.NoError(t, err)
	assert.Equal(t, "/library/x.png", path)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCascadeNoProviders(t *testing.T) {
	c := NewCascade(nil, &stubFetcher{}, zaptest.NewLogger(t))
	_, err := c.Acquire(context.Background(), Request{LayerID: "images[0]"}, newTracker(t))
	var af types.AcquisitionFailure
	assert.True(t, errors.As(err, &af))
}

func TestAdaptersTreatEmptyAsNoAsset(t *testing.T) {
	_, err := FromGenerator(generatorFunc(func() (string, error) { return "", nil })).Acquire(context.Background(), Request{})
	assert.ErrorIs(t, err, types.ErrNoAsset)

	_, err = FromSearcher(searcherFunc(func() ([]string, error) { return []string{"", ""}, nil })).Acquire(context.Background(), Request{})
	assert.ErrorIs(t, err, types.ErrNoAsset)

	asset, err := FromSearcher(searcherFunc(func() ([]string, error) { return []string{"", "https://x/y.png"}, nil })).Acquire(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "https://x/y.png", asset.URL)
}

type generatorFunc func() (string, error)

func (f generatorFunc) Generate(context.Context, string, int, int) (string, error) { return f() }

type searcherFunc func() ([]string, error)

func (f searcherFunc) Search(context.Context, string) ([]string, error) { return f() }
