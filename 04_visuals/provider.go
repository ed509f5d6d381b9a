package visuals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"json2video/config"
	"json2video/types"
)

const userAgent = "Mozilla/5.0 (compatible; json2video/1.0)"

// Request describes the asset a layer needs
type Request struct {
	RunID   string
	LayerID string
	Query   string
	Width   int
	Height  int
}

// Asset is what a provider found: a remote URL still to be downloaded or a
// local file ready to use
type Asset struct {
	URL  string
	Path string
}

// AssetProvider is the uniform provider contract. A non-nil error is the only
// failure signal; an empty result is ErrNoAsset.
type AssetProvider interface {
	Acquire(ctx context.Context, req Request) (Asset, error)
}

// Generator creates a new image for a prompt and returns its URL
type Generator interface {
	Generate(ctx context.Context, prompt string, width, height int) (string, error)
}

// Searcher finds existing images for a query, best match first
type Searcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// FromGenerator adapts a Generator to the provider contract
func FromGenerator(g Generator) AssetProvider { return generatorProvider{g} }

// FromSearcher adapts a Searcher to the provider contract
func FromSearcher(s Searcher) AssetProvider { return searcherProvider{s} }

type generatorProvider struct{ g Generator }

func (p generatorProvider) Acquire(ctx context.Context, req Request) (Asset, error) {
	u, err := p.g.Generate(ctx, req.Query, req.Width, req.Height)
	if err != nil {
		return Asset{}, err
	}
	if u == "" {
		return Asset{}, types.ErrNoAsset
	}
	return Asset{URL: u}, nil
}

type searcherProvider struct{ s Searcher }

func (p searcherProvider) Acquire(ctx context.Context, req Request) (Asset, error) {
	urls, err := p.s.Search(ctx, req.Query)
	if err != nil {
		return Asset{}, err
	}
	for _, u := range urls {
		if u != "" {
			return Asset{URL: u}, nil
		}
	}
	return Asset{}, types.ErrNoAsset
}

// Source is one configured provider in cascade order
type Source struct {
	Name     string
	Provider AssetProvider
	Timeout  time.Duration
}

// NewSources builds the providers listed in assets.providers, in order. A
// keyed provider whose key is not in the environment is skipped with a warning.
func NewSources(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]Source, error) {
	log := logger.Named("visuals").Sugar()
	var sources []Source

	for _, pc := range cfg.Assets.Providers {
		timeout := cfg.ProviderTimeout(pc)
		client := &http.Client{Timeout: timeout}
		key := ""
		if pc.APIKeyEnv != "" {
			key = os.Getenv(pc.APIKeyEnv)
			if key == "" {
				log.Warnf("provider %s skipped: %s not set", pc.Name, pc.APIKeyEnv)
				continue
			}
		}

		var p AssetProvider
		switch pc.Name {
		case "pollinations":
			p = FromGenerator(NewPollinationsFetcher(pc, log))
		case "dalle":
			p = FromGenerator(NewDalleGenerator(pc, key, client))
		case "leonardo":
			p = FromGenerator(NewLeonardoGenerator(pc, key, client))
		case "pexels":
			p = FromSearcher(NewPexelsSearcher(pc, key, client))
		case "pixabay":
			p = FromSearcher(NewPixabaySearcher(pc, key, client))
		case "wikipedia":
			p = FromSearcher(NewWikipediaSearcher(pc, client))
		case "serpapi":
			p = FromSearcher(NewSerpAPISearcher(pc, key, client))
		case "google_search":
			s, err := NewGoogleSearcher(ctx, pc, key)
			if err != nil {
				return nil, err
			}
			p = FromSearcher(s)
		case "reddit":
			s, err := NewRedditSearcher(pc, client)
			if err != nil {
				return nil, err
			}
			p = FromSearcher(s)
		case "library":
			am, err := NewAssetManager(cfg.Paths.Library, cfg.Paths.LibraryTags, cfg.Assets.NeverRepeatInSameVideo, logger)
			if err != nil {
				return nil, err
			}
			p = am
		default:
			return nil, fmt.Errorf("unknown asset provider %q", pc.Name)
		}
		sources = append(sources, Source{Name: pc.Name, Provider: p, Timeout: timeout})
	}
	return sources, nil
}

// getJSON performs a GET and decodes a JSON body, failing on non-200
func getJSON(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doJSON(client, req, out)
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, req.URL.Host, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
