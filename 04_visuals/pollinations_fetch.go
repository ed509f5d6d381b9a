package visuals

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"json2video/config"
)

// PollinationsFetcher generates AI images via Pollinations.ai (free, no key
// needed). The image is rendered when its URL is first fetched, so Generate
// only builds the URL and the download does the work.
type PollinationsFetcher struct {
	baseURL string
	model   string
	log     *zap.SugaredLogger
}

func NewPollinationsFetcher(pc config.ProviderConfig, log *zap.SugaredLogger) *PollinationsFetcher {
	p := &PollinationsFetcher{
		baseURL: strings.TrimSuffix(pc.BaseURL, "/"),
		model:   pc.Model,
		log:     log,
	}
	if p.baseURL == "" {
		p.baseURL = "https://image.pollinations.ai"
	}
	if p.model == "" {
		p.model = "flux"
	}
	return p
}

// Generate returns the image URL for a prompt
// Format: {base}/prompt/{encoded_prompt}?params
func (p *PollinationsFetcher) Generate(ctx context.Context, prompt string, width, height int) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("pollinations: empty prompt")
	}
	if width <= 0 || height <= 0 {
		width, height = 1024, 1024
	}

	q := url.Values{}
	q.Set("width", fmt.Sprint(width))
	q.Set("height", fmt.Sprint(height))
	q.Set("nologo", "true")
	q.Set("private", "true")
	q.Set("model", p.model)
	q.Set("seed", fmt.Sprint(seedFor(prompt))) // same prompt, same image

	imageURL := fmt.Sprintf("%s/prompt/%s?%s", p.baseURL, url.PathEscape(prompt), q.Encode())
	p.log.Debugf("pollinations image for %q", truncate(prompt, 60))
	return imageURL, nil
}

func seedFor(prompt string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(prompt))
	return h.Sum32() % 1000000
}
