package visuals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"json2video/config"
	"json2video/types"
)

// DalleGenerator generates images through the OpenAI SDK
type DalleGenerator struct {
	client openai.Client
	model  string
}

func NewDalleGenerator(pc config.ProviderConfig, key string, client *http.Client) *DalleGenerator {
	base := "https://api.openai.com/v1/"
	if pc.BaseURL != "" {
		base = strings.TrimSuffix(pc.BaseURL, "/") + "/"
	}
	g := &DalleGenerator{
		client: openai.NewClient(
			option.WithAPIKey(key),
			option.WithBaseURL(base),
			option.WithHTTPClient(client),
		),
		model: pc.Model,
	}
	if g.model == "" {
		g.model = "dall-e-3"
	}
	return g
}

func (g *DalleGenerator) Generate(ctx context.Context, prompt string, width, height int) (string, error) {
	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:  prompt,
		Model:   openai.ImageModel(g.model),
		Size:    openai.ImageGenerateParamsSize(dalleSize(width, height)),
		Quality: openai.ImageGenerateParamsQuality("standard"),
		N:       openai.Int(1),
	})
	if err != nil {
		return "", fmt.Errorf("dalle: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", types.ErrNoAsset
	}
	return resp.Data[0].URL, nil
}

// dalleSize picks the supported size closest to the requested aspect ratio
func dalleSize(width, height int) string {
	switch {
	case width <= 0 || height <= 0:
		return "1024x1024"
	case float64(width)/float64(height) > 1.2:
		return "1792x1024"
	case float64(height)/float64(width) > 1.2:
		return "1024x1792"
	}
	return "1024x1024"
}

// LeonardoGenerator starts a Leonardo.ai generation job and polls until the
// first image is ready
type LeonardoGenerator struct {
	httpClient   *http.Client
	apiKey       string
	baseURL      string
	model        string
	pollInterval time.Duration
}

func NewLeonardoGenerator(pc config.ProviderConfig, key string, client *http.Client) *LeonardoGenerator {
	g := &LeonardoGenerator{
		httpClient:   client,
		apiKey:       key,
		baseURL:      strings.TrimSuffix(pc.BaseURL, "/"),
		model:        pc.Model,
		pollInterval: 2 * time.Second,
	}
	if g.baseURL == "" {
		g.baseURL = "https://cloud.leonardo.ai/api/rest/v1"
	}
	if g.model == "" {
		g.model = "6bef9f1b-29cb-40c7-b9df-32b51c1f67d3"
	}
	return g
}

const leonardoMaxDim = 1536

type leonardoRequest struct {
	Prompt    string `json:"prompt"`
	NumImages int    `json:"num_images"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	ModelID   string `json:"modelId"`
}

type leonardoJob struct {
	SDGenerationJob struct {
		GenerationID string `json:"generationId"`
	} `json:"sdGenerationJob"`
}

type leonardoStatus struct {
	Generation struct {
		Status          string `json:"status"`
		GeneratedImages []struct {
			URL string `json:"url"`
		} `json:"generated_images"`
	} `json:"generations_by_pk"`
}

func (g *LeonardoGenerator) Generate(ctx context.Context, prompt string, width, height int) (string, error) {
	if width <= 0 || height <= 0 {
		width, height = 1024, 1024
	}
	width, height = leonardoSize(width, height)

	body, err := json.Marshal(leonardoRequest{
		Prompt: prompt, NumImages: 1, Width: width, Height: height, ModelID: g.model,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/generations", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	g.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	var job leonardoJob
	if err := doJSON(g.httpClient, req, &job); err != nil {
		return "", fmt.Errorf("leonardo: %w", err)
	}
	id := job.SDGenerationJob.GenerationID
	if id == "" {
		return "", fmt.Errorf("leonardo: no generation id in response")
	}

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()
	for {
		var st leonardoStatus
		if err := getJSON(ctx, g.httpClient, g.baseURL+"/generations/"+id,
			map[string]string{"Authorization": "Bearer " + g.apiKey}, &st); err != nil {
			return "", fmt.Errorf("leonardo: poll %s: %w", id, err)
		}
		switch st.Generation.Status {
		case "COMPLETE":
			if len(st.Generation.GeneratedImages) == 0 {
				return "", types.ErrNoAsset
			}
			return st.Generation.GeneratedImages[0].URL, nil
		case "FAILED":
			return "", fmt.Errorf("leonardo: generation %s failed", id)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *LeonardoGenerator) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Accept", "application/json")
}

// leonardoSize scales a box down to fit 1536 on its longer side, keeping
// the aspect ratio. Both sides end up multiples of 8.
func leonardoSize(width, height int) (int, int) {
	if width > leonardoMaxDim || height > leonardoMaxDim {
		scale := math.Min(float64(leonardoMaxDim)/float64(width), float64(leonardoMaxDim)/float64(height))
		width = int(math.Round(float64(width) * scale))
		height = int(math.Round(float64(height) * scale))
	}
	return leonardoDim(width), leonardoDim(height)
}

func leonardoDim(v int) int {
	if v > leonardoMaxDim {
		v = leonardoMaxDim
	}
	if v < 32 {
		v = 32
	}
	return v - v%8
}
