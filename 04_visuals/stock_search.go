package visuals

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"json2video/config"
)

// PexelsSearcher searches the Pexels photo library
type PexelsSearcher struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

func NewPexelsSearcher(pc config.ProviderConfig, key string, client *http.Client) *PexelsSearcher {
	s := &PexelsSearcher{httpClient: client, apiKey: key, baseURL: strings.TrimSuffix(pc.BaseURL, "/")}
	if s.baseURL == "" {
		s.baseURL = "https://api.pexels.com"
	}
	return s
}

func (s *PexelsSearcher) Search(ctx context.Context, query string) ([]string, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", "2")

	var result struct {
		Photos []struct {
			Src struct {
				Original string `json:"original"`
			} `json:"src"`
		} `json:"photos"`
	}
	if err := getJSON(ctx, s.httpClient, s.baseURL+"/v1/search?"+q.Encode(),
		map[string]string{"Authorization": s.apiKey}, &result); err != nil {
		return nil, fmt.Errorf("pexels: %w", err)
	}

	var urls []string
	for _, p := range result.Photos {
		urls = append(urls, p.Src.Original)
	}
	return urls, nil
}

// PixabaySearcher searches Pixabay images
type PixabaySearcher struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

func NewPixabaySearcher(pc config.ProviderConfig, key string, client *http.Client) *PixabaySearcher {
	s := &PixabaySearcher{httpClient: client, apiKey: key, baseURL: strings.TrimSuffix(pc.BaseURL, "/")}
	if s.baseURL == "" {
		s.baseURL = "https://pixabay.com"
	}
	return s
}

func (s *PixabaySearcher) Search(ctx context.Context, query string) ([]string, error) {
	q := url.Values{}
	q.Set("key", s.apiKey)
	q.Set("q", query)
	q.Set("image_type", "all")
	q.Set("per_page", "3")

	var result struct {
		Hits []struct {
			LargeImageURL string `json:"largeImageURL"`
		} `json:"hits"`
	}
	if err := getJSON(ctx, s.httpClient, s.baseURL+"/api/?"+q.Encode(), nil, &result); err != nil {
		return nil, fmt.Errorf("pixabay: %w", err)
	}

	var urls []string
	for _, h := range result.Hits {
		urls = append(urls, h.LargeImageURL)
	}
	return urls, nil
}
