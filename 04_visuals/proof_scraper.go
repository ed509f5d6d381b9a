package visuals

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"json2video/config"
)

// WikipediaSearcher looks up the page summary for the key terms of a query
// and returns its lead image
type WikipediaSearcher struct {
	httpClient *http.Client
	baseURL    string
}

func NewWikipediaSearcher(pc config.ProviderConfig, client *http.Client) *WikipediaSearcher {
	s := &WikipediaSearcher{httpClient: client, baseURL: strings.TrimSuffix(pc.BaseURL, "/")}
	if s.baseURL == "" {
		s.baseURL = "https://en.wikipedia.org"
	}
	return s
}

func (s *WikipediaSearcher) Search(ctx context.Context, query string) ([]string, error) {
	// Extract key terms from the query for the page lookup
	terms := extractSearchQuery(query)
	if terms == "" {
		return nil, fmt.Errorf("wikipedia: no search terms in %q", truncate(query, 60))
	}

	var result struct {
		Thumbnail struct {
			Source string `json:"source"`
		} `json:"thumbnail"`
		OriginalImage struct {
			Source string `json:"source"`
		} `json:"originalimage"`
		Title string `json:"title"`
	}
	searchURL := fmt.Sprintf("%s/api/rest_v1/page/summary/%s", s.baseURL, url.PathEscape(terms))
	if err := getJSON(ctx, s.httpClient, searchURL, nil, &result); err != nil {
		return nil, fmt.Errorf("wikipedia: %w", err)
	}

	var urls []string
	if result.OriginalImage.Source != "" {
		urls = append(urls, result.OriginalImage.Source)
	}
	if result.Thumbnail.Source != "" {
		urls = append(urls, result.Thumbnail.Source)
	}
	return urls, nil
}

// SerpAPISearcher uses SerpAPI to find relevant Google Images
type SerpAPISearcher struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

func NewSerpAPISearcher(pc config.ProviderConfig, key string, client *http.Client) *SerpAPISearcher {
	s := &SerpAPISearcher{httpClient: client, apiKey: key, baseURL: strings.TrimSuffix(pc.BaseURL, "/")}
	if s.baseURL == "" {
		s.baseURL = "https://serpapi.com"
	}
	return s
}

func (s *SerpAPISearcher) Search(ctx context.Context, query string) ([]string, error) {
	q := url.Values{}
	q.Set("engine", "google_images")
	q.Set("q", query)
	q.Set("num", "3")
	q.Set("api_key", s.apiKey)

	var result struct {
		ImagesResults []struct {
			Original string `json:"original"`
			Source   string `json:"source"`
		} `json:"images_results"`
	}
	if err := getJSON(ctx, s.httpClient, s.baseURL+"/search.json?"+q.Encode(), nil, &result); err != nil {
		return nil, fmt.Errorf("serpapi: %w", err)
	}

	var urls []string
	for _, img := range result.ImagesResults {
		urls = append(urls, img.Original)
	}
	return urls, nil
}

var fillerWords = func() map[string]bool {
	m := make(map[string]bool)
	for _, f := range []string{
		"the", "a", "an", "was", "were", "had", "have", "has",
		"her", "his", "their", "they", "she", "he", "it", "this",
		"that", "and", "or", "but", "for", "from", "with", "into",
		"nobody", "somebody", "everyone", "anyone", "three", "two",
	} {
		m[f] = true
	}
	return m
}()

// extractSearchQuery keeps the first four meaningful words of a text
func extractSearchQuery(text string) string {
	var kept []string
	for _, w := range strings.Fields(text) {
		clean := strings.ToLower(strings.Trim(w, ".,!?\"'"))
		if !fillerWords[clean] && len(clean) > 3 {
			kept = append(kept, clean)
		}
	}
	if len(kept) > 4 {
		kept = kept[:4]
	}
	return strings.Join(kept, " ")
}
