package visuals

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/vartanbeno/go-reddit/v2/reddit"

	"json2video/config"
)

// RedditSearcher finds image posts in a fixed set of subreddits. It uses the
// read-only client, so no credentials are needed.
type RedditSearcher struct {
	client     *reddit.Client
	subreddits []string
}

func NewRedditSearcher(pc config.ProviderConfig, httpClient *http.Client) (*RedditSearcher, error) {
	opts := []reddit.Opt{
		reddit.WithHTTPClient(httpClient),
		reddit.WithUserAgent(userAgent),
	}
	if pc.BaseURL != "" {
		opts = append(opts, reddit.WithBaseURL(pc.BaseURL))
	}
	client, err := reddit.NewReadonlyClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create reddit client: %w", err)
	}
	return &RedditSearcher{client: client, subreddits: pc.Subreddits}, nil
}

func (s *RedditSearcher) Search(ctx context.Context, query string) ([]string, error) {
	var lastErr error
	for _, sub := range s.subreddits {
		posts, _, err := s.client.Subreddit.SearchPosts(ctx, query, sub, &reddit.ListPostSearchOptions{
			ListPostOptions: reddit.ListPostOptions{
				ListOptions: reddit.ListOptions{Limit: 25},
				Time:        "all",
			},
			Sort: "relevance",
		})
		if err != nil {
			lastErr = err
			continue
		}

		links := make([]string, 0, len(posts))
		for _, p := range posts {
			links = append(links, p.URL)
		}
		if urls := imageLinks(links); len(urls) > 0 {
			return urls, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("reddit: %w", lastErr)
	}
	return nil, nil
}

// imageLinks keeps links that point straight at an image file
func imageLinks(links []string) []string {
	var out []string
	for _, l := range links {
		u, err := url.Parse(l)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".jpg", ".jpeg", ".png", ".gif":
			out = append(out, l)
		}
	}
	return out
}
