package visuals

import (
	"context"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"json2video/config"
)

// GoogleSearcher queries a Programmable Search Engine in image mode
type GoogleSearcher struct {
	svc *customsearch.Service
	cx  string
}

func NewGoogleSearcher(ctx context.Context, pc config.ProviderConfig, key string, extra ...option.ClientOption) (*GoogleSearcher, error) {
	opts := append([]option.ClientOption{option.WithAPIKey(key)}, extra...)
	if pc.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(pc.BaseURL))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create customsearch client: %w", err)
	}
	return &GoogleSearcher{svc: svc, cx: pc.CX}, nil
}

func (s *GoogleSearcher) Search(ctx context.Context, query string) ([]string, error) {
	res, err := s.svc.Cse.List().
		Cx(s.cx).
		Q(query).
		SearchType("image").
		Num(3).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("google search: %w", err)
	}

	var urls []string
	for _, item := range res.Items {
		urls = append(urls, item.Link)
	}
	return urls, nil
}
