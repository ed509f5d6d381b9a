package visuals

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"json2video/lifecycle"
	"json2video/types"
)

// Cascade tries providers strictly in priority order. A provider succeeds
// only once its asset is on disk, so a dead URL falls through to the next one.
type Cascade struct {
	sources []Source
	fetcher Fetcher
	log     *zap.SugaredLogger
}

func NewCascade(sources []Source, fetcher Fetcher, logger *zap.Logger) *Cascade {
	return &Cascade{
		sources: sources,
		fetcher: fetcher,
		log:     logger.Named("visuals").Sugar(),
	}
}

// Acquire returns the local path of the first asset a provider produced.
// Each provider call, including its download, runs under its own timeout.
func (c *Cascade) Acquire(ctx context.Context, req Request, tracker *lifecycle.Tracker) (string, error) {
	if len(c.sources) == 0 {
		return "", types.AcquisitionFailure{LayerID: req.LayerID, Err: errors.New("no asset providers configured")}
	}

	var lastErr error
	var lastName string
	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return "", types.AcquisitionFailure{LayerID: req.LayerID, Provider: lastName, Err: err}
		}
		path, err := c.try(ctx, src, req, tracker)
		if err == nil {
			c.log.Infof("%s: %s provided %s", req.LayerID, src.Name, path)
			return path, nil
		}
		c.log.Warnf("%s: %s failed: %v", req.LayerID, src.Name, err)
		lastErr, lastName = err, src.Name
	}
	return "", types.AcquisitionFailure{LayerID: req.LayerID, Provider: lastName, Err: lastErr}
}

func (c *Cascade) try(ctx context.Context, src Source, req Request, tracker *lifecycle.Tracker) (string, error) {
	if src.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, src.Timeout)
		defer cancel()
	}

	asset, err := src.Provider.Acquire(ctx, req)
	switch {
	case err != nil:
		return "", err
	case asset.Path != "":
		return asset.Path, nil
	case asset.URL == "":
		return "", types.ErrNoAsset
	}

	path, err := c.fetcher.Fetch(ctx, asset.URL, tracker)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", truncate(asset.URL, 80), err)
	}
	return path, nil
}

// Forget lets providers that remember per-run state drop it
func (c *Cascade) Forget(runID string) {
	for _, src := range c.sources {
		if f, ok := src.Provider.(interface{ Forget(string) }); ok {
			f.Forget(runID)
		}
	}
}
