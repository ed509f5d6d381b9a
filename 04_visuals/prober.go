package visuals

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"strings"
)

// Prober reads media dimensions from file headers. It never decodes frames.
type Prober interface {
	ImageSize(path string) (int, int, error)
	VideoSize(ctx context.Context, path string) (int, int, error)
	HasAudio(ctx context.Context, path string) (bool, error)
}

// MediaProber uses image.DecodeConfig for stills and ffprobe for video
type MediaProber struct{}

func (MediaProber) ImageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("read image header %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

func (MediaProber) VideoSize(ctx context.Context, path string) (int, int, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		path,
	).Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	var w, h int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%dx%d", &w, &h); err != nil {
		return 0, 0, fmt.Errorf("ffprobe %s: unexpected output %q", path, out)
	}
	return w, h, nil
}

func (MediaProber) HasAudio(ctx context.Context, path string) (bool, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		path,
	).Output()
	if err != nil {
		return false, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}
