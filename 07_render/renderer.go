// Package render hands a composition plan to whatever turns it into a video:
// the built-in ffmpeg renderer or an external command reading the plan JSON.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"json2video/config"
	"json2video/lifecycle"
	"json2video/types"
)

// Renderer turns a plan into a finished file and returns its path. It runs
// before the compile's temporary files are released.
type Renderer interface {
	Render(ctx context.Context, plan *types.CompositionPlan, tracker *lifecycle.Tracker) (string, error)
}

// New returns the command renderer when render.command is set, ffmpeg otherwise
func New(cfg *config.Config, logger *zap.Logger) Renderer {
	base := outputTarget{
		dir:     cfg.Paths.Output,
		name:    cfg.Render.Output,
		timeout: config.Timeout(cfg.Render.TimeoutSec),
	}
	log := logger.Named("render").Sugar()
	if cmd := strings.TrimSpace(cfg.Render.Command); cmd != "" {
		return &CommandRenderer{outputTarget: base, command: cmd, log: log}
	}
	return &FFmpegRenderer{outputTarget: base, fps: cfg.Render.FPS, log: log}
}

// WritePlan exports a plan as indented JSON
func WritePlan(plan *types.CompositionPlan, path string) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

type outputTarget struct {
	dir     string
	name    string
	timeout time.Duration
}

// path names the final file after the run so parallel compiles never collide
func (o outputTarget) path(runID string) (string, error) {
	if err := os.MkdirAll(o.dir, 0755); err != nil {
		return "", err
	}
	ext := filepath.Ext(o.name)
	return filepath.Join(o.dir, strings.TrimSuffix(o.name, ext)+"_"+runID+ext), nil
}

// CommandRenderer runs an external renderer with --plan and --output
type CommandRenderer struct {
	outputTarget
	command string
	log     *zap.SugaredLogger
}

func (r *CommandRenderer) Render(ctx context.Context, plan *types.CompositionPlan, tracker *lifecycle.Tracker) (string, error) {
	planFile, err := tracker.NewFile("plan", ".json")
	if err != nil {
		return "", err
	}
	if err := WritePlan(plan, planFile); err != nil {
		return "", err
	}
	outFile, err := r.path(plan.RunID)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fields := strings.Fields(r.command)
	args := append(fields[1:], "--plan", planFile, "--output", outFile)
	bin := fields[0]
	if strings.HasSuffix(bin, ".py") {
		args = append([]string{bin}, args...)
		bin = "python3"
	}

	r.log.Infof("handing plan to %s...", fields[0])
	if out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput(); err != nil {
		return "", fmt.Errorf("renderer %s: %w: %s", fields[0], err, tail(string(out), 300))
	}
	if _, err := os.Stat(outFile); err != nil {
		return "", fmt.Errorf("renderer %s produced no output: %w", fields[0], err)
	}
	r.log.Infof("final video ready: %s", outFile)
	return outFile, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
