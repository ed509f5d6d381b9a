package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"json2video/07_render"
	"json2video/compiler"
	"json2video/config"
	"json2video/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "engine configuration")
	input := flag.String("input", "", "composition document (.json, .yaml)")
	planOut := flag.String("plan", "", "write the composition plan to this file")
	doRender := flag.Bool("render", false, "render the plan before cleanup")
	strict := flag.Bool("strict", false, "treat any bad layer reference as fatal")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: json2video -input doc.json [-config config.yaml] [-plan plan.json] [-render] [-strict]")
		os.Exit(2)
	}

	// Load .env (local dev only)
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger, *input, *planOut, compiler.Options{Render: *doRender, StrictReferences: *strict}); err != nil {
		logger.Error("compile failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger, input, planOut string, opts compiler.Options) error {
	log := logger.Sugar()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := compiler.New(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}

	started := time.Now()
	log.Infof("compiling %s", input)
	plan, err := c.CompileFile(ctx, input)
	if err != nil {
		var cerr types.CompilationError
		if errors.As(err, &cerr) && cerr.EntityID != "" {
			log.Errorf("stage %s failed on %s", cerr.Stage, cerr.EntityID)
		}
		return err
	}

	if planOut != "" {
		if err := render.WritePlan(plan, planOut); err != nil {
			return fmt.Errorf("save plan: %w", err)
		}
		log.Infof("plan saved: %s", planOut)
	}
	for _, s := range plan.Skipped {
		log.Warnf("skipped %s: %s", s.LayerID, s.Reason)
	}
	log.Infof("done in %s: %d visual, %d audio, %.2fs total",
		time.Since(started).Round(time.Millisecond), len(plan.Visual), len(plan.Audio), plan.TotalDuration)
	if plan.Output != "" {
		log.Infof("video: %s", plan.Output)
	}
	return nil
}

// loadConfig falls back to the defaults when no config file exists
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		return cfg, cfg.Validate()
	}
	return cfg, err
}

func newLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if lc.Level != "" {
		level, err := zap.ParseAtomicLevel(lc.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}
	return zc.Build()
}
