package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"livedetect/internal/config"
	"livedetect/internal/export"
	"livedetect/internal/lifecycle"
	"livedetect/internal/ui"
	"livedetect/processing/capture"
	"livedetect/processing/detector"
)

// readConfig loads the --config file and applies the command line overrides
// without validating the result.
func readConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfigFile(c.String(flagConfig))
	if err != nil {
		return nil, err
	}
	applyOverrides(c, cfg)
	return cfg, nil
}

func applyOverrides(c *cli.Context, cfg *config.Config) {
	if c.IsSet(flagURL) {
		cfg.Source.URL = c.String(flagURL)
	}
	if c.IsSet(flagCapture) {
		cfg.Source.Backend = config.CaptureBackend(c.String(flagCapture))
	}
	if c.IsSet(flagModel) {
		cfg.Detector.ModelPath = c.String(flagModel)
	}
	if c.IsSet(flagDetector) {
		cfg.Detector.Backend = config.DetectorBackend(c.String(flagDetector))
	}
	if c.IsSet(flagDetectorAddr) {
		cfg.Detector.Address = c.String(flagDetectorAddr)
	}
	if c.IsSet(flagDisplay) {
		cfg.Display.Backend = config.DisplayBackend(c.String(flagDisplay))
	}
	if c.IsSet(flagInterval) {
		cfg.Inference.Interval = config.Duration(c.Duration(flagInterval))
	}
	if c.IsSet(flagLogLevel) {
		cfg.Log.Level = c.String(flagLogLevel)
	}
}

func RunAction(c *cli.Context) error {
	cfg, err := readConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	logger, flush, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infow("starting",
		"source", cfg.Source.URL,
		"capture", cfg.Source.Backend,
		"detector", cfg.Detector.Backend,
		"display", cfg.Display.Backend,
		"interval", cfg.Inference.Interval,
	)

	det, err := detector.New(ctx, cfg.Detector, logger)
	if err != nil {
		logger.Errorw("could not load detector", "error", err)
		return err
	}
	defer func() {
		if err := det.Close(); err != nil {
			logger.Warnw("closing detector", "error", err)
		}
	}()

	surface, err := ui.New(cfg.Display, logger)
	if err != nil {
		return err
	}

	open := func(ctx context.Context) (capture.Capture, error) {
		return capture.Open(ctx, cfg.Source.Backend, cfg.Source.URL, logger.Named("capture"))
	}
	ctrl := lifecycle.NewController(open, det, surface, lifecycle.Options{
		Camera:    cfg.Camera,
		Inference: cfg.Inference,
	}, logger.Named("lifecycle"))

	var runErr error
	surface.Run(func() {
		runErr = ctrl.Run(ctx)
	})
	return runErr
}

func ExportAction(c *cli.Context) error {
	cfg, err := readConfig(c)
	if err != nil {
		return err
	}
	logger, flush, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer flush()

	model, format := c.String(flagModel), c.String(flagFormat)
	fmt.Fprintf(c.App.Writer, "Exporting %s to %s...\n", model, format)

	e := export.NewExporter(logger.Named("export"))
	e.Out = c.App.Writer
	out, err := e.Export(c.Context, model, format)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Exported model written to %s\n", out)
	return nil
}

func ConfigInitAction(c *cli.Context) error {
	path := c.String(flagConfig)
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("%s already exists", path)
	}
	if err := config.NewDefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote default configuration to %s\n", path)
	return nil
}

func ConfigShowAction(c *cli.Context) error {
	cfg, err := readConfig(c)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return errors.Wrap(cfg.Validate(), "invalid configuration")
}
