package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"livedetect/internal/config"
	"livedetect/internal/export"
)

const (
	flagConfig       = "config"
	flagURL          = "url"
	flagCapture      = "capture"
	flagModel        = "model"
	flagDetector     = "detector"
	flagDetectorAddr = "detector-addr"
	flagDisplay      = "display"
	flagInterval     = "interval"
	flagLogLevel     = "log-level"
	flagFormat       = "format"
)

func newApp() *cli.App {
	return &cli.App{
		Name:            "livedetect",
		Usage:           "real-time object detection on a network camera feed",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   config.DefaultConfigPath,
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "override the log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "detect objects on the camera stream until 'q' is pressed",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagURL, Usage: "camera stream `URL`"},
					&cli.StringFlag{Name: flagCapture, Usage: fmt.Sprintf("capture backend %v", config.CaptureBackends)},
					&cli.StringFlag{Name: flagModel, Usage: "model weights `FILE` for the gocv detector"},
					&cli.StringFlag{Name: flagDetector, Usage: fmt.Sprintf("detector backend %v", config.DetectorBackends)},
					&cli.StringFlag{Name: flagDetectorAddr, Usage: "detection server `ADDRESS` for the remote detector"},
					&cli.StringFlag{Name: flagDisplay, Usage: fmt.Sprintf("display backend %v", config.DisplayBackends)},
					&cli.DurationFlag{Name: flagInterval, Usage: "minimum time between inferences"},
				},
				Action: RunAction,
			},
			{
				Name:      "export",
				Usage:     "convert trained weights to a deployment format",
				ArgsUsage: " ",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagModel, Required: true, Usage: "trained weights `FILE`"},
					&cli.StringFlag{Name: flagFormat, Value: "tfjs", Usage: fmt.Sprintf("target format %v", export.Formats())},
				},
				Action: ExportAction,
			},
			{
				Name:            "config",
				Usage:           "work with the configuration file",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "write the default configuration to the --config path",
						Action: ConfigInitAction,
					},
					{
						Name:   "show",
						Usage:  "print the effective configuration",
						Action: ConfigShowAction,
					},
				},
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "livedetect: %v\n", err)
		os.Exit(1)
	}
}
