package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line.
type AppOptions struct {
	ConfigFile     string
	ConfigExplicit bool
	DataDir        string
	MapsURL        string
	Profile        string
	HTTPPort       int
	PoseURL        string

	GenerateShell bool
	PGMPath       string
	ROSYAML       string
	Rotate90      bool
	Explicit      bool

	Render       bool
	Pose         string
	OutputFile   string
	RenderFormat string

	Inspect bool

	LogLevel string
	LogFile  string
}

// Runner executes the selected mode. App implements it; tests use a mock.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunService() error
	RunGenerateShell() error
	RunRender() error
	RunInspect() error
}

func main() {
	err := run(os.Args[1:], os.Stdout, NewApp(os.Stdout))
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "slamview: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, runner Runner) error {
	var opts AppOptions
	fs := flag.NewFlagSet("slamview", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.DataDir, "data-dir", "", "Directory holding map assets (overrides maps.dir)")
	fs.StringVar(&opts.MapsURL, "maps-url", "", "Base URL serving map assets (overrides maps.baseUrl)")
	fs.StringVar(&opts.Profile, "profile", "", "Map profile to load (default: active profile)")
	fs.IntVar(&opts.HTTPPort, "http-port", 8080, "HTTP server port")
	fs.StringVar(&opts.PoseURL, "pose-url", "", "Websocket URL streaming pose samples (overrides pose.url)")

	fs.BoolVar(&opts.GenerateShell, "generate-shell", false, "Generate wall_shell.json and meta.json from a PGM and ROS map yaml, then exit")
	fs.StringVar(&opts.PGMPath, "pgm", "", "Input raster for -generate-shell (default: image named in the yaml)")
	fs.StringVar(&opts.ROSYAML, "ros-yaml", "", "ROS map yaml for -generate-shell")
	fs.BoolVar(&opts.Rotate90, "rotate90", false, "Rotate the raster 90° counter-clockwise before generating")
	fs.BoolVar(&opts.Explicit, "explicit", false, "Write an {outer, inner} shell instead of a polygon list")

	fs.BoolVar(&opts.Render, "render", false, "Render the overlay of a profile and exit")
	fs.StringVar(&opts.Pose, "pose", "", "Pose to mark in -render output: X,Y in map meters")
	fs.StringVar(&opts.OutputFile, "output", "", "Output file for -render, output directory for -generate-shell")
	fs.StringVar(&opts.RenderFormat, "format", "svg", "Render format: svg, png or raster")

	fs.BoolVar(&opts.Inspect, "inspect", false, "Print a summary of a profile's assets and exit")

	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides log.level)")
	fs.StringVar(&opts.LogFile, "log-file", "", "Also write logs to this file, rotated")

	if err := fs.Parse(args); err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			opts.ConfigExplicit = true
		}
	})

	fmt.Fprintf(out, "slamview version: %s\n", Version)
	runner.ApplyOptions(opts)

	switch {
	case opts.GenerateShell:
		return runner.RunGenerateShell()
	case opts.Render:
		return runner.RunRender()
	case opts.Inspect:
		return runner.RunInspect()
	default:
		return runner.RunService()
	}
}
