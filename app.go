package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kwv/slamview/internal/logger"
	"github.com/kwv/slamview/mesh"
)

// errNoMapLoaded is returned by map endpoints before any profile loaded.
var errNoMapLoaded = errors.New("no map loaded")

const shutdownTimeout = 5 * time.Second

// App encapsulates the application state and dependencies
type App struct {
	out  io.Writer
	opts AppOptions

	Config     *mesh.Config
	Loader     *mesh.AssetLoader
	Projector  *mesh.PoseProjector
	Hub        *mesh.PoseHub
	Cache      *mesh.MeshCache
	MQTTClient *mesh.MQTTClient
	Publisher  *mesh.Publisher

	// mu guards the current assets together with the projector reset that
	// goes with them.
	mu           sync.RWMutex
	assets       *mesh.MapAssets
	installedGen uint64
	loadErr      error
}

// NewApp creates a new App instance
func NewApp(out io.Writer) *App {
	return &App{
		out:       out,
		Config:    mesh.DefaultConfig(),
		Projector: mesh.NewPoseProjector(mesh.DefaultMarkerHeight),
		Hub:       mesh.NewPoseHub(),
		Cache:     mesh.NewMeshCache(0),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.opts = opts
}

// setup loads the configuration, applies flag overrides and builds the asset
// loader.
func (a *App) setup() error {
	path := a.opts.ConfigFile
	if path == "" {
		path = "config.yaml"
	}
	// A default config path is looked up next to the map assets.
	if !a.opts.ConfigExplicit && a.opts.DataDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(a.opts.DataDir, path)
	}

	cfg, err := mesh.LoadConfig(path)
	switch {
	case errors.Is(err, mesh.ErrConfigNotFound) && !a.opts.ConfigExplicit:
		cfg = mesh.DefaultConfig()
		mesh.ApplyEnvOverrides(cfg)
	case err != nil:
		return fmt.Errorf("loading config %s: %w", path, err)
	default:
		logger.Sugar.Infof("Loaded config from %s", path)
	}

	if a.opts.DataDir != "" {
		cfg.Maps.Dir = a.opts.DataDir
		cfg.Maps.BaseURL = ""
	}
	if a.opts.MapsURL != "" {
		cfg.Maps.BaseURL = a.opts.MapsURL
	}
	if a.opts.Profile != "" {
		cfg.Maps.Profile = a.opts.Profile
	}
	if a.opts.PoseURL != "" {
		cfg.Pose.URL = a.opts.PoseURL
	}
	if a.opts.LogLevel != "" {
		cfg.Log.Level = a.opts.LogLevel
	}
	if a.opts.LogFile != "" {
		cfg.Log.File = a.opts.LogFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	source, err := mesh.NewSource(cfg.Maps)
	if err != nil {
		return fmt.Errorf("creating asset source: %w", err)
	}

	a.Config = cfg
	a.Loader = mesh.NewAssetLoader(source)
	a.Projector = mesh.NewPoseProjector(cfg.Viewer.MarkerHeight)
	return nil
}

// initLogging starts the process logger. One-off modes stay quiet below
// warn unless a level was asked for.
func (a *App) initLogging(service bool) error {
	level := a.opts.LogLevel
	if level == "" {
		level = "warn"
		if service && a.Config != nil && a.Config.Log.Level != "" {
			level = a.Config.Log.Level
		}
	}
	file := a.opts.LogFile
	if file == "" && a.Config != nil {
		file = a.Config.Log.File
	}
	return logger.Init(level, file)
}

// Assets returns the currently loaded profile, or nil.
func (a *App) Assets() *mesh.MapAssets {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.assets
}

// LoadError returns the error of the last failed load, if the most recent
// load failed.
func (a *App) LoadError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loadErr
}

// SetAssets installs assets as the current map and resets the projector to
// its frame. The configured display metrics apply until a client reports
// its own. Assets from a load older than the installed one are refused.
func (a *App) SetAssets(assets *mesh.MapAssets) bool {
	metrics := assets.Metrics()
	if d := a.viewer().Display; d != nil && d.Valid() {
		metrics = *d
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if assets.Generation < a.installedGen {
		logger.Sugar.Debugf("[LOADER] not installing %q generation %d over generation %d",
			assets.Profile.Name, assets.Generation, a.installedGen)
		return false
	}
	a.Projector.Reset(assets.Frame, metrics)
	a.assets = assets
	a.installedGen = assets.Generation
	a.loadErr = nil
	return true
}

func (a *App) viewer() mesh.ViewerConfig {
	if a.Config == nil {
		return mesh.DefaultConfig().Viewer
	}
	return a.Config.Viewer
}

// resolveProfile reads the profile document. Without one, the default
// single-map layout is used, and only the default name may be requested.
func (a *App) resolveProfile(ctx context.Context, override string) (mesh.Profile, error) {
	docName := a.Config.Maps.ProfileFile
	if docName == "" {
		docName = mesh.DefaultProfileDocName
	}

	data, err := a.Loader.Source().Fetch(ctx, docName)
	var notFound *mesh.AssetNotFoundError
	if errors.As(err, &notFound) {
		if override != "" && override != mesh.DefaultProfileName {
			return mesh.Profile{}, &mesh.ProfileResolutionError{Requested: override, Reason: "no profile document"}
		}
		logger.Sugar.Debugf("[LOADER] no %s, using the default layout", docName)
		return mesh.DefaultProfile(), nil
	}
	if err != nil {
		return mesh.Profile{}, fmt.Errorf("fetching profile document: %w", err)
	}

	doc, err := mesh.ParseProfileDocument(data)
	if err != nil {
		return mesh.Profile{}, err
	}
	return mesh.ResolveProfile(doc, override)
}

// LoadProfile resolves and loads a profile and makes it current. A load
// superseded by a newer one returns mesh.ErrLoadSuperseded and changes
// nothing.
func (a *App) LoadProfile(ctx context.Context, override string) (*mesh.MapAssets, error) {
	if a.Loader == nil {
		return nil, errNoMapLoaded
	}
	profile, err := a.resolveProfile(ctx, override)
	if err == nil {
		var assets *mesh.MapAssets
		assets, err = a.Loader.Load(ctx, profile)
		if err == nil {
			if !a.SetAssets(assets) {
				return nil, mesh.ErrLoadSuperseded
			}
			return assets, nil
		}
	}

	if !errors.Is(err, mesh.ErrLoadSuperseded) {
		a.mu.Lock()
		a.loadErr = err
		a.mu.Unlock()
	}
	return nil, err
}

// assetsFor returns the current assets, loading profile name first when it
// differs from the current one.
func (a *App) assetsFor(ctx context.Context, name string) (*mesh.MapAssets, error) {
	current := a.Assets()
	if name == "" || (current != nil && current.Profile.Name == name) {
		if current == nil {
			if err := a.LoadError(); err != nil {
				return nil, err
			}
			return nil, errNoMapLoaded
		}
		return current, nil
	}
	logger.Sugar.Infof("[HTTP] switching map to %q", name)
	return a.LoadProfile(ctx, name)
}

// view returns the assets for name with the projector state that belongs to
// them. Assets that are no longer current get their natural metrics and no
// marker.
func (a *App) view(ctx context.Context, name string) (*mesh.MapAssets, mesh.Snapshot, error) {
	assets, err := a.assetsFor(ctx, name)
	if err != nil {
		return nil, mesh.Snapshot{}, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.assets != assets {
		return assets, mesh.Snapshot{Metrics: assets.Metrics()}, nil
	}
	return assets, a.Projector.Snapshot(), nil
}

// currentProjection returns the visible projection, or nil.
func (a *App) currentProjection() *mesh.Projection {
	p, ok := a.Projector.Current()
	if !ok {
		return nil
	}
	return &p
}

// acceptPose relays a pushed sample (POST /pose or MQTT) to websocket clients
// and feeds it into the projector.
func (a *App) acceptPose(sample mesh.PoseSample) {
	if err := a.Hub.Publish(sample); err != nil {
		logger.Sugar.Warnf("[WS] relay pose: %v", err)
	}
	a.trackPose(sample)
}

// trackPose feeds a sample into the projector only. Samples read from the
// pose stream take this path so a stream pointed at our own /ws cannot echo.
func (a *App) trackPose(sample mesh.PoseSample) {
	if _, ok := a.Projector.UpdatePose(sample); !ok {
		logger.Sugar.Debugf("[POSE] sample (%.3f, %.3f) has no marker position", sample.X, sample.Y)
	}
}

// RunService loads the configured profile and serves HTTP, the websocket
// relay and the optional pose stream and MQTT bridge until interrupted.
func (a *App) RunService() error {
	if err := a.setup(); err != nil {
		return err
	}
	if err := a.initLogging(true); err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.serve(ctx)
}

func (a *App) serve(ctx context.Context) error {
	fmt.Fprintln(a.out, "Starting slamview service...")

	if _, err := a.LoadProfile(ctx, a.Config.Maps.Profile); err != nil {
		logger.Sugar.Errorf("[LOADER] initial map load failed: %v", err)
		fmt.Fprintf(a.out, "Warning: no map loaded: %v\n", err)
	}

	var mqttHandler mesh.PoseHandler
	if a.Config.MQTT.PoseTopic != "" {
		mqttHandler = func(_ string, sample mesh.PoseSample) { a.acceptPose(sample) }
	}
	client, err := mesh.InitMQTT(a.Config, mqttHandler)
	if err != nil {
		return fmt.Errorf("initializing MQTT: %w", err)
	}
	if client != nil {
		a.MQTTClient = client
		a.Publisher = mesh.NewPublisher(client.GetClient(), a.Config.MQTT.PublishPrefix)
		unsubscribe := a.Projector.Subscribe(a.Publisher.Listener())
		defer unsubscribe()
		defer client.Disconnect()
	}

	var streamDone chan struct{}
	if a.Config.Pose.URL != "" {
		stream := mesh.NewPoseStream(a.Config.Pose.URL, a.trackPose)
		streamDone = make(chan struct{})
		go func() {
			defer close(streamDone)
			err := stream.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, mesh.ErrStreamClosed) {
				logger.Sugar.Errorf("[POSE] stream stopped: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", a.opts.HTTPPort),
		Handler:           newHTTPServer(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Sugar.Infof("[HTTP] Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	a.printServiceInfo()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	fmt.Fprintln(a.out, "\nShutting down service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.Hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar.Warnf("[HTTP] shutdown: %v", err)
	}
	if streamDone != nil {
		<-streamDone
	}
	fmt.Fprintln(a.out, "Service stopped")
	return runErr
}

func (a *App) printServiceInfo() {
	fmt.Fprintln(a.out, "\nService Running")
	fmt.Fprintln(a.out, "===============")
	if assets := a.Assets(); assets != nil {
		fmt.Fprintf(a.out, "\nMap: %s (%s shell)\n", assets.Profile.Name, assets.Shell.Kind)
	}
	if a.Config.Pose.URL != "" {
		fmt.Fprintf(a.out, "\nPose stream: %s\n", a.Config.Pose.URL)
	}
	if a.Publisher != nil {
		fmt.Fprintln(a.out, "\nMQTT:")
		if topic := a.MQTTClient.PoseTopic(); topic != "" {
			fmt.Fprintf(a.out, "  Subscribed: %s\n", topic)
		}
		fmt.Fprintf(a.out, "  Publishing to: %s\n", a.Publisher.Topic())
	}

	fmt.Fprintf(a.out, "\nHTTP endpoints (port %d):\n", a.opts.HTTPPort)
	fmt.Fprintln(a.out, "  GET  /health         - Health check")
	fmt.Fprintln(a.out, "  POST /pose           - Relay a pose sample to /ws clients")
	fmt.Fprintln(a.out, "  GET  /ws             - Pose broadcast websocket")
	fmt.Fprintln(a.out, "  GET  /projection     - Latest marker projection")
	fmt.Fprintln(a.out, "  POST /display        - Report display size")
	fmt.Fprintln(a.out, "  GET  /scene.json     - Wall mesh, floor and obstacles")
	fmt.Fprintln(a.out, "  GET  /scene.geojson  - Shell and obstacles as GeoJSON")
	fmt.Fprintln(a.out, "  GET  /map.png        - Raster with marker")
	fmt.Fprintln(a.out, "  GET  /overlay.svg    - Vector overlay")
	fmt.Fprintln(a.out, "\nPress Ctrl+C to stop")
}

// RunGenerateShell builds wall_shell.json, meta.json and map.pgm from a raster
// and its ROS map yaml.
func (a *App) RunGenerateShell() error {
	if err := a.initLogging(false); err != nil {
		return err
	}
	defer logger.Sync()

	if a.opts.ROSYAML == "" {
		return fmt.Errorf("-generate-shell requires -ros-yaml")
	}
	yamlData, err := os.ReadFile(a.opts.ROSYAML)
	if err != nil {
		return fmt.Errorf("reading map yaml: %w", err)
	}
	ros, err := mesh.ParseROSMapYAML(yamlData)
	if err != nil {
		return err
	}

	rasterPath := a.opts.PGMPath
	if rasterPath == "" {
		if ros.Image == "" {
			return fmt.Errorf("no -pgm given and %s names no image", a.opts.ROSYAML)
		}
		rasterPath = ros.Image
		if !filepath.IsAbs(rasterPath) {
			rasterPath = filepath.Join(filepath.Dir(a.opts.ROSYAML), rasterPath)
		}
	}
	raw, err := os.ReadFile(rasterPath)
	if err != nil {
		return fmt.Errorf("reading raster: %w", err)
	}
	raster, err := mesh.DecodeRasterAsset(raw, nil)
	if err != nil {
		return err
	}

	genOpts := mesh.DefaultShellGenOptions()
	genOpts.Rotate90 = a.opts.Rotate90
	genOpts.Explicit = a.opts.Explicit
	result, err := mesh.GenerateShell(raster, ros, genOpts)
	if err != nil {
		return err
	}

	outDir := a.opts.OutputFile
	if outDir == "" {
		outDir = a.opts.DataDir
	}
	if outDir == "" {
		outDir = "."
	}
	if err := result.WriteFiles(outDir); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Generated %d wall polygon(s) from %s (%dx%d)\n",
		len(result.Polygons), rasterPath, result.Meta.Width, result.Meta.Height)
	fmt.Fprintf(a.out, "Wrote %s, %s and %s to %s\n",
		mesh.DefaultWallsAsset, mesh.DefaultMetaAsset, mesh.DefaultRasterAsset, outDir)
	return nil
}

// RunRender writes the overlay of the selected profile, with the -pose
// marker when given.
func (a *App) RunRender() error {
	if err := a.setup(); err != nil {
		return err
	}
	if err := a.initLogging(false); err != nil {
		return err
	}
	defer logger.Sync()

	format := strings.ToLower(a.opts.RenderFormat)
	var ext string
	switch format {
	case "", "svg":
		format, ext = "svg", "svg"
	case "png", "raster":
		ext = "png"
	default:
		return fmt.Errorf("unknown render format %q (want svg, png or raster)", a.opts.RenderFormat)
	}

	assets, err := a.LoadProfile(context.Background(), a.Config.Maps.Profile)
	if err != nil {
		return fmt.Errorf("loading map: %w", err)
	}

	var proj *mesh.Projection
	if a.opts.Pose != "" {
		pose, err := parsePose(a.opts.Pose)
		if err != nil {
			return err
		}
		p, ok := a.Projector.UpdatePose(pose)
		if !ok {
			return fmt.Errorf("pose %s has no marker position: %v", a.opts.Pose, assets.FrameErr)
		}
		proj = &p
	}

	output := a.opts.OutputFile
	if output == "" {
		output = "overlay." + ext
		if format == "raster" {
			output = "map.png"
		}
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	metrics := a.Projector.Metrics()
	if proj != nil {
		metrics = proj.Metrics
	}
	switch format {
	case "svg":
		err = mesh.NewOverlayRenderer(assets, metrics).RenderToSVG(f, proj)
	case "png":
		err = mesh.NewOverlayRenderer(assets, metrics).RenderToPNG(f, proj)
	case "raster":
		err = mesh.NewRasterRenderer(assets).EncodePNG(f, proj)
	}
	if err != nil {
		return fmt.Errorf("rendering %s: %w", format, err)
	}

	fmt.Fprintf(a.out, "Rendered %s overlay of %q to %s\n", format, assets.Profile.Name, output)
	return nil
}

// RunInspect prints a summary of the selected profile.
func (a *App) RunInspect() error {
	if err := a.setup(); err != nil {
		return err
	}
	if err := a.initLogging(false); err != nil {
		return err
	}
	defer logger.Sync()

	assets, err := a.LoadProfile(context.Background(), a.Config.Maps.Profile)
	if err != nil {
		return fmt.Errorf("loading map: %w", err)
	}
	return mesh.Summarize(assets).WriteText(a.out)
}

// parsePose reads "X,Y" in map meters.
func parsePose(s string) (mesh.PoseSample, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return mesh.PoseSample{}, fmt.Errorf("pose %q: want X,Y", s)
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err := errors.Join(errX, errY); err != nil {
		return mesh.PoseSample{}, fmt.Errorf("pose %q: %w", s, err)
	}
	sample := mesh.PoseSample{X: x, Y: y}
	if !sample.Valid() {
		return mesh.PoseSample{}, fmt.Errorf("pose %q: coordinates must be finite", s)
	}
	return sample, nil
}
