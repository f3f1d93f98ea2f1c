package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kwv/slamview/internal/logger"
)

// MapAssets is everything loaded for one profile. It is immutable once
// returned; a new selection produces a new MapAssets.
type MapAssets struct {
	Profile   Profile
	Meta      GridMapAsset
	Frame     *Frame
	FrameErr  error
	Raster    *RasterBuffer
	Shell     ShellVariant
	Obstacles []Ring
	LoadedAt  time.Time

	// Generation orders loads; a later load has a larger value.
	Generation uint64
}

// Metrics returns display metrics that draw the raster at its own size.
func (a *MapAssets) Metrics() DisplayMetrics {
	if a == nil || a.Raster == nil {
		return DisplayMetrics{}
	}
	return NaturalMetrics(a.Raster.Width, a.Raster.Height)
}

// AssetLoader fetches and decodes the assets of a profile. Only the most
// recently started Load may deliver a result.
type AssetLoader struct {
	source     AssetSource
	generation atomic.Uint64
}

// NewAssetLoader creates a loader reading from source.
func NewAssetLoader(source AssetSource) *AssetLoader {
	return &AssetLoader{source: source}
}

// Source returns the loader's asset source.
func (l *AssetLoader) Source() AssetSource {
	return l.source
}

// Load fetches metadata, raster, boundary and obstacle documents
// concurrently. The first fetch error cancels the rest and is returned. The
// obstacle document is optional. If another Load starts before this one
// finishes, ErrLoadSuperseded is returned instead of the result.
func (l *AssetLoader) Load(ctx context.Context, profile Profile) (*MapAssets, error) {
	gen := l.generation.Add(1)
	logger.Sugar.Infof("[LOADER] loading profile %q (generation %d)", profile.Name, gen)

	var metaRaw, rasterRaw, wallsRaw, obstaclesRaw []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		metaRaw, err = l.fetchRequired(gctx, profile.Meta)
		return err
	})
	g.Go(func() (err error) {
		rasterRaw, err = l.fetchRaster(gctx, profile.Raster)
		return err
	})
	g.Go(func() (err error) {
		wallsRaw, err = l.fetchRequired(gctx, profile.Walls)
		return err
	})
	if profile.Obstacles != "" {
		g.Go(func() error {
			data, err := l.source.Fetch(gctx, profile.Obstacles)
			var notFound *AssetNotFoundError
			if errors.As(err, &notFound) {
				logger.Sugar.Debugf("[LOADER] no obstacle document %s", profile.Obstacles)
				return nil
			}
			if err != nil {
				return &MapAssetError{Asset: profile.Obstacles, Err: err}
			}
			obstaclesRaw = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, l.finish(gen, err)
	}

	assets := &MapAssets{Profile: profile, LoadedAt: time.Now(), Generation: gen}

	if err := json.Unmarshal(metaRaw, &assets.Meta); err != nil {
		return nil, l.finish(gen, &MapAssetError{Asset: profile.Meta, Err: err})
	}

	raster, err := DecodeRasterAsset(rasterRaw, func() ([]byte, error) {
		return l.source.Fetch(ctx, FallbackPath(profile.Raster))
	})
	if err != nil {
		return nil, l.finish(gen, err)
	}
	assets.Raster = raster

	shell, err := ParseBoundaryDocument(wallsRaw)
	if err != nil {
		return nil, l.finish(gen, &MapAssetError{Asset: profile.Walls, Err: err})
	}
	assets.Shell = shell

	if obstaclesRaw != nil {
		obstacles, err := ParseObstacleDocument(obstaclesRaw)
		if err != nil {
			return nil, l.finish(gen, &MapAssetError{Asset: profile.Obstacles, Err: err})
		}
		assets.Obstacles = obstacles
	}

	frame, err := ResolveFrame(assets.Meta)
	if err != nil {
		// Geometry still renders; only the pose marker is unavailable.
		logger.Sugar.Warnf("[LOADER] profile %q has no usable frame: %v", profile.Name, err)
		assets.FrameErr = err
	} else {
		assets.Frame = &frame
	}

	if err := l.finish(gen, nil); err != nil {
		return nil, err
	}
	logger.Sugar.Infof("[LOADER] loaded profile %q: %dx%d raster, %s shell, %d obstacles",
		profile.Name, raster.Width, raster.Height, shell.Kind, len(assets.Obstacles))
	return assets, nil
}

// finish reports ErrLoadSuperseded when a newer load has started, and err
// otherwise.
func (l *AssetLoader) finish(gen uint64, err error) error {
	if l.generation.Load() != gen {
		logger.Sugar.Debugf("[LOADER] discarding superseded load (generation %d)", gen)
		return ErrLoadSuperseded
	}
	if err != nil {
		logger.Sugar.Errorf("[LOADER] load failed: %v", err)
	}
	return err
}

func (l *AssetLoader) fetchRequired(ctx context.Context, name string) ([]byte, error) {
	if name == "" {
		return nil, &MapAssetError{Asset: "(unnamed)", Err: fmt.Errorf("profile does not name this asset")}
	}
	data, err := l.source.Fetch(ctx, name)
	if err != nil {
		var notFound *AssetNotFoundError
		if errors.As(err, &notFound) {
			return nil, err
		}
		return nil, &MapAssetError{Asset: name, Err: err}
	}
	return data, nil
}

// fetchRaster fetches the raster, falling back to the pre-rendered image
// when the raw raster itself is missing.
func (l *AssetLoader) fetchRaster(ctx context.Context, name string) ([]byte, error) {
	data, err := l.fetchRequired(ctx, name)
	var notFound *AssetNotFoundError
	if errors.As(err, &notFound) && FallbackPath(name) != name {
		logger.Sugar.Warnf("[LOADER] raster %s missing, trying %s", name, FallbackPath(name))
		return l.fetchRequired(ctx, FallbackPath(name))
	}
	return data, err
}
