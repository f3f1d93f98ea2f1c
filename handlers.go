package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kwv/slamview/internal/logger"
	"github.com/kwv/slamview/mesh"
)

// maxPoseBody bounds POST /pose and POST /display request bodies.
const maxPoseBody = 64 << 10

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(app *App) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasMap    bool      `json:"hasMap"`
			Profile   string    `json:"profile,omitempty"`
			LoadError string    `json:"loadError,omitempty"`
			WSClients int       `json:"wsClients"`
			MQTT      bool      `json:"mqttConnected"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			WSClients: app.Hub.ClientCount(),
			MQTT:      app.MQTTClient != nil && app.MQTTClient.IsConnected(),
		}
		if assets := app.Assets(); assets != nil {
			status.HasMap = true
			status.Profile = assets.Profile.Name
		}
		if err := app.LoadError(); err != nil {
			status.LoadError = err.Error()
		}
		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	// Pose relay: the sample goes to websocket clients and the projector
	mux.HandleFunc("POST /pose", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxPoseBody))
		if err != nil {
			http.Error(w, "Error reading body", http.StatusBadRequest)
			return
		}
		sample, ok := mesh.ParsePoseMessage(body)
		if !ok {
			http.Error(w, "Body must be {\"x\": number, \"y\": number}", http.StatusBadRequest)
			return
		}
		app.acceptPose(sample)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/ws", app.Hub.ServeWS)

	// Latest marker projection, 204 while no marker is visible
	mux.HandleFunc("GET /projection", func(w http.ResponseWriter, r *http.Request) {
		proj := app.currentProjection()
		if proj == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, proj)
	})

	// Display size reported by the viewer after layout
	mux.HandleFunc("POST /display", func(w http.ResponseWriter, r *http.Request) {
		var metrics mesh.DisplayMetrics
		if err := json.NewDecoder(io.LimitReader(r.Body, maxPoseBody)).Decode(&metrics); err != nil {
			http.Error(w, "Invalid display metrics JSON", http.StatusBadRequest)
			return
		}
		if !metrics.Valid() {
			http.Error(w, "Display dimensions must all be positive", http.StatusBadRequest)
			return
		}
		proj, ok := app.Projector.UpdateDisplay(metrics)
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, proj)
	})

	// 3D scene: wall mesh, footprint, obstacle markers and pose marker
	mux.HandleFunc("GET /scene.json", func(w http.ResponseWriter, r *http.Request) {
		assets, snap, err := app.view(r.Context(), r.URL.Query().Get("map"))
		if err != nil {
			writeAssetError(w, err)
			return
		}
		scene, err := mesh.BuildScene(assets, app.Cache, app.viewer(), snap.Projection)
		if err != nil {
			logger.Sugar.Errorf("[MESH] %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, scene)
	})

	// Shell, floor, obstacles and marker as GeoJSON in pixel or map frame
	mux.HandleFunc("GET /scene.geojson", func(w http.ResponseWriter, r *http.Request) {
		frame, err := mesh.ParseGeoJSONFrame(r.URL.Query().Get("frame"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		assets, snap, err := app.view(r.Context(), r.URL.Query().Get("map"))
		if err != nil {
			writeAssetError(w, err)
			return
		}
		fc, err := mesh.SceneFeatureCollection(assets, snap.Projection, frame)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		data, err := json.Marshal(fc)
		if err != nil {
			logger.Sugar.Errorf("[HTTP] encoding geojson: %v", err)
			http.Error(w, "Error encoding GeoJSON", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(data)
	})

	// Raster with outline, obstacles and marker
	mux.HandleFunc("GET /map.png", func(w http.ResponseWriter, r *http.Request) {
		assets, snap, err := app.view(r.Context(), r.URL.Query().Get("map"))
		if err != nil {
			writeAssetError(w, err)
			return
		}
		if assets.Raster == nil {
			http.Error(w, "Map has no raster", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := mesh.NewRasterRenderer(assets).EncodePNG(w, snap.Projection); err != nil {
			logger.Sugar.Errorf("[HTTP] %v", err)
		}
	})

	// Vector overlay at the reported display size
	mux.HandleFunc("GET /overlay.svg", func(w http.ResponseWriter, r *http.Request) {
		assets, snap, err := app.view(r.Context(), r.URL.Query().Get("map"))
		if err != nil {
			writeAssetError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		renderer := mesh.NewOverlayRenderer(assets, snap.Metrics)
		if err := renderer.RenderToSVG(w, snap.Projection); err != nil {
			logger.Sugar.Errorf("[HTTP] encoding overlay SVG: %v", err)
		}
	})

	mux.HandleFunc("GET /overlay.png", func(w http.ResponseWriter, r *http.Request) {
		assets, snap, err := app.view(r.Context(), r.URL.Query().Get("map"))
		if err != nil {
			writeAssetError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		renderer := mesh.NewOverlayRenderer(assets, snap.Metrics)
		if err := renderer.RenderToPNG(w, snap.Projection); err != nil {
			logger.Sugar.Errorf("[HTTP] encoding overlay PNG: %v", err)
		}
	})

	// Default route serves an HTML page stacking the overlay on the raster
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprint(w, indexHTML)
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Sugar.Debugf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("[HTTP] encoding response: %v", err)
	}
}

// writeAssetError maps a load failure to a status. An unknown profile is the
// caller's mistake; everything else means the map is not available yet.
func writeAssetError(w http.ResponseWriter, err error) {
	var profileErr *mesh.ProfileResolutionError
	switch {
	case errors.As(err, &profileErr):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, mesh.ErrLoadSuperseded):
		http.Error(w, "Map load superseded, retry", http.StatusServiceUnavailable)
	default:
		logger.Sugar.Warnf("[HTTP] map unavailable: %v", err)
		http.Error(w, fmt.Sprintf("Map unavailable: %v", err), http.StatusServiceUnavailable)
	}
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>slamview</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;background:#1a1a1a}
#view{position:relative;width:100vw;height:100vh}
#view img{position:absolute;inset:0;width:100%;height:100%;object-fit:contain}
</style>
</head>
<body>
<div id="view">
<img id="raster" src="/map.png" alt="Map">
<img id="overlay" src="/overlay.svg" alt="Overlay">
</div>
<script>
const raster = document.getElementById('raster');
const overlay = document.getElementById('overlay');
function report() {
  if (!raster.naturalWidth) return;
  const scale = Math.min(raster.clientWidth / raster.naturalWidth, raster.clientHeight / raster.naturalHeight);
  fetch('/display', {method: 'POST', body: JSON.stringify({
    naturalWidth: raster.naturalWidth, naturalHeight: raster.naturalHeight,
    displayWidth: raster.naturalWidth * scale, displayHeight: raster.naturalHeight * scale
  })});
}
raster.addEventListener('load', report);
window.addEventListener('resize', report);
const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
ws.onmessage = () => {
  const t = Date.now();
  raster.src = '/map.png?t=' + t;
  overlay.src = '/overlay.svg?t=' + t;
};
</script>
</body>
</html>`
