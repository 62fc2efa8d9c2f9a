package sink

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"airsafe_tracker/internal/table"
	"airsafe_tracker/internal/target"
)

// PointFeature converts a target with a position into a GeoJSON point.
// Targets without coordinates return nil.
func PointFeature(tg target.Target) *geojson.Feature {
	if !tg.HasPosition() {
		return nil
	}
	var g *geom.Point
	if tg.Altitude != nil {
		g = geom.NewPointFlat(geom.XYZ, []float64{tg.Lon(), tg.Lat(), tg.Alt()})
	} else {
		g = geom.NewPointFlat(geom.XY, []float64{tg.Lon(), tg.Lat()})
	}
	return &geojson.Feature{
		ID:         tg.ICAOAddress,
		Geometry:   g,
		Properties: properties(tg),
	}
}

// TrackFeature joins the positions of a history into a single line string.
// Fewer than two positioned reports return nil.
func TrackFeature(targets []target.Target) *geojson.Feature {
	var flat []float64
	var last target.Target
	for _, tg := range targets {
		if !tg.HasPosition() {
			continue
		}
		flat = append(flat, tg.Lon(), tg.Lat())
		last = tg
	}
	if len(flat) < 4 {
		return nil
	}
	props := properties(last)
	props["reports"] = len(flat) / 2
	return &geojson.Feature{
		ID:         last.ICAOAddress,
		Geometry:   geom.NewLineStringFlat(geom.XY, flat),
		Properties: props,
	}
}

// FeatureCollection builds a collection of point features from targets and,
// when track is set, a line string through them.
func FeatureCollection(targets []target.Target, track bool) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(targets)+1)}
	for _, tg := range targets {
		if f := PointFeature(tg); f != nil {
			fc.Features = append(fc.Features, f)
		}
	}
	if track {
		if f := TrackFeature(targets); f != nil {
			fc.Features = append(fc.Features, f)
		}
	}
	return fc
}

func properties(tg target.Target) map[string]any {
	props := map[string]any{
		"icao_address":    tg.ICAOAddress,
		"timestamp":       tg.Timestamp,
		"collection_type": string(tg.CollectionType),
	}
	for k, v := range map[string]string{
		"flight_number": tg.FlightNumber,
		"callsign":      tg.Callsign,
		"tail_number":   tg.TailNumber,
		"airline_name":  tg.AirlineName,
	} {
		if v != "" {
			props[k] = v
		}
	}
	if tg.Heading != nil {
		props["heading"] = float64(*tg.Heading)
	}
	return props
}

// GeoJSONFile writes snapshots or histories as a GeoJSON FeatureCollection.
type GeoJSONFile struct {
	mu   sync.Mutex
	path string
}

// NewGeoJSONFile creates a sink writing to path.
func NewGeoJSONFile(path string) *GeoJSONFile {
	return &GeoJSONFile{path: path}
}

func (g *GeoJSONFile) Name() string { return "geojson" }

func (g *GeoJSONFile) Publish(_ context.Context, snap table.Snapshot) error {
	return g.write(FeatureCollection(snap.Targets(), false))
}

func (g *GeoJSONFile) PublishHistory(_ context.Context, targets []target.Target) error {
	return g.write(FeatureCollection(targets, true))
}

func (g *GeoJSONFile) write(fc *geojson.FeatureCollection) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := writeJSONFile(g.path, fc); err != nil {
		return eris.Wrap(err, "write geojson")
	}
	return nil
}

func (g *GeoJSONFile) Close() error { return nil }

// MarshalGeoJSON encodes targets as a FeatureCollection.
func MarshalGeoJSON(targets []target.Target, track bool) ([]byte, error) {
	return json.Marshal(FeatureCollection(targets, track))
}
