package sink

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"airsafe_tracker/internal/table"
	"airsafe_tracker/internal/target"
)

const (
	kmlNamespace = "http://www.opengis.net/kml/2.2"
	feetToMeters = 0.3048
)

// KML is the root of a KML document.
type KML struct {
	XMLName   xml.Name    `xml:"kml"`
	Namespace string      `xml:"xmlns,attr"`
	Document  KMLDocument `xml:"Document"`
}

type KMLDocument struct {
	Name       string         `xml:"name"`
	Styles     []KMLStyle     `xml:"Style,omitempty"`
	Placemarks []KMLPlacemark `xml:"Placemark"`
}

type KMLStyle struct {
	ID        string        `xml:"id,attr"`
	IconStyle *KMLIconStyle `xml:"IconStyle,omitempty"`
	LineStyle *KMLLineStyle `xml:"LineStyle,omitempty"`
}

type KMLIconStyle struct {
	Scale   float64 `xml:"scale,omitempty"`
	Heading float64 `xml:"heading,omitempty"`
	Href    string  `xml:"Icon>href"`
}

type KMLLineStyle struct {
	Color string  `xml:"color"`
	Width float64 `xml:"width"`
}

// KMLPlacemark holds either a point or a line string.
type KMLPlacemark struct {
	Name         string         `xml:"name"`
	TimeStamp    string         `xml:"TimeStamp>when,omitempty"`
	StyleURL     string         `xml:"styleUrl,omitempty"`
	Point        *KMLGeometry   `xml:"Point,omitempty"`
	LineString   *KMLGeometry   `xml:"LineString,omitempty"`
	ExtendedData []KMLDataField `xml:"ExtendedData>Data,omitempty"`
}

// KMLGeometry carries coordinates as "lon,lat,alt" tuples.
type KMLGeometry struct {
	AltitudeMode string `xml:"altitudeMode,omitempty"`
	Coordinates  string `xml:"coordinates"`
}

type KMLDataField struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// kmlCoordinate renders a target position with altitude in meters.
func kmlCoordinate(tg target.Target) string {
	return fmt.Sprintf("%.6f,%.6f,%.0f", tg.Lon(), tg.Lat(), tg.Alt()*feetToMeters)
}

// KMLPoint places a target. Targets without coordinates return nil.
func KMLPoint(tg target.Target) *KMLPlacemark {
	if !tg.HasPosition() {
		return nil
	}
	name := tg.ICAOAddress
	if tg.Callsign != "" {
		name = tg.Callsign + " (" + tg.ICAOAddress + ")"
	}

	pm := &KMLPlacemark{
		Name:      name,
		TimeStamp: tg.Timestamp,
		StyleURL:  "#aircraft",
		Point:     &KMLGeometry{AltitudeMode: "absolute", Coordinates: kmlCoordinate(tg)},
	}
	for _, kv := range [][2]string{
		{"icao_address", tg.ICAOAddress},
		{"collection_type", string(tg.CollectionType)},
		{"flight_number", tg.FlightNumber},
		{"tail_number", tg.TailNumber},
		{"aircraft_type_icao", tg.AircraftTypeICAO},
	} {
		if kv[1] != "" {
			pm.ExtendedData = append(pm.ExtendedData, KMLDataField{Name: kv[0], Value: kv[1]})
		}
	}
	return pm
}

// KMLTrack joins the positions of a history into one placemark. Fewer than
// two positioned reports return nil.
func KMLTrack(targets []target.Target) *KMLPlacemark {
	var coords []string
	var last target.Target
	for _, tg := range targets {
		if !tg.HasPosition() {
			continue
		}
		coords = append(coords, kmlCoordinate(tg))
		last = tg
	}
	if len(coords) < 2 {
		return nil
	}
	return &KMLPlacemark{
		Name:       last.ICAOAddress + " track",
		StyleURL:   "#track",
		LineString: &KMLGeometry{AltitudeMode: "absolute", Coordinates: strings.Join(coords, " ")},
		ExtendedData: []KMLDataField{
			{Name: "reports", Value: fmt.Sprint(len(coords))},
		},
	}
}

// KMLDocumentOf builds a document with a placemark per positioned target
// and, when track is set, a line through them.
func KMLDocumentOf(name string, targets []target.Target, track bool) KML {
	doc := KMLDocument{
		Name: name,
		Styles: []KMLStyle{
			{ID: "aircraft", IconStyle: &KMLIconStyle{
				Scale: 0.8,
				Href:  "http://maps.google.com/mapfiles/kml/shapes/airports.png",
			}},
			{ID: "track", LineStyle: &KMLLineStyle{Color: "ff0000ff", Width: 2}},
		},
		Placemarks: []KMLPlacemark{},
	}
	for _, tg := range targets {
		if pm := KMLPoint(tg); pm != nil {
			doc.Placemarks = append(doc.Placemarks, *pm)
		}
	}
	if track {
		if pm := KMLTrack(targets); pm != nil {
			doc.Placemarks = append(doc.Placemarks, *pm)
		}
	}
	return KML{Namespace: kmlNamespace, Document: doc}
}

// MarshalKML encodes a document with the XML header.
func MarshalKML(k KML) ([]byte, error) {
	data, err := xml.MarshalIndent(k, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "marshal kml")
	}
	return append([]byte(xml.Header), data...), nil
}

// KMLFile rewrites a KML file for Google Earth on every publish.
type KMLFile struct {
	mu   sync.Mutex
	path string
}

// NewKMLFile creates a sink writing to path.
func NewKMLFile(path string) *KMLFile {
	return &KMLFile{path: path}
}

func (k *KMLFile) Name() string { return "kml" }

func (k *KMLFile) Publish(_ context.Context, snap table.Snapshot) error {
	return k.write(KMLDocumentOf("AirSafe aircraft", snap.Targets(), false))
}

func (k *KMLFile) PublishHistory(_ context.Context, targets []target.Target) error {
	return k.write(KMLDocumentOf("AirSafe history", targets, true))
}

func (k *KMLFile) write(doc KML) error {
	data, err := MarshalKML(doc)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return eris.Wrap(writeFileAtomic(k.path, data), "write kml")
}

func (k *KMLFile) Close() error { return nil }
