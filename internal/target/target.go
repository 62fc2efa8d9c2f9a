// Package target provides AirSafe v2 target types and the envelope that
// carries them on the wire.
package target

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// IdentifierKey is the JSON key that identifies an aircraft.
const IdentifierKey = "icao_address"

// Category selects the table a target is folded into.
type Category string

const (
	Satellite   Category = "satellite"
	Terrestrial Category = "terrestrial"
)

// Categories lists the known categories in publication order.
var Categories = []Category{Satellite, Terrestrial}

// Known reports whether c is one of the known categories.
func (c Category) Known() bool {
	return c == Satellite || c == Terrestrial
}

// FlexFloat handles JSON fields that can be either string or number. Empty
// strings, unparseable strings and other JSON types decode as NaN, which
// Target.UnmarshalJSON turns into an absent field.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = FlexFloat(math.NaN())

	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*f = FlexFloat(v)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = FlexFloat(v)
		}
	}
	return nil
}

// Valid reports whether f is present and holds a number.
func (f *FlexFloat) Valid() bool {
	return f != nil && !math.IsNaN(float64(*f))
}

// Target is one aircraft position report. Pointer fields are nil when the
// key was absent from the source object.
type Target struct {
	Timestamp      string     `json:"timestamp,omitempty"`
	ICAOAddress    string     `json:"icao_address"`
	Longitude      *FlexFloat `json:"longitude,omitempty"`
	Latitude       *FlexFloat `json:"latitude,omitempty"`
	Altitude       *FlexFloat `json:"altitude_baro,omitempty"`
	CollectionType Category   `json:"collection_type,omitempty"`
	FlightNumber   string     `json:"flight_number,omitempty"`
	Callsign       string     `json:"callsign,omitempty"`

	// Optional v2 attributes, carried through to sinks that want them.
	Heading          *FlexFloat `json:"heading,omitempty"`
	Speed            *FlexFloat `json:"speed,omitempty"`
	VerticalRate     *FlexFloat `json:"vertical_rate,omitempty"`
	TailNumber       string     `json:"tail_number,omitempty"`
	AircraftTypeICAO string     `json:"aircraft_type_icao,omitempty"`
	AirlineName      string     `json:"airline_name,omitempty"`
	SquawkCode       string     `json:"squawk_code,omitempty"`
	OnGround         *bool      `json:"on_ground,omitempty"`
	IngestionTime    string     `json:"ingestion_time,omitempty"`
}

// UnmarshalJSON decodes a target, accepting "altitude" when
// "altitude_baro" is missing. Numeric fields that are not numbers are left
// nil.
func (t *Target) UnmarshalJSON(data []byte) error {
	type plain Target
	var aux struct {
		plain
		AltitudeFallback *FlexFloat `json:"altitude,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = Target(aux.plain)
	if !t.Altitude.Valid() {
		t.Altitude = aux.AltitudeFallback
	}
	for _, f := range []**FlexFloat{&t.Longitude, &t.Latitude, &t.Altitude, &t.Heading, &t.Speed, &t.VerticalRate} {
		if !(*f).Valid() {
			*f = nil
		}
	}
	return nil
}

// HasPosition returns true if the target carries both coordinates.
func (t *Target) HasPosition() bool {
	return t.Latitude != nil && t.Longitude != nil
}

// Lat returns the latitude, or 0 if absent.
func (t *Target) Lat() float64 { return value(t.Latitude) }

// Lon returns the longitude, or 0 if absent.
func (t *Target) Lon() float64 { return value(t.Longitude) }

// Alt returns the barometric altitude, or 0 if absent.
func (t *Target) Alt() float64 { return value(t.Altitude) }

func value(f *FlexFloat) float64 {
	if f == nil {
		return 0
	}
	return float64(*f)
}

// Float returns a FlexFloat pointer for v.
func Float(v float64) *FlexFloat {
	f := FlexFloat(v)
	return &f
}
