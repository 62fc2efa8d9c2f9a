// Package storage persists aircraft positions published by ingestion
// pipelines. Every store implements sink.Sink and sink.HistorySink.
package storage

import (
	"strings"
	"time"

	"airsafe_tracker/internal/target"
)

// TimestampLayout is the AirSafe timestamp format.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Position is one stored aircraft report.
type Position struct {
	ICAOAddress  string    `json:"icao_address"`
	Category     string    `json:"collection_type"`
	Timestamp    time.Time `json:"timestamp"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	Altitude     *float64  `json:"altitude,omitempty"`
	Heading      *float64  `json:"heading,omitempty"`
	Speed        *float64  `json:"speed,omitempty"`
	FlightNumber string    `json:"flight_number,omitempty"`
	Callsign     string    `json:"callsign,omitempty"`
	TailNumber   string    `json:"tail_number,omitempty"`
	AircraftType string    `json:"aircraft_type,omitempty"`
	Airline      string    `json:"airline,omitempty"`
}

// NewPosition converts a target. ICAO addresses are stored upper-case; a
// missing or unparseable timestamp becomes the current time.
func NewPosition(tg target.Target) Position {
	return Position{
		ICAOAddress:  NormalizeICAO(tg.ICAOAddress),
		Category:     string(tg.CollectionType),
		Timestamp:    ParseTimestamp(tg.Timestamp),
		Latitude:     ptr(tg.Latitude),
		Longitude:    ptr(tg.Longitude),
		Altitude:     ptr(tg.Altitude),
		Heading:      ptr(tg.Heading),
		Speed:        ptr(tg.Speed),
		FlightNumber: tg.FlightNumber,
		Callsign:     tg.Callsign,
		TailNumber:   tg.TailNumber,
		AircraftType: tg.AircraftTypeICAO,
		Airline:      tg.AirlineName,
	}
}

// NormalizeICAO returns the key an ICAO address is stored and looked up by.
func NormalizeICAO(icao string) string {
	return strings.ToUpper(strings.TrimSpace(icao))
}

// ParseTimestamp parses an AirSafe or RFC 3339 timestamp.
func ParseTimestamp(s string) time.Time {
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}

func ptr(f *target.FlexFloat) *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}
