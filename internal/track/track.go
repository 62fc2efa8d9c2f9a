// Package track summarises a historical track of one aircraft.
package track

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"airsafe_tracker/internal/target"
)

// Summary describes a list of reports in the order they were received.
type Summary struct {
	ICAOAddress  string  `json:"icao_address"`
	FlightNumber string  `json:"flight_number,omitempty"`
	Reports      int     `json:"reports"`
	Positioned   int     `json:"positioned"`
	First        string  `json:"first,omitempty"`
	Last         string  `json:"last,omitempty"`
	DistanceKM   float64 `json:"distance_km"`
}

// Path returns the positioned reports as a line string in lon/lat order.
func Path(targets []target.Target) orb.LineString {
	var ls orb.LineString
	for _, tg := range targets {
		if tg.HasPosition() {
			ls = append(ls, orb.Point{tg.Lon(), tg.Lat()})
		}
	}
	return ls
}

// Summarize computes the great-circle distance flown between consecutive
// positioned reports. Reports without a position are counted but skipped.
func Summarize(targets []target.Target) Summary {
	s := Summary{Reports: len(targets)}
	for _, tg := range targets {
		if s.ICAOAddress == "" {
			s.ICAOAddress = tg.ICAOAddress
		}
		if s.FlightNumber == "" {
			s.FlightNumber = tg.FlightNumber
		}
		if tg.Timestamp != "" {
			if s.First == "" {
				s.First = tg.Timestamp
			}
			s.Last = tg.Timestamp
		}
	}

	path := Path(targets)
	s.Positioned = len(path)
	for i := 1; i < len(path); i++ {
		s.DistanceKM += geo.DistanceHaversine(path[i-1], path[i]) / 1000
	}
	return s
}

func (s Summary) String() string {
	id := s.ICAOAddress
	if s.FlightNumber != "" {
		id += " (" + s.FlightNumber + ")"
	}
	return fmt.Sprintf("%s: %d reports, %d positioned, %s to %s, %.1f km",
		id, s.Reports, s.Positioned, s.First, s.Last, s.DistanceKM)
}
