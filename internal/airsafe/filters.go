package airsafe

import (
	"net/url"
	"strconv"
	"strings"
)

// Range is an inclusive lower/upper bound pair.
type Range struct {
	Min, Max float64
}

func (r *Range) value() string {
	return strconv.FormatFloat(r.Min, 'f', -1, 64) + "," + strconv.FormatFloat(r.Max, 'f', -1, 64)
}

// Filters are server-side filters shared by the stream and history endpoints.
type Filters struct {
	Latitude    *Range
	Longitude   *Range
	Altitude    *Range
	ICAOAddress []string
	TailNumber  []string
	Callsign    []string
	Airline     []string
	MaxAge      int // Seconds; 0 leaves the server default.
}

// Encode adds the filters to q.
func (f *Filters) Encode(q url.Values) {
	if f == nil {
		return
	}
	if f.Latitude != nil {
		q.Set("latitude_between", f.Latitude.value())
	}
	if f.Longitude != nil {
		q.Set("longitude_between", f.Longitude.value())
	}
	if f.Altitude != nil {
		q.Set("altitude_between", f.Altitude.value())
	}
	setList(q, "icao_address", f.ICAOAddress)
	setList(q, "tail_number", f.TailNumber)
	setList(q, "callsign", f.Callsign)
	setList(q, "airline", f.Airline)
	if f.MaxAge > 0 {
		q.Set("max_age", strconv.Itoa(f.MaxAge))
	}
}

func setList(q url.Values, key string, values []string) {
	var kept []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	if len(kept) > 0 {
		q.Set(key, strings.Join(kept, ","))
	}
}

// ParseRange parses "min,max" into a Range. An empty string yields nil.
func ParseRange(s string) (*Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	lo, hi, ok := strings.Cut(s, ",")
	if !ok {
		return nil, &rangeError{s}
	}
	minV, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return nil, &rangeError{s}
	}
	maxV, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return nil, &rangeError{s}
	}
	return &Range{Min: minV, Max: maxV}, nil
}

type rangeError struct{ s string }

func (e *rangeError) Error() string { return "invalid range " + strconv.Quote(e.s) + ", want min,max" }
