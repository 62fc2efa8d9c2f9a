package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"airsafe_tracker/internal/airsafe"
)

// Filters converts the configured filters into API filters.
func (f FilterConfig) Filters() (*airsafe.Filters, error) {
	out := &airsafe.Filters{
		ICAOAddress: f.ICAOAddress,
		TailNumber:  f.TailNumber,
		Callsign:    f.Callsign,
		Airline:     f.Airline,
		MaxAge:      f.MaxAge,
	}

	ranges := []struct {
		name string
		raw  string
		dst  **airsafe.Range
	}{
		{"latitude_between", f.LatitudeBetween, &out.Latitude},
		{"longitude_between", f.LongitudeBetween, &out.Longitude},
		{"altitude_between", f.AltitudeBetween, &out.Altitude},
	}
	for _, r := range ranges {
		if r.raw == "" {
			continue
		}
		rng, err := airsafe.ParseRange(r.raw)
		if err != nil {
			return nil, eris.Wrapf(err, "config: %s", r.name)
		}
		*r.dst = rng
	}
	return out, nil
}

// StreamQuery builds the stream request.
func (c StreamConfig) StreamQuery() (airsafe.StreamQuery, error) {
	filters, err := c.Filters.Filters()
	if err != nil {
		return airsafe.StreamQuery{}, err
	}
	return airsafe.StreamQuery{
		Compression:   c.Compression,
		LateFilter:    c.LateFilter,
		PositionToken: c.PositionToken,
		Filters:       filters,
	}, nil
}

// HistoryQuery builds the history request. The ICAO address is required. An
// empty end means now and an empty start means one hour before end.
func (c HistoryConfig) HistoryQuery(now time.Time) (airsafe.HistoryQuery, error) {
	icao := strings.TrimSpace(c.ICAOAddress)
	if icao == "" {
		return airsafe.HistoryQuery{}, eris.New("config: history.icao_address is required")
	}

	filters, err := c.Filters.Filters()
	if err != nil {
		return airsafe.HistoryQuery{}, err
	}

	end := now
	if c.End != "" {
		if end, err = time.Parse(time.RFC3339, c.End); err != nil {
			return airsafe.HistoryQuery{}, eris.Wrap(err, "config: history.end")
		}
	}
	start := end.Add(-time.Hour)
	if c.Start != "" {
		if start, err = time.Parse(time.RFC3339, c.Start); err != nil {
			return airsafe.HistoryQuery{}, eris.Wrap(err, "config: history.start")
		}
	}
	if !start.Before(end) {
		return airsafe.HistoryQuery{}, eris.Errorf("config: history start %s is not before end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	return airsafe.HistoryQuery{
		ICAOAddress: icao,
		Start:       start,
		End:         end,
		Filters:     filters,
	}, nil
}
