// Package simulate produces synthetic AirSafe traffic for local runs and
// tests.
package simulate

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"airsafe_tracker/internal/target"
)

var airlines = []string{"Lufthansa", "KLM", "Air France", "United Airlines", "Qantas", "Emirates", "Delta Air Lines"}

var aircraftTypes = []string{"A320", "A321", "A359", "B738", "B77W", "B789", "E190"}

// Generator moves a fixed fleet of aircraft and reports their positions.
// It is safe for concurrent use.
type Generator struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
	fleet []target.Target
	now   func() time.Time
}

// NewGenerator creates a fleet of n aircraft. The same seed always yields the
// same fleet and the same sequence of moves.
func NewGenerator(seed int64, n int) *Generator {
	g := &Generator{
		faker: gofakeit.New(seed),
		fleet: make([]target.Target, 0, n),
		now:   time.Now,
	}
	seen := make(map[string]bool, n)
	for len(g.fleet) < n {
		tg := g.aircraft()
		if seen[tg.ICAOAddress] {
			continue
		}
		seen[tg.ICAOAddress] = true
		g.fleet = append(g.fleet, tg)
	}
	return g
}

func (g *Generator) aircraft() target.Target {
	f := g.faker
	airline := f.RandomString(airlines)
	prefix := string([]rune(airline)[:2])
	flight := fmt.Sprintf("%s%d", prefix, f.IntRange(10, 9999))

	category := target.Terrestrial
	if f.Bool() {
		category = target.Satellite
	}

	onGround := false
	return target.Target{
		ICAOAddress:      fmt.Sprintf("%06X", f.IntRange(0x100000, 0xFFFFFF)),
		Latitude:         target.Float(round(f.Float64Range(-70, 70), 5)),
		Longitude:        target.Float(round(f.Float64Range(-180, 180), 5)),
		Altitude:         target.Float(float64(f.IntRange(50, 410) * 100)),
		Heading:          target.Float(round(f.Float64Range(0, 360), 1)),
		Speed:            target.Float(float64(f.IntRange(180, 520))),
		VerticalRate:     target.Float(0),
		CollectionType:   category,
		FlightNumber:     flight,
		Callsign:         flight,
		TailNumber:       f.Lexify("??-???"),
		AircraftTypeICAO: f.RandomString(aircraftTypes),
		AirlineName:      airline,
		SquawkCode:       f.Numerify("####"),
		OnGround:         &onGround,
	}
}

// Fleet returns a copy of the current fleet state.
func (g *Generator) Fleet() []target.Target {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]target.Target, len(g.fleet))
	copy(out, g.fleet)
	return out
}

// Next advances one random aircraft along its heading and returns its new
// report.
func (g *Generator) Next() target.Target {
	g.mu.Lock()
	defer g.mu.Unlock()

	i := g.faker.IntRange(0, len(g.fleet)-1)
	tg := g.fleet[i]

	rad := value(tg.Heading) * math.Pi / 180
	step := 0.01 + g.faker.Float64Range(0, 0.05)
	lat := clamp(tg.Lat()+step*math.Cos(rad), -85, 85)
	lon := wrap(tg.Lon() + step*math.Sin(rad))

	tg.Latitude = target.Float(round(lat, 5))
	tg.Longitude = target.Float(round(lon, 5))
	tg.Timestamp = g.now().UTC().Format("2006-01-02T15:04:05.000Z")
	tg.IngestionTime = tg.Timestamp
	g.fleet[i] = tg
	return tg
}

// Take returns the next n reports.
func (g *Generator) Take(n int) []target.Target {
	out := make([]target.Target, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func wrap(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

// Track returns n successive reports of one aircraft, oldest first. An
// unknown or empty ICAO address selects the first aircraft of the fleet.
func (g *Generator) Track(icao string, n int) []target.Target {
	g.mu.Lock()
	defer g.mu.Unlock()

	i := 0
	for j := range g.fleet {
		if g.fleet[j].ICAOAddress == icao {
			i = j
			break
		}
	}
	tg := g.fleet[i]
	if icao != "" {
		tg.ICAOAddress = icao
	}

	start := g.now().Add(-time.Duration(n) * time.Minute)
	out := make([]target.Target, n)
	for k := range out {
		rad := value(tg.Heading) * math.Pi / 180
		tg.Latitude = target.Float(round(clamp(tg.Lat()+0.05*math.Cos(rad), -85, 85), 5))
		tg.Longitude = target.Float(round(wrap(tg.Lon()+0.05*math.Sin(rad)), 5))
		tg.Timestamp = start.Add(time.Duration(k) * time.Minute).UTC().Format("2006-01-02T15:04:05.000Z")
		out[k] = tg
	}
	return out
}

func (g *Generator) chunkSize(limit int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.faker.IntRange(1, limit)
}

func value(f *target.FlexFloat) float64 {
	if f == nil {
		return 0
	}
	return float64(*f)
}
