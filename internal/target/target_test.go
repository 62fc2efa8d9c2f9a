package target

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexFloat_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
		valid bool
	}{
		{"integer", `123`, 123, true},
		{"decimal", `-84.4277`, -84.4277, true},
		{"string number", `"33.64"`, 33.64, true},
		{"padded string number", `" 12.5 "`, 12.5, true},
		{"zero", `0`, 0, true},
		{"empty string", `""`, 0, false},
		{"invalid string", `"not a number"`, 0, false},
		{"bool", `true`, 0, false},
		{"object", `{}`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FlexFloat
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			assert.Equal(t, tt.valid, got.Valid())
			if tt.valid {
				assert.InDelta(t, tt.want, float64(got), 1e-9)
			}
		})
	}
}

func TestTarget_UnmarshalJSON(t *testing.T) {
	t.Run("full object", func(t *testing.T) {
		var tg Target
		err := json.Unmarshal([]byte(`{
			"timestamp":"2021-07-27T22:00:00Z","icao_address":"398568",
			"longitude":2.55,"latitude":49.01,"altitude_baro":3500,
			"collection_type":"terrestrial","flight_number":"AF123","callsign":"AFR123",
			"heading":270.5,"on_ground":false}`), &tg)
		require.NoError(t, err)

		assert.Equal(t, "398568", tg.ICAOAddress)
		assert.Equal(t, Terrestrial, tg.CollectionType)
		assert.True(t, tg.HasPosition())
		assert.InDelta(t, 49.01, tg.Lat(), 1e-9)
		assert.InDelta(t, 2.55, tg.Lon(), 1e-9)
		assert.InDelta(t, 3500, tg.Alt(), 1e-9)
		require.NotNil(t, tg.OnGround)
		assert.False(t, *tg.OnGround)
	})

	t.Run("altitude fallback", func(t *testing.T) {
		var tg Target
		require.NoError(t, json.Unmarshal([]byte(`{"icao_address":"A1","altitude":1200}`), &tg))
		assert.InDelta(t, 1200, tg.Alt(), 1e-9)
	})

	t.Run("altitude_baro wins", func(t *testing.T) {
		var tg Target
		require.NoError(t, json.Unmarshal([]byte(`{"icao_address":"A1","altitude":1200,"altitude_baro":900}`), &tg))
		assert.InDelta(t, 900, tg.Alt(), 1e-9)
	})

	t.Run("unparseable coordinates are absent", func(t *testing.T) {
		var tg Target
		require.NoError(t, json.Unmarshal([]byte(`{
			"icao_address":"A1","collection_type":"satellite",
			"latitude":"n/a","longitude":true,"altitude_baro":"","heading":"270"}`), &tg))
		assert.False(t, tg.HasPosition())
		assert.Nil(t, tg.Latitude)
		assert.Nil(t, tg.Longitude)
		assert.Nil(t, tg.Altitude)
		require.NotNil(t, tg.Heading)
		assert.InDelta(t, 270, float64(*tg.Heading), 1e-9)
		assert.Equal(t, Row{"", "A1", "", "", "", "satellite", "", ""}, tg.Row())
	})

	t.Run("unparseable altitude_baro falls back", func(t *testing.T) {
		var tg Target
		require.NoError(t, json.Unmarshal([]byte(`{"icao_address":"A1","altitude_baro":"x","altitude":800}`), &tg))
		assert.InDelta(t, 800, tg.Alt(), 1e-9)
	})

	t.Run("absent optionals", func(t *testing.T) {
		var tg Target
		require.NoError(t, json.Unmarshal([]byte(`{"icao_address":"A1"}`), &tg))
		assert.False(t, tg.HasPosition())
		assert.Nil(t, tg.Altitude)
		assert.Empty(t, tg.Callsign)
	})
}

func TestTarget_Row(t *testing.T) {
	tg := Target{
		ICAOAddress:    "AA1",
		Longitude:      Float(2),
		Latitude:       Float(1),
		CollectionType: Satellite,
	}

	row := tg.Row()
	assert.Equal(t, Row{"", "AA1", 2.0, 1.0, "", "satellite", "", ""}, row)
	assert.Equal(t, []string{"", "AA1", "2", "1", "", "satellite", "", ""}, row.Strings())
	assert.Len(t, Columns, len(row))
}

func TestEnvelope_Kind(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{`{"target":{"icao_address":"A1"}}`, "target"},
		{`{"position_token":"abc"}`, "position_token"},
		{`{"status":{"level":"INFO","message":"keep-alive","timestamp":"x"}}`, "status"},
		{`{}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			var e Envelope
			require.NoError(t, json.Unmarshal([]byte(tt.line), &e))
			assert.Equal(t, tt.want, e.Kind())
		})
	}
}

func TestCategory_Known(t *testing.T) {
	assert.True(t, Satellite.Known())
	assert.True(t, Terrestrial.Known())
	assert.False(t, Category("radar").Known())
	assert.False(t, Category("").Known())
}
