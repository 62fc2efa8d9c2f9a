package fragment

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airsafe_tracker/internal/target"
)

func TestFragments(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  []string
	}{
		{"empty", ``, nil},
		{"no braces", `keep-alive\n`, nil},
		{"single", `{"a":1}`, []string{`{"a":1}`}},
		{"two adjacent", `{"a":1}{"b":2}`, []string{`{"a":1}`, `{"b":2}`}},
		{"newline separated", "{\"a\":1}\n{\"b\":2}\n", []string{`{"a":1}`, `{"b":2}`}},
		{"envelope yields inner", `{"target":{"icao_address":"A1"}}`, []string{`{"icao_address":"A1"}`}},
		{"truncated tail", `{"a":1}{"icao_address":"AA2"`, []string{`{"a":1}`}},
		{"leading partial", `"x":1}{"a":1}`, []string{`{"a":1}`}},
		{"deeply nested", `{"x":{"y":{"z":1}}}`, []string{`{"z":1}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := slices.Collect(Fragments(tt.chunk))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFragments_StopsEarly(t *testing.T) {
	var seen []string
	for f := range Fragments(`{"a":1}{"b":2}{"c":3}`) {
		seen = append(seen, f)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, seen)
}

func TestParse_SingleTarget(t *testing.T) {
	res := Parse([]byte(`{"icao_address":"AA1","collection_type":"satellite","latitude":1,"longitude":2}`))

	require.Len(t, res.Targets, 1)
	assert.Empty(t, res.Errors)
	tg := res.Targets[0]
	assert.Equal(t, "AA1", tg.ICAOAddress)
	assert.Equal(t, target.Satellite, tg.CollectionType)
	assert.InDelta(t, 1, tg.Lat(), 1e-9)
	assert.InDelta(t, 2, tg.Lon(), 1e-9)
}

func TestParse_UnparseableCoordinatesAreEmpty(t *testing.T) {
	res := Parse([]byte(`{"icao_address":"A1","collection_type":"satellite","latitude":"n/a","longitude":true}`))

	require.Len(t, res.Targets, 1)
	assert.Empty(t, res.Errors)
	tg := res.Targets[0]
	assert.False(t, tg.HasPosition())
	assert.Equal(t, []string{"", "A1", "", "", "", "satellite", "", ""}, tg.Row().Strings())
}

func TestParse_DecodeErrorIsolated(t *testing.T) {
	chunk := `{"icao_address":"AA1","collection_type":"satellite"}` +
		`{"icao_address": AA2, "collection_type":"satellite"}` +
		`{"icao_address":"AA3","collection_type":"terrestrial"}`

	res := Parse([]byte(chunk))

	assert.Equal(t, 3, res.Fragments)
	require.Len(t, res.Targets, 2)
	assert.Equal(t, "AA1", res.Targets[0].ICAOAddress)
	assert.Equal(t, "AA3", res.Targets[1].ICAOAddress)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Fragment, "AA2")
	assert.Zero(t, res.Errors[0].Line)
}

func TestParse_TruncatedTrailingFragment(t *testing.T) {
	chunk := `{"icao_address":"AA1","collection_type":"satellite","latitude":1,"longitude":2}{"icao_address":"AA2"`

	res := Parse([]byte(chunk))

	require.Len(t, res.Targets, 1)
	assert.Equal(t, "AA1", res.Targets[0].ICAOAddress)
	assert.Empty(t, res.Errors)
}

func TestParse_MissingIdentifierDropped(t *testing.T) {
	res := Parse([]byte(`{"collection_type":"satellite","latitude":1}{"foo":"bar"}`))

	assert.Empty(t, res.Targets)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.MissingID)
}

func TestParse_EmptyIdentifierDropped(t *testing.T) {
	res := Parse([]byte(`{"icao_address":"","collection_type":"satellite"}`))

	assert.Empty(t, res.Targets)
	assert.Equal(t, 1, res.MissingID)
}

func TestParse_EnvelopeStream(t *testing.T) {
	chunk := strings.Join([]string{
		`{"target":{"icao_address":"A1","collection_type":"terrestrial","latitude":33.6,"longitude":-84.4}}`,
		`{"position_token":"tok-123"}`,
		`{"status":{"timestamp":"2021-07-27T22:00:00Z","level":"INFO","message":"keep-alive"}}`,
		``,
	}, "\n")

	res := Parse([]byte(chunk))

	require.Len(t, res.Targets, 1)
	assert.Equal(t, "A1", res.Targets[0].ICAOAddress)
	assert.Equal(t, []string{"tok-123"}, res.PositionTokens)
	require.Len(t, res.Statuses, 1)
	assert.Equal(t, "keep-alive", res.Statuses[0].Message)
	assert.Zero(t, res.MissingID)
}

func TestParse_InvalidUnclassifiedFragment(t *testing.T) {
	res := Parse([]byte(`{not json}`))

	require.Len(t, res.Errors, 1)
	assert.True(t, errors.Is(res.Errors[0], errInvalidJSON))
}

func TestParseLines(t *testing.T) {
	body := strings.Join([]string{
		`{"target":{"icao_address":"398568","latitude":49.0,"longitude":2.5,"timestamp":"2021-07-27T22:00:00Z"}}`,
		``,
		`{"target":{"icao_address":"398568", broken`,
		`{"target":{"icao_address":"398568","latitude":49.1,"longitude":2.6,"timestamp":"2021-07-27T22:00:10Z"}}`,
	}, "\n")

	res, err := ParseLines(strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, 4, res.Lines)
	require.Len(t, res.Targets, 2)
	assert.InDelta(t, 49.1, res.Targets[1].Lat(), 1e-9)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].Line)
	assert.Contains(t, res.Errors[0].Error(), "decode line 3")
}
