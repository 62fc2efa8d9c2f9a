package target

// Columns is the fixed row schema handed to presentation sinks.
var Columns = []string{
	"timestamp",
	"icao_address",
	"longitude",
	"latitude",
	"altitude",
	"collection_type",
	"flight_number",
	"callsign",
}

// Row is a target projected onto Columns. Absent values are "".
type Row [8]any

// Row projects the target onto the 8-column schema.
func (t *Target) Row() Row {
	return Row{
		t.Timestamp,
		t.ICAOAddress,
		orEmpty(t.Longitude),
		orEmpty(t.Latitude),
		orEmpty(t.Altitude),
		string(t.CollectionType),
		t.FlightNumber,
		t.Callsign,
	}
}

// Strings renders the row as text, for CSV and console output.
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, v := range r {
		switch x := v.(type) {
		case string:
			out[i] = x
		case float64:
			out[i] = formatFloat(x)
		}
	}
	return out
}

func orEmpty(f *FlexFloat) any {
	if f == nil {
		return ""
	}
	return float64(*f)
}
