package ingest

// Stats counts what a stream pipeline has seen.
type Stats struct {
	Session         string `json:"session"`
	Chunks          int    `json:"chunks"`
	Bytes           int64  `json:"bytes"`
	Fragments       int    `json:"fragments"`
	Accepted        int    `json:"accepted"`
	Inserted        int    `json:"inserted"`
	Updated         int    `json:"updated"`
	DecodeErrors    int    `json:"decode_errors"`
	MissingID       int    `json:"missing_id"`
	UnknownCategory int    `json:"unknown_category"`
	Statuses        int    `json:"statuses"`
	Publishes       int    `json:"publishes"`
	PositionToken   string `json:"position_token,omitempty"`
}
