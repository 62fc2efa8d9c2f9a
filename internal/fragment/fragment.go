// Package fragment extracts AirSafe target objects from raw stream chunks.
//
// Chunks arrive with no alignment to record boundaries. Extraction is
// deliberately shallow: a fragment is a brace-delimited object containing no
// inner braces, so for an envelope line such as
//
//	{"target":{"icao_address":"A1B2C3",...}}
//
// the inner target object is produced. Objects split across two chunks are
// lost; they are not reassembled.
package fragment

import (
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"airsafe_tracker/internal/target"
)

// Fragments returns the single-level brace objects found in chunk, in order.
func Fragments(chunk string) iter.Seq[string] {
	return func(yield func(string) bool) {
		i := 0
		for i < len(chunk) {
			start := strings.IndexByte(chunk[i:], '{')
			if start < 0 {
				return
			}
			start += i

			end := strings.IndexAny(chunk[start+1:], "{}")
			if end < 0 {
				return // Unterminated; the rest belongs to the next chunk.
			}
			end += start + 1

			if chunk[end] == '{' {
				// Nested object: restart at the inner brace.
				i = end
				continue
			}
			if !yield(chunk[start : end+1]) {
				return
			}
			i = end + 1
		}
	}
}

// DecodeError reports a fragment or line that was not valid JSON.
type DecodeError struct {
	Fragment string
	Line     int // 1-based line number in historical mode, 0 for stream fragments.
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("decode line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("decode fragment %q: %v", truncate(e.Fragment, 64), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Result contains everything recovered from one chunk.
type Result struct {
	Fragments      int
	Targets        []target.Target
	PositionTokens []string
	Statuses       []target.Status
	Errors         []*DecodeError
	MissingID      int // Well-formed fragments without an identifier.
}

// Parse decodes every fragment of chunk independently. A fragment that fails
// to decode is recorded in Result.Errors and does not stop the others.
func Parse(chunk []byte) Result {
	var res Result
	for frag := range Fragments(string(chunk)) {
		res.Fragments++
		parseFragment(frag, &res)
	}
	return res
}

func parseFragment(frag string, res *Result) {
	switch {
	case hasKey(frag, target.IdentifierKey):
		var t target.Target
		if err := json.Unmarshal([]byte(frag), &t); err != nil {
			res.Errors = append(res.Errors, &DecodeError{Fragment: frag, Err: err})
			return
		}
		if t.ICAOAddress == "" {
			res.MissingID++
			return
		}
		res.Targets = append(res.Targets, t)

	case hasKey(frag, "position_token"):
		var e target.Envelope
		if err := json.Unmarshal([]byte(frag), &e); err != nil {
			res.Errors = append(res.Errors, &DecodeError{Fragment: frag, Err: err})
			return
		}
		if e.PositionToken != "" {
			res.PositionTokens = append(res.PositionTokens, e.PositionToken)
		}

	case hasKey(frag, "level") && hasKey(frag, "message"):
		var s target.Status
		if err := json.Unmarshal([]byte(frag), &s); err != nil {
			res.Errors = append(res.Errors, &DecodeError{Fragment: frag, Err: err})
			return
		}
		res.Statuses = append(res.Statuses, s)

	default:
		if !json.Valid([]byte(frag)) {
			res.Errors = append(res.Errors, &DecodeError{Fragment: frag, Err: errInvalidJSON})
			return
		}
		res.MissingID++
	}
}

// hasKey is a byte-offset presence check, not a structural one.
func hasKey(frag, key string) bool {
	return strings.Index(frag, key) > 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
