package fragment

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"airsafe_tracker/internal/target"
)

var errInvalidJSON = errors.New("invalid JSON")

// LineResult contains the targets recovered from a newline-delimited body.
type LineResult struct {
	Lines   int
	Targets []target.Target
	Errors  []*DecodeError
}

// ParseLines decodes each non-empty line of r as an envelope. Lines that fail
// to decode are recorded and skipped. The returned error is only set when r
// itself fails.
func ParseLines(r io.Reader) (LineResult, error) {
	var res LineResult

	scanner := bufio.NewScanner(r)
	// Lines can be long; bump buffer.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	for scanner.Scan() {
		res.Lines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var e target.Envelope
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			res.Errors = append(res.Errors, &DecodeError{Fragment: line, Line: res.Lines, Err: err})
			continue
		}
		if e.Target != nil {
			res.Targets = append(res.Targets, *e.Target)
		}
	}

	if err := scanner.Err(); err != nil {
		return res, eris.Wrap(err, "read lines")
	}
	return res, nil
}
