package daq

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/obsidianstack/detqc/agent/internal/occupancy"
)

// maxLine bounds a single record. Hits with very long amplitude series
// still fit comfortably.
const maxLine = 1 << 20

// ErrMalformedRecord is returned for a line that is not a valid hit record.
var ErrMalformedRecord = errors.New("malformed hit record")

type record struct {
	Detector   *int      `json:"detector"`
	Coarse     *int      `json:"coarse"`
	Fine       *int      `json:"fine"`
	Channel    *int      `json:"channel"`
	Amplitudes []float64 `json:"amplitudes"`
}

func (r record) hit() (occupancy.Hit, error) {
	switch {
	case r.Detector == nil:
		return occupancy.Hit{}, errors.New("missing detector")
	case r.Coarse == nil:
		return occupancy.Hit{}, errors.New("missing coarse")
	case r.Fine == nil:
		return occupancy.Hit{}, errors.New("missing fine")
	}
	h := occupancy.Hit{
		Address: occupancy.Address{
			Detector: *r.Detector,
			Coarse:   *r.Coarse,
			Fine:     *r.Fine,
		},
		Amplitudes: r.Amplitudes,
	}
	if r.Channel != nil {
		h.Address.Channel = *r.Channel
	}
	return h, nil
}

// ReadHits decodes every record in r. The first malformed line aborts the
// read with an error naming the line number.
func ReadHits(r io.Reader) ([]occupancy.Hit, error) {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), maxLine)

	var hits []occupancy.Hit
	line := 0
	for scan.Scan() {
		line++
		b := bytes.TrimSpace(scan.Bytes())
		if len(b) == 0 || b[0] == '#' {
			continue
		}

		var rec record
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("daq: line %d: %w: %v", line, ErrMalformedRecord, err)
		}
		h, err := rec.hit()
		if err != nil {
			return nil, fmt.Errorf("daq: line %d: %w: %v", line, ErrMalformedRecord, err)
		}
		hits = append(hits, h)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("daq: read line %d: %w", line+1, err)
	}
	return hits, nil
}

// LoadHits reads the hit file at path.
func LoadHits(path string) ([]occupancy.Hit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("daq: open %q: %w", path, err)
	}
	defer f.Close()
	return ReadHits(f)
}

// WriteHits encodes hits as JSON lines. It is the inverse of ReadHits and is
// used to produce fixtures and replay files.
func WriteHits(w io.Writer, hits []occupancy.Hit) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, h := range hits {
		a := h.Address
		rec := record{
			Detector:   &a.Detector,
			Coarse:     &a.Coarse,
			Fine:       &a.Fine,
			Channel:    &a.Channel,
			Amplitudes: h.Amplitudes,
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("daq: encode hit %d: %w", i, err)
		}
	}
	return bw.Flush()
}
