// Package gps decodes position fixes from an NMEA 0183 receiver and provides
// the line sources (serial UART, simulator) the relay polls.
package gps

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// SentenceGGA is the only sentence the decoder interprets.
const SentenceGGA = "$GPGGA"

// Fix is a position in signed decimal degrees (south and west negative).
type Fix struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// DecoderOptions configures the decoder.
type DecoderOptions struct {
	// LegacyLongitude reads longitude degrees from two characters like
	// latitude. It misreads longitudes of 100 degrees and more; only
	// enable it to match relays that shipped with that rule.
	LegacyLongitude bool
}

// Decoder turns $GPGGA lines into fixes and retains the last one.
// Not safe for concurrent use.
type Decoder struct {
	opts   DecoderOptions
	last   Fix
	hasFix bool
}

// NewDecoder creates a Decoder with no fix.
func NewDecoder(opts DecoderOptions) *Decoder {
	return &Decoder{opts: opts}
}

// Feed decodes one receiver line. It returns the new fix and true when the
// line is a $GPGGA sentence whose latitude and longitude both decode;
// otherwise it returns false and the retained fix is unchanged.
func (d *Decoder) Feed(line []byte) (Fix, bool) {
	if !utf8.Valid(line) {
		return Fix{}, false
	}
	text := string(bytes.TrimSpace(line))
	if !strings.HasPrefix(text, SentenceGGA) {
		return Fix{}, false
	}

	parts := strings.Split(text, ",")
	if len(parts) < 6 {
		return Fix{}, false
	}

	lonDegDigits := 3
	if d.opts.LegacyLongitude {
		lonDegDigits = 2
	}
	lat, ok := toDecimal(parts[2], parts[3], 2)
	if !ok {
		return Fix{}, false
	}
	lon, ok := toDecimal(parts[4], parts[5], lonDegDigits)
	if !ok {
		return Fix{}, false
	}

	d.last = Fix{Latitude: lat, Longitude: lon}
	d.hasFix = true
	return d.last, true
}

// Last returns the most recent fix, if any.
func (d *Decoder) Last() (Fix, bool) {
	return d.last, d.hasFix
}

// toDecimal converts DDMM.MMMM (degDigits=2) or DDDMM.MMMM (degDigits=3)
// to decimal degrees, negative for the S and W hemispheres.
func toDecimal(raw, hemisphere string, degDigits int) (float64, bool) {
	if len(raw) < 4 {
		return 0, false
	}
	deg, err := strconv.Atoi(raw[:degDigits])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.ParseFloat(raw[degDigits:], 64)
	if err != nil || math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return 0, false
	}

	coord := float64(deg) + minutes/60
	if hemisphere == "S" || hemisphere == "W" {
		coord = -coord
	}
	return coord, true
}
