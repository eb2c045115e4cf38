package gps

import (
	"fmt"
	"math"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/benbjohnson/clock"
)

// SimOptions configures the simulated receiver.
type SimOptions struct {
	Latitude  float64
	Longitude float64
	Interval  time.Duration // default 2s
	Clock     clock.Clock   // default wall clock
}

// SimSource emits a checksummed $GPGGA sentence for a fixed position once
// per interval. It stands in for a receiver on boards without one.
type SimSource struct {
	opts SimOptions
	last time.Time
}

// Compile-time check that SimSource implements LineSource.
var _ LineSource = (*SimSource)(nil)

// NewSimSource creates a simulator. The first Poll emits immediately.
func NewSimSource(opts SimOptions) *SimSource {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &SimSource{opts: opts}
}

func (s *SimSource) Poll() ([]byte, bool) {
	now := s.opts.Clock.Now()
	if !s.last.IsZero() && now.Sub(s.last) < s.opts.Interval {
		return nil, false
	}
	s.last = now
	return []byte(FormatGGA(now, s.opts.Latitude, s.opts.Longitude)), true
}

func (s *SimSource) Close() error { return nil }

// FormatGGA renders a $GPGGA sentence with a valid checksum for the given
// UTC time and position, minutes to four decimals.
func FormatGGA(t time.Time, lat, lon float64) string {
	latText, ns := toDDMM(lat, 2, "N", "S")
	lonText, ew := toDDMM(lon, 3, "E", "W")
	t = t.UTC()
	payload := fmt.Sprintf("GPGGA,%02d%02d%02d.00,%s,%s,%s,%s,1,08,0.9,0.0,M,0.0,M,,",
		t.Hour(), t.Minute(), t.Second(), latText, ns, lonText, ew)
	return "$" + payload + "*" + nmea.Checksum(payload)
}

func toDDMM(v float64, degDigits int, pos, neg string) (string, string) {
	hemi := pos
	if v < 0 {
		hemi = neg
		v = -v
	}
	deg := math.Floor(v)
	minutes := math.Round((v-deg)*60*1e4) / 1e4
	if minutes >= 60 {
		deg++
		minutes = 0
	}
	return fmt.Sprintf("%0*d%07.4f", degDigits, int(deg), minutes), hemi
}
