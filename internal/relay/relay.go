// Package relay runs the main loop: it drains the GPS line source, keeps the
// latest fix and broadcasts it to connected phones on a fixed interval.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/chaz8081/bikenav/internal/gps"
)

// Broadcaster sends a coordinate to every connected phone and keeps the
// peripheral discoverable. *ble.Controller implements it.
type Broadcaster interface {
	SendCoordinate(lat, lon float64) error
	HasConnections() bool
	Advertising() bool
	StartAdvertising() error
}

// FixPublisher receives every newly decoded fix.
type FixPublisher interface {
	PublishFix(fix gps.Fix) error
}

// Options configures a Loop.
type Options struct {
	PollInterval      time.Duration // default 100ms
	BroadcastInterval time.Duration // default 5s
	DefaultFix        *gps.Fix      // broadcast until the decoder has a fix
	Publisher         FixPublisher  // optional
	Clock             clock.Clock   // default wall clock
}

// DefaultOptions returns the standard timing: poll every 100ms, broadcast
// every 5s.
func DefaultOptions() Options {
	return Options{
		PollInterval:      100 * time.Millisecond,
		BroadcastInterval: 5 * time.Second,
	}
}

// Loop is the relay main loop. Step is not safe for concurrent use; Run
// calls it from a single goroutine.
type Loop struct {
	source  gps.LineSource
	decoder *gps.Decoder
	ble     Broadcaster
	opts    Options

	last time.Time
}

// New creates a Loop. source may be nil when no receiver is configured; the
// loop then only broadcasts opts.DefaultFix.
func New(source gps.LineSource, decoder *gps.Decoder, ble Broadcaster, opts Options) *Loop {
	def := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.BroadcastInterval <= 0 {
		opts.BroadcastInterval = def.BroadcastInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if decoder == nil {
		decoder = gps.NewDecoder(gps.DecoderOptions{})
	}
	return &Loop{
		source:  source,
		decoder: decoder,
		ble:     ble,
		opts:    opts,
		last:    opts.Clock.Now(),
	}
}

// Step runs one iteration: it feeds every pending receiver line to the
// decoder. Once per broadcast interval it restarts advertising if a
// previous restart failed, then broadcasts the current fix. The interval
// restarts whether or not anything was sent.
func (l *Loop) Step() {
	l.drain()

	now := l.opts.Clock.Now()
	if now.Sub(l.last) < l.opts.BroadcastInterval {
		return
	}
	l.last = now

	if !l.ble.Advertising() {
		if err := l.ble.StartAdvertising(); err != nil {
			slog.Warn("[RELAY] advertising restart failed", "error", err)
		} else {
			slog.Info("[RELAY] advertising restarted")
		}
	}

	if !l.ble.HasConnections() {
		return
	}
	fix, ok := l.Current()
	if !ok {
		slog.Debug("[RELAY] no fix yet, skipping broadcast")
		return
	}
	if err := l.ble.SendCoordinate(fix.Latitude, fix.Longitude); err != nil {
		slog.Warn("[RELAY] broadcast failed", "error", err)
		return
	}
	slog.Debug("[RELAY] broadcast", "lat", fix.Latitude, "lon", fix.Longitude)
}

func (l *Loop) drain() {
	if l.source == nil {
		return
	}
	for {
		line, ok := l.source.Poll()
		if !ok {
			return
		}
		fix, ok := l.decoder.Feed(line)
		if !ok {
			continue
		}
		slog.Info("[GPS] fix", "lat", fix.Latitude, "lon", fix.Longitude)
		if l.opts.Publisher != nil {
			if err := l.opts.Publisher.PublishFix(fix); err != nil {
				slog.Warn("[RELAY] publish fix failed", "error", err)
			}
		}
	}
}

// Current returns the decoder's fix, falling back to DefaultFix.
func (l *Loop) Current() (gps.Fix, bool) {
	if fix, ok := l.decoder.Last(); ok {
		return fix, true
	}
	if l.opts.DefaultFix != nil {
		return *l.opts.DefaultFix, true
	}
	return gps.Fix{}, false
}

// Run calls Step every poll interval until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.opts.Clock.Ticker(l.opts.PollInterval)
	defer ticker.Stop()

	slog.Info("[RELAY] started", "poll", l.opts.PollInterval, "broadcast", l.opts.BroadcastInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("[RELAY] stopped")
			return ctx.Err()
		case <-ticker.C:
			l.Step()
		}
	}
}
