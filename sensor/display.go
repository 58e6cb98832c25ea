package sensor

import (
	"log"
	"time"

	rpio "github.com/stianeikeland/go-rpio/v4"
)

// FrameGap is the idle clock time that marks the start of a new frame.
const FrameGap = 5 * time.Millisecond

// Capture reads display frames off the panel bus on the given clock and data pins and
// writes complete frames to stream until stop is closed, then closes stream.
// Data is sampled on each rising clock edge, most significant bit first.
// The GPIO memory must already be open with rpio.Open and stay open until stream is closed.
func Capture(clkPin, dataPin int, stream chan<- Frame, stop <-chan struct{}) {
	clk := rpio.Pin(clkPin)
	data := rpio.Pin(dataPin)
	clk.Input()
	data.Input()

	go func() {
		defer close(stream)
		var (
			shift    uint32
			bits     int
			partials int
			lastEdge time.Time
			prev     = clk.Read()
			lastLog  = time.Now()
		)
		for i := 0; ; i++ {
			if i&0xFFFF == 0 {
				select {
				case <-stop:
					return
				default:
				}
				if partials > 0 && time.Since(lastLog) > time.Minute {
					log.Printf("Dropped %d partial display frames", partials)
					partials = 0
					lastLog = time.Now()
				}
			}

			cur := clk.Read()
			if cur == prev {
				continue
			}
			prev = cur
			if cur != rpio.High {
				continue
			}

			now := time.Now()
			if !lastEdge.IsZero() && now.Sub(lastEdge) > FrameGap && bits != 0 {
				partials++
				shift, bits = 0, 0
			}
			lastEdge = now

			shift = shift<<1 | uint32(data.Read())
			bits++
			if bits == frameBits {
				select {
				case stream <- Frame(shift):
				default: // reader is behind, drop the frame
				}
				shift, bits = 0, 0
			}
		}
	}()
}

// RefreshCheck is how often Decode checks if the set temperature has gone stale.
const RefreshCheck = 10 * time.Second

// Decode runs frames through a tracker and calls publish for every reading that changed.
// When the set temperature hasn't been shown for SetRefresh, refresh is called so the
// caller can make the panel show it again. Returns when frames is closed.
func Decode(frames <-chan Frame, t *Tracker, publish func(Reading), refresh func()) {
	tick := time.NewTicker(RefreshCheck)
	defer tick.Stop()
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			for _, r := range t.Feed(f, time.Now()) {
				publish(r)
			}
		case now := <-tick.C:
			if refresh != nil && !t.InSetMode() && t.SetStale(now) {
				t.SetRequested(now)
				refresh()
			}
		}
	}
}
