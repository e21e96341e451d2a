package transfer

import (
	"time"
)

// Progress is a point-in-time view of a transfer. Total and Percent are -1
// when the server did not declare a total size. ETA is -1 when no rate is
// established yet or the total is unknown.
type Progress struct {
	Received    int64
	Total       int64
	Percent     float64
	BytesPerSec float64
	ETA         time.Duration
}

// ProgressFunc receives throttled progress updates. It is invoked from the
// transfer goroutine; implementations must not block.
type ProgressFunc func(Progress)

// rateWindowSpan bounds how far back the rolling throughput window looks.
// A short window keeps the rate responsive to mid-transfer speed changes
// instead of averaging over the whole download.
const rateWindowSpan = 5 * time.Second

// progressMinInterval throttles ProgressFunc invocations during streaming.
const progressMinInterval = 200 * time.Millisecond

type rateSample struct {
	at       time.Time
	received int64
}

// rateWindow derives throughput and ETA from a rolling bytes/time window.
type rateWindow struct {
	samples []rateSample
}

// add records the cumulative received byte count at time now and drops
// samples older than rateWindowSpan, always retaining at least two so a
// rate can be computed.
func (w *rateWindow) add(now time.Time, received int64) {
	w.samples = append(w.samples, rateSample{at: now, received: received})
	cutoff := now.Add(-rateWindowSpan)
	trim := 0
	for trim < len(w.samples)-2 && w.samples[trim].at.Before(cutoff) {
		trim++
	}
	w.samples = w.samples[trim:]
}

// rate returns the current bytes/second, or 0 when fewer than two samples
// span a measurable interval.
func (w *rateWindow) rate() float64 {
	if len(w.samples) < 2 {
		return 0
	}
	first, last := w.samples[0], w.samples[len(w.samples)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(last.received-first.received) / elapsed
}

// snapshot builds a Progress for the given received/total counts.
func (w *rateWindow) snapshot(received, total int64) Progress {
	p := Progress{
		Received:    received,
		Total:       total,
		Percent:     -1,
		BytesPerSec: w.rate(),
		ETA:         -1,
	}
	if total > 0 {
		p.Percent = float64(received) / float64(total) * 100
		if p.BytesPerSec > 0 {
			p.ETA = time.Duration(float64(total-received) / p.BytesPerSec * float64(time.Second))
		}
	}
	return p
}
