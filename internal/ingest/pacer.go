package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

var errPacerBurst = errors.New("pacer: reservation exceeds burst")

// Pacer spaces calls at least interval apart across all goroutines sharing it.
// It is a burst-one token bucket driven by clock, so tests can move time.
type Pacer struct {
	clock    clockwork.Clock
	interval time.Duration
	limiter  *rate.Limiter
}

func NewPacer(clock clockwork.Clock, interval time.Duration) *Pacer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pacer{
		clock:    clock,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Wait reserves the next slot and blocks until it is reached or ctx is done.
// A cancelled wait hands its slot back.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.interval <= 0 {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := p.clock.Now()
	r := p.limiter.ReserveN(now, 1)
	if !r.OK() {
		return errPacerBurst
	}

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	timer := p.clock.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		r.CancelAt(p.clock.Now())
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
