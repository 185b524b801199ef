// Package services holds the kiosk's background loops. Each service runs
// until its context is cancelled and is started from main under an errgroup.
package services

import (
	"context"
	"sync/atomic"
	"time"

	"kiosk-gateway/entities"
	"kiosk-gateway/usecases"
)

// CommandSink is the pipeline entry used by background intake adapters.
type CommandSink interface {
	Submit(ctx context.Context, req entities.CommandRequest, source usecases.Source) (entities.CommandOutcome, error)
}

// interval is a loop period that can be changed while the loop runs.
type interval struct {
	d      atomic.Int64
	change chan struct{}
}

func newInterval(d time.Duration) *interval {
	iv := &interval{change: make(chan struct{}, 1)}
	iv.d.Store(int64(d))
	return iv
}

func (iv *interval) get() time.Duration { return time.Duration(iv.d.Load()) }

func (iv *interval) set(d time.Duration) {
	if d <= 0 || d == iv.get() {
		return
	}
	iv.d.Store(int64(d))
	select {
	case iv.change <- struct{}{}:
	default:
	}
}

// tick calls fn every interval until ctx ends. When runNow is set fn also
// runs once immediately.
func (iv *interval) tick(ctx context.Context, runNow bool, fn func(context.Context)) {
	if runNow {
		fn(ctx)
	}
	ticker := time.NewTicker(iv.get())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-iv.change:
			ticker.Reset(iv.get())
		case <-ticker.C:
			fn(ctx)
		}
	}
}
