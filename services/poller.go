package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"kiosk-gateway/entities"
	"kiosk-gateway/gateway"
	"kiosk-gateway/logging"
	"kiosk-gateway/usecases"
)

type CommandFetcher interface {
	FetchPendingCommand(ctx context.Context) (*entities.CommandRequest, error)
}

// Poller asks the backend for the next pending command at a fixed interval.
type Poller struct {
	fetcher  CommandFetcher
	sink     CommandSink
	interval *interval
	log      *zap.SugaredLogger
}

func NewPoller(fetcher CommandFetcher, sink CommandSink, every time.Duration) *Poller {
	return &Poller{
		fetcher:  fetcher,
		sink:     sink,
		interval: newInterval(every),
		log:      logging.For("poller"),
	}
}

func (p *Poller) SetInterval(d time.Duration) { p.interval.set(d) }

func (p *Poller) Run(ctx context.Context) error {
	p.log.Infow("Command polling started", "interval", p.interval.get())
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsupported := false
	p.interval.tick(loopCtx, false, func(ctx context.Context) {
		if unsupported {
			return
		}
		if !p.PollOnce(ctx) {
			unsupported = true
			cancel()
		}
	})
	if unsupported {
		p.log.Warn("Transport does not support polling, poller stopped")
		return nil
	}
	p.log.Info("Command polling stopped")
	return nil
}

// PollOnce fetches and submits at most one command. It returns false when
// the transport cannot be polled at all.
func (p *Poller) PollOnce(ctx context.Context) bool {
	req, err := p.fetcher.FetchPendingCommand(ctx)
	switch {
	case errors.Is(err, gateway.ErrNotSupported):
		return false
	case err != nil:
		if ctx.Err() == nil {
			p.log.Errorw("Polling error", "error", err)
		}
		return true
	case req == nil:
		return true
	}

	p.log.Infow("Received command", "commandId", req.CommandID, "type", req.Type)
	if _, err := p.sink.Submit(ctx, *req, usecases.SourcePoll); err != nil {
		p.log.Warnw("Polled command did not complete", "commandId", req.CommandID, "error", err)
	}
	return true
}
