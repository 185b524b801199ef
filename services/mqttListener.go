package services

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"kiosk-gateway/entities"
	"kiosk-gateway/gateway"
	"kiosk-gateway/logging"
	"kiosk-gateway/usecases"
)

const unsubscribeTimeout = 5 * time.Second

// MQTTListener feeds commands pushed on the request topic into the pipeline.
type MQTTListener struct {
	subscriber gateway.CommandSubscriber
	sink       CommandSink
	log        *zap.SugaredLogger

	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
}

func NewMQTTListener(subscriber gateway.CommandSubscriber, sink CommandSink) *MQTTListener {
	return &MQTTListener{
		subscriber: subscriber,
		sink:       sink,
		log:        logging.For("mqtt-listener"),
	}
}

// Run subscribes and feeds messages to the sink until ctx ends. Messages that
// arrive after that are dropped before their commandId is claimed, so a later
// delivery of the same command is still accepted.
func (l *MQTTListener) Run(ctx context.Context) error {
	if err := l.subscriber.SubscribeCommands(ctx, func(payload []byte) {
		if !l.begin(ctx) {
			l.log.Debugw("Listener stopping, message dropped", "size", len(payload))
			return
		}
		// The client's router must not wait for orchestration.
		go func() {
			defer l.inflight.Done()
			l.Handle(ctx, payload)
		}()
	}); err != nil {
		return err
	}
	<-ctx.Done()

	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	unsubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unsubscribeTimeout)
	defer cancel()
	if err := l.subscriber.UnsubscribeCommands(unsubCtx); err != nil {
		l.log.Warnw("Failed to unsubscribe from commands", "error", err)
	}
	l.inflight.Wait()
	l.log.Info("MQTT listener stopped")
	return nil
}

func (l *MQTTListener) begin(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || ctx.Err() != nil {
		return false
	}
	l.inflight.Add(1)
	return true
}

func (l *MQTTListener) Handle(ctx context.Context, payload []byte) {
	var req entities.CommandRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		l.log.Warnw("Discarding malformed command", "error", err, "size", len(payload))
		return
	}
	l.log.Infow("Command received", "commandId", req.CommandID, "type", req.Type)
	if _, err := l.sink.Submit(ctx, req, usecases.SourceMQTT); err != nil {
		l.log.Warnw("Pushed command did not complete", "commandId", req.CommandID, "error", err)
	}
}
