package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"kiosk-gateway/entities"
	"kiosk-gateway/logging"
	"kiosk-gateway/metrics"
	"kiosk-gateway/queue"
	"kiosk-gateway/usecases"
)

type CommandExecutor interface {
	Execute(ctx context.Context, cmd entities.CommandEnvelope, source usecases.Source) (entities.CommandOutcome, error)
	Abandon(cmds []entities.CommandEnvelope, reason string)
}

const shutdownReason = "gateway shutting down"

// QueueWorker executes staged commands one at a time in arrival order.
type QueueWorker struct {
	queue *queue.Queue
	exec  CommandExecutor
	log   *zap.SugaredLogger
}

func NewQueueWorker(q *queue.Queue, exec CommandExecutor) *QueueWorker {
	return &QueueWorker{queue: q, exec: exec, log: logging.For("queue-worker")}
}

// Flush reports every command still staged as dropped. It is safe to call
// again once producers have stopped.
func (w *QueueWorker) Flush() int {
	left := w.queue.Clear()
	if len(left) > 0 {
		w.exec.Abandon(left, shutdownReason)
	}
	metrics.SetQueueDepth(0)
	return len(left)
}

func (w *QueueWorker) Run(ctx context.Context) error {
	w.log.Info("Queue worker started")
	for {
		if ctx.Err() != nil {
			w.Flush()
			w.log.Info("Queue worker stopped")
			return nil
		}
		cmd, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				w.Flush()
				w.log.Info("Queue worker stopped")
				return nil
			}
			return err
		}
		metrics.SetQueueDepth(w.queue.Count())
		if _, err := w.exec.Execute(ctx, cmd, usecases.SourceQueue); err != nil {
			w.log.Warnw("Staged command did not complete", "commandId", cmd.CommandID, "error", err)
		}
	}
}
