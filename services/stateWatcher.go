package services

import (
	"context"

	"kiosk-gateway/entities"
)

type StateSubscriber interface {
	Subscribe(buffer int) (<-chan entities.StateChange, func())
}

// WatchState forwards every state change to the observers until ctx ends.
func WatchState(ctx context.Context, sm StateSubscriber, observers ...func(entities.StateChange)) error {
	changes, unsubscribe := sm.Subscribe(64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			for _, observe := range observers {
				observe(change)
			}
		}
	}
}
