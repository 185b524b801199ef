package repositories

import (
	"context"
	"time"

	"kiosk-gateway/entities"
)

type EventRepository interface {
	Create(ctx context.Context, record *entities.EventRecord) error
	GetRecent(ctx context.Context, limit int) ([]entities.EventRecord, error)
	GetByTicket(ctx context.Context, ticketNumber string) ([]entities.EventRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
