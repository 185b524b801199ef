package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"kiosk-gateway/db"
	"kiosk-gateway/entities"
)

type eventPgRepository struct {
	db db.Database
}

func NewEventPgRepository(database db.Database) EventRepository {
	return &eventPgRepository{db: database}
}

func (r *eventPgRepository) Create(ctx context.Context, record *entities.EventRecord) error {
	return r.db.GetDB().WithContext(ctx).Create(record).Error
}

func (r *eventPgRepository) GetRecent(ctx context.Context, limit int) ([]entities.EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []entities.EventRecord
	err := r.db.GetDB().WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&records).Error
	return records, err
}

func (r *eventPgRepository) GetByTicket(ctx context.Context, ticketNumber string) ([]entities.EventRecord, error) {
	var records []entities.EventRecord
	err := r.db.GetDB().WithContext(ctx).Where("ticket_number = ?", ticketNumber).Order("timestamp ASC").Find(&records).Error
	return records, err
}

func (r *eventPgRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.GetDB().WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&entities.EventRecord{})
	return res.RowsAffected, res.Error
}

// ToRecord flattens an event for storage; metadata becomes a JSON string.
func ToRecord(evt entities.DeviceEvent) (*entities.EventRecord, error) {
	meta := "{}"
	if len(evt.Metadata) > 0 {
		b, err := json.Marshal(evt.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		meta = string(b)
	}
	return &entities.EventRecord{
		ID:           evt.EventID,
		Type:         string(evt.Type),
		TicketNumber: evt.TicketNumber,
		Description:  evt.Description,
		Metadata:     meta,
		Timestamp:    evt.Timestamp,
	}, nil
}

// EventSink adapts an EventRepository to the event logger's sink contract.
type EventSink struct {
	repo   EventRepository
	closer func() error
}

func NewEventSink(repo EventRepository, closer func() error) *EventSink {
	return &EventSink{repo: repo, closer: closer}
}

func (s *EventSink) Write(ctx context.Context, evt entities.DeviceEvent) error {
	record, err := ToRecord(evt)
	if err != nil {
		return err
	}
	return s.repo.Create(ctx, record)
}

func (s *EventSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
