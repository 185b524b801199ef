package entities

import (
	"time"
)

type EventType string

const (
	EventPrintStarted    EventType = "PrintStarted"
	EventPrintCompleted  EventType = "PrintCompleted"
	EventPrintFailed     EventType = "PrintFailed"
	EventCallStarted     EventType = "CallStarted"
	EventCallCompleted   EventType = "CallCompleted"
	EventCallFailed      EventType = "CallFailed"
	EventDeviceError     EventType = "DeviceError"
	EventDeviceOnline    EventType = "DeviceOnline"
	EventDeviceOffline   EventType = "DeviceOffline"
	EventHeartbeatSent   EventType = "HeartbeatSent"
	EventCommandReceived EventType = "CommandReceived"
)

// LifecycleEvents returns the started/completed/failed tags for a command type.
func LifecycleEvents(t CommandType) (started, completed, failed EventType) {
	if t == CommandCall {
		return EventCallStarted, EventCallCompleted, EventCallFailed
	}
	return EventPrintStarted, EventPrintCompleted, EventPrintFailed
}

// DeviceEvent is immutable once logged; EventID and Timestamp are assigned by the event logger.
type DeviceEvent struct {
	EventID      string         `json:"eventId"`
	Type         EventType      `json:"type"`
	TicketNumber string         `json:"ticketNumber,omitempty"`
	Description  string         `json:"description"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// EventRecord is the persisted form of a DeviceEvent.
type EventRecord struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Type         string    `gorm:"index;type:varchar(32)" json:"type"`
	TicketNumber string    `gorm:"index;type:varchar(64)" json:"ticket_number"`
	Description  string    `gorm:"type:text" json:"description"`
	Metadata     string    `gorm:"type:text" json:"metadata"` // JSON string
	Timestamp    time.Time `gorm:"index" json:"timestamp"`
}

func (EventRecord) TableName() string { return "device_events" }
