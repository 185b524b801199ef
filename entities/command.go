package entities

import (
	"errors"
	"strings"
	"time"
)

type CommandType string

const (
	CommandPrint CommandType = "PRINT"
	CommandCall  CommandType = "CALL"
	// CommandReset is a pseudo type; it is the only one admitted while the device is in Error.
	CommandReset CommandType = "RESET"
)

// ParseCommandType normalizes the wire value. ok is false for anything that
// is not PRINT or CALL.
func ParseCommandType(raw string) (CommandType, bool) {
	t := CommandType(strings.ToUpper(strings.TrimSpace(raw)))
	switch t {
	case CommandPrint, CommandCall:
		return t, true
	}
	return t, false
}

var ErrMissingCommandData = errors.New("command envelope has no data")

// CommandData is the type-specific part of a backend command.
type CommandData struct {
	TicketNumber   string    `json:"ticketNumber"`
	DepartmentName string    `json:"departmentName"`
	QueuePosition  int       `json:"queuePosition,omitempty"`
	CounterNumber  string    `json:"counterNumber"`
	CreatedAt      time.Time `json:"createdAt"`
	Path           string    `json:"path"`
}

// CommandRequest is the envelope as it arrives over HTTP, MQTT or the poll endpoint.
type CommandRequest struct {
	CommandID string       `json:"commandId"`
	DeviceID  string       `json:"deviceId"`
	Timestamp time.Time    `json:"timestamp"`
	Type      string       `json:"type"`
	Data      *CommandData `json:"data"`
}

// CommandEnvelope is the internal, immutable form of a command. It is passed by value.
type CommandEnvelope struct {
	CommandID      string
	DeviceID       string
	Type           CommandType
	TicketNumber   string
	DepartmentName string
	CounterNumber  string
	QueuePosition  int
	CreatedAt      time.Time
	FilePath       string
	AudioPath      string
}

// Envelope converts a wire request. The type is normalized but not
// validated so that an unknown type can still be reported against its commandId.
func (r CommandRequest) Envelope() (CommandEnvelope, error) {
	if r.Data == nil {
		return CommandEnvelope{}, ErrMissingCommandData
	}
	t, _ := ParseCommandType(r.Type)
	env := CommandEnvelope{
		CommandID:      r.CommandID,
		DeviceID:       r.DeviceID,
		Type:           t,
		TicketNumber:   r.Data.TicketNumber,
		DepartmentName: r.Data.DepartmentName,
		CounterNumber:  r.Data.CounterNumber,
		QueuePosition:  r.Data.QueuePosition,
		CreatedAt:      r.Data.CreatedAt,
	}
	if env.CreatedAt.IsZero() {
		env.CreatedAt = r.Timestamp
	}
	switch t {
	case CommandPrint:
		env.FilePath = r.Data.Path
	case CommandCall:
		env.AudioPath = r.Data.Path
	}
	return env, nil
}

// CommandOutcome is what the pipeline reports for one processed command.
type CommandOutcome struct {
	CommandID    string    `json:"commandId"`
	Type         string    `json:"type"`
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	TicketNumber string    `json:"ticketNumber"`
	Kind         ErrorKind `json:"kind,omitempty"`
}
