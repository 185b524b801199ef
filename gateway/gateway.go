// Package gateway delivers heartbeats, command results and error reports to
// the backend over one of several interchangeable transports.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"kiosk-gateway/entities"
)

var ErrNotSupported = errors.New("operation not supported by this transport")

const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
	TransportMock = "mock"
)

const (
	typeHeartbeat     = "HEARTBEAT"
	typeResult        = "RESULT"
	typeCommandResult = "COMMAND_RESULT"
)

// Gateway is the single contract the core uses to talk to the backend. The
// core never branches on which implementation it holds.
type Gateway interface {
	// FetchPendingCommand returns nil when nothing is pending. Push transports
	// return ErrNotSupported.
	FetchPendingCommand(ctx context.Context) (*entities.CommandRequest, error)
	SendHeartbeat(ctx context.Context, status entities.DeviceStatus) (*entities.Ack, error)
	ReportCommandResult(ctx context.Context, outcome entities.CommandOutcome) (*entities.Ack, error)
	ReportError(ctx context.Context, commandID string, kind entities.ErrorKind, message string) (*entities.Ack, error)
	Close() error
}

// Settings selects and configures a transport.
type Settings struct {
	Transport string
	DeviceID  string
	DeviceMAC string

	BaseURL string
	Timeout time.Duration

	BrokerURL string
	Username  string
	Password  string
	ClientID  string
	BaseTopic string
}

// New builds the transport named in s.
func New(s Settings) (Gateway, error) {
	switch strings.ToLower(s.Transport) {
	case TransportHTTP, "":
		return NewHTTPGateway(s.BaseURL, s.DeviceID, s.Timeout), nil
	case TransportMQTT:
		return NewMQTTGateway(s), nil
	case TransportMock:
		return NewMockGateway(s.DeviceID), nil
	}
	return nil, fmt.Errorf("unknown backend transport %q", s.Transport)
}

func heartbeatMessage(deviceID string, status entities.DeviceStatus, now time.Time) entities.APIMessage[entities.HeartbeatData] {
	return entities.APIMessage[entities.HeartbeatData]{
		CommandID: uuid.NewString(),
		DeviceID:  deviceID,
		Timestamp: now,
		Version:   entities.ProtocolVersion,
		Type:      typeHeartbeat,
		Message:   "Heartbeat",
		Status:    true,
		Data:      status.Heartbeat(),
	}
}

func resultMessage(deviceID, msgType string, outcome entities.CommandOutcome, now time.Time) entities.APIMessage[entities.ResultData] {
	return entities.APIMessage[entities.ResultData]{
		CommandID: outcome.CommandID,
		DeviceID:  deviceID,
		Timestamp: now,
		Version:   entities.ProtocolVersion,
		Type:      msgType,
		Message:   outcome.Message,
		Status:    outcome.Success,
		Data:      entities.ResultData{Status: outcome.Success},
	}
}

func errorMessage(deviceID, commandID string, kind entities.ErrorKind, message string, now time.Time) entities.APIMessage[map[string]any] {
	return entities.APIMessage[map[string]any]{
		CommandID: commandID,
		DeviceID:  deviceID,
		Timestamp: now,
		Version:   entities.ProtocolVersion,
		Type:      string(kind),
		Message:   message,
		Status:    false,
		Data:      map[string]any{},
	}
}

func localAck(commandID, deviceID, msgType, message string, now time.Time) *entities.Ack {
	return &entities.Ack{
		CommandID: commandID,
		DeviceID:  deviceID,
		Timestamp: now,
		Version:   entities.ProtocolVersion,
		Type:      msgType,
		Message:   message,
		Status:    true,
		Data:      map[string]any{},
	}
}
