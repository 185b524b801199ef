package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kiosk-gateway/entities"
	"kiosk-gateway/logging"
)

// MockGateway logs every call and acknowledges it. Used to bench-test a kiosk
// without a backend.
type MockGateway struct {
	deviceID string
	log      *zap.SugaredLogger
}

func NewMockGateway(deviceID string) *MockGateway {
	return &MockGateway{deviceID: deviceID, log: logging.For("gateway.mock")}
}

func (m *MockGateway) FetchPendingCommand(context.Context) (*entities.CommandRequest, error) {
	return nil, nil
}

func (m *MockGateway) SendHeartbeat(_ context.Context, status entities.DeviceStatus) (*entities.Ack, error) {
	m.log.Infow("Heartbeat", "status", status.Status, "printerReady", status.PrinterReady)
	return localAck("", m.deviceID, typeHeartbeat, "Heartbeat accepted", time.Now().UTC()), nil
}

func (m *MockGateway) ReportCommandResult(_ context.Context, outcome entities.CommandOutcome) (*entities.Ack, error) {
	m.log.Infow("Command result", "commandId", outcome.CommandID, "success", outcome.Success, "message", outcome.Message)
	return localAck(outcome.CommandID, m.deviceID, typeResult, "Result accepted", time.Now().UTC()), nil
}

func (m *MockGateway) ReportError(_ context.Context, commandID string, kind entities.ErrorKind, message string) (*entities.Ack, error) {
	m.log.Infow("Error report", "commandId", commandID, "kind", kind, "message", message)
	return localAck(commandID, m.deviceID, string(kind), "Error accepted", time.Now().UTC()), nil
}

func (m *MockGateway) Close() error { return nil }
