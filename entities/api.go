package entities

import "time"

const ProtocolVersion = "1.0.0"

// APIMessage is the common shape of every message exchanged with the backend.
type APIMessage[T any] struct {
	CommandID string    `json:"commandId"`
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Status    bool      `json:"status"`
	Data      T         `json:"data"`
}

// Ack is the backend's reply to an outbound message.
type Ack = APIMessage[map[string]any]

type TicketData struct {
	TicketNumber string `json:"ticketNumber"`
}

// CommandResponse is returned to HTTP intake callers.
type CommandResponse = APIMessage[*TicketData]

type ResultData struct {
	Status bool `json:"status"`
}

type DeviceInfo struct {
	Name       string `json:"name"`
	ID         string `json:"id"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Volume     *int   `json:"volume,omitempty"`
	Paper      string `json:"paper,omitempty"`
	IsPlaying  bool   `json:"isPlaying"`
	IsPrinting bool   `json:"isPrinting"`
}

type HeartbeatData struct {
	Speaker DeviceInfo `json:"speaker"`
	Printer DeviceInfo `json:"printer"`
}

type CallSystemStatus int

const (
	CallSystemOff   CallSystemStatus = 0
	CallSystemOn    CallSystemStatus = 1
	CallSystemError CallSystemStatus = 2
)

// DeviceStatus aggregates the peripheral probes at one instant.
type DeviceStatus struct {
	DeviceID         string           `json:"deviceId"`
	Status           string           `json:"status"`
	PrinterReady     bool             `json:"printerReady"`
	PrinterStatus    string           `json:"printerStatus"`
	DisplayStatus    string           `json:"displayStatus"`
	CallSystemStatus CallSystemStatus `json:"callSystemStatus"`
	Printing         bool             `json:"-"`
	Calling          bool             `json:"-"`
	LastHeartbeat    time.Time        `json:"lastHeartbeat"`
}

const defaultSpeakerVolume = 80

// Heartbeat renders the status as the heartbeat payload expected by the backend.
func (s DeviceStatus) Heartbeat() HeartbeatData {
	volume := defaultSpeakerVolume
	speakerStatus := "Online"
	if s.CallSystemStatus != CallSystemOn {
		speakerStatus = "Offline"
	}
	printerStatus := "Online"
	if !s.PrinterReady {
		printerStatus = "Offline"
	}
	return HeartbeatData{
		Speaker: DeviceInfo{
			Name:      "Speaker",
			ID:        "SPEAKER_01",
			Type:      "Audio",
			Status:    speakerStatus,
			Volume:    &volume,
			IsPlaying: s.Calling,
		},
		Printer: DeviceInfo{
			Name:       "Printer",
			ID:         "PRINTER_01",
			Type:       "Thermal",
			Status:     printerStatus,
			Paper:      s.PrinterStatus,
			IsPrinting: s.Printing,
		},
	}
}
