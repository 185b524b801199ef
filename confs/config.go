package confs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"kiosk-gateway/gateway"
	"kiosk-gateway/logging"
	"kiosk-gateway/retry"
)

const (
	StagingInline = "inline"
	StagingQueue  = "queue"
)

type Config struct {
	DeviceID  string
	DeviceMAC string
	HTTPAddr  string

	Backend gateway.Settings

	PollingEnabled      bool
	PollingInterval     time.Duration
	HealthCheckInterval time.Duration
	CommandStaging      string

	RetryMaxAttempts  int
	RetryInitialDelay time.Duration

	DedupTTL time.Duration

	EventLogDir     string
	EventBufferSize int
	EventRetention  time.Duration
	EventDBURL      string

	Peripherals Peripherals
	ResetDelay  time.Duration

	LogLevel string
}

// Peripherals can also be supplied as a YAML file through PERIPHERALS_FILE.
type Peripherals struct {
	PrinterName    string   `yaml:"printer_name"`
	DisplayPort    string   `yaml:"display_port"`
	CallSystemPort string   `yaml:"call_system_port"`
	BaudRate       int      `yaml:"baud_rate"`
	AudioDir       string   `yaml:"audio_dir"`
	Counters       []string `yaml:"counters"`
}

// LoadConfig loads environment variables from a .env file if present,
// applies defaults and validates the result.
func LoadConfig() (*Config, error) {
	// Load .env if it exists; ignore error if file not found
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.For("config").Warnw("Could not load .env", "error", err)
	}
	return fromEnv()
}

// Reload re-reads .env, overriding variables already set in the process.
func Reload() (*Config, error) {
	if err := godotenv.Overload(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reload .env: %w", err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	deviceID := str("DEVICE_ID", "KIOSK-001")
	transport := strings.ToLower(str("BACKEND_TRANSPORT", gateway.TransportHTTP))

	cfg := &Config{
		DeviceID:  deviceID,
		DeviceMAC: str("DEVICE_MAC", deviceID),
		HTTPAddr:  str("HTTP_ADDR", "0.0.0.0:5001"),
		Backend: gateway.Settings{
			Transport: transport,
			DeviceID:  deviceID,
			BaseURL:   str("BACKEND_BASE_URL", gateway.DefaultBaseURL),
			Timeout:   duration("BACKEND_TIMEOUT", gateway.DefaultTimeout),
			BrokerURL: str("MQTT_BROKER_URL", gateway.DefaultBrokerURL),
			Username:  os.Getenv("MQTT_USERNAME"),
			Password:  os.Getenv("MQTT_PASSWORD"),
			ClientID:  str("MQTT_CLIENT_ID", "kiosk-"+deviceID),
			BaseTopic: str("MQTT_BASE_TOPIC", gateway.DefaultBaseTopic),
		},
		PollingEnabled:      boolean("POLLING_ENABLED", transport == gateway.TransportHTTP),
		PollingInterval:     duration("POLLING_INTERVAL", 2*time.Second),
		HealthCheckInterval: duration("HEALTH_CHECK_INTERVAL", 30*time.Second),
		CommandStaging:      strings.ToLower(str("COMMAND_STAGING", StagingInline)),
		RetryMaxAttempts:    integer("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay:   duration("RETRY_INITIAL_DELAY", time.Second),
		DedupTTL:            duration("DEDUP_TTL", 10*time.Minute),
		EventLogDir:         str("EVENT_LOG_DIR", "./Logs/Events"),
		EventBufferSize:     integer("EVENT_BUFFER_SIZE", 1000),
		EventRetention:      duration("EVENT_RETENTION", 720*time.Hour),
		EventDBURL:          os.Getenv("EVENT_DB_URL"),
		Peripherals: Peripherals{
			PrinterName:    str("PRINTER_NAME", "TM-T81"),
			DisplayPort:    os.Getenv("DISPLAY_PORT"),
			CallSystemPort: os.Getenv("CALL_SYSTEM_PORT"),
			BaudRate:       integer("SERIAL_BAUD", 9600),
			AudioDir:       str("AUDIO_DIR", "./Audio"),
		},
		ResetDelay: duration("RESET_DELAY", 2*time.Second),
		LogLevel:   str("LOGGING_LEVEL", "INFO"),
	}
	cfg.Backend.DeviceMAC = cfg.DeviceMAC

	if path := os.Getenv("PERIPHERALS_FILE"); path != "" {
		if err := cfg.Peripherals.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend.Transport {
	case gateway.TransportHTTP, gateway.TransportMQTT, gateway.TransportMock:
	default:
		return fmt.Errorf("BACKEND_TRANSPORT must be http, mqtt or mock, got %q", c.Backend.Transport)
	}
	switch c.CommandStaging {
	case StagingInline, StagingQueue:
	default:
		return fmt.Errorf("COMMAND_STAGING must be inline or queue, got %q", c.CommandStaging)
	}
	if c.PollingInterval <= 0 || c.HealthCheckInterval <= 0 {
		return errors.New("POLLING_INTERVAL and HEALTH_CHECK_INTERVAL must be positive")
	}
	if c.RetryMaxAttempts < 1 || c.RetryMaxAttempts > retry.MaxAttempts {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be between 1 and %d", retry.MaxAttempts)
	}
	if c.DeviceID == "" {
		return errors.New("DEVICE_ID is required")
	}
	return nil
}

// mergeFile overlays non-empty values from a YAML peripherals file.
func (p *Peripherals) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read peripherals file: %w", err)
	}
	var file Peripherals
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse peripherals file %s: %w", path, err)
	}
	if file.PrinterName != "" {
		p.PrinterName = file.PrinterName
	}
	if file.DisplayPort != "" {
		p.DisplayPort = file.DisplayPort
	}
	if file.CallSystemPort != "" {
		p.CallSystemPort = file.CallSystemPort
	}
	if file.BaudRate > 0 {
		p.BaudRate = file.BaudRate
	}
	if file.AudioDir != "" {
		p.AudioDir = file.AudioDir
	}
	if len(file.Counters) > 0 {
		p.Counters = file.Counters
	}
	return nil
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func integer(key string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return def
}

func boolean(key string, def bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return def
}

// duration accepts Go durations ("2s") or bare milliseconds ("2000").
func duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
