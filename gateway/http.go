package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"kiosk-gateway/entities"
	"kiosk-gateway/logging"
)

const (
	DefaultBaseURL = "http://localhost:5000/api/v1/kiosks"
	DefaultTimeout = 30 * time.Second
)

// HTTPGateway maps each operation to one REST call against the kiosk API.
type HTTPGateway struct {
	baseURL  string
	deviceID string
	client   *http.Client
	now      func() time.Time
	log      *zap.SugaredLogger
}

func NewHTTPGateway(baseURL, deviceID string, timeout time.Duration) *HTTPGateway {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPGateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		client:   &http.Client{Timeout: timeout},
		now:      func() time.Time { return time.Now().UTC() },
		log:      logging.For("gateway.http"),
	}
}

// FetchPendingCommand handles GET /commands/{deviceId}. 204 and 404 mean
// nothing is pending.
func (g *HTTPGateway) FetchPendingCommand(ctx context.Context) (*entities.CommandRequest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/commands/"+url.PathEscape(g.deviceID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pending command: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("fetch pending command", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pending command: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var cmd entities.CommandRequest
	if err := json.Unmarshal(body, &cmd); err != nil {
		return nil, fmt.Errorf("decode pending command: %w", err)
	}
	// A command without data is still returned so the pipeline can refuse
	// and report it against its id.
	if cmd.CommandID == "" {
		return nil, nil
	}
	return &cmd, nil
}

func (g *HTTPGateway) SendHeartbeat(ctx context.Context, status entities.DeviceStatus) (*entities.Ack, error) {
	return g.post(ctx, "/heartbeat", heartbeatMessage(g.deviceID, status, g.now()))
}

func (g *HTTPGateway) ReportCommandResult(ctx context.Context, outcome entities.CommandOutcome) (*entities.Ack, error) {
	return g.post(ctx, "/commands/result", resultMessage(g.deviceID, typeResult, outcome, g.now()))
}

func (g *HTTPGateway) ReportError(ctx context.Context, commandID string, kind entities.ErrorKind, message string) (*entities.Ack, error) {
	return g.post(ctx, "/errors", errorMessage(g.deviceID, commandID, kind, message, g.now()))
}

func (g *HTTPGateway) Close() error {
	g.client.CloseIdleConnections()
	return nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload any) (*entities.Ack, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("post "+path, resp)
	}

	ack := &entities.Ack{Status: true}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, ack); err != nil {
			g.log.Debugw("Backend reply is not an envelope", "path", path, "error", err)
			ack = &entities.Ack{Status: true}
		}
	}
	return ack, nil
}

func statusError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: backend returned %d: %s", op, resp.StatusCode, strings.TrimSpace(string(snippet)))
}
