package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"kiosk-gateway/entities"
	"kiosk-gateway/logging"
)

const (
	DefaultBrokerURL = "tcp://localhost:1883"
	DefaultBaseTopic = "kiosk"

	qosAtLeastOnce  byte = 1
	operationWait        = 10 * time.Second
	disconnectQuiet uint = 250
)

// CommandSubscriber is implemented by push transports that deliver commands
// through a subscription instead of polling.
type CommandSubscriber interface {
	SubscribeCommands(ctx context.Context, handle func(payload []byte)) error
	UnsubscribeCommands(ctx context.Context) error
}

// MQTTGateway publishes results to {base}/{mac}/response, heartbeats and
// errors to {base}/{mac}/audit, and receives commands on {base}/{mac}/request.
// One client connection is shared by all callers.
type MQTTGateway struct {
	deviceID  string
	baseTopic string
	mac       string
	client    mqtt.Client
	now       func() time.Time
	log       *zap.SugaredLogger

	connectMu sync.Mutex

	subMu sync.Mutex
	subs  map[string]mqtt.MessageHandler
}

type clientFactory func(*mqtt.ClientOptions) mqtt.Client

func NewMQTTGateway(s Settings) *MQTTGateway {
	return newMQTTGateway(s, mqtt.NewClient)
}

func newMQTTGateway(s Settings, newClient clientFactory) *MQTTGateway {
	if s.BrokerURL == "" {
		s.BrokerURL = DefaultBrokerURL
	}
	if s.BaseTopic == "" {
		s.BaseTopic = DefaultBaseTopic
	}
	if s.DeviceMAC == "" {
		s.DeviceMAC = s.DeviceID
	}
	if s.ClientID == "" {
		s.ClientID = "kiosk-" + s.DeviceID
	}

	g := &MQTTGateway{
		deviceID:  s.DeviceID,
		baseTopic: s.BaseTopic,
		mac:       s.DeviceMAC,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logging.For("gateway.mqtt"),
		subs:      make(map[string]mqtt.MessageHandler),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.BrokerURL)
	opts.SetClientID(s.ClientID)
	if s.Username != "" {
		opts.SetUsername(s.Username)
		opts.SetPassword(s.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(operationWait)
	opts.SetOnConnectHandler(g.onConnect)
	opts.SetConnectionLostHandler(g.onConnectionLost)

	g.client = newClient(opts)
	return g
}

func (g *MQTTGateway) topic(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", g.baseTopic, g.mac, suffix)
}

func (g *MQTTGateway) RequestTopic() string  { return g.topic("request") }
func (g *MQTTGateway) ResponseTopic() string { return g.topic("response") }
func (g *MQTTGateway) AuditTopic() string    { return g.topic("audit") }

// onConnect re-subscribes after every (re)connect since the session is clean.
func (g *MQTTGateway) onConnect(c mqtt.Client) {
	g.log.Infow("Connected to MQTT broker")

	g.subMu.Lock()
	defer g.subMu.Unlock()
	for topic, handler := range g.subs {
		token := c.Subscribe(topic, qosAtLeastOnce, handler)
		go func(topic string, token mqtt.Token) {
			if token.WaitTimeout(operationWait) && token.Error() != nil {
				g.log.Errorw("Re-subscribe failed", "topic", topic, "error", token.Error())
			}
		}(topic, token)
	}
}

func (g *MQTTGateway) onConnectionLost(_ mqtt.Client, err error) {
	g.log.Warnw("Connection to MQTT broker lost", "error", err)
}

func (g *MQTTGateway) ensureConnected(ctx context.Context) error {
	if g.client.IsConnected() {
		return nil
	}
	g.connectMu.Lock()
	defer g.connectMu.Unlock()
	if g.client.IsConnected() {
		return nil
	}
	if err := waitToken(ctx, g.client.Connect()); err != nil {
		return fmt.Errorf("connect to MQTT broker: %w", err)
	}
	return nil
}

func (g *MQTTGateway) publish(ctx context.Context, topic string, payload any) error {
	if err := g.ensureConnected(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", topic, err)
	}
	if err := waitToken(ctx, g.client.Publish(topic, qosAtLeastOnce, false, body)); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// SubscribeCommands registers handle for the request topic. The subscription
// survives reconnects.
func (g *MQTTGateway) SubscribeCommands(ctx context.Context, handle func(payload []byte)) error {
	topic := g.RequestTopic()
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		handle(msg.Payload())
	}

	g.subMu.Lock()
	g.subs[topic] = handler
	g.subMu.Unlock()

	if err := g.ensureConnected(ctx); err != nil {
		return err
	}
	if err := waitToken(ctx, g.client.Subscribe(topic, qosAtLeastOnce, handler)); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	g.log.Infow("Subscribed to command topic", "topic", topic)
	return nil
}

// UnsubscribeCommands stops delivery on the request topic and forgets the
// handler so a reconnect does not restore it.
func (g *MQTTGateway) UnsubscribeCommands(ctx context.Context) error {
	topic := g.RequestTopic()
	g.subMu.Lock()
	delete(g.subs, topic)
	g.subMu.Unlock()

	if !g.client.IsConnected() {
		return nil
	}
	if err := waitToken(ctx, g.client.Unsubscribe(topic)); err != nil {
		return fmt.Errorf("unsubscribe from %s: %w", topic, err)
	}
	g.log.Infow("Unsubscribed from command topic", "topic", topic)
	return nil
}

// FetchPendingCommand is not applicable; commands arrive by subscription.
func (g *MQTTGateway) FetchPendingCommand(context.Context) (*entities.CommandRequest, error) {
	return nil, ErrNotSupported
}

func (g *MQTTGateway) SendHeartbeat(ctx context.Context, status entities.DeviceStatus) (*entities.Ack, error) {
	msg := heartbeatMessage(g.deviceID, status, g.now())
	if err := g.publish(ctx, g.AuditTopic(), msg); err != nil {
		return nil, err
	}
	return localAck(msg.CommandID, g.deviceID, typeHeartbeat, "Heartbeat published", msg.Timestamp), nil
}

func (g *MQTTGateway) ReportCommandResult(ctx context.Context, outcome entities.CommandOutcome) (*entities.Ack, error) {
	msg := resultMessage(g.deviceID, typeCommandResult, outcome, g.now())
	if err := g.publish(ctx, g.ResponseTopic(), msg); err != nil {
		return nil, err
	}
	return localAck(outcome.CommandID, g.deviceID, typeCommandResult, "Result published", msg.Timestamp), nil
}

func (g *MQTTGateway) ReportError(ctx context.Context, commandID string, kind entities.ErrorKind, message string) (*entities.Ack, error) {
	msg := errorMessage(g.deviceID, commandID, kind, message, g.now())
	if err := g.publish(ctx, g.AuditTopic(), msg); err != nil {
		return nil, err
	}
	return localAck(commandID, g.deviceID, string(kind), "Error published", msg.Timestamp), nil
}

func (g *MQTTGateway) Close() error {
	if g.client.IsConnected() {
		g.client.Disconnect(disconnectQuiet)
	}
	return nil
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(operationWait)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", operationWait)
	}
}
