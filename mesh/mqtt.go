package mesh

import (
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kwv/slamview/internal/logger"
)

// DefaultMQTTClientID is used when neither MQTT_CLIENT_ID nor the config sets one.
const DefaultMQTTClientID = "slamview"

// PoseHandler is called for every well-formed pose received over MQTT.
type PoseHandler func(topic string, sample PoseSample)

// MQTTClient manages the broker connection, the pose subscription and
// projection publishing.
type MQTTClient struct {
	client      mqtt.Client
	poseTopic   string
	poseHandler PoseHandler
	isConnected bool
	mu          sync.RWMutex
}

// InitMQTT creates the MQTT client and starts connecting in the background.
// MQTT is optional: when neither
// MQTT_BROKER nor the config names a broker this returns nil, nil.
func InitMQTT(config *Config, handler PoseHandler) (*MQTTClient, error) {
	var cfg MQTTConfig
	if config != nil {
		cfg = config.MQTT
	}

	broker := envOr("MQTT_BROKER", cfg.Broker)
	if broker == "" {
		logger.Sugar.Info("[MQTT] disabled: no broker configured")
		return nil, nil
	}
	if cfg.PoseTopic == "" && handler != nil {
		return nil, fmt.Errorf("mqtt: pose handler given but mqtt.poseTopic is empty")
	}

	client := &MQTTClient{
		poseTopic:   cfg.PoseTopic,
		poseHandler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := envOr("MQTT_CLIENT_ID", cfg.ClientID)
	if clientID == "" {
		clientID = DefaultMQTTClientID
	}
	opts.SetClientID(clientID)

	if username := envOr("MQTT_USERNAME", cfg.Username); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(envOr("MQTT_PASSWORD", cfg.Password))
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	// Pose order matters: a late sample must not overwrite a newer one.
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()
	return client, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		logger.Sugar.Info("[MQTT] connecting to broker")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				logger.Sugar.Info("[MQTT] connected")
				c.setConnected(true)
				return
			}
			logger.Sugar.Warnf("[MQTT] connection failed: %v", token.Error())
		} else {
			logger.Sugar.Warn("[MQTT] connection timeout")
		}

		logger.Sugar.Infof("[MQTT] retrying in %v", retryDelay)
		time.Sleep(retryDelay)
		retryDelay = min(retryDelay*2, maxRetryDelay)
	}
}

// onConnect subscribes to the pose topic. It runs on every (re)connect.
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)
	if c.poseTopic == "" || c.poseHandler == nil {
		logger.Sugar.Info("[MQTT] connected, no pose topic to subscribe")
		return
	}

	logger.Sugar.Infof("[MQTT] subscribing to %s", c.poseTopic)
	token := client.Subscribe(c.poseTopic, 0, c.poseMessageHandler())
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		logger.Sugar.Errorf("[MQTT] subscribe %s: %v", c.poseTopic, token.Error())
		return
	}
	logger.Sugar.Infof("[MQTT] subscribed to %s", c.poseTopic)
}

func (c *MQTTClient) onConnectionLost(_ mqtt.Client, err error) {
	logger.Sugar.Warnf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	logger.Sugar.Info("[MQTT] reconnecting")
}

// poseMessageHandler decodes pose payloads. Malformed payloads are dropped.
func (c *MQTTClient) poseMessageHandler() mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		sample, ok := ParsePoseMessage(msg.Payload())
		if !ok {
			logger.Sugar.Debugf("[MQTT] dropping malformed pose on %s (%d bytes)", msg.Topic(), len(msg.Payload()))
			return
		}
		c.poseHandler(msg.Topic(), sample)
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		logger.Sugar.Info("[MQTT] disconnecting")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// PoseTopic returns the subscribed pose topic, if any.
func (c *MQTTClient) PoseTopic() string {
	return c.poseTopic
}

// newMQTTClientWithMock wraps an existing mqtt.Client; used with MockClient.
func newMQTTClientWithMock(client mqtt.Client, poseTopic string, handler PoseHandler) *MQTTClient {
	return &MQTTClient{
		client:      client,
		poseTopic:   poseTopic,
		poseHandler: handler,
	}
}
