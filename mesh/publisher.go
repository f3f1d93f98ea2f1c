package mesh

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kwv/slamview/internal/logger"
)

// DefaultPublishPrefix is the topic prefix when MQTT_PUBLISH_PREFIX and the
// config leave it empty.
const DefaultPublishPrefix = "slamview"

// ProjectionMessage is the payload published on {prefix}/pose.
type ProjectionMessage struct {
	Visible   bool        `json:"visible"`
	Seq       uint64      `json:"seq"`
	Pose      *PoseSample `json:"pose,omitempty"`
	Pixel     *Point      `json:"pixel,omitempty"`
	Overlay   *Point      `json:"overlay,omitempty"`
	World     *Vec3       `json:"world,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewProjectionMessage converts a projector result into its wire form. A
// hidden marker carries no coordinates.
func NewProjectionMessage(p Projection, visible bool) ProjectionMessage {
	msg := ProjectionMessage{Visible: visible, Seq: p.Seq, Timestamp: time.Now().Unix()}
	if !p.UpdatedAt.IsZero() {
		msg.Timestamp = p.UpdatedAt.Unix()
	}
	if visible {
		msg.Pose = &p.Pose
		msg.Pixel = &p.Pixel
		msg.Overlay = &p.Overlay
		msg.World = &p.World
	}
	return msg
}

// Publisher republishes projections to MQTT.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *ProjectionMessage
	mu            sync.RWMutex
}

// NewPublisher creates a projection publisher. A nil client disables
// publishing but still records the last message.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	prefix = envOr("MQTT_PUBLISH_PREFIX", prefix)
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true,
	}
}

// Topic returns the topic projections are published on.
func (p *Publisher) Topic() string {
	return p.publishPrefix + "/pose"
}

// PublishProjection records and publishes one projection. Messages are
// retained so late subscribers see the latest marker state.
func (p *Publisher) PublishProjection(proj Projection, visible bool) error {
	msg := NewProjectionMessage(proj, visible)

	p.mu.Lock()
	p.last = &msg
	p.mu.Unlock()

	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling projection: %w", err)
	}

	p.mu.RLock()
	qos, retain := p.qos, p.retain
	p.mu.RUnlock()

	topic := p.Topic()
	token := p.client.Publish(topic, qos, retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	if visible {
		logger.Sugar.Debugf("[MQTT] published projection #%d at pixel (%.1f, %.1f)", proj.Seq, proj.Pixel.X, proj.Pixel.Y)
	} else {
		logger.Sugar.Debugf("[MQTT] published hidden marker #%d", proj.Seq)
	}
	return nil
}

// Last returns the most recent message passed to PublishProjection.
func (p *Publisher) Last() (ProjectionMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return ProjectionMessage{}, false
	}
	return *p.last, true
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.mu.Lock()
		p.qos = qos
		p.mu.Unlock()
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.mu.Lock()
	p.retain = retain
	p.mu.Unlock()
}

// Listener adapts the publisher to PoseProjector.Subscribe. Publish errors
// are logged, not returned.
func (p *Publisher) Listener() ProjectionListener {
	return func(proj Projection, visible bool) {
		if err := p.PublishProjection(proj, visible); err != nil {
			logger.Sugar.Debugf("[MQTT] projection not published: %v", err)
		}
	}
}
