package publisher

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/pitaeeg/sensor-server/internal/config"
)

// ForwarderService republishes the NATS sample and status subjects to an
// external MQTT broker, for consumers that cannot speak NATS.
type ForwarderService struct {
	nc     *nats.Conn
	cfg    *config.MQTTConfig
	prefix string
	client mqtt.Client
	subs   []*nats.Subscription
}

// NewForwarderService creates the MQTT forwarder
func NewForwarderService(nc *nats.Conn, prefix string, cfg *config.MQTTConfig) *ForwarderService {
	return &ForwarderService{nc: nc, cfg: cfg, prefix: prefix}
}

// topicFor maps a NATS subject (<prefix>.<device>.<kind>) to an MQTT
// topic (<topic_prefix>/<device>/<kind>).
func (s *ForwarderService) topicFor(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) < 3 {
		return s.cfg.TopicPrefix + "/" + subject
	}
	device := strings.Join(parts[1:len(parts)-1], ".")
	kind := parts[len(parts)-1]
	return fmt.Sprintf("%s/%s/%s", s.cfg.TopicPrefix, device, kind)
}

// Start connects to the broker and forwards until the context ends
func (s *ForwarderService) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect mqtt broker: %w", token.Error())
	}

	for _, kind := range []string{"samples", "status"} {
		sub, err := s.nc.Subscribe(fmt.Sprintf("%s.*.%s", s.prefix, kind), s.forward)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", kind, err)
		}
		s.subs = append(s.subs, sub)
	}

	log.Info().Str("broker", s.cfg.Broker).Msg("MQTT forwarder started")

	<-ctx.Done()

	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.client.Disconnect(250)

	return ctx.Err()
}

// forward republishes one NATS message to MQTT
func (s *ForwarderService) forward(msg *nats.Msg) {
	topic := s.topicFor(msg.Subject)
	token := s.client.Publish(topic, s.cfg.QoS, false, msg.Data)
	if token.Wait() && token.Error() != nil {
		log.Error().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
	}
}
