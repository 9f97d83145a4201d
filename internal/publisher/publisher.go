package publisher

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pitaeeg/sensor-server/internal/models"
)

// natsConn is the slice of *nats.Conn the publisher needs.
type natsConn interface {
	Publish(subj string, data []byte) error
}

// Publisher publishes sensor samples and status to NATS subjects
// <prefix>.<device>.samples and <prefix>.<device>.status.
type Publisher struct {
	nc     natsConn
	prefix string
}

// New creates a publisher on the given connection
func New(nc natsConn, prefix string) *Publisher {
	return &Publisher{nc: nc, prefix: prefix}
}

// deviceToken makes a device name usable as a NATS subject token.
func deviceToken(device string) string {
	token := strings.NewReplacer(".", "-", " ", "-", "*", "-", ">", "-").Replace(device)
	if token == "" {
		return "unknown"
	}
	return token
}

// SampleSubject returns the sample subject for a device
func (p *Publisher) SampleSubject(device string) string {
	return fmt.Sprintf("%s.%s.samples", p.prefix, deviceToken(device))
}

// StatusSubject returns the status subject for a device
func (p *Publisher) StatusSubject(device string) string {
	return fmt.Sprintf("%s.%s.status", p.prefix, deviceToken(device))
}

// PublishSample publishes one sample message
func (p *Publisher) PublishSample(msg *models.SampleMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}
	if err := p.nc.Publish(p.SampleSubject(msg.DeviceName), data); err != nil {
		return fmt.Errorf("publish sample: %w", err)
	}
	return nil
}

// PublishStatus publishes a device status message
func (p *Publisher) PublishStatus(msg *models.StatusMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := p.nc.Publish(p.StatusSubject(msg.DeviceName), data); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	log.Debug().Str("device", msg.DeviceName).Str("state", msg.SessionState).Msg("status published")
	return nil
}
