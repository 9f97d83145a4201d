// Package acquisition runs one measurement against a connected sensor
// and fans the sample stream out to the CSV recorder, the message bus
// and the metadata store.
package acquisition

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pitaeeg/sensor-server/internal/config"
	"github.com/pitaeeg/sensor-server/internal/models"
	"github.com/pitaeeg/sensor-server/internal/publisher"
	"github.com/pitaeeg/sensor-server/internal/recorder"
	"github.com/pitaeeg/sensor-server/internal/storage"
	"github.com/pitaeeg/sensor-server/pkg/haru"
)

// Service drives one sensor session. The publisher and store are
// optional; a nil store keeps metadata out of the database and a nil
// publisher keeps samples off the bus.
type Service struct {
	session *haru.Session
	cfg     *config.Config
	pub     *publisher.Publisher
	store   storage.Store
}

// New creates an acquisition service around an open session
func New(session *haru.Session, cfg *config.Config, pub *publisher.Publisher, store storage.Store) *Service {
	return &Service{session: session, cfg: cfg, pub: pub, store: store}
}

// Connect scans for and connects to the configured device.
func (s *Service) Connect() error {
	device := s.cfg.Sensor.Device
	log.Info().Str("device", device).Dur("timeout", s.cfg.Sensor.DeviceScanTimeout).Msg("scanning for device")
	if err := s.session.Connect(device, s.cfg.Sensor.DeviceScanTimeout); err != nil {
		return err
	}
	log.Info().Str("device", device).Msg("device connected")
	s.publishStatus()
	return nil
}

// Run starts a measurement and streams samples until ctx is cancelled.
// Cancellation is cooperative: a goroutine watches ctx and flips the
// session out of the measuring state, which the stream observes on its
// next poll. Run returns the finished recording metadata.
func (s *Service) Run(ctx context.Context) (*models.Recording, error) {
	deviceTimeMS, err := s.session.StartMeasurement(s.cfg.Sensor.Channels)
	if err != nil {
		return nil, err
	}
	log.Info().Int64("device_time_ms", deviceTimeMS).Msg("measurement started")

	w, path, err := recorder.Create(s.cfg.Recording.OutputDir, "", deviceTimeMS)
	if err != nil {
		s.session.StopMeasurement()
		return nil, err
	}

	rec := s.newRecording(path, deviceTimeMS)
	if s.store != nil {
		if err := s.store.CreateRecording(ctx, rec); err != nil {
			log.Error().Err(err).Msg("store recording metadata")
		} else {
			s.logEvent(ctx, rec, models.EventTypeRecordingStarted, "measurement started")
		}
	}

	stream, err := s.session.ReceiveData()
	if err != nil {
		s.session.StopMeasurement()
		w.Close()
		return nil, err
	}

	// Cooperative cancellation: the stream ends once the session stops
	// measuring.
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.session.StopMeasurement()
		case <-stop:
		}
	}()
	defer close(stop)

	var seq int64
	for {
		sample, ok := stream.Next()
		if !ok {
			break
		}
		if err := w.Write(sample); err != nil {
			s.session.StopMeasurement()
			w.Close()
			return nil, err
		}
		if s.pub != nil {
			s.publishSample(rec, deviceTimeMS, seq, sample)
		}
		seq++
	}

	s.session.StopMeasurement()
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close output file: %w", err)
	}

	endedAt := time.Now()
	rec.EndedAt = &endedAt
	rec.SampleCount = w.Count()

	if s.store != nil {
		// ctx is usually already cancelled here; teardown bookkeeping
		// gets its own deadline.
		finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.FinishRecording(finishCtx, rec.ID, endedAt, rec.SampleCount); err != nil {
			log.Error().Err(err).Msg("finish recording metadata")
		} else {
			s.logEvent(finishCtx, rec, models.EventTypeRecordingFinished,
				fmt.Sprintf("measurement finished with %d samples", rec.SampleCount))
		}
	}

	log.Info().Int64("samples", rec.SampleCount).Str("file", path).Msg("measurement finished")
	s.publishStatus()
	return rec, nil
}

func (s *Service) newRecording(path string, deviceTimeMS int64) *models.Recording {
	rec := &models.Recording{
		ID:           uuid.New(),
		DeviceName:   s.cfg.Sensor.Device,
		Port:         s.cfg.Sensor.Port,
		FilePath:     path,
		DeviceTimeMS: deviceTimeMS,
		StartedAt:    time.Now(),
		CreatedAt:    time.Now(),
	}
	if dev, ok := s.session.ConnectedDevice(); ok {
		rec.DeviceID = dev.DeviceID()
	}
	return rec
}

func (s *Service) publishSample(rec *models.Recording, deviceTimeMS, seq int64, sample haru.Sample) {
	msg := &models.SampleMessage{
		RecordingID: rec.ID,
		DeviceName:  rec.DeviceName,
		Sequence:    seq,
		Timestamp:   time.UnixMilli(deviceTimeMS + seq*haru.SamplePeriodMS).UTC(),
		ChZ:         sample.Data[0],
		ChR:         sample.Data[1],
		ChL:         sample.Data[2],
		BatLevel:    sample.BatLevel,
		IsRepair:    sample.Repaired(),
	}
	if err := s.pub.PublishSample(msg); err != nil {
		log.Error().Err(err).Msg("publish sample")
	}
}

// publishStatus reports the session state and, outside of a running
// measurement, battery and firmware readings.
func (s *Service) publishStatus() {
	if s.pub == nil {
		return
	}
	msg := &models.StatusMessage{
		DeviceName:   s.cfg.Sensor.Device,
		SessionState: s.session.State().String(),
		ReportedAt:   time.Now(),
	}
	if !s.session.IsMeasuring() {
		if minutes, err := s.session.BatteryRemainingTime(); err == nil {
			msg.BatteryMinutes = minutes
		}
		if fw, err := s.session.Version(); err == nil {
			msg.Firmware = fw
		}
	}
	if err := s.pub.PublishStatus(msg); err != nil {
		log.Error().Err(err).Msg("publish status")
	}
}

func (s *Service) logEvent(ctx context.Context, rec *models.Recording, typ models.EventType, desc string) {
	event := &models.EventLog{
		RecordingID: &rec.ID,
		DeviceName:  rec.DeviceName,
		Type:        typ,
		Level:       models.EventLevelInfo,
		Description: desc,
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		log.Error().Err(err).Msg("store event")
	}
}
