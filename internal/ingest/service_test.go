package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodwatch/internal/config"
	"floodwatch/internal/derive"
	"floodwatch/internal/models"
	"floodwatch/internal/realtime"
	"floodwatch/internal/storage"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

type fakeDeviceStore struct {
	config *models.DeviceConfig
}

func (s *fakeDeviceStore) GetDeviceConfig(ctx context.Context, deviceID string) (*models.DeviceConfig, error) {
	if s.config == nil || s.config.DeviceID != deviceID {
		return nil, storage.ErrDeviceNotFound
	}
	return s.config, nil
}

func (s *fakeDeviceStore) SetOfflineFlag(ctx context.Context, deviceID string, offline bool) (bool, error) {
	return false, nil
}

func (s *fakeDeviceStore) ListWithLastSeen(ctx context.Context) ([]models.DeviceLastSeen, error) {
	return nil, nil
}

type fakeReadingStore struct {
	appended  []*models.Reading
	appendErr error
	upsertErr error
	previous  *models.LatestSnapshot
}

func (s *fakeReadingStore) AppendReading(ctx context.Context, r *models.Reading) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, r)
	return nil
}

func (s *fakeReadingStore) UpsertLatestSnapshot(ctx context.Context, r *models.Reading) (*models.LatestSnapshot, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	snap := &models.LatestSnapshot{
		DeviceID:      r.DeviceID,
		Timestamp:     r.Timestamp,
		WaterLevelCm:  r.WaterLevelCm,
		RawDistanceCm: r.RawDistanceCm,
		TdsPpm:        r.TdsPpm,
		TurbidityNtu:  r.TurbidityNtu,
		PHValue:       r.PHValue,
		TemperatureC:  r.TemperatureC,
		RainfallRaw:   r.RainfallRaw,
		LastUpdatedAt: time.Now(),
	}
	if s.previous != nil {
		snap.PreviousTimestamp = &s.previous.Timestamp
		snap.PreviousWaterLevelCm = s.previous.WaterLevelCm
	}
	s.previous = snap
	return snap, nil
}

type fakeEvaluator struct {
	info models.AlertInfo
	err  error
	snap *models.LatestSnapshot
}

func (e *fakeEvaluator) Evaluate(ctx context.Context, dev *models.DeviceConfig, snap *models.LatestSnapshot) (models.AlertInfo, error) {
	e.snap = snap
	return e.info, e.err
}

type fakeOnlineMarker struct {
	marked    []string
	locations []string
}

func (m *fakeOnlineMarker) MarkOnlineIfNeeded(ctx context.Context, deviceID, location string, seenAt time.Time) {
	m.marked = append(m.marked, deviceID)
	m.locations = append(m.locations, location)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(ctx context.Context, event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

type serviceParts struct {
	svc       *Service
	devices   *fakeDeviceStore
	readings  *fakeReadingStore
	evaluator *fakeEvaluator
	marker    *fakeOnlineMarker
	pub       *recordingPublisher
	export    chan *models.ReadingEnvelope
}

func newTestService(t *testing.T) *serviceParts {
	t.Helper()
	p := &serviceParts{
		devices: &fakeDeviceStore{config: &models.DeviceConfig{
			DeviceID:       "dev-1",
			Location:       "river-north",
			SensorHeightCm: fptr(300),
		}},
		readings:  &fakeReadingStore{},
		evaluator: &fakeEvaluator{},
		marker:    &fakeOnlineMarker{},
		pub:       &recordingPublisher{},
		export:    make(chan *models.ReadingEnvelope, 4),
	}
	p.svc = NewService(
		config.Default().Alerts,
		p.devices, p.readings, p.evaluator, p.marker, p.pub,
		p.export, "node-test", zerolog.Nop(),
	)
	return p
}

func TestProcessFullPipeline(t *testing.T) {
	p := newTestService(t)

	in := &models.ReadingInput{
		DeviceID:      "dev-1",
		RawDistanceCm: fptr(50),
		PHValue:       fptr(7.0),
		TurbidityNtu:  fptr(10),
		RainfallRaw:   iptr(1200),
	}
	res, err := p.svc.Process(context.Background(), in)
	require.NoError(t, err)

	// Level derived from mount height minus raw distance.
	require.NotNil(t, res.Snapshot.WaterLevelCm)
	assert.InDelta(t, 250.0, *res.Snapshot.WaterLevelCm, 1e-9)

	require.NotNil(t, res.Rainfall)
	assert.Equal(t, derive.RainfallModerate, *res.Rainfall)
	assert.Equal(t, derive.QualityGood, res.Quality)

	assert.Equal(t, []string{
		realtime.EventNewSensorData,
		realtime.EventRainfallUpdate,
		realtime.EventWaterQualityUpdate,
	}, p.pub.events)

	assert.Equal(t, []string{"dev-1"}, p.marker.marked)
	assert.Equal(t, []string{"river-north"}, p.marker.locations)
	require.NotNil(t, p.evaluator.snap)

	require.Len(t, p.readings.appended, 1)
	select {
	case env := <-p.export:
		assert.Equal(t, "dev-1", env.PartitionKey)
		assert.Equal(t, "node-test", env.IngestNode)
	default:
		t.Fatal("expected an export envelope")
	}
}

func TestProcessValidation(t *testing.T) {
	p := newTestService(t)

	_, err := p.svc.Process(context.Background(), &models.ReadingInput{})
	assert.ErrorIs(t, err, models.ErrEmptyDeviceID)

	_, err = p.svc.Process(context.Background(), &models.ReadingInput{
		DeviceID:        "dev-1",
		DeviceTimestamp: "not-a-time",
	})
	assert.ErrorIs(t, err, models.ErrInvalidTimestamp)

	assert.Empty(t, p.readings.appended)
	assert.Empty(t, p.pub.events)
}

func TestProcessUnknownDevice(t *testing.T) {
	p := newTestService(t)

	_, err := p.svc.Process(context.Background(), &models.ReadingInput{DeviceID: "ghost"})
	assert.ErrorIs(t, err, storage.ErrDeviceNotFound)
	assert.Empty(t, p.readings.appended)
}

func TestProcessPersistenceFailureAborts(t *testing.T) {
	p := newTestService(t)
	p.readings.appendErr = errors.New("disk full")

	_, err := p.svc.Process(context.Background(), &models.ReadingInput{
		DeviceID:      "dev-1",
		RawDistanceCm: fptr(50),
	})
	require.Error(t, err)
	assert.Empty(t, p.pub.events)
	assert.Empty(t, p.marker.marked)
}

func TestProcessSkipsOptionalBroadcasts(t *testing.T) {
	p := newTestService(t)

	// No rainfall, incomplete quality: only the snapshot event fires.
	res, err := p.svc.Process(context.Background(), &models.ReadingInput{
		DeviceID:      "dev-1",
		RawDistanceCm: fptr(50),
		PHValue:       fptr(7.0),
	})
	require.NoError(t, err)
	assert.Nil(t, res.Rainfall)
	assert.Equal(t, derive.QualityIncomplete, res.Quality)
	assert.Equal(t, []string{realtime.EventNewSensorData}, p.pub.events)
}

func TestProcessDeviceTimestampHonored(t *testing.T) {
	p := newTestService(t)

	res, err := p.svc.Process(context.Background(), &models.ReadingInput{
		DeviceID:        "dev-1",
		DeviceTimestamp: "2026-08-29T10:00:00Z",
		RawDistanceCm:   fptr(50),
	})
	require.NoError(t, err)
	want, _ := time.Parse(time.RFC3339, "2026-08-29T10:00:00Z")
	assert.True(t, res.Snapshot.Timestamp.Equal(want))
}

func TestProcessFullExportQueueDropsWithoutError(t *testing.T) {
	p := newTestService(t)
	// Fill the queue.
	for i := 0; i < cap(p.export); i++ {
		p.export <- &models.ReadingEnvelope{}
	}

	_, err := p.svc.Process(context.Background(), &models.ReadingInput{
		DeviceID:      "dev-1",
		RawDistanceCm: fptr(50),
	})
	assert.NoError(t, err)
}

func TestProcessEvaluatorFailurePropagates(t *testing.T) {
	p := newTestService(t)
	p.evaluator.err = errors.New("connection reset")

	_, err := p.svc.Process(context.Background(), &models.ReadingInput{
		DeviceID:      "dev-1",
		RawDistanceCm: fptr(50),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evaluate alerts")
}
