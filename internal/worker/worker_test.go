package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodwatch/internal/models"
)

type fakePublisher struct {
	mu        sync.Mutex
	batches   [][]*models.ReadingEnvelope
	singles   []*models.ReadingEnvelope
	batchErr  error
	singleErr error
}

func (f *fakePublisher) Publish(ctx context.Context, envelope *models.ReadingEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.singleErr != nil {
		return f.singleErr
	}
	f.singles = append(f.singles, envelope)
	return nil
}

func (f *fakePublisher) PublishBatch(ctx context.Context, envelopes []*models.ReadingEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return f.batchErr
	}
	f.batches = append(f.batches, envelopes)
	return nil
}

func (f *fakePublisher) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.singles)
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func envelope(device string) *models.ReadingEnvelope {
	return models.NewReadingEnvelope(&models.Reading{DeviceID: device, Timestamp: time.Now()}, "node-test")
}

func TestPoolPublishesFullBatch(t *testing.T) {
	pub := &fakePublisher{}
	ch := make(chan *models.ReadingEnvelope, 16)
	pool := NewPool(Config{
		Publisher:    pub,
		EnvelopeChan: ch,
		Workers:      1,
		BatchSize:    4,
		BatchTimeout: time.Hour, // only the size limit should flush
	})
	pool.Start()

	for i := 0; i < 4; i++ {
		ch <- envelope("dev-1")
	}

	require.Eventually(t, func() bool { return pub.published() == 4 }, 2*time.Second, 10*time.Millisecond)
	pool.Stop()
	assert.Equal(t, uint64(4), pool.Stats().Processed)
}

func TestPoolFlushesOnTimeout(t *testing.T) {
	pub := &fakePublisher{}
	ch := make(chan *models.ReadingEnvelope, 16)
	pool := NewPool(Config{
		Publisher:    pub,
		EnvelopeChan: ch,
		Workers:      1,
		BatchSize:    100,
		BatchTimeout: 20 * time.Millisecond,
	})
	pool.Start()
	defer pool.Stop()

	ch <- envelope("dev-1")
	require.Eventually(t, func() bool { return pub.published() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestPoolFlushesOnStop(t *testing.T) {
	pub := &fakePublisher{}
	ch := make(chan *models.ReadingEnvelope, 16)
	pool := NewPool(Config{
		Publisher:    pub,
		EnvelopeChan: ch,
		Workers:      1,
		BatchSize:    100,
		BatchTimeout: time.Hour,
	})
	pool.Start()

	ch <- envelope("dev-1")
	ch <- envelope("dev-2")
	// Give the worker a moment to pull both off the channel.
	require.Eventually(t, func() bool { return len(ch) == 0 }, 2*time.Second, 10*time.Millisecond)

	pool.Stop()
	assert.Equal(t, 2, pub.published())
}

func TestPoolFallsBackToIndividualPublish(t *testing.T) {
	pub := &fakePublisher{batchErr: errors.New("broker unavailable")}
	ch := make(chan *models.ReadingEnvelope, 16)
	pool := NewPool(Config{
		Publisher:    pub,
		EnvelopeChan: ch,
		Workers:      1,
		BatchSize:    2,
		BatchTimeout: time.Hour,
	})
	pool.Start()

	ch <- envelope("dev-1")
	ch <- envelope("dev-2")

	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.singles) == 2
	}, 2*time.Second, 10*time.Millisecond)
	pool.Stop()

	stats := pool.Stats()
	assert.Equal(t, uint64(2), stats.Processed)
	assert.Equal(t, uint64(0), stats.Failed)
}
