// Package worker drains the export queue into the Kafka producer in
// batches. The queue is fed by the ingestion path with a non-blocking
// send, so a slow or dead broker sheds export load instead of slowing
// ingestion.
package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"floodwatch/internal/logger"
	"floodwatch/internal/metrics"
	"floodwatch/internal/models"
)

// Publisher is the downstream the pool drains into.
type Publisher interface {
	Publish(ctx context.Context, envelope *models.ReadingEnvelope) error
	PublishBatch(ctx context.Context, envelopes []*models.ReadingEnvelope) error
}

// Pool consumes envelopes from the queue and publishes them in batches.
type Pool struct {
	publisher    Publisher
	envelopeChan chan *models.ReadingEnvelope
	workers      int
	batchSize    int
	batchTimeout time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	processed atomic.Uint64
	failed    atomic.Uint64
}

// Config holds worker pool configuration.
type Config struct {
	Publisher    Publisher
	EnvelopeChan chan *models.ReadingEnvelope
	Workers      int
	BatchSize    int
	BatchTimeout time.Duration
}

func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		publisher:    cfg.Publisher,
		envelopeChan: cfg.EnvelopeChan,
		workers:      cfg.Workers,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins draining the queue.
func (p *Pool) Start() {
	log := logger.WithComponent("export_worker")
	log.Info().
		Int("workers", p.workers).
		Int("batch_size", p.batchSize).
		Dur("batch_timeout", p.batchTimeout).
		Msg("starting export workers")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop flushes in-flight batches and waits for every worker to exit.
func (p *Pool) Stop() {
	log := logger.WithComponent("export_worker")
	log.Info().Msg("stopping export workers")
	p.cancel()
	p.wg.Wait()
	log.Info().Msg("export workers stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("export_worker").With().Int("worker_id", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("export worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("export_worker").Inc()
		}
	}()

	batch := make([]*models.ReadingEnvelope, 0, p.batchSize)
	timer := time.NewTimer(p.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			if len(batch) > 0 {
				p.publishBatch(batch)
			}
			return

		case envelope, ok := <-p.envelopeChan:
			if !ok {
				if len(batch) > 0 {
					p.publishBatch(batch)
				}
				return
			}
			metrics.ExportQueueSize.Set(float64(len(p.envelopeChan)))

			batch = append(batch, envelope)
			if len(batch) >= p.batchSize {
				p.publishBatch(batch)
				batch = batch[:0]
				timer.Reset(p.batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				p.publishBatch(batch)
				batch = batch[:0]
			}
			timer.Reset(p.batchTimeout)
		}
	}
}

func (p *Pool) publishBatch(batch []*models.ReadingEnvelope) {
	if len(batch) == 0 {
		return
	}

	log := logger.WithComponent("export_worker")
	start := time.Now()

	// Flush uses Background so a shutdown flush still gets its timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := p.publisher.PublishBatch(ctx, batch)
	metrics.ExportBatchPublishDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Int("batch_size", len(batch)).
			Msg("failed to publish export batch")
		p.failed.Add(uint64(len(batch)))
		metrics.ExportFailedTotal.Add(float64(len(batch)))

		p.publishIndividually(batch)
		return
	}

	p.processed.Add(uint64(len(batch)))
	metrics.ExportProcessedTotal.Add(float64(len(batch)))
}

// publishIndividually is the fallback after a failed batch: one message at
// a time, so a single poison envelope cannot hold the rest hostage.
func (p *Pool) publishIndividually(batch []*models.ReadingEnvelope) {
	log := logger.WithComponent("export_worker")
	log.Warn().Int("count", len(batch)).Msg("retrying failed export batch individually")

	for _, envelope := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := p.publisher.Publish(ctx, envelope)
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Str("device_id", envelope.PartitionKey).
				Msg("failed to publish envelope individually")
			continue
		}

		// Reclassify from failed to processed
		p.failed.Add(^uint64(0))
		p.processed.Add(1)
		metrics.ExportProcessedTotal.Inc()
	}
}

// Stats returns cumulative pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Stats holds worker pool counters.
type Stats struct {
	Processed uint64
	Failed    uint64
}
