package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"floodwatch/internal/metrics"
	"floodwatch/internal/models"
	"floodwatch/internal/storage"
)

const dispatchTimeout = 15 * time.Second

// Dispatcher fans one event out to every subscriber of a device.
// Dispatch returns immediately; delivery runs in its own goroutine and
// reports failures only through logs and metrics.
type Dispatcher struct {
	subs     storage.SubscriptionStore
	provider Provider
	log      zerolog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(subs storage.SubscriptionStore, provider Provider, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		subs:     subs,
		provider: provider,
		log:      log,
	}
}

// Dispatch schedules delivery of n to every subscriber of deviceID and
// returns without waiting for it.
func (d *Dispatcher) Dispatch(deviceID string, n Notification) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		d.deliver(ctx, deviceID, n)
	}()
}

// Drain blocks until all scheduled deliveries finish. Called at shutdown;
// also what makes the dispatcher testable.
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, deviceID string, n Notification) {
	log := d.log.With().Str("device_id", deviceID).Logger()

	subs, err := d.subs.ListForDevice(ctx, deviceID)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve subscribers")
		return
	}
	if len(subs) == 0 {
		log.Debug().Msg("no subscribers prefer this device")
		return
	}

	// Subscriptions whose endpoint carries no token cannot be delivered to.
	tokens := make([]string, 0, len(subs))
	byToken := make(map[string]models.PushSubscription, len(subs))
	for _, s := range subs {
		tok := s.Token()
		if tok == "" {
			log.Warn().Int64("subscription_id", s.ID).Msg("subscription endpoint has no token")
			continue
		}
		tokens = append(tokens, tok)
		byToken[tok] = s
	}
	if len(tokens) == 0 {
		return
	}

	results, err := d.provider.SendMulticast(ctx, tokens, n)
	if err != nil {
		// Whole batch unreachable; next alert evaluation retries naturally.
		log.Error().Err(err).Int("tokens", len(tokens)).Msg("push multicast failed")
		metrics.NotificationsSentTotal.WithLabelValues("failed").Add(float64(len(tokens)))
		return
	}

	for _, res := range results {
		if res.Err == nil {
			metrics.NotificationsSentTotal.WithLabelValues("success").Inc()
			continue
		}

		metrics.NotificationsSentTotal.WithLabelValues("failed").Inc()
		sub := byToken[res.Token]
		if res.Gone {
			if err := d.subs.Delete(ctx, sub.ID); err != nil {
				log.Error().Err(err).Int64("subscription_id", sub.ID).Msg("failed to prune dead subscription")
			} else {
				metrics.SubscriptionsPrunedTotal.Inc()
				log.Info().Int64("subscription_id", sub.ID).Msg("pruned dead subscription")
			}
			continue
		}
		log.Warn().Err(res.Err).Int64("subscription_id", sub.ID).Msg("push delivery failed")
	}
}
