// Package dispatch fans a notification payload out to every active
// subscription of a target set, classifies transport failures and prunes
// endpoints the transport reports as permanently gone.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"github.com/Othmneto/islamic-portal-app-sub003/internal/models"
	"github.com/Othmneto/islamic-portal-app-sub003/internal/store"
)

// Outcome classifies one per-subscription delivery attempt.
type Outcome int

const (
	Delivered Outcome = iota
	// Transient covers rate limiting and temporary unavailability. The
	// dispatcher logs and counts it but never retries inline; a later
	// pass (health check, next trigger) re-attempts.
	Transient
	// Terminal means the endpoint is permanently gone (404/410) and the
	// subscription record must be pruned.
	Terminal
)

// Transport delivers one encrypted payload to one subscription.
type Transport interface {
	Send(ctx context.Context, sub models.Subscription, payload []byte, urgent bool) (Outcome, error)
}

// WebPushTransport sends through the standard browser push protocol with
// VAPID authentication.
type WebPushTransport struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	TTL             int
}

func (t *WebPushTransport) Send(ctx context.Context, sub models.Subscription, payload []byte, urgent bool) (Outcome, error) {
	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}

	opts := &webpush.Options{
		Subscriber:      t.Subscriber,
		VAPIDPublicKey:  t.VAPIDPublicKey,
		VAPIDPrivateKey: t.VAPIDPrivateKey,
		TTL:             t.TTL,
		Urgency:         webpush.UrgencyNormal,
	}
	if urgent {
		// Main alerts are worthless once the moment has passed.
		opts.Urgency = webpush.UrgencyHigh
		opts.TTL = 60
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, s, opts)
	if err != nil {
		return Transient, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return Terminal, fmt.Errorf("endpoint gone: status %d", resp.StatusCode)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Delivered, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Transient, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
}

// Result is the aggregate of one fan-out. Partial failure is expected; a
// fan-out only fails as a whole when it had no targets.
type Result struct {
	Delivered int
	Transient int
	Pruned    int
}

type Dispatcher struct {
	transport Transport
	store     store.SubscriptionStore
	logger    *zap.Logger
}

func New(transport Transport, subs store.SubscriptionStore, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{transport: transport, store: subs, logger: logger}
}

// Send delivers payload to each subscription concurrently. Each goroutine
// touches only its own record; the only write is the prune on terminal
// failure, so no locking beyond the store's own atomicity is needed.
func (d *Dispatcher) Send(ctx context.Context, subs []models.Subscription, payload models.NotificationPayload) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("payload marshal failed", zap.Error(err))
		return Result{}
	}
	urgent := payload.Priority == "high"

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		res Result
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub models.Subscription) {
			defer wg.Done()

			outcome, sendErr := d.transport.Send(ctx, sub, body, urgent)
			mu.Lock()
			defer mu.Unlock()

			switch outcome {
			case Delivered:
				deliveredTotal.Inc()
				res.Delivered++
			case Terminal:
				// Expected lifecycle churn, not a user-facing error.
				prunedTotal.Inc()
				res.Pruned++
				if _, err := d.store.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
					d.logger.Error("failed to prune dead endpoint",
						zap.String("endpoint", sub.Endpoint), zap.Error(err))
				} else {
					d.logger.Info("pruned dead endpoint",
						zap.String("endpoint", sub.Endpoint), zap.Error(sendErr))
				}
			case Transient:
				transientFailuresTotal.Inc()
				res.Transient++
				d.logger.Warn("transient push failure",
					zap.String("endpoint", sub.Endpoint), zap.Error(sendErr))
			}
		}(sub)
	}
	wg.Wait()

	d.logger.Info("fan-out complete",
		zap.String("tag", payload.Tag),
		zap.Int("targets", len(subs)),
		zap.Int("delivered", res.Delivered),
		zap.Int("transient", res.Transient),
		zap.Int("pruned", res.Pruned))
	return res
}
