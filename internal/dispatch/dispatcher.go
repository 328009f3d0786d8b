package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"regwatch/internal/filter"
	"regwatch/internal/logging"
	"regwatch/internal/model"
	"regwatch/internal/sender"
	"regwatch/internal/store"
)

// Config controls delivery behavior.
type Config struct {
	// RetryMax is the total attempt ceiling per notification (initial
	// attempt included).
	RetryMax int
	// RetryInitialDelay is the delay before the first retry; subsequent
	// delays grow exponentially.
	RetryInitialDelay time.Duration
	// SendTimeout bounds a single send attempt. A timed-out attempt
	// counts against the retry budget.
	SendTimeout time.Duration
	// RatePerSec caps outbound sends across all channels.
	RatePerSec int
}

// DefaultConfig returns the delivery defaults.
func DefaultConfig() Config {
	return Config{
		RetryMax:          3,
		RetryInitialDelay: time.Second,
		SendTimeout:       10 * time.Second,
		RatePerSec:        10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RetryMax <= 0 {
		c.RetryMax = d.RetryMax
	}
	if c.RetryInitialDelay <= 0 {
		c.RetryInitialDelay = d.RetryInitialDelay
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = d.RatePerSec
	}
	return c
}

// Dispatcher resolves which subscriptions care about each change of a
// diff result and drives immediate delivery to their channels. Digest
// channels are left alone here; the aggregator picks their changes up
// from the change history on its own cadence.
type Dispatcher struct {
	cfg     Config
	senders sender.Registry
	subs    store.SubscriptionStore
	records store.NotificationStore
	limiter *rate.Limiter
	logger  logging.Logger
}

// New builds a Dispatcher. senders is the channel-type capability map;
// subs and records are the subscription and notification stores.
func New(cfg Config, senders sender.Registry, subs store.SubscriptionStore, records store.NotificationStore, logger logging.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:     cfg,
		senders: senders,
		subs:    subs,
		records: records,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		logger:  logger,
	}
}

// Dispatch fans the diff result out to every matching immediate channel
// of every active subscription. Delivery failures are channel-local: they
// are retried, recorded, and logged, but never fail the dispatch cycle.
// Only a subscription-store read error is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, result *model.DiffResult) error {
	if result == nil || result.TotalChanges == 0 {
		return nil
	}
	subs, err := d.subs.ListActiveSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list active subscriptions: %w", err)
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		matched := filter.FilterChanges(result, &sub.Filter)
		if matched.TotalChanges == 0 {
			continue
		}
		for _, ch := range sub.Channels {
			if !ch.Enabled {
				continue
			}
			if ch.Config.EffectiveFrequency() != model.FrequencyImmediate {
				continue
			}
			// One goroutine per channel: channels proceed independently,
			// while changes for the same channel keep the diff engine's
			// deterministic order.
			wg.Add(1)
			go func(sub *model.Subscription, ch *model.Channel, changes []*model.Change) {
				defer wg.Done()
				for _, c := range changes {
					d.deliver(ctx, sub, ch, c)
				}
			}(sub, ch, matched.AllChanges())
		}
	}
	wg.Wait()
	return nil
}

// deliver runs the notification state machine for one (change,
// subscription, channel) tuple: pending until a send succeeds (sent) or
// the attempt budget is exhausted (failed).
func (d *Dispatcher) deliver(ctx context.Context, sub *model.Subscription, ch *model.Channel, c *model.Change) {
	n := &model.Notification{
		ID:             uuid.New().String(),
		SubscriptionID: sub.ID,
		ChannelID:      ch.ID,
		ChangeID:       c.ID,
		Status:         model.NotificationPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := d.records.PutNotification(ctx, n); err != nil {
		d.logger.Error("store notification record", logging.Err(err), logging.F("channel", ch.ID))
	}

	s, err := d.senders.For(ch.Type)
	if err != nil {
		d.fail(ctx, n, ch, err)
		return
	}
	payload := sender.NewChangePayload(c)

	if err := d.sendWithRetry(ctx, s, ch, payload, n); err != nil {
		d.fail(ctx, n, ch, err)
		return
	}

	now := time.Now().UTC()
	n.Status = model.NotificationSent
	n.SentAt = now
	n.Error = ""
	if err := d.records.UpdateNotification(ctx, n); err != nil {
		d.logger.Error("update notification record", logging.Err(err), logging.F("notification", n.ID))
	}
	if err := d.subs.RecordChannelSuccess(ctx, ch.ID, now); err != nil {
		d.logger.Error("record channel success", logging.Err(err), logging.F("channel", ch.ID))
	}
	d.logger.Debug("notification delivered",
		logging.F("subscription", sub.ID),
		logging.F("channel", ch.ID),
		logging.F("server", c.ServerName),
		logging.F("attempts", n.Attempts))
}

// sendWithRetry attempts a send up to the configured ceiling with
// exponential backoff, keeping the notification's attempt bookkeeping
// current after every try.
func (d *Dispatcher) sendWithRetry(ctx context.Context, s sender.Sender, ch *model.Channel, p *sender.Payload, n *model.Notification) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.cfg.RetryInitialDelay
	exp.MaxInterval = 60 * d.cfg.RetryInitialDelay
	exp.Reset()

	op := func() (struct{}, error) {
		n.Attempts++
		if err := d.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		err := s.Send(attemptCtx, ch, p)
		cancel()
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(uint(d.cfg.RetryMax)),
		backoff.WithNotify(func(attemptErr error, next time.Duration) {
			n.NextRetry = time.Now().UTC().Add(next)
			n.Error = attemptErr.Error()
			if uerr := d.records.UpdateNotification(ctx, n); uerr != nil {
				d.logger.Error("update notification record", logging.Err(uerr), logging.F("notification", n.ID))
			}
			d.logger.Debug("retrying delivery",
				logging.F("channel", ch.ID),
				logging.F("attempt", n.Attempts),
				logging.Err(attemptErr))
		}),
	)
	return err
}

// fail marks the notification terminally failed and surfaces the error
// through the channel stats and the operator log.
func (d *Dispatcher) fail(ctx context.Context, n *model.Notification, ch *model.Channel, cause error) {
	now := time.Now().UTC()
	n.Status = model.NotificationFailed
	n.NextRetry = time.Time{}
	n.Error = cause.Error()
	if err := d.records.UpdateNotification(ctx, n); err != nil {
		d.logger.Error("update notification record", logging.Err(err), logging.F("notification", n.ID))
	}
	if err := d.subs.RecordChannelFailure(ctx, ch.ID, now, cause.Error()); err != nil {
		d.logger.Error("record channel failure", logging.Err(err), logging.F("channel", ch.ID))
	}
	d.logger.Warn("notification failed",
		logging.F("channel", ch.ID),
		logging.F("attempts", n.Attempts),
		logging.Err(cause))
}
