package digest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"regwatch/internal/filter"
	"regwatch/internal/logging"
	"regwatch/internal/model"
	"regwatch/internal/sender"
	"regwatch/internal/store"
)

// Aggregator collects the change history over a frequency's window and
// delivers one batched payload per eligible channel. Failures are
// isolated per subscription: one bad digest never aborts the loop over
// the rest.
type Aggregator struct {
	senders     sender.Registry
	subs        store.SubscriptionStore
	changes     store.ChangeStore
	sendTimeout time.Duration
	logger      logging.Logger

	mu      sync.Mutex
	lastRun map[model.DigestFrequency]time.Time
}

// NewAggregator builds an Aggregator. sendTimeout bounds each digest
// send (zero means 30s).
func NewAggregator(senders sender.Registry, subs store.SubscriptionStore, changes store.ChangeStore, sendTimeout time.Duration, logger logging.Logger) *Aggregator {
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &Aggregator{
		senders:     senders,
		subs:        subs,
		changes:     changes,
		sendTimeout: sendTimeout,
		logger:      logger,
		lastRun:     map[model.DigestFrequency]time.Time{},
	}
}

// RunDigest executes one digest tier: fetch the window's changes, filter
// them per subscription, and send one payload per matching channel. A
// subscription with zero matching changes produces no digest.
func (a *Aggregator) RunDigest(ctx context.Context, freq model.DigestFrequency) error {
	window := freq.Window()
	if window <= 0 {
		return fmt.Errorf("digest: %q is not a digest frequency", freq)
	}
	now := time.Now().UTC()
	since := a.windowStart(freq, now, window)

	changes, err := a.changes.ChangesSince(ctx, since, 0)
	if err != nil {
		return fmt.Errorf("fetch change history: %w", err)
	}
	windowResult := groupChanges(changes)
	if windowResult.TotalChanges == 0 {
		a.markRun(freq, now)
		return nil
	}

	subs, err := a.subs.ListActiveSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list active subscriptions: %w", err)
	}

	sent := 0
	for _, sub := range subs {
		if err := a.digestOne(ctx, sub, freq, since, now, windowResult, &sent); err != nil {
			a.logger.Error("digest failed for subscription",
				logging.F("subscription", sub.ID),
				logging.F("frequency", string(freq)),
				logging.Err(err))
		}
	}

	a.logger.Info("digest run complete",
		logging.F("frequency", string(freq)),
		logging.F("window_changes", windowResult.TotalChanges),
		logging.F("digests_sent", sent))
	a.markRun(freq, now)
	return nil
}

// windowStart computes the collection window lower bound. Normally this
// is now-window, but if the previous run for the tier was delayed the
// bound extends back to that run so changes between ticks are not
// dropped, capped at twice the nominal window.
func (a *Aggregator) windowStart(freq model.DigestFrequency, now time.Time, window time.Duration) time.Time {
	since := now.Add(-window)
	a.mu.Lock()
	last, ok := a.lastRun[freq]
	a.mu.Unlock()
	if ok && last.Before(since) {
		since = last
		if floor := now.Add(-2 * window); since.Before(floor) {
			since = floor
		}
	}
	return since
}

func (a *Aggregator) markRun(freq model.DigestFrequency, at time.Time) {
	a.mu.Lock()
	a.lastRun[freq] = at
	a.mu.Unlock()
}

func (a *Aggregator) digestOne(ctx context.Context, sub *model.Subscription, freq model.DigestFrequency, since, until time.Time, windowResult *model.DiffResult, sent *int) error {
	var eligible []*model.Channel
	for _, ch := range sub.Channels {
		if ch.Enabled && ch.Config.EffectiveFrequency() == freq {
			eligible = append(eligible, ch)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	matched := filter.FilterChanges(windowResult, &sub.Filter)
	if matched.TotalChanges == 0 {
		return nil
	}
	payload := sender.NewDigestPayload(freq, since, until, matched)

	var firstErr error
	for _, ch := range eligible {
		if err := a.sendDigest(ctx, ch, payload); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		*sent++
	}
	return firstErr
}

func (a *Aggregator) sendDigest(ctx context.Context, ch *model.Channel, payload *sender.Payload) error {
	s, err := a.senders.For(ch.Type)
	if err != nil {
		a.recordFailure(ctx, ch, err)
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, a.sendTimeout)
	err = s.Send(sendCtx, ch, payload)
	cancel()
	now := time.Now().UTC()
	if err != nil {
		a.recordFailure(ctx, ch, err)
		return fmt.Errorf("send digest to channel %s: %w", ch.ID, err)
	}
	if serr := a.subs.RecordChannelSuccess(ctx, ch.ID, now); serr != nil {
		a.logger.Error("record channel success", logging.Err(serr), logging.F("channel", ch.ID))
	}
	return nil
}

func (a *Aggregator) recordFailure(ctx context.Context, ch *model.Channel, cause error) {
	if err := a.subs.RecordChannelFailure(ctx, ch.ID, time.Now().UTC(), cause.Error()); err != nil {
		a.logger.Error("record channel failure", logging.Err(err), logging.F("channel", ch.ID))
	}
}

// groupChanges rebuilds a DiffResult-shaped grouping from stored history
// so the filter engine can run over it. Per-list order follows history
// order (oldest first).
func groupChanges(changes []*model.Change) *model.DiffResult {
	result := &model.DiffResult{
		NewServers:     []*model.Change{},
		UpdatedServers: []*model.Change{},
		RemovedServers: []*model.Change{},
	}
	for _, c := range changes {
		switch c.ChangeType {
		case model.ChangeTypeNew:
			result.NewServers = append(result.NewServers, c)
		case model.ChangeTypeUpdated:
			result.UpdatedServers = append(result.UpdatedServers, c)
		case model.ChangeTypeRemoved:
			result.RemovedServers = append(result.RemovedServers, c)
		}
	}
	result.TotalChanges = len(result.NewServers) + len(result.UpdatedServers) + len(result.RemovedServers)
	return result
}
